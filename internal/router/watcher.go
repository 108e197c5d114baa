package router

import (
	"fmt"
	"strings"
	"sync"
	"time"

	gomidi "gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/drivers"
	"gitlab.com/gomidi/midi/v2/drivers/rtmididrv"
	"go.uber.org/zap"
)

// preferredPatterns: input devices matching any of these are auto-connected
// first. excludedPatterns: virtual/system ports never auto-connected.
var (
	preferredPatterns = []string{"Keyboard", "Keystation", "MIDI Keyboard"}
	excludedPatterns  = []string{"Midi Through", "Through Port", "Dummy"}
)

const rescanInterval = 1000 * time.Millisecond

// Watcher monitors available MIDI input ports and maintains a connection to
// one preferred device, handling hot-plug and hot-unplug transparently. It
// must be ticked from the UI context only, never from the audio context.
type Watcher struct {
	mu           sync.Mutex
	drv          *rtmididrv.Driver
	inPort       drivers.In
	stopFn       func()
	connected    bool
	selectedName string
	lastRescanAt time.Time

	router *Router
	log    *zap.Logger
}

// NewWatcher creates a watcher that forwards every decoded incoming message
// to router.Handle. Call Close when done.
func NewWatcher(r *Router, log *zap.Logger) (*Watcher, error) {
	if log == nil {
		log = zap.NewNop()
	}
	drv, err := rtmididrv.New()
	if err != nil {
		return nil, fmt.Errorf("router: rtmididrv: %w", err)
	}
	return &Watcher{drv: drv, router: r, log: log}, nil
}

// Close shuts down the active connection and the rtmidi driver.
func (w *Watcher) Close() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.closeConn()
	w.drv.Close()
}

// Tick scans for devices, auto-connects to a preferred one, and detects
// disappearances. Intended to be called roughly once a second.
func (w *Watcher) Tick() {
	w.mu.Lock()
	defer w.mu.Unlock()

	now := time.Now()
	if !w.lastRescanAt.IsZero() && now.Sub(w.lastRescanAt) < rescanInterval {
		return
	}
	w.lastRescanAt = now

	inputs := w.listInputs()

	if w.connected {
		for _, n := range inputs {
			if n == w.selectedName {
				return
			}
		}
		w.log.Warn("router: device disappeared", zap.String("device", w.selectedName))
		w.closeConn()
		w.lastRescanAt = time.Time{}
		return
	}

	if len(inputs) == 0 {
		return
	}
	cand, ok := w.pickPreferred(inputs)
	if !ok {
		return
	}
	if err := w.openByName(cand); err != nil {
		w.log.Error("router: connect failed", zap.String("device", cand), zap.Error(err))
	}
}

// Connected reports whether an input device is currently open.
func (w *Watcher) Connected() (bool, string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.connected, w.selectedName
}

func (w *Watcher) listInputs() []string {
	ins, err := w.drv.Ins()
	if err != nil {
		w.log.Error("router: list inputs failed", zap.Error(err))
		return nil
	}
	var names []string
	for _, in := range ins {
		name := in.String()
		excluded := false
		for _, pat := range excludedPatterns {
			if containsCI(name, pat) {
				excluded = true
				break
			}
		}
		if !excluded {
			names = append(names, name)
		}
	}
	return names
}

func (w *Watcher) pickPreferred(inputs []string) (string, bool) {
	for _, pat := range preferredPatterns {
		for _, name := range inputs {
			if containsCI(name, pat) {
				return name, true
			}
		}
	}
	if len(inputs) == 1 {
		return inputs[0], true
	}
	return "", false
}

func (w *Watcher) closeConn() {
	if w.stopFn != nil {
		w.stopFn()
		w.stopFn = nil
	}
	if w.inPort != nil {
		_ = w.inPort.Close()
		w.inPort = nil
	}
	w.connected = false
	w.selectedName = ""
}

func (w *Watcher) openByName(name string) error {
	ins, err := w.drv.Ins()
	if err != nil {
		return err
	}
	var found drivers.In
	for _, in := range ins {
		if in.String() == name {
			found = in
			break
		}
	}
	if found == nil {
		return fmt.Errorf("input %q not found", name)
	}
	if err := found.Open(); err != nil {
		return fmt.Errorf("open %q: %w", name, err)
	}

	stop, err := gomidi.ListenTo(found, func(msg gomidi.Message, _ int32) {
		w.router.Handle(msg)
	}, gomidi.HandleError(func(listenErr error) {
		w.log.Warn("router: listener error", zap.String("device", name), zap.Error(listenErr))
		go func() {
			w.mu.Lock()
			defer w.mu.Unlock()
			if w.connected && w.selectedName == name {
				w.closeConn()
				w.lastRescanAt = time.Time{}
			}
		}()
	}))
	if err != nil {
		_ = found.Close()
		return fmt.Errorf("listen %q: %w", name, err)
	}

	w.inPort = found
	w.stopFn = stop
	w.connected = true
	w.selectedName = name
	w.log.Info("router: connected", zap.String("device", name))
	return nil
}

func containsCI(s, sub string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(sub))
}
