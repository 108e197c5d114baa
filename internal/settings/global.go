package settings

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/kmantle/smfdeck/internal/router"
)

// Global holds the §6.5 global-settings record: input router mode and MIDI
// Clock emission, persisted independent of any loaded file.
type Global struct {
	Thru             bool
	Keyboard         bool
	KeyboardChannel  uint8 // 1..16
	KeyboardVelocity uint8 // 1..100
	Clock            bool
}

// DefaultGlobal returns the out-of-the-box global settings: router Off,
// keyboard channel 1, keyboard velocity at identity (50), Clock disabled.
func DefaultGlobal() Global {
	return Global{KeyboardChannel: 1, KeyboardVelocity: 50}
}

// ApplyToRouter pushes g's router-facing fields (Thru/Keyboard/channel/
// velocity) into r. Clock is applied separately by the caller via
// player.SetClockEnabled, since it is Player Core state, not Router state.
func (g Global) ApplyToRouter(r *router.Router) {
	r.SetKeyboardChannel(g.KeyboardChannel)
	r.SetKeyboardVelocityPct(g.KeyboardVelocity)
	r.SetThru(g.Thru)
	r.SetKeyboard(g.Keyboard)
}

// WriteGlobal serializes g to w in the §6.5 key=value format.
func WriteGlobal(w io.Writer, g Global) error {
	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "MIDI_THRU=%d\n", boolToBit(g.Thru))
	fmt.Fprintf(bw, "MIDI_KEYBOARD=%d\n", boolToBit(g.Keyboard))
	fmt.Fprintf(bw, "MIDI_KEYBOARD_CH=%d\n", g.KeyboardChannel)
	fmt.Fprintf(bw, "MIDI_KEYBOARD_VEL=%d\n", g.KeyboardVelocity)
	fmt.Fprintf(bw, "MIDI_CLOCK=%d\n", boolToBit(g.Clock))
	return bw.Flush()
}

// ParseGlobal reads a §6.5 record from r, skipping unrecognized keys.
func ParseGlobal(r io.Reader, log *zap.Logger) (Global, error) {
	if log == nil {
		log = zap.NewNop()
	}
	g := DefaultGlobal()
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		key, val, ok := strings.Cut(line, "=")
		if !ok {
			log.Warn("settings: malformed line, skipping", zap.String("line", line))
			continue
		}
		if err := applyGlobalKey(&g, key, val, log); err != nil {
			log.Warn("settings: bad value, skipping key", zap.String("key", key), zap.Error(err))
		}
	}
	if err := scanner.Err(); err != nil {
		return g, fmt.Errorf("settings: read: %w", err)
	}
	return g, nil
}

func applyGlobalKey(g *Global, key, val string, log *zap.Logger) error {
	switch key {
	case "MIDI_THRU":
		g.Thru = val == "1"
	case "MIDI_KEYBOARD":
		g.Keyboard = val == "1"
	case "MIDI_KEYBOARD_CH":
		n, err := strconv.ParseUint(val, 10, 8)
		if err != nil {
			return err
		}
		g.KeyboardChannel = uint8(n)
	case "MIDI_KEYBOARD_VEL":
		n, err := strconv.ParseUint(val, 10, 8)
		if err != nil {
			return err
		}
		g.KeyboardVelocity = uint8(n)
	case "MIDI_CLOCK":
		g.Clock = val == "1"
	default:
		log.Warn("settings: unrecognized key, skipping", zap.String("key", key))
	}
	return nil
}
