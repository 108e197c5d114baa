// Package player implements the Player Core: the parser-driven scheduler,
// per-channel overrides, and transport state machine shared by the audio
// and UI execution contexts under a single mutual-exclusion guard.
package player

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kmantle/smfdeck/internal/blockreader"
	"github.com/kmantle/smfdeck/internal/sink"
	"github.com/kmantle/smfdeck/internal/smf"
)

// State is the transport state machine's current state.
type State uint8

const (
	StateStopped State = iota
	StatePlaying
	StatePaused
)

func (s State) String() string {
	switch s {
	case StatePlaying:
		return "playing"
	case StatePaused:
		return "paused"
	default:
		return "stopped"
	}
}

const (
	defaultTempoPercentTenths = 1000
	minTempoPercentTenths     = 500
	maxTempoPercentTenths     = 2000

	tickDrainBudget = 15 * time.Millisecond
	silenceSettle   = 10 * time.Millisecond
	unloadSettle    = 20 * time.Millisecond
	maxSeekEvents   = 50000

	ticksPerQuarterClock = 24
)

// Player owns the parser, scheduler, overrides, and transport state.
// Exactly one *Player serves one open file at a time; the UI context calls
// its mutation methods and the audio context calls Tick, both protected by
// the same mutex.
type Player struct {
	mu sync.Mutex

	sink   sink.ByteSink
	parser *smf.Parser
	log    *zap.Logger

	overrides *Overrides

	state       State
	ticksElapsed uint32
	lastTickWall int64
	microsPerTick uint64

	tempoPercentTenths int
	useTargetBPM       bool
	targetBPMHundredths uint32

	clockEnabled   bool
	lastClockMicros int64

	reachedEnd  bool
	lengthTicks uint32
	lastIOErr   error

	loaded bool

	nowMicros func() int64
	sleep     func(time.Duration)
}

// New creates a Player writing emitted bytes to out.
func New(out sink.ByteSink, log *zap.Logger) *Player {
	if log == nil {
		log = zap.NewNop()
	}
	return &Player{
		sink:               out,
		parser:             smf.New(log.Named("smf")),
		log:                log,
		overrides:          NewOverrides(),
		tempoPercentTenths: defaultTempoPercentTenths,
		nowMicros:          func() int64 { return time.Now().UnixMicro() },
		sleep:              time.Sleep,
	}
}

// Overrides returns the player's override table for direct mutation by the
// UI collaborator (mute, solo, transpose, etc).
func (p *Player) Overrides() *Overrides {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.overrides
}

// State returns the current transport state.
func (p *Player) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// ReachedEnd reports whether the currently loaded file played to
// completion naturally (vs. an explicit stop).
func (p *Player) ReachedEnd() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.reachedEnd
}

// LastError returns the most recent I/O error observed, if any.
func (p *Player) LastError() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastIOErr
}

// TicksElapsed returns the current playback position in ticks.
func (p *Player) TicksElapsed() uint32 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ticksElapsed
}

// LengthTicks returns the loaded file's total length in ticks, 0 if none
// loaded.
func (p *Player) LengthTicks() uint32 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lengthTicks
}

// TrackName returns the loaded file's track-0 name, empty if unset.
func (p *Player) TrackName() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.parser.Header().TrackName
}

// calculateMicrosPerTickLocked derives microsPerTick from the live tempo,
// tempoPercentTenths, and the file's division, per §4.2.
func (p *Player) calculateMicrosPerTickLocked() {
	division := uint64(p.parser.Header().Division)
	if division == 0 {
		p.microsPerTick = 0
		return
	}
	tempo := uint64(p.parser.Header().TempoMicrosPerQuarter) * 1000 / uint64(p.tempoPercentTenths)
	p.microsPerTick = tempo / division
}

// currentBPMLocked derives BPM from the live tempo and tempoPercentTenths,
// defaulting to 120 if the computation would divide by zero.
func (p *Player) currentBPMLocked() uint32 {
	tempo := uint64(p.parser.Header().TempoMicrosPerQuarter) * 1000 / uint64(p.tempoPercentTenths)
	if tempo == 0 {
		return 120
	}
	return uint32(60000000 / tempo)
}

// CurrentBPM returns the live effective BPM (post tempo-percent scaling).
func (p *Player) CurrentBPM() uint32 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.currentBPMLocked()
}

// TempoPercentTenths returns the current tempo scale, in tenths of a
// percent (1000 = 100.0%).
func (p *Player) TempoPercentTenths() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.tempoPercentTenths
}

// SetTempoPercentTenths sets the tempo scale directly, clamped to
// 500..2000, and disables target-BPM retargeting.
func (p *Player) SetTempoPercentTenths(tenths int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.useTargetBPM = false
	p.tempoPercentTenths = clampInt(tenths, minTempoPercentTenths, maxTempoPercentTenths)
	p.calculateMicrosPerTickLocked()
}

// SetTargetBPM enables tap-tempo retargeting: tempoPercentTenths is
// recomputed on every tempo-meta observation so the effective BPM tracks
// targetBPMHundredths (hundredths of a BPM) regardless of the file's
// nominal tempo.
func (p *Player) SetTargetBPM(hundredths uint32) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.useTargetBPM = true
	p.targetBPMHundredths = hundredths
	p.retargetTempoPercentLocked()
	p.calculateMicrosPerTickLocked()
}

// DisableTargetBPM reverts to a fixed tempoPercentTenths (left at its
// current value).
func (p *Player) DisableTargetBPM() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.useTargetBPM = false
}

// retargetTempoPercentLocked recomputes tempoPercentTenths from the file's
// raw (unscaled) BPM and the user's targetBPMHundredths.
func (p *Player) retargetTempoPercentLocked() {
	if !p.useTargetBPM {
		return
	}
	microsPerQuarter := p.parser.Header().TempoMicrosPerQuarter
	if microsPerQuarter == 0 {
		return
	}
	fileBPMHundredths := uint64(6000000000) / uint64(microsPerQuarter)
	if fileBPMHundredths == 0 {
		return
	}
	tenths := uint64(p.targetBPMHundredths) * 1000 / fileBPMHundredths
	p.tempoPercentTenths = clampInt(int(tenths), minTempoPercentTenths, maxTempoPercentTenths)
}

// SetClockEnabled toggles MIDI Clock/transport byte emission.
func (p *Player) SetClockEnabled(enabled bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.clockEnabled = enabled
}

// silenceAllLocked sends CC 123 on channels 1..16. Must be called with the
// lock held; the caller is responsible for the settle delay afterward,
// taken outside the lock.
func (p *Player) silenceAllLocked() {
	if err := p.sink.AllNotesOff(); err != nil {
		p.log.Warn("player: silence-all failed", zap.Error(err))
	}
}

// ResetMidiDevice sends a comprehensive GM/GS-style reset (All Sound Off,
// All Notes Off, Reset All Controllers on every channel) so a freshly
// loaded file starts against clean downstream synth state.
func (p *Player) ResetMidiDevice() {
	p.mu.Lock()
	if err := p.sink.Panic(); err != nil {
		p.log.Warn("player: resetMidiDevice failed", zap.Error(err))
	}
	p.mu.Unlock()
	p.sleep(silenceSettle)
}

// Play transitions Stopped/Paused -> Playing per the §4.4 table.
func (p *Player) Play() error {
	p.mu.Lock()
	if p.state == StatePlaying {
		p.mu.Unlock()
		return nil
	}
	fromStoppedAtZero := p.state == StateStopped && p.ticksElapsed == 0
	p.reachedEnd = false
	p.silenceAllLocked()
	p.mu.Unlock()
	p.sleep(silenceSettle)
	p.mu.Lock()

	if fromStoppedAtZero {
		if err := p.parser.Reset(); err != nil {
			p.state = StateStopped
			p.lastIOErr = err
			p.mu.Unlock()
			return err
		}
	}
	p.calculateMicrosPerTickLocked()

	wasStopped := p.state == StateStopped
	p.state = StatePlaying
	now := p.nowMicros()
	p.lastTickWall = now
	p.lastClockMicros = now

	if p.clockEnabled {
		if wasStopped && fromStoppedAtZero {
			p.logClockErr(p.sink.Start())
		} else {
			p.logClockErr(p.sink.Continue())
		}
	}
	p.mu.Unlock()
	return nil
}

// Pause transitions Playing -> Paused, preserving ticksElapsed.
func (p *Player) Pause() {
	p.mu.Lock()
	if p.state != StatePlaying {
		p.mu.Unlock()
		return
	}
	p.state = StatePaused
	if p.clockEnabled {
		p.logClockErr(p.sink.Stop())
	}
	p.silenceAllLocked()
	p.mu.Unlock()
	p.sleep(silenceSettle)
}

// Stop transitions to Stopped. If reset is true, the parser is rewound and
// ticksElapsed returns to 0.
func (p *Player) Stop(reset bool) {
	p.mu.Lock()
	if p.state == StateStopped && !reset {
		p.mu.Unlock()
		return
	}
	p.state = StateStopped
	if p.clockEnabled {
		p.logClockErr(p.sink.Stop())
	}
	p.silenceAllLocked()
	p.mu.Unlock()
	p.sleep(silenceSettle)

	if reset {
		p.mu.Lock()
		if err := p.parser.Reset(); err == nil {
			p.ticksElapsed = 0
		} else {
			p.lastIOErr = err
		}
		p.mu.Unlock()
	}
}

func (p *Player) logClockErr(err error) {
	if err != nil {
		p.log.Warn("player: clock/transport byte failed", zap.Error(err))
	}
}

// LoadFile opens reader as the current file: stops any current playback,
// resets the downstream MIDI device, then opens the new file and performs
// the initial tempo scan. lengthTicks/sysexCount should come from the
// length cache when available; pass (0, 0, false) to force a full scan.
func (p *Player) LoadFile(reader blockreader.BlockReader, cachedLength uint32, cachedSysex int, haveCached bool) error {
	p.Stop(false)
	p.sleep(100 * time.Millisecond)

	p.mu.Lock()
	p.silenceAllLocked()
	if err := p.sink.Panic(); err != nil {
		p.log.Warn("player: resetMidiDevice during load failed", zap.Error(err))
	}
	p.loaded = false
	p.mu.Unlock()
	p.sleep(unloadSettle)

	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.parser.Open(reader); err != nil {
		p.lastIOErr = err
		return fmt.Errorf("player: open file: %w", err)
	}
	if err := p.parser.ScanForInitialTempo(); err != nil {
		p.log.Warn("player: initial tempo scan failed", zap.Error(err))
	}

	if haveCached {
		p.parser.SetLengthTicks(cachedLength)
		p.parser.SetSysexCount(cachedSysex)
	} else {
		length, sysexCount, err := p.parser.CalculateLength()
		if err != nil {
			p.log.Warn("player: calculateLength had per-track errors", zap.Error(err))
		}
		p.parser.SetLengthTicks(length)
		p.parser.SetSysexCount(sysexCount)
	}
	p.lengthTicks = p.parser.LengthTicks()

	p.ticksElapsed = 0
	p.state = StateStopped
	p.reachedEnd = false
	p.retargetTempoPercentLocked()
	p.calculateMicrosPerTickLocked()
	p.loaded = true
	return nil
}

// UnloadFile releases the currently loaded file's parser state. Safe to
// call when nothing is loaded.
func (p *Player) UnloadFile() {
	p.Stop(false)
	p.sleep(100 * time.Millisecond)
	p.mu.Lock()
	defer p.mu.Unlock()
	p.loaded = false
	p.ticksElapsed = 0
	p.lengthTicks = 0
}

// SysexCount returns the loaded file's cached SysEx event count.
func (p *Player) SysexCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.parser.SysexCount()
}
