// Package sink implements the outgoing Byte Sink: a write-only interface
// that accepts MIDI channel-voice, SysEx, and realtime bytes, backed by a
// 31.25 kBd serial transport.
package sink

// ByteSink accepts outgoing MIDI messages. Channels are 1..16 at this
// boundary, matching the wire protocol; callers translate from the 0..15
// internal channel indexing used by the player core.
type ByteSink interface {
	NoteOn(ch uint8, note, vel uint8) error
	NoteOff(ch uint8, note, vel uint8) error
	CC(ch uint8, cc, val uint8) error
	ProgramChange(ch uint8, program uint8) error
	PitchBend(ch uint8, value int16) error
	ChannelPressure(ch uint8, val uint8) error
	PolyPressure(ch uint8, note, val uint8) error
	SysEx(payload []byte) error

	Clock() error
	Start() error
	Continue() error
	Stop() error

	// AllNotesOff sends CC 123 value 0 on channels 1..16.
	AllNotesOff() error
	// Panic additionally sends CC 120, CC 121, and explicit NoteOff for
	// notes 0..127 on every channel.
	Panic() error

	Close() error
}

// CC numbers used by ByteSink implementations' AllNotesOff/Panic helpers,
// plus the volume and pan controller numbers.
const (
	CCAllSoundOff    uint8 = 120
	CCResetAllCtrl   uint8 = 121
	CCVolume         uint8 = 7
	CCPan            uint8 = 10
	CCAllNotesOff    uint8 = 123
)
