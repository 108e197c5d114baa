package ui

import (
	"testing"

	"github.com/kmantle/smfdeck/internal/player"
)

type nopSink struct{}

func (nopSink) NoteOn(ch, note, vel uint8) error      { return nil }
func (nopSink) NoteOff(ch, note, vel uint8) error     { return nil }
func (nopSink) CC(ch, cc, val uint8) error            { return nil }
func (nopSink) ProgramChange(ch, program uint8) error { return nil }
func (nopSink) PitchBend(ch uint8, value int16) error { return nil }
func (nopSink) ChannelPressure(ch, val uint8) error   { return nil }
func (nopSink) PolyPressure(ch, note, val uint8) error { return nil }
func (nopSink) SysEx(payload []byte) error            { return nil }
func (nopSink) Clock() error                          { return nil }
func (nopSink) Start() error                          { return nil }
func (nopSink) Continue() error                       { return nil }
func (nopSink) Stop() error                           { return nil }
func (nopSink) AllNotesOff() error                    { return nil }
func (nopSink) Panic() error                          { return nil }
func (nopSink) Close() error                          { return nil }

func TestSnapshot_ReflectsFreshlyConstructedPlayer(t *testing.T) {
	p := player.New(nopSink{}, nil)
	snap := Snapshot(p)

	if snap.State != player.StateStopped {
		t.Fatalf("State = %v, want StateStopped", snap.State)
	}
	if snap.TrackName != "" {
		t.Fatalf("TrackName = %q, want empty with nothing loaded", snap.TrackName)
	}
	if snap.ReachedEnd {
		t.Fatalf("ReachedEnd = true, want false with nothing loaded")
	}
	if snap.LastError != nil {
		t.Fatalf("LastError = %v, want nil", snap.LastError)
	}
}
