package router

import (
	"testing"

	gomidi "gitlab.com/gomidi/midi/v2"
)

type recordingSink struct {
	noteOns         []struct{ ch, note, vel uint8 }
	noteOffs        []struct{ ch, note uint8 }
	ccs             []struct{ ch, cc, val uint8 }
	programChanges  []struct{ ch, program uint8 }
	pitchBends      []struct {
		ch    uint8
		value int16
	}
}

func (s *recordingSink) NoteOn(ch, note, vel uint8) error {
	s.noteOns = append(s.noteOns, struct{ ch, note, vel uint8 }{ch, note, vel})
	return nil
}
func (s *recordingSink) NoteOff(ch, note, vel uint8) error {
	s.noteOffs = append(s.noteOffs, struct{ ch, note uint8 }{ch, note})
	return nil
}
func (s *recordingSink) CC(ch, cc, val uint8) error {
	s.ccs = append(s.ccs, struct{ ch, cc, val uint8 }{ch, cc, val})
	return nil
}
func (s *recordingSink) ProgramChange(ch, program uint8) error {
	s.programChanges = append(s.programChanges, struct{ ch, program uint8 }{ch, program})
	return nil
}
func (s *recordingSink) PitchBend(ch uint8, value int16) error {
	s.pitchBends = append(s.pitchBends, struct {
		ch    uint8
		value int16
	}{ch, value})
	return nil
}
func (s *recordingSink) ChannelPressure(ch, val uint8) error    { return nil }
func (s *recordingSink) PolyPressure(ch, note, val uint8) error { return nil }
func (s *recordingSink) SysEx(payload []byte) error             { return nil }
func (s *recordingSink) Clock() error                           { return nil }
func (s *recordingSink) Start() error                           { return nil }
func (s *recordingSink) Continue() error                        { return nil }
func (s *recordingSink) Stop() error                            { return nil }
func (s *recordingSink) AllNotesOff() error                     { return nil }
func (s *recordingSink) Panic() error                           { return nil }
func (s *recordingSink) Close() error                           { return nil }

func TestRouter_OffModeDropsEverything(t *testing.T) {
	snk := &recordingSink{}
	r := New(snk, nil)
	r.Handle(gomidi.NoteOn(0, 60, 100))
	if len(snk.noteOns) != 0 {
		t.Fatalf("Off mode forwarded a message: %+v", snk.noteOns)
	}
}

func TestRouter_ThruForwardsVerbatimOnOriginalChannel(t *testing.T) {
	snk := &recordingSink{}
	r := New(snk, nil)
	r.SetThru(true)

	r.Handle(gomidi.NoteOn(3, 60, 100))
	if len(snk.noteOns) != 1 || snk.noteOns[0].ch != 4 || snk.noteOns[0].note != 60 || snk.noteOns[0].vel != 100 {
		t.Fatalf("noteOns = %+v, want one NoteOn ch=4 note=60 vel=100", snk.noteOns)
	}

	r.Handle(gomidi.NoteOff(3, 60))
	if len(snk.noteOffs) != 1 || snk.noteOffs[0].ch != 4 || snk.noteOffs[0].note != 60 {
		t.Fatalf("noteOffs = %+v, want one NoteOff ch=4 note=60", snk.noteOffs)
	}
}

func TestRouter_KeyboardRemapsChannel(t *testing.T) {
	snk := &recordingSink{}
	r := New(snk, nil)
	r.SetKeyboard(true)
	r.SetKeyboardChannel(10)

	r.Handle(gomidi.NoteOn(0, 60, 100))
	if len(snk.noteOns) != 1 || snk.noteOns[0].ch != 10 {
		t.Fatalf("noteOns = %+v, want remapped to channel 10", snk.noteOns)
	}
}

func TestRouter_KeyboardVelocityScaleIdentityAt50(t *testing.T) {
	snk := &recordingSink{}
	r := New(snk, nil)
	r.SetKeyboard(true)
	r.SetKeyboardVelocityPct(50)

	r.Handle(gomidi.NoteOn(0, 60, 80))
	if len(snk.noteOns) != 1 || snk.noteOns[0].vel != 80 {
		t.Fatalf("noteOns = %+v, want velocity unchanged (80) at 50%%", snk.noteOns)
	}
}

func TestRouter_KeyboardVelocityScaleSaturatesAt100(t *testing.T) {
	snk := &recordingSink{}
	r := New(snk, nil)
	r.SetKeyboard(true)
	r.SetKeyboardVelocityPct(100)

	r.Handle(gomidi.NoteOn(0, 60, 80))
	if len(snk.noteOns) != 1 || snk.noteOns[0].vel != 127 {
		t.Fatalf("noteOns = %+v, want velocity clamped to 127 at 100%%", snk.noteOns)
	}
}

func TestRouter_ThruAndKeyboardAreMutuallyExclusive(t *testing.T) {
	snk := &recordingSink{}
	r := New(snk, nil)
	r.SetThru(true)
	r.SetKeyboard(true)
	if r.Mode() != ModeKeyboard {
		t.Fatalf("Mode() = %v, want ModeKeyboard after enabling Keyboard", r.Mode())
	}

	r.SetThru(true)
	if r.Mode() != ModeThru {
		t.Fatalf("Mode() = %v, want ModeThru after re-enabling Thru", r.Mode())
	}
}

func TestRouter_ProgramChangeForwardedRaw(t *testing.T) {
	snk := &recordingSink{}
	r := New(snk, nil)
	r.SetThru(true)

	r.Handle(gomidi.Message([]byte{0xC2, 5})) // ProgramChange, channel 2 (0-indexed), program 5
	if len(snk.programChanges) != 1 || snk.programChanges[0].ch != 3 || snk.programChanges[0].program != 5 {
		t.Fatalf("programChanges = %+v, want one ProgramChange ch=3 program=5", snk.programChanges)
	}
}
