package smf

import (
	"bytes"
	"io"
	"testing"
)

// memReader is a minimal in-memory blockreader.BlockReader for tests.
type memReader struct {
	data []byte
	pos  int64
}

func newMemReader(b []byte) *memReader { return &memReader{data: b} }

func (r *memReader) Seek(abs int64) error { r.pos = abs; return nil }

func (r *memReader) Read(buf []byte) (int, error) {
	if r.pos >= int64(len(r.data)) {
		return 0, io.EOF
	}
	n := copy(buf, r.data[r.pos:])
	r.pos += int64(n)
	return n, nil
}

func (r *memReader) Size() (int64, error) { return int64(len(r.data)), nil }
func (r *memReader) Mtime() (uint32, error) { return 0, nil }
func (r *memReader) Close() error           { return nil }

// buildSMF assembles a minimal single-track Type-0 file: header with the
// given division, then one MTrk chunk containing trackBytes verbatim.
func buildSMF(division uint16, trackBytes []byte) []byte {
	var buf bytes.Buffer
	buf.WriteString("MThd")
	buf.Write([]byte{0, 0, 0, 6})
	buf.Write([]byte{0, 0}) // format 0
	buf.Write([]byte{0, 1}) // 1 track
	buf.Write([]byte{byte(division >> 8), byte(division)})
	buf.WriteString("MTrk")
	length := uint32(len(trackBytes))
	buf.Write([]byte{byte(length >> 24), byte(length >> 16), byte(length >> 8), byte(length)})
	buf.Write(trackBytes)
	return buf.Bytes()
}

func TestParser_S1_MinimalNoteOnOff(t *testing.T) {
	track := []byte{
		0x00, 0x90, 0x3C, 0x64, // delta0 NoteOn ch0 60 100
		0x60, 0x80, 0x3C, 0x40, // delta96 NoteOff ch0 60 64
		0x00, 0xFF, 0x2F, 0x00, // delta0 EOT
	}
	data := buildSMF(96, track)

	p := New(nil)
	if err := p.Open(newMemReader(data)); err != nil {
		t.Fatalf("Open: %v", err)
	}
	if got := p.Header().Division; got != 96 {
		t.Fatalf("division = %d, want 96", got)
	}
	if got := p.Header().TempoMicrosPerQuarter; got != defaultTempoMicrosPerQuarter {
		t.Fatalf("tempo = %d, want default", got)
	}

	ev1, ok := p.ReadNextEvent()
	if !ok || ev1.Kind != KindChannelVoice || ev1.Status != StatusNoteOn {
		t.Fatalf("event 1 = %+v, ok=%v", ev1, ok)
	}
	if ev1.AbsTick != 0 || ev1.Data1 != 60 || ev1.Data2 != 100 {
		t.Fatalf("event 1 fields wrong: %+v", ev1)
	}

	ev2, ok := p.ReadNextEvent()
	if !ok || ev2.Status != StatusNoteOff {
		t.Fatalf("event 2 = %+v, ok=%v", ev2, ok)
	}
	if ev2.AbsTick != 96 || ev2.Data1 != 60 || ev2.Data2 != 64 {
		t.Fatalf("event 2 fields wrong: %+v", ev2)
	}

	if _, ok := p.ReadNextEvent(); ok {
		t.Fatalf("expected end of track after EOT meta")
	}
}

func TestParser_S2_TempoChangeMidFile(t *testing.T) {
	track := []byte{
		0x00, 0xFF, 0x51, 0x03, 0x0F, 0x42, 0x40, // set tempo 1,000,000
		0x60, 0x90, 0x3C, 0x64,
		0x60, 0x80, 0x3C, 0x40,
		0x00, 0xFF, 0x2F, 0x00,
	}
	data := buildSMF(96, track)

	p := New(nil)
	if err := p.Open(newMemReader(data)); err != nil {
		t.Fatalf("Open: %v", err)
	}

	// The tempo meta is the first buffered event.
	tempoEv, ok := p.ReadNextEvent()
	if !ok || !tempoEv.IsTempoMeta() {
		t.Fatalf("expected tempo meta first, got %+v ok=%v", tempoEv, ok)
	}
	if got := p.Header().TempoMicrosPerQuarter; got != 1000000 {
		t.Fatalf("tempo after observe = %d, want 1000000", got)
	}

	noteOn, ok := p.ReadNextEvent()
	if !ok || noteOn.Status != StatusNoteOn || noteOn.AbsTick != 96 {
		t.Fatalf("noteOn = %+v ok=%v", noteOn, ok)
	}

	noteOff, ok := p.ReadNextEvent()
	if !ok || noteOff.Status != StatusNoteOff || noteOff.AbsTick != 192 {
		t.Fatalf("noteOff = %+v ok=%v", noteOff, ok)
	}
}

func TestParser_S3_RunningStatus(t *testing.T) {
	track := []byte{
		0x00, 0x90, 0x3C, 0x64, // NoteOn ch0 60 100
		0x10, 0x3C, 0x00, // delta16, running status 0x90: NoteOn 60 vel0 == NoteOff
		0x00, 0xFF, 0x2F, 0x00,
	}
	data := buildSMF(96, track)

	p := New(nil)
	if err := p.Open(newMemReader(data)); err != nil {
		t.Fatalf("Open: %v", err)
	}

	first, ok := p.ReadNextEvent()
	if !ok || first.Status != StatusNoteOn {
		t.Fatalf("first = %+v ok=%v", first, ok)
	}

	second, ok := p.ReadNextEvent()
	if !ok {
		t.Fatalf("expected second event via running status")
	}
	if second.Status != StatusNoteOn || second.Channel != 0 || second.Data1 != 60 || second.Data2 != 0 {
		t.Fatalf("second event wrong: %+v", second)
	}
	if second.AbsTick != 16 {
		t.Fatalf("second.AbsTick = %d, want 16", second.AbsTick)
	}
}

func TestParser_RunningStatusClearedAcrossMeta(t *testing.T) {
	// After a meta event, a bare data byte with no new status is corrupt:
	// running status must not leak across meta/sysex boundaries.
	track := []byte{
		0x00, 0x90, 0x3C, 0x64,
		0x00, 0xFF, 0x01, 0x01, 0x41, // text meta "A"
		0x00, 0x3C, 0x40, // illegal: no running status available
	}
	data := buildSMF(96, track)

	p := New(nil)
	if err := p.Open(newMemReader(data)); err != nil {
		t.Fatalf("Open: %v", err)
	}
	if _, ok := p.ReadNextEvent(); !ok {
		t.Fatalf("expected first NoteOn")
	}
	if _, ok := p.ReadNextEvent(); !ok {
		t.Fatalf("expected text meta")
	}
	// The track should now be marked ended rather than misinterpreting the
	// dangling data byte as a channel-voice message.
	if _, ok := p.ReadNextEvent(); ok {
		t.Fatalf("expected track to end on corrupt trailing data byte")
	}
}

func TestParser_CalculateLength(t *testing.T) {
	track := []byte{
		0x00, 0x90, 0x3C, 0x64,
		0x60, 0x80, 0x3C, 0x40,
		0x00, 0xF0, 0x02, 0x01, 0x02, // sysex, 2 bytes
		0x00, 0xFF, 0x2F, 0x00,
	}
	data := buildSMF(96, track)

	p := New(nil)
	if err := p.Open(newMemReader(data)); err != nil {
		t.Fatalf("Open: %v", err)
	}

	length, sysexCount, err := p.CalculateLength()
	if err != nil {
		t.Fatalf("CalculateLength: %v", err)
	}
	if length != 96 {
		t.Fatalf("length = %d, want 96", length)
	}
	if sysexCount != 1 {
		t.Fatalf("sysexCount = %d, want 1", sysexCount)
	}

	// The scan must not disturb the normal read cursor.
	ev, ok := p.ReadNextEvent()
	if !ok || ev.Status != StatusNoteOn || ev.AbsTick != 0 {
		t.Fatalf("post-scan first event = %+v ok=%v", ev, ok)
	}
}

func TestParser_ScanForInitialTempo(t *testing.T) {
	track := []byte{
		0x00, 0xFF, 0x03, 0x04, 'L', 'e', 'a', 'd', // track name meta
		0x00, 0xFF, 0x51, 0x03, 0x06, 0x1A, 0x80, // tempo 400,000 (differs from the 500,000 default)
		0x00, 0x90, 0x3C, 0x64,
		0x60, 0x80, 0x3C, 0x40,
		0x00, 0xFF, 0x2F, 0x00,
	}
	data := buildSMF(96, track)

	p := New(nil)
	if err := p.Open(newMemReader(data)); err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := p.ScanForInitialTempo(); err != nil {
		t.Fatalf("ScanForInitialTempo: %v", err)
	}
	if got := p.Header().TempoMicrosPerQuarter; got != 0x061A80 {
		t.Fatalf("tempo = %d, want %d", got, 0x061A80)
	}
	if got := p.Header().TrackName; got != "Lead" {
		t.Fatalf("track name = %q, want Lead", got)
	}

	// Scanning must not disturb the normal read cursor: the first event
	// read afterward is still the track name meta.
	ev, ok := p.ReadNextEvent()
	if !ok || ev.Kind != KindMeta || ev.Data1 != MetaTrackName {
		t.Fatalf("post-scan first event = %+v ok=%v", ev, ok)
	}
}

func TestParser_ScanForInitialTempoSkipsOutOfRangeThenTakesValid(t *testing.T) {
	track := []byte{
		0x00, 0xFF, 0x51, 0x03, 0x00, 0x00, 0x01, // tempo 1 (below minValidTempo), rejected
		0x00, 0xFF, 0x51, 0x03, 0x0F, 0x42, 0x40, // tempo 1,000,000, valid
		0x00, 0x90, 0x3C, 0x64,
		0x60, 0x80, 0x3C, 0x40,
		0x00, 0xFF, 0x2F, 0x00,
	}
	data := buildSMF(96, track)

	p := New(nil)
	if err := p.Open(newMemReader(data)); err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := p.ScanForInitialTempo(); err != nil {
		t.Fatalf("ScanForInitialTempo: %v", err)
	}
	if got := p.Header().TempoMicrosPerQuarter; got != 1000000 {
		t.Fatalf("tempo = %d, want 1000000 (the later valid tempo, not the rejected one)", got)
	}
}

func TestParser_Reset(t *testing.T) {
	track := []byte{
		0x00, 0xFF, 0x51, 0x03, 0x0F, 0x42, 0x40,
		0x60, 0x90, 0x3C, 0x64,
		0x00, 0xFF, 0x2F, 0x00,
	}
	data := buildSMF(96, track)

	p := New(nil)
	if err := p.Open(newMemReader(data)); err != nil {
		t.Fatalf("Open: %v", err)
	}
	if _, ok := p.ReadNextEvent(); !ok {
		t.Fatalf("expected tempo meta")
	}
	if got := p.Header().TempoMicrosPerQuarter; got != 1000000 {
		t.Fatalf("tempo after first read = %d", got)
	}

	if err := p.Reset(); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	if got := p.Header().TempoMicrosPerQuarter; got != defaultTempoMicrosPerQuarter {
		t.Fatalf("tempo after reset = %d, want default", got)
	}
	ev, ok := p.ReadNextEvent()
	if !ok || !ev.IsTempoMeta() {
		t.Fatalf("expected tempo meta again after reset, got %+v ok=%v", ev, ok)
	}
}

func TestParser_RejectsSMPTEDivision(t *testing.T) {
	data := buildSMF(0, nil)
	// Force the SMPTE high bit directly since buildSMF always writes a
	// positive division; patch data[12] (division high byte).
	data[12] = 0xE0 // high bit set => SMPTE timecode division

	p := New(nil)
	if err := p.Open(newMemReader(data)); err == nil {
		t.Fatalf("expected error for SMPTE division")
	}
}

func TestParser_RejectsFormat2(t *testing.T) {
	data := buildSMF(96, nil)
	data[9] = 2 // format field low byte -> format 2

	p := New(nil)
	err := p.Open(newMemReader(data))
	if err == nil {
		t.Fatalf("expected error for format 2")
	}
}
