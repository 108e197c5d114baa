// Package smf implements the bounded-memory Standard MIDI File parser: it
// opens a file, reads the header, and exposes a merged tick-ordered event
// stream across all tracks plus a one-shot length/SysEx scan.
package smf

import (
	"fmt"
	"io"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/kmantle/smfdeck/internal/blockreader"
)

// maxVLQBytes bounds a variable-length quantity to 4 bytes; a 4th byte
// that still has its continuation bit set means the file is corrupt.
const maxVLQBytes = 4

// maxLengthScanDelta is the defensive bound on a single decoded delta-time
// during calculateLength: anything larger aborts that track's scan rather
// than risk spinning on a corrupt file.
const maxLengthScanDelta = 500000

// maxInitialTempoScanEvents bounds scanForInitialTempo's walk of track 0.
const maxInitialTempoScanEvents = 100

// Parser reads one open SMF file: a header plus one trackCursor per track.
type Parser struct {
	reader blockreader.BlockReader
	header Header
	tracks []trackCursor
	log    *zap.Logger

	lengthTicks uint32
	sysexCount  int
}

// New creates a parser that will log anomalies to log (nil is accepted and
// is treated as a no-op logger).
func New(log *zap.Logger) *Parser {
	if log == nil {
		log = zap.NewNop()
	}
	return &Parser{log: log}
}

// Header returns the current (possibly live-updated) file header.
func (p *Parser) Header() Header { return p.header }

// LengthTicks returns the cached length computed by CalculateLength or
// injected via SetLengthTicks.
func (p *Parser) LengthTicks() uint32 { return p.lengthTicks }

// SysexCount returns the cached SysEx count from CalculateLength or
// SetSysexCount.
func (p *Parser) SysexCount() int { return p.sysexCount }

// SetLengthTicks injects a previously-cached length, skipping a rescan.
func (p *Parser) SetLengthTicks(ticks uint32) { p.lengthTicks = ticks }

// SetSysexCount injects a previously-cached SysEx count.
func (p *Parser) SetSysexCount(n int) { p.sysexCount = n }

// Open reads the 14-byte MThd header and every MTrk chunk header, then
// pre-reads the first event of each track.
func (p *Parser) Open(r blockreader.BlockReader) error {
	p.reader = r
	p.tracks = nil
	p.lengthTicks = 0
	p.sysexCount = 0

	if err := r.Seek(0); err != nil {
		return fmt.Errorf("smf: seek to header: %w: %w", ErrIO, err)
	}
	magic := make([]byte, 14)
	if _, err := io.ReadFull(toReader(r), magic); err != nil {
		return fmt.Errorf("smf: read header: %w: %w", ErrBadHeader, err)
	}
	if string(magic[0:4]) != "MThd" {
		return fmt.Errorf("smf: missing MThd: %w", ErrBadHeader)
	}
	chunkLen := be32(magic[4:8])
	if chunkLen != 6 {
		return fmt.Errorf("smf: MThd length %d != 6: %w", chunkLen, ErrBadHeader)
	}
	format := be16(magic[8:10])
	if format == 2 {
		return fmt.Errorf("smf: format 2: %w", ErrUnsupportedFormat)
	}
	if format != 0 && format != 1 {
		return fmt.Errorf("smf: format %d: %w", format, ErrBadHeader)
	}
	trackCount := be16(magic[10:12])
	division := be16(magic[12:14])
	if division == 0 || division&0x8000 != 0 {
		// division==0 is always invalid; the high bit set means SMPTE
		// timecode division, which this player does not support (§1
		// Non-goals require a positive PPQN).
		return fmt.Errorf("smf: non-PPQN or zero division: %w", ErrBadHeader)
	}
	if trackCount > MaxTracks {
		trackCount = MaxTracks
	}

	p.header = Header{Format: format, TrackCount: trackCount, Division: division}
	defaultHeaderState(&p.header)

	offset := int64(14)
	var found []trackCursor
	for len(found) < int(trackCount) {
		if err := r.Seek(offset); err != nil {
			break // ran out of chunks before trackCount was satisfied
		}
		chunkHdr := make([]byte, 8)
		n, err := io.ReadFull(toReader(r), chunkHdr)
		if n < 8 || err != nil {
			break
		}
		chunkType := string(chunkHdr[0:4])
		chunkSize := int64(be32(chunkHdr[4:8]))
		dataStart := offset + 8
		dataEnd := dataStart + chunkSize
		if chunkType == "MTrk" {
			found = append(found, newTrackCursor(dataStart, dataEnd))
		}
		offset = dataEnd
	}
	p.tracks = found
	p.header.TrackCount = uint16(len(found))

	for i := range p.tracks {
		p.bufferNext(i)
	}
	return nil
}

// bufferNext decodes and stores the next event for track i into its
// cursor's buffered slot, materializing SysEx/meta payloads. A decode
// error ends that one track without returning the error to the caller;
// the player sees it simply as an ended track (§7 CorruptEvent/
// UnexpectedEOT policy).
func (p *Parser) bufferNext(i int) {
	c := &p.tracks[i]
	if c.ended {
		c.buffered = nil
		return
	}
	ev, err := p.decodeOneEvent(i)
	if err != nil {
		p.log.Warn("smf: track ended early", zap.Int("track", i), zap.Error(err))
		c.ended = true
		c.buffered = nil
		return
	}
	c.buffered = ev
	if ev == nil {
		// End-of-track meta consumed with nothing to emit; track ended.
		c.ended = true
	}
}

// PeekAbsTick returns the smallest buffered absTick across all non-ended
// tracks without consuming it, or false if every track has ended.
func (p *Parser) PeekAbsTick() (uint32, bool) {
	idx, ok := p.nextTrackIndex()
	if !ok {
		return 0, false
	}
	return p.tracks[idx].buffered.AbsTick, true
}

// ReadNextEvent returns the event with the smallest absTick across all
// tracks (ties broken by lowest track index), then refills that track's
// buffer. Returns (nil, false) once every track has ended.
func (p *Parser) ReadNextEvent() (*Event, bool) {
	idx, ok := p.nextTrackIndex()
	if !ok {
		return nil, false
	}
	ev := p.tracks[idx].buffered
	p.observeEmitted(ev)
	p.bufferNext(idx)
	return ev, true
}

func (p *Parser) nextTrackIndex() (int, bool) {
	best := -1
	var bestTick uint32
	for i := range p.tracks {
		c := &p.tracks[i]
		if c.ended || c.buffered == nil {
			continue
		}
		if best == -1 || c.buffered.AbsTick < bestTick {
			best = i
			bestTick = c.buffered.AbsTick
		}
	}
	if best == -1 {
		return 0, false
	}
	return best, true
}

// observeEmitted updates live header state (tempo, time signature, track
// name) as meta events are handed to the caller. Surfacing tempo as an
// ordinary event rather than via a parser->player callback keeps the
// parser ignorant of the player, per the design notes. Reports whether a
// tempo value was actually applied, so callers that need to distinguish a
// valid tempo from an out-of-range one don't have to duplicate the check.
func (p *Parser) observeEmitted(ev *Event) bool {
	if ev == nil || ev.Kind != KindMeta {
		return false
	}
	switch ev.Data1 {
	case MetaTempo:
		if len(ev.Payload) == 3 {
			v := be24(ev.Payload)
			if v >= minValidTempo && v <= maxValidTempo {
				p.header.TempoMicrosPerQuarter = v
				return true
			}
			p.log.Warn("smf: tempo out of range, ignored", zap.Uint32("micros", v))
		}
	case MetaTimeSignature:
		if len(ev.Payload) == 4 {
			p.header.TimeSigNum = ev.Payload[0]
			p.header.TimeSigDen = 1 << ev.Payload[1]
		}
	case MetaTrackName:
		p.header.TrackName = string(ev.Payload)
	}
	return false
}

// Reset rewinds every cursor to its track start, restores default
// tempo/time-signature, and rebuffers the first event of each track.
func (p *Parser) Reset() error {
	if p.reader == nil {
		return fmt.Errorf("smf: reset without open file: %w", ErrIO)
	}
	defaultHeaderState(&p.header)
	p.header.TrackName = ""
	for i := range p.tracks {
		c := &p.tracks[i]
		c.resetTo(c.startOffset, c.endOffset)
	}
	for i := range p.tracks {
		p.bufferNext(i)
	}
	return nil
}

// ScanForInitialTempo scans only track 0, bounded at 100 events or
// end-of-track, to update TempoMicrosPerQuarter to the first valid tempo
// meta encountered. Cursor 0's state is always restored before return.
func (p *Parser) ScanForInitialTempo() error {
	if len(p.tracks) == 0 {
		return nil
	}
	snap := p.tracks[0].snapshot()
	savedBuffered := p.tracks[0].buffered
	p.tracks[0].resetTo(p.tracks[0].startOffset, p.tracks[0].endOffset)

	found := false
	for n := 0; n < maxInitialTempoScanEvents && !p.tracks[0].ended; n++ {
		ev, err := p.decodeOneEvent(0)
		if err != nil {
			break
		}
		if ev == nil { // EOT
			break
		}
		if ev.IsTempoMeta() && !found {
			found = p.observeEmitted(ev)
		}
		if ev.Kind == KindMeta && ev.Data1 == MetaTrackName {
			p.observeEmitted(ev)
		}
	}

	// Restoring the scanned cursor is mandatory. It is an in-memory copy
	// and cannot fail, so this function always returns nil.
	p.tracks[0].restore(snap)
	p.tracks[0].buffered = savedBuffered
	return nil
}

// CalculateLength walks every track to completion without materializing
// SysEx payloads, sets lengthTicks to the maximum absTick seen and
// sysexCount to the number of SysEx messages found, then restores every
// cursor. Per-track decode errors are accumulated and returned, but do not
// stop the scan of the other tracks.
func (p *Parser) CalculateLength() (uint32, int, error) {
	snaps := make([]cursorSnapshot, len(p.tracks))
	buffered := make([]*Event, len(p.tracks))
	for i := range p.tracks {
		snaps[i] = p.tracks[i].snapshot()
		buffered[i] = p.tracks[i].buffered
		p.tracks[i].resetTo(p.tracks[i].startOffset, p.tracks[i].endOffset)
	}

	var maxTick uint32
	var sysexCount int
	var errs error

	for i := range p.tracks {
		if err := p.scanTrackLength(i, &maxTick, &sysexCount); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("track %d: %w", i, err))
		}
	}

	for i := range p.tracks {
		p.tracks[i].restore(snaps[i])
		p.tracks[i].buffered = buffered[i]
	}

	p.lengthTicks = maxTick
	p.sysexCount = sysexCount
	return maxTick, sysexCount, errs
}

// scanTrackLength walks one track to its end-of-track meta (or a decode
// failure), updating maxTick and sysexCount as a side effect, while
// skipping SysEx/meta payload bytes instead of allocating them.
func (p *Parser) scanTrackLength(i int, maxTick *uint32, sysexCount *int) error {
	c := &p.tracks[i]
	for !c.ended {
		ended, isSysex, err := p.scanOneEvent(i)
		if err != nil {
			c.ended = true
			return err
		}
		if c.absTick > *maxTick {
			*maxTick = c.absTick
		}
		if isSysex {
			*sysexCount++
		}
		if ended {
			c.ended = true
			break
		}
	}
	return nil
}

// toReader adapts a blockreader.BlockReader's Read to io.Reader for use
// with io.ReadFull.
func toReader(r blockreader.BlockReader) io.Reader {
	return readerFunc(r.Read)
}

type readerFunc func(p []byte) (int, error)

func (f readerFunc) Read(p []byte) (int, error) { return f(p) }

func be16(b []byte) uint16 { return uint16(b[0])<<8 | uint16(b[1]) }
func be24(b []byte) uint32 { return uint32(b[0])<<16 | uint32(b[1])<<8 | uint32(b[2]) }
func be32(b []byte) uint32 {
	return uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3])
}
