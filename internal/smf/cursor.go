package smf

import (
	"io"

	"github.com/kmantle/smfdeck/internal/blockreader"
)

// trackWindowSize is the per-track read-ahead buffer. Reading one byte at a
// time straight off the block reader would mean one Seek+Read per byte;
// instead each cursor refills a 512-byte window and serves single-byte
// reads from it, matching the original firmware's TRACK_BUFFER_SIZE.
const trackWindowSize = 512

// trackCursor is one track's read position plus its lazily-parsed next
// event. cursorOffset is always the absolute file offset of the next
// unread byte; windowPos < 0 means the window must be refilled before the
// next read.
type trackCursor struct {
	startOffset, endOffset int64
	cursorOffset           int64
	absTick                uint32
	runningStatus          byte
	ended                  bool
	buffered               *Event

	window    [trackWindowSize]byte
	windowLen int
	windowPos int
}

func newTrackCursor(start, end int64) trackCursor {
	return trackCursor{
		startOffset:  start,
		endOffset:    end,
		cursorOffset: start,
		windowPos:    -1,
	}
}

func (c *trackCursor) resetTo(start, end int64) {
	c.startOffset = start
	c.endOffset = end
	c.cursorOffset = start
	c.absTick = 0
	c.runningStatus = 0
	c.ended = false
	c.buffered = nil
	c.windowLen = 0
	c.windowPos = -1
}

// snapshot captures enough state to restore the cursor after a bounded
// scan (scanForInitialTempo, calculateLength).
type cursorSnapshot struct {
	cursorOffset  int64
	absTick       uint32
	runningStatus byte
	ended         bool
	buffered      *Event
	windowLen     int
	windowPos     int
	window        [trackWindowSize]byte
}

func (c *trackCursor) snapshot() cursorSnapshot {
	s := cursorSnapshot{
		cursorOffset:  c.cursorOffset,
		absTick:       c.absTick,
		runningStatus: c.runningStatus,
		ended:         c.ended,
		windowLen:     c.windowLen,
		windowPos:     c.windowPos,
	}
	if c.buffered != nil {
		b := c.buffered.Clone()
		s.buffered = &b
	}
	s.window = c.window
	return s
}

func (c *trackCursor) restore(s cursorSnapshot) {
	c.cursorOffset = s.cursorOffset
	c.absTick = s.absTick
	c.runningStatus = s.runningStatus
	c.ended = s.ended
	c.buffered = s.buffered
	c.windowLen = s.windowLen
	c.windowPos = s.windowPos
	c.window = s.window
}

func (c *trackCursor) atEnd() bool {
	return c.cursorOffset >= c.endOffset
}

// fillWindow reloads the window starting at the cursor's current offset.
func (c *trackCursor) fillWindow(r blockreader.BlockReader) error {
	remaining := c.endOffset - c.cursorOffset
	if remaining <= 0 {
		c.windowLen = 0
		c.windowPos = -1
		return io.EOF
	}
	n := int64(trackWindowSize)
	if remaining < n {
		n = remaining
	}
	if err := r.Seek(c.cursorOffset); err != nil {
		return err
	}
	var read int
	for int64(read) < n {
		k, err := r.Read(c.window[read:n])
		read += k
		if err != nil {
			if err == io.EOF {
				break
			}
			return err
		}
		if k == 0 {
			break
		}
	}
	if read == 0 {
		return io.EOF
	}
	c.windowLen = read
	c.windowPos = 0
	return nil
}

// readByte returns the next byte in the track, refilling the window as
// needed. Returns io.EOF once cursorOffset reaches endOffset.
func (c *trackCursor) readByte(r blockreader.BlockReader) (byte, error) {
	if c.atEnd() {
		return 0, io.EOF
	}
	if c.windowPos < 0 || c.windowPos >= c.windowLen {
		if err := c.fillWindow(r); err != nil {
			return 0, err
		}
	}
	b := c.window[c.windowPos]
	c.windowPos++
	c.cursorOffset++
	return b, nil
}

// putBack rewinds the cursor by exactly one byte, used when a data byte
// turns out to belong to the next event via running status.
func (c *trackCursor) putBack() {
	c.cursorOffset--
	if c.windowPos > 0 {
		c.windowPos--
	} else {
		// The byte we want is no longer in the window (we were at its
		// head); invalidate so the next read refills starting there.
		c.windowPos = -1
	}
}

// skip advances the cursor by n bytes without materializing them. Used by
// calculateLength to avoid allocating SysEx/meta payloads it doesn't need.
func (c *trackCursor) skip(n int) {
	c.cursorOffset += int64(n)
	if c.cursorOffset > c.endOffset {
		c.cursorOffset = c.endOffset
	}
	c.windowPos = -1
}

// readBytes reads n bytes, materializing them into a freshly allocated
// slice (used for SysEx/meta payloads during normal playback parsing).
func (c *trackCursor) readBytes(r blockreader.BlockReader, n int) ([]byte, error) {
	if n == 0 {
		return nil, nil
	}
	out := make([]byte, n)
	for i := 0; i < n; i++ {
		b, err := c.readByte(r)
		if err != nil {
			return nil, err
		}
		out[i] = b
	}
	return out, nil
}
