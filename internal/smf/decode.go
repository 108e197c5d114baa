package smf

import (
	"fmt"
	"io"
)

// readVLQ reads a variable-length quantity (at most maxVLQBytes bytes)
// from track i, advancing its cursor.
func (p *Parser) readVLQ(i int) (uint32, error) {
	c := &p.tracks[i]
	var value uint32
	for n := 0; ; n++ {
		if n >= maxVLQBytes {
			return 0, fmt.Errorf("vlq longer than %d bytes: %w", maxVLQBytes, ErrCorruptEvent)
		}
		b, err := c.readByte(p.reader)
		if err != nil {
			if err == io.EOF {
				return 0, fmt.Errorf("vlq truncated: %w", ErrUnexpectedEOT)
			}
			return 0, fmt.Errorf("vlq read: %w: %w", ErrIO, err)
		}
		value = value<<7 | uint32(b&0x7F)
		if b&0x80 == 0 {
			return value, nil
		}
	}
}

// readStatusByte resolves running status: a byte with the high bit clear is
// a data byte belonging to the previous channel-voice message, in which
// case it is put back and the cursor's running status is reused.
func (p *Parser) readStatusByte(i int) (byte, error) {
	c := &p.tracks[i]
	b, err := c.readByte(p.reader)
	if err != nil {
		if err == io.EOF {
			return 0, fmt.Errorf("status byte: %w", ErrUnexpectedEOT)
		}
		return 0, fmt.Errorf("status byte: %w: %w", ErrIO, err)
	}
	if b&0x80 == 0 {
		if c.runningStatus == 0 {
			return 0, fmt.Errorf("data byte with no running status: %w", ErrCorruptEvent)
		}
		c.putBack()
		return c.runningStatus, nil
	}
	return b, nil
}

// channelVoiceDataLen returns how many data bytes follow a channel-voice
// status byte: 1 for program change and channel pressure, 2 otherwise.
func channelVoiceDataLen(status byte) int {
	switch status & 0xF0 {
	case StatusProgramChange, StatusChannelPressure:
		return 1
	default:
		return 2
	}
}

// decodeOneEvent materializes the next event on track i: delta-time,
// status/running-status resolution, and full payload. Returns (nil, nil)
// for an end-of-track meta (the caller marks the track ended), and (nil,
// err) for any truncation or malformed encoding.
func (p *Parser) decodeOneEvent(i int) (*Event, error) {
	c := &p.tracks[i]

	delta, err := p.readVLQ(i)
	if err != nil {
		return nil, err
	}
	c.absTick += delta

	status, err := p.readStatusByte(i)
	if err != nil {
		return nil, err
	}

	switch status {
	case StatusMeta:
		c.runningStatus = 0
		typ, err := c.readByte(p.reader)
		if err != nil {
			return nil, fmt.Errorf("meta type: %w", ErrUnexpectedEOT)
		}
		length, err := p.readVLQ(i)
		if err != nil {
			return nil, err
		}
		payload, err := c.readBytes(p.reader, int(length))
		if err != nil {
			return nil, fmt.Errorf("meta payload: %w", ErrUnexpectedEOT)
		}
		if typ == MetaEndOfTrack {
			return nil, nil
		}
		return &Event{
			AbsTick: c.absTick, Kind: KindMeta, Status: status,
			Data1: typ, Payload: payload, TrackIndex: i,
		}, nil

	case StatusSysExStart, StatusSysExEscape:
		c.runningStatus = 0
		length, err := p.readVLQ(i)
		if err != nil {
			return nil, err
		}
		payload, err := c.readBytes(p.reader, int(length))
		if err != nil {
			return nil, fmt.Errorf("sysex payload: %w", ErrUnexpectedEOT)
		}
		return &Event{
			AbsTick: c.absTick, Kind: KindSysEx, Status: status,
			Payload: payload, TrackIndex: i,
		}, nil

	default:
		if status&0x80 == 0 || status&0xF0 == 0xF0 {
			return nil, fmt.Errorf("status 0x%02X: %w", status, ErrCorruptEvent)
		}
		c.runningStatus = status
		ev := &Event{
			AbsTick: c.absTick, Kind: KindChannelVoice,
			Channel: status & 0x0F, Status: status & 0xF0, TrackIndex: i,
		}
		d1, err := c.readByte(p.reader)
		if err != nil {
			return nil, fmt.Errorf("data1: %w", ErrUnexpectedEOT)
		}
		ev.Data1 = d1
		if channelVoiceDataLen(status) == 2 {
			d2, err := c.readByte(p.reader)
			if err != nil {
				return nil, fmt.Errorf("data2: %w", ErrUnexpectedEOT)
			}
			ev.Data2 = d2
		}
		return ev, nil
	}
}

// scanOneEvent advances track i past exactly one event without
// materializing SysEx/meta payloads, for use by CalculateLength. Returns
// ended=true after consuming an end-of-track meta, and isSysex=true for a
// SysEx message (used to maintain the file's SysEx count).
func (p *Parser) scanOneEvent(i int) (ended bool, isSysex bool, err error) {
	c := &p.tracks[i]

	delta, err := p.readVLQ(i)
	if err != nil {
		return false, false, err
	}
	if delta > maxLengthScanDelta {
		return false, false, fmt.Errorf("delta %d exceeds scan bound: %w", delta, ErrCorruptEvent)
	}
	c.absTick += delta

	status, err := p.readStatusByte(i)
	if err != nil {
		return false, false, err
	}

	switch status {
	case StatusMeta:
		c.runningStatus = 0
		typ, err := c.readByte(p.reader)
		if err != nil {
			return false, false, fmt.Errorf("meta type: %w", ErrUnexpectedEOT)
		}
		length, err := p.readVLQ(i)
		if err != nil {
			return false, false, err
		}
		c.skip(int(length))
		return typ == MetaEndOfTrack, false, nil

	case StatusSysExStart, StatusSysExEscape:
		c.runningStatus = 0
		length, err := p.readVLQ(i)
		if err != nil {
			return false, false, err
		}
		c.skip(int(length))
		return false, true, nil

	default:
		if status&0x80 == 0 || status&0xF0 == 0xF0 {
			return false, false, fmt.Errorf("status 0x%02X: %w", status, ErrCorruptEvent)
		}
		c.runningStatus = status
		n := channelVoiceDataLen(status)
		for k := 0; k < n; k++ {
			if _, err := c.readByte(p.reader); err != nil {
				return false, false, fmt.Errorf("data byte: %w", ErrUnexpectedEOT)
			}
		}
		return false, false, nil
	}
}
