package sink

import (
	"fmt"

	gomidi "gitlab.com/gomidi/midi/v2"
	"go.bug.st/serial"
	"go.uber.org/zap"
)

// realtime status bytes. These are single-byte messages with no
// channel/data — gomidi's v2 package models them as listener-side decode
// constants, not constructors, so they are written directly here.
const (
	rtClock    byte = 0xF8
	rtStart    byte = 0xFA
	rtContinue byte = 0xFB
	rtStop     byte = 0xFC
)

// SerialSink is a ByteSink backed by a 31.25 kBd (or bench-configurable)
// serial port, with MIDI messages constructed via gitlab.com/gomidi/midi/v2.
type SerialSink struct {
	port serial.Port
	log  *zap.Logger
}

// OpenSerial opens the named serial device at the given baud rate.
func OpenSerial(device string, baud int, log *zap.Logger) (*SerialSink, error) {
	if log == nil {
		log = zap.NewNop()
	}
	mode := &serial.Mode{BaudRate: baud}
	p, err := serial.Open(device, mode)
	if err != nil {
		return nil, fmt.Errorf("sink: open %s at %d baud: %w", device, baud, err)
	}
	log.Info("sink: serial port opened", zap.String("device", device), zap.Int("baud", baud))
	return &SerialSink{port: p, log: log}, nil
}

func (s *SerialSink) write(msg gomidi.Message) error {
	_, err := s.port.Write([]byte(msg))
	if err != nil {
		s.log.Error("sink: write failed", zap.Error(err))
	}
	return err
}

func (s *SerialSink) writeRaw(b ...byte) error {
	_, err := s.port.Write(b)
	if err != nil {
		s.log.Error("sink: write failed", zap.Error(err))
	}
	return err
}

func (s *SerialSink) NoteOn(ch, note, vel uint8) error {
	return s.write(gomidi.NoteOn(ch-1, note, vel))
}

func (s *SerialSink) NoteOff(ch, note, vel uint8) error {
	if vel == 0 {
		return s.write(gomidi.NoteOff(ch-1, note))
	}
	return s.write(gomidi.NoteOffVelocity(ch-1, note, vel))
}

func (s *SerialSink) CC(ch, cc, val uint8) error {
	return s.write(gomidi.ControlChange(ch-1, cc, val))
}

func (s *SerialSink) ProgramChange(ch, program uint8) error {
	return s.write(gomidi.ProgramChange(ch-1, program))
}

func (s *SerialSink) PitchBend(ch uint8, value int16) error {
	return s.write(gomidi.Pitchbend(ch-1, value))
}

func (s *SerialSink) ChannelPressure(ch, val uint8) error {
	return s.write(gomidi.AfterTouch(ch-1, val))
}

func (s *SerialSink) PolyPressure(ch, note, val uint8) error {
	return s.write(gomidi.PolyAfterTouch(ch-1, note, val))
}

func (s *SerialSink) SysEx(payload []byte) error {
	return s.write(gomidi.SysEx(payload))
}

func (s *SerialSink) Clock() error    { return s.writeRaw(rtClock) }
func (s *SerialSink) Start() error    { return s.writeRaw(rtStart) }
func (s *SerialSink) Continue() error { return s.writeRaw(rtContinue) }
func (s *SerialSink) Stop() error     { return s.writeRaw(rtStop) }

func (s *SerialSink) AllNotesOff() error {
	for ch := uint8(1); ch <= 16; ch++ {
		if err := s.CC(ch, CCAllNotesOff, 0); err != nil {
			return err
		}
	}
	return nil
}

func (s *SerialSink) Panic() error {
	for ch := uint8(1); ch <= 16; ch++ {
		if err := s.CC(ch, CCAllNotesOff, 0); err != nil {
			return err
		}
		if err := s.CC(ch, CCAllSoundOff, 0); err != nil {
			return err
		}
		if err := s.CC(ch, CCResetAllCtrl, 0); err != nil {
			return err
		}
		for note := 0; note <= 127; note++ {
			if err := s.NoteOff(ch, uint8(note), 0); err != nil {
				return err
			}
		}
	}
	return nil
}

func (s *SerialSink) Close() error {
	s.log.Info("sink: closing serial port")
	return s.port.Close()
}
