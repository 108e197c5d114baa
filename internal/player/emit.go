package player

import (
	"github.com/kmantle/smfdeck/internal/smf"
)

// applyTranspose adds semitones to note and clamps to 0..127.
func applyTranspose(note uint8, semitones int) uint8 {
	v := int(note) + semitones
	return uint8(clampInt(v, 0, 127))
}

// scaleVelocity applies the global then per-channel velocity scale per
// §4.3: v' = v*globalPct*2/100, then v' = v'*channelPct/100 if channelPct
// is set, clamped to 1..127. The exact integer-arithmetic order (including
// globalPct==50 rounding non-identically for odd v) is preserved as
// specified rather than substituted with a cleaner-looking formula.
func scaleVelocity(v uint8, globalPct int, channelPct int) uint8 {
	scaled := int(v) * globalPct * 2 / 100
	if channelPct != 0 {
		scaled = scaled * channelPct / 100
	}
	return uint8(clampInt(scaled, 1, 127))
}

// emit runs one channel-voice event through the mute/solo/transform
// pipeline and writes it to the sink. SysEx events are passed to emitSysEx;
// meta events are filtered out by the caller and are ignored here.
func (p *Player) emit(ev *smf.Event) error {
	if ev.Kind == smf.KindSysEx {
		return p.emitSysEx(ev)
	}
	if ev.Kind != smf.KindChannelVoice {
		return nil
	}
	if ev.Channel > 15 {
		return nil
	}

	origCh := ev.Channel
	ov := &p.overrides.Channels[origCh]

	outCh := origCh
	if ov.RouteTo != NoneValue {
		outCh = uint8(ov.RouteTo)
	}

	muted := ov.Muted
	if p.overrides.AnySoloed() && !ov.Soloed {
		muted = true
	}

	wireCh := outCh + 1 // 1-indexed at the ByteSink boundary

	switch ev.Status {
	case smf.StatusNoteOff:
		if muted {
			return nil
		}
		note := applyTranspose(ev.Data1, ov.TransposeSemitones)
		return p.sink.NoteOff(wireCh, note, ev.Data2)

	case smf.StatusNoteOn:
		if muted {
			return nil
		}
		note := applyTranspose(ev.Data1, ov.TransposeSemitones)
		if ev.Data2 == 0 {
			return p.sink.NoteOff(wireCh, note, 0)
		}
		vel := scaleVelocity(ev.Data2, p.overrides.GlobalVelocityPct, ov.VelocityScalePct)
		return p.sink.NoteOn(wireCh, note, vel)

	case smf.StatusControlChange:
		if ev.Data1 == 7 && ov.Volume != NoneValue {
			return nil
		}
		if ev.Data1 == 10 && ov.Pan != NoneValue {
			return nil
		}
		return p.sink.CC(wireCh, ev.Data1, ev.Data2)

	case smf.StatusProgramChange:
		if ov.Program != NoneValue {
			return nil
		}
		return p.sink.ProgramChange(wireCh, ev.Data1)

	case smf.StatusPitchBend:
		bend := (int16(ev.Data2) << 7) | int16(ev.Data1)
		bend -= 8192
		return p.sink.PitchBend(wireCh, bend)

	case smf.StatusPolyPressure:
		return p.sink.PolyPressure(wireCh, ev.Data1, ev.Data2)

	case smf.StatusChannelPressure:
		return p.sink.ChannelPressure(wireCh, ev.Data1)

	default:
		return nil
	}
}

func (p *Player) emitSysEx(ev *smf.Event) error {
	if !p.overrides.SysexEnabled {
		return nil
	}
	return p.sink.SysEx(ev.Payload)
}

// sendChannelOverride pushes a program/volume/pan override the user has
// just set out to the sink immediately, so a mid-playback override change
// is heard right away rather than waiting for the next file-driven event.
func (p *Player) sendChannelOverride(ch uint8) error {
	ov := &p.overrides.Channels[ch]
	wireCh := ch + 1
	if ov.Program != NoneValue {
		if err := p.sink.ProgramChange(wireCh, uint8(ov.Program)); err != nil {
			return err
		}
	}
	if ov.Volume != NoneValue {
		if err := p.sink.CC(wireCh, 7, uint8(ov.Volume)); err != nil {
			return err
		}
	}
	if ov.Pan != NoneValue {
		if err := p.sink.CC(wireCh, 10, uint8(ov.Pan)); err != nil {
			return err
		}
	}
	return nil
}
