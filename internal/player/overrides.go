package player

// NoneValue is the sentinel for "no override, inherit from the file" on the
// program/volume/pan/routing overrides. internal/settings translates the
// wire format's 255 sentinel to and from this value.
const NoneValue = -1

// ChannelOverrides holds one channel's playback overrides. The zero value
// is not "no overrides": Program, Volume, Pan and RouteTo must be NoneValue
// to inherit from the file (see defaultChannelOverrides). A zero
// VelocityScalePct inherits the global velocity scale.
type ChannelOverrides struct {
	Muted   bool
	Soloed  bool
	Program int // 0..127 or NoneValue
	Volume  int // 0..127 or NoneValue
	Pan     int // 0..127 or NoneValue

	TransposeSemitones int // -24..+24
	VelocityScalePct   int // 0 = inherit global, else 1..200
	RouteTo            int // 0..15 or NoneValue
}

func defaultChannelOverrides() ChannelOverrides {
	return ChannelOverrides{
		Program: NoneValue,
		Volume:  NoneValue,
		Pan:     NoneValue,
		RouteTo: NoneValue,
	}
}

// Overrides is the full 16-channel override table plus the global settings
// that apply across all channels.
type Overrides struct {
	Channels [16]ChannelOverrides

	GlobalVelocityPct int // 1..100, 50 = identity per §4.3
	SysexEnabled      bool
}

// NewOverrides returns the default override table: no mutes/solos, no
// program/volume/pan/routing overrides, no transpose, global velocity at
// identity (50), SysEx enabled.
func NewOverrides() *Overrides {
	o := &Overrides{GlobalVelocityPct: 50, SysexEnabled: true}
	for i := range o.Channels {
		o.Channels[i] = defaultChannelOverrides()
	}
	return o
}

// AnySoloed reports whether at least one channel has Soloed set.
func (o *Overrides) AnySoloed() bool {
	for i := range o.Channels {
		if o.Channels[i].Soloed {
			return true
		}
	}
	return false
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// SetMute sets or clears the mute bit for channel ch (0..15).
func (o *Overrides) SetMute(ch uint8, muted bool) {
	if ch < 16 {
		o.Channels[ch].Muted = muted
	}
}

// ToggleMute flips the mute bit for channel ch.
func (o *Overrides) ToggleMute(ch uint8) {
	if ch < 16 {
		o.Channels[ch].Muted = !o.Channels[ch].Muted
	}
}

// SetSolo sets or clears the solo bit for channel ch.
func (o *Overrides) SetSolo(ch uint8, soloed bool) {
	if ch < 16 {
		o.Channels[ch].Soloed = soloed
	}
}

// SetProgram sets a program override (0..127), or NoneValue to clear it.
func (o *Overrides) SetProgram(ch uint8, program int) {
	if ch >= 16 {
		return
	}
	if program == NoneValue {
		o.Channels[ch].Program = NoneValue
		return
	}
	o.Channels[ch].Program = clampInt(program, 0, 127)
}

// SetVolume sets a volume override (0..127), or NoneValue to clear it.
func (o *Overrides) SetVolume(ch uint8, volume int) {
	if ch >= 16 {
		return
	}
	if volume == NoneValue {
		o.Channels[ch].Volume = NoneValue
		return
	}
	o.Channels[ch].Volume = clampInt(volume, 0, 127)
}

// SetPan sets a pan override (0..127), or NoneValue to clear it.
func (o *Overrides) SetPan(ch uint8, pan int) {
	if ch >= 16 {
		return
	}
	if pan == NoneValue {
		o.Channels[ch].Pan = NoneValue
		return
	}
	o.Channels[ch].Pan = clampInt(pan, 0, 127)
}

// SetTranspose sets the per-channel transpose in semitones, clamped to
// -24..+24.
func (o *Overrides) SetTranspose(ch uint8, semitones int) {
	if ch < 16 {
		o.Channels[ch].TransposeSemitones = clampInt(semitones, -24, 24)
	}
}

// SetChannelVelocityScale sets the per-channel velocity scale (0 = inherit
// the global scale, else clamped to 1..200).
func (o *Overrides) SetChannelVelocityScale(ch uint8, pct int) {
	if ch >= 16 {
		return
	}
	if pct == 0 {
		o.Channels[ch].VelocityScalePct = 0
		return
	}
	o.Channels[ch].VelocityScalePct = clampInt(pct, 1, 200)
}

// SetRouting sets the channel's output routing (0..15), or NoneValue to
// route to the original channel.
func (o *Overrides) SetRouting(ch uint8, routeTo int) {
	if ch >= 16 {
		return
	}
	if routeTo == NoneValue {
		o.Channels[ch].RouteTo = NoneValue
		return
	}
	o.Channels[ch].RouteTo = clampInt(routeTo, 0, 15)
}

// SetGlobalVelocityScale sets the global velocity scale, clamped to 1..100
// per §4.3's "50 = identity, 100 = saturate" convention.
func (o *Overrides) SetGlobalVelocityScale(pct int) {
	o.GlobalVelocityPct = clampInt(pct, 1, 100)
}

// SetSysexEnabled toggles whether SysEx events from the file are forwarded.
func (o *Overrides) SetSysexEnabled(enabled bool) {
	o.SysexEnabled = enabled
}
