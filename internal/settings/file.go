// Package settings reads and writes the plain-text, key=value per-file
// override records (§6.4) and the global-settings record (§6.5). Both are
// line-oriented and forward-compatible: an unrecognized key is skipped with
// a warning rather than rejecting the whole file.
package settings

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/kmantle/smfdeck/internal/player"
)

// fileHeader identifies the per-file override record format.
const fileHeader = "[MIDI_SETTINGS_V1]"

// none255 is the wire-format sentinel for "unset" on PROGRAMS/VOLUMES/PAN/
// ROUTING, translated to player.NoneValue (-1) in memory.
const none255 = 255

// File holds one file's worth of channel overrides plus the global
// velocity/tempo/sysex settings, in the same shape as player.Overrides but
// serializable to the §6.4 text record.
type File struct {
	Mutes uint16 // bit i = channel i muted
	Solos uint16

	Programs        [16]int // 0..127 or none255
	Volumes         [16]int
	Pan             [16]int
	Transpose       [16]int // -24..24
	Routing         [16]int // 0..15 or none255
	ChannelVelocity [16]int // 0 (inherit) or 1..200

	VelocityScale       int // 1..100
	TargetBPMHundredths uint32
	UseTargetBPM        bool
	SysexEnabled        bool
}

// DefaultFile returns the record for a file with no overrides saved yet.
func DefaultFile() File {
	f := File{VelocityScale: 50, SysexEnabled: true}
	for i := range f.Programs {
		f.Programs[i] = none255
		f.Volumes[i] = none255
		f.Pan[i] = none255
		f.Routing[i] = none255
	}
	return f
}

// FromOverrides snapshots a player.Overrides table into its §6.4 wire
// representation, translating player.NoneValue to the 255 sentinel.
func FromOverrides(ov *player.Overrides) File {
	f := DefaultFile()
	f.VelocityScale = ov.GlobalVelocityPct
	f.SysexEnabled = ov.SysexEnabled
	for i := 0; i < 16; i++ {
		ch := &ov.Channels[i]
		if ch.Muted {
			f.Mutes |= 1 << uint(i)
		}
		if ch.Soloed {
			f.Solos |= 1 << uint(i)
		}
		f.Programs[i] = toWireSentinel(ch.Program)
		f.Volumes[i] = toWireSentinel(ch.Volume)
		f.Pan[i] = toWireSentinel(ch.Pan)
		f.Routing[i] = toWireSentinel(ch.RouteTo)
		f.Transpose[i] = ch.TransposeSemitones
		f.ChannelVelocity[i] = ch.VelocityScalePct
	}
	return f
}

// ApplyTo writes f's values into ov, translating the 255 sentinel back to
// player.NoneValue.
func (f File) ApplyTo(ov *player.Overrides) {
	ov.SetGlobalVelocityScale(f.VelocityScale)
	ov.SetSysexEnabled(f.SysexEnabled)
	for i := 0; i < 16; i++ {
		ch := uint8(i)
		ov.SetMute(ch, f.Mutes&(1<<uint(i)) != 0)
		ov.SetSolo(ch, f.Solos&(1<<uint(i)) != 0)
		ov.SetProgram(ch, fromWireSentinel(f.Programs[i]))
		ov.SetVolume(ch, fromWireSentinel(f.Volumes[i]))
		ov.SetPan(ch, fromWireSentinel(f.Pan[i]))
		ov.SetRouting(ch, fromWireSentinel(f.Routing[i]))
		ov.SetTranspose(ch, f.Transpose[i])
		ov.SetChannelVelocityScale(ch, f.ChannelVelocity[i])
	}
}

func toWireSentinel(v int) int {
	if v == player.NoneValue {
		return none255
	}
	return v
}

func fromWireSentinel(v int) int {
	if v == none255 {
		return player.NoneValue
	}
	return v
}

// Write serializes f to w in the §6.4 key=value format.
func Write(w io.Writer, f File) error {
	bw := bufio.NewWriter(w)
	fmt.Fprintln(bw, fileHeader)
	fmt.Fprintf(bw, "MUTES=%d\n", f.Mutes)
	fmt.Fprintf(bw, "SOLOS=%d\n", f.Solos)
	fmt.Fprintf(bw, "PROGRAMS=%s\n", joinInts(f.Programs[:]))
	fmt.Fprintf(bw, "VOLUMES=%s\n", joinInts(f.Volumes[:]))
	fmt.Fprintf(bw, "PAN=%s\n", joinInts(f.Pan[:]))
	fmt.Fprintf(bw, "TRANSPOSE=%s\n", joinInts(f.Transpose[:]))
	fmt.Fprintf(bw, "ROUTING=%s\n", joinInts(f.Routing[:]))
	fmt.Fprintf(bw, "CH_VELOCITY=%s\n", joinInts(f.ChannelVelocity[:]))
	fmt.Fprintf(bw, "VELOCITY_SCALE=%d\n", f.VelocityScale)
	fmt.Fprintf(bw, "TARGET_BPM=%d\n", f.TargetBPMHundredths)
	fmt.Fprintf(bw, "USE_TARGET_BPM=%d\n", boolToBit(f.UseTargetBPM))
	fmt.Fprintf(bw, "SYSEX_ENABLED=%d\n", boolToBit(f.SysexEnabled))
	return bw.Flush()
}

// Parse reads a §6.4 record from r. Unrecognized keys are skipped with a
// Warn log; a missing header is not an error (some test fixtures and
// freshly created files may omit it), but values are parsed the same way
// regardless.
func Parse(r io.Reader, log *zap.Logger) (File, error) {
	if log == nil {
		log = zap.NewNop()
	}
	f := DefaultFile()
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || line == fileHeader {
			continue
		}
		key, val, ok := strings.Cut(line, "=")
		if !ok {
			log.Warn("settings: malformed line, skipping", zap.String("line", line))
			continue
		}
		if err := applyFileKey(&f, key, val, log); err != nil {
			log.Warn("settings: bad value, skipping key", zap.String("key", key), zap.Error(err))
		}
	}
	if err := scanner.Err(); err != nil {
		return f, fmt.Errorf("settings: read: %w", err)
	}
	return f, nil
}

func applyFileKey(f *File, key, val string, log *zap.Logger) error {
	switch key {
	case "MUTES":
		n, err := strconv.ParseUint(val, 10, 16)
		if err != nil {
			return err
		}
		f.Mutes = uint16(n)
	case "SOLOS":
		n, err := strconv.ParseUint(val, 10, 16)
		if err != nil {
			return err
		}
		f.Solos = uint16(n)
	case "PROGRAMS":
		return parseInts(val, f.Programs[:])
	case "VOLUMES":
		return parseInts(val, f.Volumes[:])
	case "PAN":
		return parseInts(val, f.Pan[:])
	case "TRANSPOSE":
		return parseInts(val, f.Transpose[:])
	case "ROUTING":
		return parseInts(val, f.Routing[:])
	case "CH_VELOCITY":
		return parseInts(val, f.ChannelVelocity[:])
	case "VELOCITY_SCALE":
		n, err := strconv.Atoi(val)
		if err != nil {
			return err
		}
		f.VelocityScale = n
	case "TARGET_BPM":
		n, err := strconv.ParseUint(val, 10, 32)
		if err != nil {
			return err
		}
		f.TargetBPMHundredths = uint32(n)
	case "USE_TARGET_BPM":
		f.UseTargetBPM = val == "1"
	case "SYSEX_ENABLED":
		f.SysexEnabled = val == "1"
	default:
		log.Warn("settings: unrecognized key, skipping", zap.String("key", key))
	}
	return nil
}

func parseInts(val string, out []int) error {
	parts := strings.Split(val, ",")
	if len(parts) != len(out) {
		return fmt.Errorf("settings: expected %d comma-separated values, got %d", len(out), len(parts))
	}
	for i, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return err
		}
		out[i] = n
	}
	return nil
}

func joinInts(vals []int) string {
	parts := make([]string, len(vals))
	for i, v := range vals {
		parts[i] = strconv.Itoa(v)
	}
	return strings.Join(parts, ",")
}

func boolToBit(b bool) int {
	if b {
		return 1
	}
	return 0
}
