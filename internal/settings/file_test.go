package settings

import (
	"bytes"
	"testing"

	"github.com/kmantle/smfdeck/internal/player"
)

func TestFile_DefaultRoundTrip(t *testing.T) {
	f := DefaultFile()
	var buf bytes.Buffer
	if err := Write(&buf, f); err != nil {
		t.Fatalf("Write: %v", err)
	}
	got, err := Parse(&buf, nil)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if got != f {
		t.Fatalf("round trip mismatch: got %+v, want %+v", got, f)
	}
}

func TestFile_SentinelTranslation(t *testing.T) {
	ov := player.NewOverrides()
	ov.SetProgram(0, 42)
	ov.SetMute(1, true)
	ov.SetSolo(2, true)
	ov.SetRouting(3, 7)
	ov.SetTranspose(4, -12)

	f := FromOverrides(ov)
	if f.Programs[0] != 42 {
		t.Fatalf("Programs[0] = %d, want 42", f.Programs[0])
	}
	if f.Programs[1] != none255 {
		t.Fatalf("Programs[1] = %d, want none255 sentinel", f.Programs[1])
	}
	if f.Mutes&(1<<1) == 0 {
		t.Fatalf("Mutes bit 1 not set")
	}
	if f.Solos&(1<<2) == 0 {
		t.Fatalf("Solos bit 2 not set")
	}
	if f.Routing[3] != 7 {
		t.Fatalf("Routing[3] = %d, want 7", f.Routing[3])
	}
	if f.Transpose[4] != -12 {
		t.Fatalf("Transpose[4] = %d, want -12", f.Transpose[4])
	}

	ov2 := player.NewOverrides()
	f.ApplyTo(ov2)
	if ov2.Channels[0].Program != 42 {
		t.Fatalf("after ApplyTo, Channels[0].Program = %d, want 42", ov2.Channels[0].Program)
	}
	if ov2.Channels[1].Program != player.NoneValue {
		t.Fatalf("after ApplyTo, Channels[1].Program = %d, want NoneValue", ov2.Channels[1].Program)
	}
	if !ov2.Channels[1].Muted {
		t.Fatalf("after ApplyTo, channel 1 should be muted")
	}
	if !ov2.Channels[2].Soloed {
		t.Fatalf("after ApplyTo, channel 2 should be soloed")
	}
}

func TestFile_ParseSkipsUnrecognizedKey(t *testing.T) {
	in := "[MIDI_SETTINGS_V1]\nFUTURE_KEY=123\nVELOCITY_SCALE=75\n"
	f, err := Parse(bytes.NewBufferString(in), nil)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if f.VelocityScale != 75 {
		t.Fatalf("VelocityScale = %d, want 75", f.VelocityScale)
	}
}

func TestFile_ParseSkipsMalformedValueKeepsDefault(t *testing.T) {
	in := "[MIDI_SETTINGS_V1]\nVELOCITY_SCALE=not-a-number\n"
	f, err := Parse(bytes.NewBufferString(in), nil)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if f.VelocityScale != 50 {
		t.Fatalf("VelocityScale = %d, want default 50 after skipping bad value", f.VelocityScale)
	}
}

func TestFile_TargetBPMRoundTrip(t *testing.T) {
	f := DefaultFile()
	f.TargetBPMHundredths = 12000
	f.UseTargetBPM = true

	var buf bytes.Buffer
	if err := Write(&buf, f); err != nil {
		t.Fatalf("Write: %v", err)
	}
	got, err := Parse(&buf, nil)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if got.TargetBPMHundredths != 12000 || !got.UseTargetBPM {
		t.Fatalf("got %+v, want TargetBPMHundredths=12000 UseTargetBPM=true", got)
	}
}
