// Package ui names the external collaborators the player core is driven
// by and reports to: the button debouncer, the OLED widget layer, the
// file-browser directory walker, and the visualizer. None of them are
// implemented here (§1's Non-goals) — only the contracts this repository
// calls through.
package ui

import "github.com/kmantle/smfdeck/internal/player"

// StatusSnapshot is the read-only view the display layer polls once per
// frame; it never blocks the audio context because every field is a plain
// value copied under the Player Core's guard.
type StatusSnapshot struct {
	State         player.State
	TrackName     string
	CurrentTimeMs uint32
	TotalTimeMs   uint32
	CurrentBPM    uint32
	TempoPercent  int
	SysexCount    int
	ReachedEnd    bool
	LastError     error
}

// Snapshot builds a StatusSnapshot from the live player, the single call
// the display layer needs each frame.
func Snapshot(p *player.Player) StatusSnapshot {
	return StatusSnapshot{
		State:         p.State(),
		TrackName:     p.TrackName(),
		CurrentTimeMs: p.CurrentTimeMs(),
		TotalTimeMs:   p.TotalTimeMs(),
		CurrentBPM:    p.CurrentBPM(),
		TempoPercent:  p.TempoPercentTenths() / 10,
		SysexCount:    p.SysexCount(),
		ReachedEnd:    p.ReachedEnd(),
		LastError:     p.LastError(),
	}
}

// Display renders a StatusSnapshot to whatever physical widget layer is
// attached (an OLED panel, a terminal, a test recorder). Implemented
// outside this repository.
type Display interface {
	Render(StatusSnapshot)
}

// ButtonEvent is one debounced button press delivered by the external
// button debouncer.
type ButtonEvent struct {
	Button  string
	Pressed bool
}

// Buttons is the debounced input source the UI context polls or selects
// on to drive player mutations. Implemented outside this repository.
type Buttons interface {
	Next() (ButtonEvent, bool)
}

// FileEntry is one directory entry the file browser presents for loading.
type FileEntry struct {
	Name      string
	IsDir     bool
	SizeBytes int64
}

// FileBrowser walks the SD-card-equivalent directory tree to pick the next
// file to load. Implemented outside this repository.
type FileBrowser interface {
	List(dir string) ([]FileEntry, error)
}

// Visualizer renders a playback-position-driven animation. Implemented
// outside this repository; fed the same StatusSnapshot as Display.
type Visualizer interface {
	Tick(StatusSnapshot)
}
