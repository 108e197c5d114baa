// Command smfdeck is a standalone hardware MIDI file player: it reads a
// Standard MIDI File from local storage and drives an outgoing serial MIDI
// byte stream, with an Input Router for an optional MIDI keyboard/thru
// passthrough. The OLED display, buttons, and file browser are external
// collaborators (internal/ui) not implemented here.
package main

import (
	"flag"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/kmantle/smfdeck/internal/blockreader"
	"github.com/kmantle/smfdeck/internal/cache"
	"github.com/kmantle/smfdeck/internal/config"
	"github.com/kmantle/smfdeck/internal/obs"
	"github.com/kmantle/smfdeck/internal/player"
	"github.com/kmantle/smfdeck/internal/router"
	"github.com/kmantle/smfdeck/internal/settings"
	"github.com/kmantle/smfdeck/internal/sink"
)

// audioTickInterval drives the audio-context Tick() loop. The scheduler's
// own drift-free arithmetic (internal/player/tick.go) tolerates a coarser
// wall-clock loop than the 31,250 baud wire rate would suggest.
const audioTickInterval = 2 * time.Millisecond

// watcherTickInterval matches the once-a-second MIDI input rescan cadence.
const watcherTickInterval = time.Second

func main() {
	cfg := config.Default()
	cfg.RegisterFlags(flag.CommandLine)
	flag.Parse()

	log := obs.Must(cfg.Debug)
	defer log.Sync()

	log.Info("smfdeck starting",
		zap.String("serial_device", cfg.SerialDevice),
		zap.Int("serial_baud", cfg.SerialBaud),
		zap.String("midi_input", cfg.MIDIInputName),
		zap.String("data_dir", cfg.DataDir),
		zap.Bool("debug", cfg.Debug),
	)

	snk, err := sink.OpenSerial(cfg.SerialDevice, cfg.SerialBaud, log.Named("sink"))
	if err != nil {
		log.Error("failed to open serial sink", zap.Error(err))
		os.Exit(1)
	}
	defer snk.Close()

	p := player.New(snk, log.Named("player"))

	rtr := router.New(snk, log.Named("router"))
	watcher, err := router.NewWatcher(rtr, log.Named("watcher"))
	if err != nil {
		log.Error("failed to start MIDI input watcher", zap.Error(err))
		os.Exit(1)
	}
	defer watcher.Close()

	lengthCache, err := cache.Load(filepath.Join(cfg.DataDir, "length_cache.csv"), log.Named("cache"))
	if err != nil {
		log.Warn("failed to load length cache, starting empty", zap.Error(err))
		lengthCache = cache.New(filepath.Join(cfg.DataDir, "length_cache.csv"), log.Named("cache"))
	}

	if f, err := os.Open(filepath.Join(cfg.DataDir, "global_settings.txt")); err == nil {
		g, err := settings.ParseGlobal(f, log.Named("settings"))
		f.Close()
		if err != nil {
			log.Warn("failed to parse global settings", zap.Error(err))
		} else {
			g.ApplyToRouter(rtr)
			p.SetClockEnabled(g.Clock)
		}
	}

	if path := flag.Arg(0); path != "" {
		if err := loadFile(p, lengthCache, path, log); err != nil {
			log.Error("failed to load file from command line", zap.String("path", path), zap.Error(err))
		} else if err := p.Play(); err != nil {
			log.Error("failed to start playback", zap.Error(err))
		}
	}

	go func() {
		watcherTicker := time.NewTicker(watcherTickInterval)
		defer watcherTicker.Stop()
		for range watcherTicker.C {
			watcher.Tick()
		}
	}()

	audioTicker := time.NewTicker(audioTickInterval)
	defer audioTicker.Stop()

	log.Info("running")
	for range audioTicker.C {
		p.Tick()
	}
}

// loadFile opens path, consults the length cache, and loads it into p,
// storing a freshly computed length back to the cache on a miss.
func loadFile(p *player.Player, lengthCache *cache.Cache, path string, log *zap.Logger) error {
	reader, err := blockreader.Open(path)
	if err != nil {
		return err
	}

	mtime, err := reader.Mtime()
	if err != nil {
		reader.Close()
		return err
	}

	name := filepath.Base(path)
	entry, hit := lengthCache.Lookup(name, mtime)

	if err := p.LoadFile(reader, entry.LengthTicks, entry.SysexCount, hit); err != nil {
		reader.Close()
		return err
	}

	if !hit {
		if err := lengthCache.Insert(name, mtime, p.LengthTicks(), p.SysexCount()); err != nil {
			log.Warn("failed to persist length cache entry", zap.String("name", name), zap.Error(err))
		}
	}
	return nil
}
