// Package config holds the startup configuration parsed by
// cmd/smfdeck's flag set.
package config

import "flag"

// Config is the fully resolved startup configuration.
type Config struct {
	SerialDevice string // e.g. "/dev/ttyUSB0"
	SerialBaud   int    // 31250 for standard MIDI; configurable for bench testing

	MIDIInputName string // logged at startup only; the input watcher ignores it and always autodetects

	Debug bool

	DataDir string // root directory for the length cache and settings files
}

// Default returns sane out-of-the-box values for a bench setup,
// overridable by flags.
func Default() Config {
	return Config{
		SerialDevice:  "/dev/ttyUSB0",
		SerialBaud:    31250,
		MIDIInputName: "",
		Debug:         false,
		DataDir:       ".",
	}
}

// RegisterFlags binds fs's flags to c's fields.
func (c *Config) RegisterFlags(fs *flag.FlagSet) {
	fs.StringVar(&c.SerialDevice, "serial-device", c.SerialDevice, "serial device path for the outgoing MIDI byte sink")
	fs.IntVar(&c.SerialBaud, "serial-baud", c.SerialBaud, "serial baud rate (31250 for standard MIDI)")
	fs.StringVar(&c.MIDIInputName, "midi-input", c.MIDIInputName, "MIDI input device name (logged only; the input device is always autodetected)")
	fs.BoolVar(&c.Debug, "debug", c.Debug, "enable debug logging")
	fs.StringVar(&c.DataDir, "data-dir", c.DataDir, "root directory for the length cache and settings files")
}
