// Package obs configures the structured logger shared across the player,
// router, cache, and cmd/smfdeck entry point.
package obs

import "go.uber.org/zap"

// New builds the shared zap logger: a development config (human-readable,
// debug-level) when debug is set, otherwise a production config
// (JSON-encoded, info-level and above).
func New(debug bool) (*zap.Logger, error) {
	if debug {
		cfg := zap.NewDevelopmentConfig()
		return cfg.Build()
	}
	cfg := zap.NewProductionConfig()
	return cfg.Build()
}

// Must is New, panicking on error. Used at startup where there is no
// logger yet to report the failure through.
func Must(debug bool) *zap.Logger {
	log, err := New(debug)
	if err != nil {
		panic(err)
	}
	return log
}
