// Package logger builds the zerolog.Logger used across all SOMS processes.
package logger

import (
	"os"

	"github.com/rs/zerolog"

	"github.com/soms-platform/soms-core/internal/config"
)

// New returns a configured zerolog.Logger, console-formatted in development,
// JSON in production.
func New(cfg *config.Config, component string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	if cfg.IsDevelopment() && cfg.LogLevel == "" {
		lvl = zerolog.DebugLevel
	}
	zerolog.SetGlobalLevel(lvl)

	var log zerolog.Logger
	if cfg.IsDevelopment() {
		out := zerolog.ConsoleWriter{Out: os.Stderr}
		log = zerolog.New(out).With().Timestamp().Str("component", component).Logger()
	} else {
		log = zerolog.New(os.Stderr).With().Timestamp().Str("component", component).Logger()
	}
	return log
}
