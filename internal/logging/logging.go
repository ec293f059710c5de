// Package logging builds the structured logger used throughout the
// monitoring core, grounded on the leveled/structured logging style
// the retrieved chain-indexer examples use (zerolog), rather than a
// hand-rolled wrapper over the standard library's log package.
package logging

import (
	"os"

	"github.com/rs/zerolog"
)

// New builds a console-writer zerolog.Logger at the given level
// ("debug", "info", "warn", "error"; unrecognized values fall back to
// "info").
func New(level string) zerolog.Logger {
	parsed, err := zerolog.ParseLevel(level)
	if err != nil {
		parsed = zerolog.InfoLevel
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: "15:04:05"}).
		Level(parsed).
		With().
		Timestamp().
		Logger()
}
