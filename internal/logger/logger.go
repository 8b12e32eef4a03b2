// Package logger initializes structured JSON logging with zerolog. Each
// component gets a child logger tagged with its name.
package logger

import (
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Init creates the root logger for the given service, writing JSON to
// stdout. level is one of debug/info/warn/error (defaults to info).
func Init(service, level string) zerolog.Logger {
	zerolog.TimeFieldFormat = time.RFC3339Nano

	lvl := zerolog.InfoLevel
	switch strings.ToLower(level) {
	case "debug":
		lvl = zerolog.DebugLevel
	case "warn", "warning":
		lvl = zerolog.WarnLevel
	case "error":
		lvl = zerolog.ErrorLevel
	}

	return zerolog.New(os.Stdout).
		Level(lvl).
		With().
		Timestamp().
		Str("service", service).
		Logger()
}

// Component returns a child logger tagged with a component name.
func Component(log zerolog.Logger, name string) zerolog.Logger {
	return log.With().Str("component", name).Logger()
}
