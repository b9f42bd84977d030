// Package logger builds the process-wide structured logger.
package logger

import (
	"log/slog"
	"os"
)

// New returns a JSON slog logger writing to stdout. The level comes from
// COVAULT_LOG_LEVEL (debug, info, warn, error); unset or unknown means info.
func New() *slog.Logger {
	level := slog.LevelInfo
	switch os.Getenv("COVAULT_LOG_LEVEL") {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	return slog.New(handler).With("service", "covault")
}
