package logger

import (
	"io"
	"log/slog"
	"os"
)

// New creates a slog.Logger that writes JSON to os.Stdout.
// If debug is true the level is set to Debug, otherwise Info.
func New(debug bool) *slog.Logger {
	return NewWithWriter(os.Stdout, debug)
}

// NewWithWriter creates a logger with a specific writer so tests can
// capture output.
func NewWithWriter(w io.Writer, debug bool) *slog.Logger {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: level,
	}))
}
