package logging

import (
	"io"
	"log/slog"
	"os"
)

// New creates the process-wide JSON logger. component tells the api server
// and the reconciler apart in shared log streams. An invalid level falls
// back to info.
func New(level, component string) *slog.Logger {
	lvl := new(slog.LevelVar)
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl.Set(slog.LevelInfo)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
	if component != "" {
		logger = logger.With(slog.String("component", component))
	}
	return logger
}

// Discard returns a logger that drops all output. Useful for tests.
func Discard() *slog.Logger {
	handler := slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError})
	return slog.New(handler)
}
