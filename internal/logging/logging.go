package logging

import (
	"io"
	"log/slog"
	"os"
)

// Init installs the process-wide slog logger. LOG_LEVEL overrides the
// fallback level picked by the binary.
func Init(fallback slog.Level) *slog.Logger {
	logger := New(os.Stderr, LevelFromEnv(fallback))
	slog.SetDefault(logger)
	return logger
}

// New builds a text logger writing to w.
func New(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(
		slog.NewTextHandler(w, &slog.HandlerOptions{
			Level: level,
		}),
	)
}

// LevelFromEnv reads LOG_LEVEL and falls back when it is unset or unknown.
func LevelFromEnv(fallback slog.Level) slog.Level {
	l, ok := os.LookupEnv("LOG_LEVEL")
	if !ok {
		return fallback
	}
	return ParseLevel(l, fallback)
}

func ParseLevel(s string, fallback slog.Level) slog.Level {
	switch s {
	case "dev", "development", "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error", "production", "prod":
		return slog.LevelError
	}
	return fallback
}

// Discard returns a logger that drops everything. Handy in tests.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
