package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// InitLogger builds the process logger. format is "json" (default) or "text".
func InitLogger(level slog.Level, format string) *slog.Logger {
	return newLogger(os.Stdout, level, format)
}

func newLogger(w io.Writer, level slog.Level, format string) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: true,
	}
	if strings.EqualFold(strings.TrimSpace(format), "text") {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}

// ParseLevel maps a config string to a slog level, defaulting to info.
func ParseLevel(v string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// NewComponentLogger tags every record from base with component.
func NewComponentLogger(base *slog.Logger, component string) *slog.Logger {
	if base == nil {
		base = slog.Default()
	}
	return base.With(
		slog.String("component", component),
	)
}
