package app

import (
	"io"
	"log/slog"
)

// newLogger builds the orchestrator's structured logger. Each App carries
// its own instance so concurrent runs (and tests) never share handler
// state through the slog default.
func newLogger(levelStr, formatStr string, outW io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(levelStr)}

	var handler slog.Handler
	switch formatStr {
	case "json":
		handler = slog.NewJSONHandler(outW, opts)
	default:
		handler = slog.NewTextHandler(outW, opts)
	}

	return slog.New(handler)
}

// parseLevel maps the configured level name onto slog's scale. Unknown
// names fall back to info rather than failing the run.
func parseLevel(name string) slog.Level {
	switch name {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
