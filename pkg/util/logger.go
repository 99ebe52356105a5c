package util

import (
	"io"
	"log/slog"
	"os"
)

// NewLogger writes text at debug level in development and JSON at info level
// elsewhere. Every record carries the process name so server and worker logs
// can share a sink.
func NewLogger(env, process string) *slog.Logger {
	return newLogger(os.Stdout, env, process)
}

func newLogger(w io.Writer, env, process string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: slog.LevelInfo}

	var handler slog.Handler
	if env == "development" {
		opts.Level = slog.LevelDebug
		handler = slog.NewTextHandler(w, opts)
	} else {
		handler = slog.NewJSONHandler(w, opts)
	}

	return slog.New(handler).With("process", process)
}
