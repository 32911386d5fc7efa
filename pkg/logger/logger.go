package logger

import (
	"io"
	"log/slog"
	"os"
)

// New builds the process logger: human-readable text with debug output for
// local and development environments, JSON at info level otherwise.
func New(env string) *slog.Logger {
	return newWithWriter(env, os.Stdout)
}

func newWithWriter(env string, w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: slog.LevelInfo}
	var handler slog.Handler
	switch env {
	case "local", "development":
		opts.Level = slog.LevelDebug
		handler = slog.NewTextHandler(w, opts)
	default:
		handler = slog.NewJSONHandler(w, opts)
	}
	return slog.New(handler).With(slog.String("service", "interaction-engine"))
}

// Init builds the logger for env and installs it as the slog default.
func Init(env string) *slog.Logger {
	l := New(env)
	slog.SetDefault(l)
	return l
}
