// Package logging configures the process-wide slog.Logger used for
// startup diagnostics, per-worker progress lines, and error reporting.
package logging

import (
	"io"
	"log/slog"
	"os"

	"github.com/google/uuid"
)

// Config controls the verbosity and encoding of the process logger.
type Config struct {
	Quiet    bool
	Debug    bool
	JSONLogs bool
}

// Configure builds and installs the default slog.Logger for the process.
// Every log line carries a run_id attribute so that output from multiple
// concurrently running massdns-go invocations (e.g. under a test harness)
// can be told apart.
func Configure(cfg Config) *slog.Logger {
	level := slog.LevelInfo
	switch {
	case cfg.Debug:
		level = slog.LevelDebug
	case cfg.Quiet:
		level = slog.LevelWarn
	}

	out := io.Writer(os.Stderr)
	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if cfg.JSONLogs {
		handler = slog.NewJSONHandler(out, opts)
	} else {
		handler = slog.NewTextHandler(out, opts)
	}

	handler = handler.WithAttrs([]slog.Attr{
		slog.String("run_id", uuid.NewString()),
		slog.Int("pid", os.Getpid()),
	})

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}
