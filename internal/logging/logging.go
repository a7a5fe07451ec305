// Package logging configures the process-wide slog logger from the
// verbosity knob, once, before anything else is constructed.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
)

// Config represents logging configuration.
type Config struct {
	// Level is a name (debug, info, warn, error) or a GST_DEBUG style number 0-5
	Level  string `toml:"level" yaml:"level"`
	Format string `toml:"format" yaml:"format"`
	// File, when set, receives the logs instead of the writer passed to Setup
	File string `toml:"file" yaml:"file"`
}

// ParseLevel converts a verbosity value into a slog level. Numbers follow
// GST_DEBUG: 0-1 error, 2 warn, 3 info, 4 and above debug.
func ParseLevel(level string) (slog.Level, error) {
	s := strings.ToLower(strings.TrimSpace(level))
	switch s {
	case "":
		return slog.LevelInfo, nil
	case "debug", "trace":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}

	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return slog.LevelInfo, fmt.Errorf("invalid log level %q (must be debug, info, warn, error or 0-5)", level)
	}
	switch {
	case n <= 1:
		return slog.LevelError, nil
	case n == 2:
		return slog.LevelWarn, nil
	case n == 3:
		return slog.LevelInfo, nil
	default:
		return slog.LevelDebug, nil
	}
}

// GStreamerLevel maps a slog level to the GST_DEBUG threshold used for the
// media framework's own logs.
func GStreamerLevel(l slog.Level) int {
	switch {
	case l <= slog.LevelDebug:
		return 4
	case l <= slog.LevelInfo:
		return 2
	default:
		return 1
	}
}

// Setup builds the logger described by cfg, installs it as the slog default
// and returns it with a close function to run on exit.
func Setup(cfg Config, w io.Writer) (*slog.Logger, func() error, error) {
	level, err := ParseLevel(cfg.Level)
	if err != nil {
		return nil, nil, err
	}

	closer := func() error { return nil }
	if cfg.File != "" {
		f, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open log file: %w", err)
		}
		w = f
		closer = func() error {
			if err := f.Sync(); err != nil {
				f.Close()
				return err
			}
			return f.Close()
		}
	}
	if w == nil {
		w = os.Stderr
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	switch strings.ToLower(cfg.Format) {
	case "", "text":
		handler = slog.NewTextHandler(w, opts)
	case "json":
		handler = slog.NewJSONHandler(w, opts)
	default:
		closer()
		return nil, nil, fmt.Errorf("invalid log format %q (must be text or json)", cfg.Format)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger, closer, nil
}
