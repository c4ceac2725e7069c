// Package logging builds the slog logger shared by cartd and the CLI.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"
)

const (
	defaultMaxSizeMB  = 20
	defaultMaxBackups = 5
	defaultMaxAgeDays = 14
)

// Options configures New.
type Options struct {
	Level       string // "debug", "info", "warn", "error"
	Environment string // "production" selects JSON on stdout
	// File, when set, sends logs to a rotating file instead of Stdout.
	// The CLI uses this so command output stays clean.
	File string

	Stdout io.Writer // defaults to os.Stdout
}

// New creates a structured logger configured for the environment.
// Production and file output use JSON; development on a terminal uses text.
// The returned close func flushes and closes the log file, if any.
func New(opts Options) (*slog.Logger, func() error) {
	level := ParseLevel(opts.Level)
	handlerOpts := &slog.HandlerOptions{
		Level: level,
		// Add source location in debug mode
		AddSource: level == slog.LevelDebug,
	}

	out := opts.Stdout
	if out == nil {
		out = os.Stdout
	}

	if opts.File != "" {
		writer, err := newFileWriter(opts.File)
		if err != nil {
			fmt.Fprintf(os.Stderr, "log file unavailable, falling back to stderr: %v\n", err)
			return slog.New(slog.NewTextHandler(os.Stderr, handlerOpts)), noopClose
		}
		return slog.New(slog.NewJSONHandler(writer, handlerOpts)), writer.Close
	}

	if opts.Environment == "production" {
		return slog.New(slog.NewJSONHandler(out, handlerOpts)), noopClose
	}
	return slog.New(slog.NewTextHandler(out, handlerOpts)), noopClose
}

// ParseLevel maps a level name to slog. Unknown names mean info.
func ParseLevel(name string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(name)) {
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

// Discard returns a logger that drops everything.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newFileWriter(path string) (*lumberjack.Logger, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create log dir failed: %w", err)
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log file failed: %w", err)
	}
	f.Close()

	return &lumberjack.Logger{
		Filename:   path,
		MaxSize:    defaultMaxSizeMB,
		MaxBackups: defaultMaxBackups,
		MaxAge:     defaultMaxAgeDays,
		Compress:   true,
	}, nil
}

func noopClose() error { return nil }
