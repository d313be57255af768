// Package logger provides a logger implementation using slog
package logger

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/8thgencore/redlite/internal/config"
	"github.com/golang-cz/devslog"
)

// New creates a new logger with configured formatting and logging level
func New(env config.Env, level slog.Level, w io.Writer) *slog.Logger {
	var log *slog.Logger

	slogOpts := &slog.HandlerOptions{
		AddSource: true,
		Level:     level,
	}

	if env == config.Prod {
		log = slog.New(slog.NewJSONHandler(w, slogOpts))
	} else {
		opts := &devslog.Options{
			HandlerOptions:    slogOpts,
			MaxSlicePrintSize: 10,
			SortKeys:          true,
			NewLineAfterLog:   true,
			StringerFormatter: true,
			TimeFormat:        "[15:04:05.000]",
		}

		log = slog.New(devslog.NewHandler(w, opts))
	}

	// Set the logger as the default logger
	slog.SetDefault(log)

	return log
}

// ParseLevel converts a level name such as "debug" or "WARN" into a slog.Level
func ParseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return slog.LevelInfo, fmt.Errorf("invalid log level %q: %w", s, err)
	}

	return level, nil
}

type nopCloser struct {
	io.Writer
}

func (nopCloser) Close() error { return nil }

// OpenOutput resolves a logging output: "stdout", "stderr" or a file path
// opened for appending. Closing stdout or stderr is a no-op.
func OpenOutput(output string) (io.WriteCloser, error) {
	switch output {
	case "", "stdout":
		return nopCloser{os.Stdout}, nil
	case "stderr":
		return nopCloser{os.Stderr}, nil
	}

	f, err := os.OpenFile(output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o640)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}

	return f, nil
}
