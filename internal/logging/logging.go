// Package logging sets up the application logger. The terminal belongs to the
// TUI, so output goes to a file.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/hashicorp/go-hclog"
)

// DefaultLevel is used when no level is configured.
const DefaultLevel = "info"

// Options configures New.
type Options struct {
	// Path is the log file. Empty discards all output.
	Path  string
	Level string
}

// New returns a logger writing to opts.Path and a func that closes the file.
func New(opts Options) (hclog.Logger, func() error, error) {
	level := hclog.LevelFromString(opts.Level)
	if opts.Level == "" {
		level = hclog.LevelFromString(DefaultLevel)
	}
	if level == hclog.NoLevel {
		return nil, nil, fmt.Errorf("invalid log level %q", opts.Level)
	}
	if opts.Path == "" {
		return hclog.NewNullLogger(), func() error { return nil }, nil
	}

	if err := os.MkdirAll(filepath.Dir(opts.Path), 0o755); err != nil {
		return nil, nil, fmt.Errorf("failed to create log directory: %w", err)
	}
	file, err := os.OpenFile(opts.Path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open log file: %w", err)
	}
	return newLogger(file, level), file.Close, nil
}

func newLogger(w io.Writer, level hclog.Level) hclog.Logger {
	return hclog.New(&hclog.LoggerOptions{
		Name:       "wrangler",
		Level:      level,
		Output:     w,
		TimeFormat: "2006-01-02T15:04:05.000Z07:00",
	})
}
