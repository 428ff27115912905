// Package logging builds the zerolog logger shared by every strata
// component.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"strata/internal/config"
)

// New creates a logger writing to stderr
func New(cfg config.LogConfig) (zerolog.Logger, error) {
	return NewWithWriter(os.Stderr, cfg)
}

// NewWithWriter creates a logger writing to w. The console format is meant
// for terminals; json is the default.
func NewWithWriter(w io.Writer, cfg config.LogConfig) (zerolog.Logger, error) {
	level, err := ParseLevel(cfg.Level)
	if err != nil {
		return zerolog.Nop(), err
	}

	switch cfg.Format {
	case config.LogFormatConsole:
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	case config.LogFormatJSON, "":
		w = zerolog.SyncWriter(w)
	default:
		return zerolog.Nop(), fmt.Errorf("unknown log format %q", cfg.Format)
	}

	return zerolog.New(w).Level(level).With().Timestamp().Logger(), nil
}

// ParseLevel parses a level name. An empty name is info.
func ParseLevel(name string) (zerolog.Level, error) {
	if name == "" {
		return zerolog.InfoLevel, nil
	}
	level, err := zerolog.ParseLevel(strings.ToLower(name))
	if err != nil {
		return zerolog.NoLevel, fmt.Errorf("invalid log level %q: %w", name, err)
	}
	return level, nil
}
