// Package logging builds the slog logger used across crtb.
//
// Logs go to stderr so that stdout stays free for the deployment summary.
// The logger is created once by the CLI and passed explicitly to every
// pipeline stage; nothing in the pipeline reads slog.Default.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

// Format selects the handler encoding.
type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
)

// Config configures New.
type Config struct {
	Verbose bool // debug level
	Quiet   bool // warnings and errors only
	Format  Format
	Writer  io.Writer // default: os.Stderr
}

// Level returns the slog level implied by the flags. Verbose wins over Quiet.
func (c Config) Level() slog.Level {
	switch {
	case c.Verbose:
		return slog.LevelDebug
	case c.Quiet:
		return slog.LevelWarn
	default:
		return slog.LevelInfo
	}
}

// New creates a logger for the given configuration.
func New(cfg Config) *slog.Logger {
	w := cfg.Writer
	if w == nil {
		w = os.Stderr
	}
	opts := &slog.HandlerOptions{Level: cfg.Level()}

	var h slog.Handler
	if cfg.Format == FormatJSON {
		h = slog.NewJSONHandler(w, opts)
	} else {
		h = slog.NewTextHandler(w, opts)
	}
	return slog.New(h)
}

// ParseFormat accepts "text" or "json" (case-insensitive).
func ParseFormat(s string) (Format, error) {
	switch Format(strings.ToLower(s)) {
	case "", FormatText:
		return FormatText, nil
	case FormatJSON:
		return FormatJSON, nil
	}
	return "", fmt.Errorf("unknown log format %q (supported: text, json)", s)
}

// Discard returns a logger that drops everything. Used as the nil default
// inside pipeline stages.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError + 1}))
}

// OrDiscard returns l, or a discarding logger when l is nil.
func OrDiscard(l *slog.Logger) *slog.Logger {
	if l == nil {
		return Discard()
	}
	return l
}
