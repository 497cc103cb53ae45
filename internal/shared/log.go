// Package shared holds the helpers every other package leans on: logger
// construction and panic recovery. It imports nothing from this module so
// it can be used anywhere without creating cycles.
package shared

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/log"
)

// Log output formats understood by NewLogger.
const (
	FormatText   = "text"
	FormatJSON   = "json"
	FormatLogfmt = "logfmt"
)

// NewLogger builds the root logger. Components derive tagged children from
// it with Tagged so every line carries the subsystem that wrote it.
func NewLogger(w io.Writer, level, format string) (*log.Logger, error) {
	if w == nil {
		w = os.Stderr
	}

	lvl := log.InfoLevel
	if level != "" {
		parsed, err := log.ParseLevel(strings.ToLower(level))
		if err != nil {
			return nil, fmt.Errorf("invalid log level %q: %w", level, err)
		}
		lvl = parsed
	}

	var formatter log.Formatter
	switch strings.ToLower(format) {
	case "", FormatText:
		formatter = log.TextFormatter
	case FormatJSON:
		formatter = log.JSONFormatter
	case FormatLogfmt:
		formatter = log.LogfmtFormatter
	default:
		return nil, fmt.Errorf("invalid log format %q: must be one of text, json, logfmt", format)
	}

	return log.NewWithOptions(w, log.Options{
		Level:           lvl,
		Formatter:       formatter,
		ReportTimestamp: true,
		TimeFormat:      time.TimeOnly,
	}), nil
}

// Tagged returns a child of parent whose prefix is tag. A nil parent yields
// a child of the charm default logger, which keeps tests and zero-value
// structs usable without wiring.
func Tagged(parent *log.Logger, tag string) *log.Logger {
	if parent == nil {
		parent = log.Default()
	}
	return parent.WithPrefix(tag)
}

// Discard returns a logger that drops everything.
func Discard() *log.Logger {
	return log.NewWithOptions(io.Discard, log.Options{Level: log.FatalLevel + 1})
}
