// SPDX-License-Identifier: MPL-2.0

// Package logging builds the structured loggers used across romextract.
package logging

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/charmbracelet/log"
)

// Prefix is the root logger prefix.
const Prefix = "romextract"

// Supported output formats.
const (
	FormatText   Format = "text"
	FormatJSON   Format = "json"
	FormatLogfmt Format = "logfmt"
)

var (
	// ErrInvalidLevel is returned for an unknown log level.
	ErrInvalidLevel = errors.New("invalid log level")
	// ErrInvalidFormat is returned for an unknown log format.
	ErrInvalidFormat = errors.New("invalid log format")
)

type (
	// Level is a log level name: debug, info, warn, error or fatal.
	Level string

	// Format selects the log line encoding.
	Format string

	// Options configure New.
	Options struct {
		Level  Level
		Format Format
		// Timestamps adds a time to each line.
		Timestamps bool
	}
)

// Validate returns an error wrapping ErrInvalidLevel for unknown levels.
func (l Level) Validate() error {
	if l == "" {
		return nil
	}
	if _, err := log.ParseLevel(string(l)); err != nil {
		return fmt.Errorf("%w: %q", ErrInvalidLevel, string(l))
	}
	return nil
}

// Validate returns an error wrapping ErrInvalidFormat for unknown formats.
func (f Format) Validate() error {
	switch f {
	case "", FormatText, FormatJSON, FormatLogfmt:
		return nil
	}
	return fmt.Errorf("%w: %q (want text, json or logfmt)", ErrInvalidFormat, string(f))
}

// New returns a root logger writing to w.
func New(w io.Writer, opts Options) (*log.Logger, error) {
	if err := opts.Level.Validate(); err != nil {
		return nil, err
	}
	if err := opts.Format.Validate(); err != nil {
		return nil, err
	}

	level := log.InfoLevel
	if opts.Level != "" {
		level, _ = log.ParseLevel(string(opts.Level))
	}
	formatter := log.TextFormatter
	switch opts.Format {
	case FormatJSON:
		formatter = log.JSONFormatter
	case FormatLogfmt:
		formatter = log.LogfmtFormatter
	}

	return log.NewWithOptions(w, log.Options{
		Prefix:          Prefix,
		Level:           level,
		Formatter:       formatter,
		ReportTimestamp: opts.Timestamps,
		TimeFormat:      time.TimeOnly,
	}), nil
}

// Discard returns a logger that drops everything.
func Discard() *log.Logger {
	return log.New(io.Discard)
}
