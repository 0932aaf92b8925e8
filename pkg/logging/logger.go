// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package logging provides structured logging for threadguard components.
//
// The logger is a thin layer over log/slog. Library packages accept a
// *slog.Logger; this package builds one with the service attribute,
// level filter and output format set consistently.
//
// # Basic Usage
//
//	logger := logging.New(logging.Config{
//	    Level:   logging.LevelDebug,
//	    Service: "threadguard",
//	})
//	eng, err := engine.New(rules.DefaultConfig(), engine.WithLogger(logger.Slog()))
//
// # Embedding
//
// The engine never configures logging itself; it discards logs unless
// given a logger. Programs that embed it use this package to build one:
//
//	level, err := logging.ParseLevel(os.Getenv("THREADGUARD_LOG_LEVEL"))
//	if err != nil {
//	    return err
//	}
//	logger := logging.New(logging.Config{Level: level, JSON: true, Service: "ci-lint"}).
//	    With("repo", repoName)
//	eng, err := engine.New(cfg, engine.WithLogger(logger.Slog()))
//
// Default is the logger for programs that want stderr text output without
// further setup. Nop is what the engine uses when no logger is given.
//
// # Log Levels
//
//   - Debug: per-rule and per-unit detail
//   - Info: run start and finish
//   - Warn: recoverable issues (syntax errors, a rule fault)
//   - Error: a unit could not be evaluated
//
// # Thread Safety
//
// Logger is safe for concurrent use. The underlying slog.Logger is.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

// =============================================================================
// Log Levels
// =============================================================================

// Level represents log severity levels, ordered Debug < Info < Warn < Error.
type Level int

const (
	// LevelDebug is for development troubleshooting.
	LevelDebug Level = iota

	// LevelInfo is for normal operational messages.
	LevelInfo

	// LevelWarn is for problems the caller can continue past.
	LevelWarn

	// LevelError is for operation failures.
	LevelError
)

// String returns "DEBUG", "INFO", "WARN", "ERROR", or "UNKNOWN".
func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// ParseLevel parses a level name, case-insensitively.
//
// Outputs:
//
//	Level - The parsed level, or LevelInfo on error.
//	error - Non-nil if name is not one of debug, info, warn, warning, error.
func ParseLevel(name string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "debug":
		return LevelDebug, nil
	case "info", "":
		return LevelInfo, nil
	case "warn", "warning":
		return LevelWarn, nil
	case "error":
		return LevelError, nil
	default:
		return LevelInfo, fmt.Errorf("unknown log level %q", name)
	}
}

func (l Level) toSlogLevel() slog.Level {
	switch l {
	case LevelDebug:
		return slog.LevelDebug
	case LevelWarn:
		return slog.LevelWarn
	case LevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// =============================================================================
// Configuration
// =============================================================================

// Config configures the Logger. A zero Config writes Info and above to
// stderr as text.
type Config struct {
	// Level sets the minimum log level.
	// Default: LevelInfo
	Level Level

	// Service is added to every entry as the "service" attribute.
	// Default: "" (no attribute)
	Service string

	// JSON selects JSON output instead of text.
	JSON bool

	// Quiet discards all output. Useful in tests and for embedders that
	// only want diagnostics.
	Quiet bool

	// Output is the destination. Default: os.Stderr
	Output io.Writer
}

// =============================================================================
// Logger
// =============================================================================

// Logger wraps slog.Logger with the configuration it was built from.
//
// Use With() to derive a logger carrying extra attributes:
//
//	unitLogger := logger.With("path", path)
//	unitLogger.Debug("evaluating")
type Logger struct {
	slog   *slog.Logger
	config Config
}

// New creates a Logger from config.
func New(config Config) *Logger {
	opts := &slog.HandlerOptions{Level: config.Level.toSlogLevel()}

	var handler slog.Handler
	switch {
	case config.Quiet:
		handler = slog.NewTextHandler(io.Discard, opts)
	default:
		out := config.Output
		if out == nil {
			out = os.Stderr
		}
		if config.JSON {
			handler = slog.NewJSONHandler(out, opts)
		} else {
			handler = slog.NewTextHandler(out, opts)
		}
	}

	if config.Service != "" {
		handler = handler.WithAttrs([]slog.Attr{slog.String("service", config.Service)})
	}

	return &Logger{slog: slog.New(handler), config: config}
}

// Default returns an Info-level text logger on stderr tagged
// service=threadguard.
func Default() *Logger {
	return New(Config{Level: LevelInfo, Service: "threadguard"})
}

// Nop returns a logger that discards everything.
func Nop() *Logger {
	return New(Config{Quiet: true})
}

// Debug logs at Debug level. args are slog key-value pairs.
func (l *Logger) Debug(msg string, args ...any) { l.slog.Debug(msg, args...) }

// Info logs at Info level.
func (l *Logger) Info(msg string, args ...any) { l.slog.Info(msg, args...) }

// Warn logs at Warn level.
func (l *Logger) Warn(msg string, args ...any) { l.slog.Warn(msg, args...) }

// Error logs at Error level.
func (l *Logger) Error(msg string, args ...any) { l.slog.Error(msg, args...) }

// With returns a Logger that adds args to every entry. The receiver is
// not modified.
func (l *Logger) With(args ...any) *Logger {
	return &Logger{slog: l.slog.With(args...), config: l.config}
}

// Slog returns the underlying slog.Logger, for packages that take one.
func (l *Logger) Slog() *slog.Logger {
	return l.slog
}

// Level returns the configured minimum level.
func (l *Logger) Level() Level {
	return l.config.Level
}
