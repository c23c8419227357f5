// Copyright (C) 2025 Sievert Labs (oss@sievertlabs.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package logging provides structured logging for dosimeter components.
//
// Logs go to stderr so the audited tree on stdout stays pipeable. The
// package wraps the standard library's slog: components receive a
// *slog.Logger and fall back to slog.Default() when handed nil, so library
// code never depends on how the binary configured its output.
package logging

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
)

// Level represents log severity. Ordered Debug < Info < Warn < Error;
// setting a minimum level discards everything below it.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

// String returns the human-readable name of the level.
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

// toSlogLevel bridges Level to the standard library.
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

// ParseLevel converts a level name, case-insensitively, to a Level.
// "warning" is accepted as an alias for "warn".
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug, nil
	case "info", "":
		return LevelInfo, nil
	case "warn", "warning":
		return LevelWarn, nil
	case "error":
		return LevelError, nil
	default:
		return LevelInfo, fmt.Errorf("unknown log level %q", s)
	}
}

// Config configures logger construction. The zero value writes Info and
// above to stderr as human-readable text.
type Config struct {
	// Level is the minimum severity emitted.
	Level Level

	// Service is attached to every record as the "service" attribute
	// when non-empty.
	Service string

	// JSON switches output from text to one JSON object per record.
	JSON bool

	// Quiet discards all output. Used by quiet mode and by tests that
	// do not want log noise interleaved with rendered trees.
	Quiet bool
}

// New builds a logger from the config.
func New(cfg Config) *slog.Logger {
	if cfg.Quiet {
		return slog.New(slog.DiscardHandler)
	}

	opts := &slog.HandlerOptions{Level: cfg.Level.toSlogLevel()}
	var handler slog.Handler
	if cfg.JSON {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	if cfg.Service != "" {
		handler = handler.WithAttrs([]slog.Attr{slog.String("service", cfg.Service)})
	}
	return slog.New(handler)
}

// Init builds a logger from the config and installs it as the process
// default, so components defaulting to slog.Default() pick it up.
func Init(cfg Config) *slog.Logger {
	logger := New(cfg)
	slog.SetDefault(logger)
	return logger
}
