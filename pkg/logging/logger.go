// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package logging provides structured logging for Aleutian components.
//
// Built on Go's standard library slog package. Default output is JSON on
// stderr, following Unix CLI conventions; an optional log directory adds a
// per-service daily file alongside it.
//
// # Basic Usage
//
//	logger := logging.Default()
//	logger.Info("index loaded", "doc_count", n)
//
// # File Logging
//
//	logger, err := logging.New(logging.Config{
//	    Level:   logging.LevelInfo,
//	    LogDir:  "~/.aleutian/logs",  // Supports ~ expansion
//	    Service: "compliance",
//	})
//	defer logger.Close()
//
// This creates log files named `{service}_{date}.log` in JSON format.
//
// # Security Considerations
//
// This package does NOT automatically redact sensitive data. Callers must
// ensure API keys and question text containing PII are not logged.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// =============================================================================
// Log Levels
// =============================================================================

// Level represents log severity, ordered Debug < Info < Warn < Error.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

// ParseLevel maps a level name to a Level. Unknown names get LevelInfo.
func ParseLevel(name string) Level {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "debug":
		return LevelDebug
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

func (l Level) slogLevel() slog.Level {
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
// Config
// =============================================================================

// Config controls logger construction. The zero value logs Info and above
// to stderr only.
type Config struct {
	Level Level

	// LogDir enables file logging when non-empty. The directory is created
	// if missing; "~" expands to the user's home directory.
	LogDir string

	// Service names the log file: {service}_{date}.log. Defaults to
	// "comply".
	Service string
}

// =============================================================================
// Logger
// =============================================================================

// Logger wraps slog.Logger with file lifecycle management. Safe for
// concurrent use.
type Logger struct {
	*slog.Logger
	file *os.File
}

// Default returns a stderr-only logger at Info level.
func Default() *Logger {
	logger, _ := New(Config{})
	return logger
}

// New builds a logger from the config. A file error disables file output
// and is returned, but the stderr logger is still usable.
func New(cfg Config) (*Logger, error) {
	if cfg.Service == "" {
		cfg.Service = "comply"
	}

	writers := []io.Writer{os.Stderr}
	var file *os.File
	var fileErr error

	if cfg.LogDir != "" {
		dir := expandHome(cfg.LogDir)
		if err := os.MkdirAll(dir, 0755); err != nil {
			fileErr = fmt.Errorf("could not create the log directory: %w", err)
		} else {
			name := fmt.Sprintf("%s_%s.log", cfg.Service, time.Now().Format("2006-01-02"))
			file, fileErr = os.OpenFile(filepath.Join(dir, name),
				os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
			if fileErr == nil {
				writers = append(writers, file)
			}
		}
	}

	handler := slog.NewJSONHandler(io.MultiWriter(writers...), &slog.HandlerOptions{
		Level: cfg.Level.slogLevel(),
	})
	return &Logger{
		Logger: slog.New(handler).With("service", cfg.Service),
		file:   file,
	}, fileErr
}

// SetAsDefault installs this logger as the process-wide slog default.
func (l *Logger) SetAsDefault() {
	slog.SetDefault(l.Logger)
}

// Close releases the log file, if any.
func (l *Logger) Close() error {
	if l.file == nil {
		return nil
	}
	return l.file.Close()
}

func expandHome(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, strings.TrimPrefix(strings.TrimPrefix(path, "~"), "/"))
	}
	return path
}
