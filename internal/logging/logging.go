// Copyright (C) 2026 ragserve contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package logging configures the process-wide structured logger used
// by every ragserve component. It is a thin layer over log/slog: a
// single JSON handler writing to stdout, with level parsed from the
// LOG_LEVEL environment variable and a "service" attribute attached to
// every record.
package logging

import (
	"log/slog"
	"os"
	"strings"
)

// Config configures the process logger.
type Config struct {
	// Level is the minimum level to emit. Defaults to slog.LevelInfo.
	Level slog.Level
	// Service names the component for the "service" attribute, e.g.
	// "ragserved", "retrieval-pipeline".
	Service string
}

// ParseLevel converts an environment-style level name ("debug", "info",
// "warn", "error", case-insensitive) to a slog.Level, defaulting to
// slog.LevelInfo for an unrecognized or empty string.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
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

// New builds a *slog.Logger per Config, writing JSON to stdout. It does
// not install itself as the process default; call Init for that.
func New(cfg Config) *slog.Logger {
	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.Level})
	logger := slog.New(handler)
	if cfg.Service != "" {
		logger = logger.With("service", cfg.Service)
	}
	return logger
}

// Init builds a logger per Config and installs it as slog's default,
// matching the pattern the rest of the codebase relies on
// (slog.Info/slog.Error calls without an explicit logger reference).
func Init(cfg Config) *slog.Logger {
	logger := New(cfg)
	slog.SetDefault(logger)
	return logger
}

// FromEnv builds and installs the default logger using LOG_LEVEL and
// the given service name. Convenience wrapper for cmd/ragserved.
func FromEnv(service string) *slog.Logger {
	return Init(Config{
		Level:   ParseLevel(os.Getenv("LOG_LEVEL")),
		Service: service,
	})
}
