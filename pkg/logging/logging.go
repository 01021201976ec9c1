// Copyright (C) 2025 StratForge AI (dev@stratforge.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package logging configures structured logging for StratForge services.
//
// Services log through the standard library slog API; this package only
// decides where and how records are rendered. Two formats are supported:
// JSON (the default, for containers and log shippers) and colorized
// console output via tint for local development.
package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/lmittmann/tint"
)

// Config selects the handler installed by Setup.
type Config struct {
	// Format is "json" or "text". Anything else falls back to JSON.
	Format string

	// Level is the minimum level: "debug", "info", "warn", "error".
	// Default info.
	Level string

	// Service, when set, is attached to every record as service=<name>.
	Service string

	// Output defaults to os.Stdout.
	Output io.Writer
}

// Setup builds a slog.Logger from cfg and installs it as the process
// default. Returns the logger for callers that want to hold it directly.
func Setup(cfg Config) *slog.Logger {
	out := cfg.Output
	if out == nil {
		out = os.Stdout
	}

	opts := &slog.HandlerOptions{Level: parseLevel(cfg.Level)}

	var handler slog.Handler
	if strings.EqualFold(cfg.Format, "text") {
		handler = tint.NewHandler(out, &tint.Options{Level: opts.Level})
	} else {
		handler = slog.NewJSONHandler(out, opts)
	}

	logger := slog.New(handler)
	if cfg.Service != "" {
		logger = logger.With("service", cfg.Service)
	}
	slog.SetDefault(logger)
	return logger
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
