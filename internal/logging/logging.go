// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package logging constructs the process-wide slog logger.
package logging

import (
	"io"
	"log/slog"
	"strings"

	"github.com/pdiddy/memo-engine/pkg/types"
)

// New builds a slog logger writing to w using the configured level and
// format ("text" or "json"). Unknown values fall back to info/text.
func New(w io.Writer, cfg types.LoggingConfig) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(cfg.Level)}

	var handler slog.Handler
	if strings.EqualFold(strings.TrimSpace(cfg.Format), "json") {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	return slog.New(handler)
}

// Discard returns a logger that drops everything, for tests and optional
// dependencies.
func Discard() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
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
