package config

import (
	"log/slog"
	"strings"
)

// SlogLevel maps the configured level string to a slog.Level, defaulting
// to info for unknown values.
func (l LoggingConfig) SlogLevel() slog.Level {
	switch strings.ToLower(strings.TrimSpace(l.Level)) {
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
