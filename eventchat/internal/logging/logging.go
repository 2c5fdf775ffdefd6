// Package logging defines the logger accepted across the SDK.
package logging

import (
	"context"
	"log/slog"
)

// Logger is a minimal logging interface accepted by the SDK.
type Logger interface {
	Debug(msg string, fields map[string]any)
	Info(msg string, fields map[string]any)
	Warn(msg string, fields map[string]any)
	Error(msg string, fields map[string]any)
}

// Noop discards all logs.
type Noop struct{}

func (Noop) Debug(string, map[string]any) {}
func (Noop) Info(string, map[string]any)  {}
func (Noop) Warn(string, map[string]any)  {}
func (Noop) Error(string, map[string]any) {}

// OrNoop returns l, or a Noop logger when l is nil.
func OrNoop(l Logger) Logger {
	if l == nil {
		return Noop{}
	}
	return l
}

// Slog forwards SDK logs to a *slog.Logger, turning fields into attributes.
type Slog struct {
	L *slog.Logger
}

// NewSlog wraps l. A nil l uses slog.Default().
func NewSlog(l *slog.Logger) Slog {
	if l == nil {
		l = slog.Default()
	}
	return Slog{L: l}
}

func (s Slog) Debug(msg string, fields map[string]any) { s.log(slog.LevelDebug, msg, fields) }
func (s Slog) Info(msg string, fields map[string]any)  { s.log(slog.LevelInfo, msg, fields) }
func (s Slog) Warn(msg string, fields map[string]any)  { s.log(slog.LevelWarn, msg, fields) }
func (s Slog) Error(msg string, fields map[string]any) { s.log(slog.LevelError, msg, fields) }

func (s Slog) log(level slog.Level, msg string, fields map[string]any) {
	ctx := context.Background()
	if !s.L.Enabled(ctx, level) {
		return
	}
	attrs := make([]slog.Attr, 0, len(fields))
	for k, v := range fields {
		attrs = append(attrs, slog.Any(k, v))
	}
	s.L.LogAttrs(ctx, level, msg, attrs...)
}
