// Package netlog provides the embeddable leveled-logger used across the
// protocol packages.
package netlog

import (
	"log/slog"

	"github.com/nereusnet/minnow/internal"
)

// Logger is embedded by stack components to get leveled logging helpers
// that tolerate a nil *slog.Logger.
type Logger struct {
	Log *slog.Logger
}

func (l Logger) Error(msg string, attrs ...slog.Attr) {
	internal.LogAttrs(l.Log, slog.LevelError, msg, attrs...)
}
func (l Logger) Warn(msg string, attrs ...slog.Attr) {
	internal.LogAttrs(l.Log, slog.LevelWarn, msg, attrs...)
}
func (l Logger) Info(msg string, attrs ...slog.Attr) {
	internal.LogAttrs(l.Log, slog.LevelInfo, msg, attrs...)
}
func (l Logger) Debug(msg string, attrs ...slog.Attr) {
	internal.LogAttrs(l.Log, slog.LevelDebug, msg, attrs...)
}
func (l Logger) Trace(msg string, attrs ...slog.Attr) {
	internal.LogAttrs(l.Log, internal.LevelTrace, msg, attrs...)
}

// SetLogger replaces the underlying *slog.Logger.
func (l *Logger) SetLogger(log *slog.Logger) { l.Log = log }
