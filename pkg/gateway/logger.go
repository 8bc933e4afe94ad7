package gateway

import (
	"fmt"
	"log/slog"
)

// Logger is the narrow logging interface used throughout this package, so
// call sites never import log/slog directly and tests can substitute a
// no-op implementation. Mirrors the teacher's pkg/chatgear.Logger shape.
type Logger interface {
	ErrorPrintf(format string, args ...any)
	WarnPrintf(format string, args ...any)
	InfoPrintf(format string, args ...any)
	DebugPrintf(format string, args ...any)
}

type defaultLogger struct{}

// DefaultLogger returns a Logger backed by slog.Default(), prefixing every
// line with the package name.
func DefaultLogger() Logger { return defaultLogger{} }

func (defaultLogger) ErrorPrintf(format string, args ...any) {
	slog.Error("gateway: " + fmt.Sprintf(format, args...))
}

func (defaultLogger) WarnPrintf(format string, args ...any) {
	slog.Warn("gateway: " + fmt.Sprintf(format, args...))
}

func (defaultLogger) InfoPrintf(format string, args ...any) {
	slog.Info("gateway: " + fmt.Sprintf(format, args...))
}

func (defaultLogger) DebugPrintf(format string, args ...any) {
	slog.Debug("gateway: " + fmt.Sprintf(format, args...))
}

type slogLogger struct {
	l *slog.Logger
}

// SlogLogger adapts a caller-configured *slog.Logger (with whatever
// handler, level, and structured fields the caller already set up — e.g.
// fields for conn_id/session_id) to Logger.
func SlogLogger(l *slog.Logger) Logger { return &slogLogger{l: l} }

func (s *slogLogger) ErrorPrintf(format string, args ...any) {
	s.l.Error("gateway: " + fmt.Sprintf(format, args...))
}

func (s *slogLogger) WarnPrintf(format string, args ...any) {
	s.l.Warn("gateway: " + fmt.Sprintf(format, args...))
}

func (s *slogLogger) InfoPrintf(format string, args ...any) {
	s.l.Info("gateway: " + fmt.Sprintf(format, args...))
}

func (s *slogLogger) DebugPrintf(format string, args ...any) {
	s.l.Debug("gateway: " + fmt.Sprintf(format, args...))
}

// noopLogger discards everything; used in tests that don't care about log
// output.
type noopLogger struct{}

func (noopLogger) ErrorPrintf(string, ...any) {}
func (noopLogger) WarnPrintf(string, ...any)  {}
func (noopLogger) InfoPrintf(string, ...any)  {}
func (noopLogger) DebugPrintf(string, ...any) {}
