// Package zaplog adapts a zap logger to the service Logger interface.
package zaplog

import "go.uber.org/zap"

// Logger forwards service log events to a zap SugaredLogger.
type Logger struct {
	s *zap.SugaredLogger
}

// New wraps the given zap logger. A nil logger yields a no-op adapter.
func New(l *zap.Logger) *Logger {
	if l == nil {
		l = zap.NewNop()
	}
	return &Logger{s: l.Sugar()}
}

// Debug logs at debug level with key-value context.
func (l *Logger) Debug(msg string, kv ...any) { l.s.Debugw(msg, kv...) }

// Info logs at info level with key-value context.
func (l *Logger) Info(msg string, kv ...any) { l.s.Infow(msg, kv...) }

// Warn logs at warn level with key-value context.
func (l *Logger) Warn(msg string, kv ...any) { l.s.Warnw(msg, kv...) }

// Error logs at error level with key-value context.
func (l *Logger) Error(msg string, kv ...any) { l.s.Errorw(msg, kv...) }
