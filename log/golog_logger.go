package log

import (
	"fmt"

	"github.com/kataras/golog"
)

// GologLogger adapts a kataras/golog logger to the Logger interface. The
// wrapper formats printf-style and filters on its own level; the wrapped
// golog level is kept in sync through SetLevel.
type GologLogger struct {
	logger *golog.Logger
	level  LogLevel
}

var _ Logger = (*GologLogger)(nil)

// NewGologLogger wraps an existing golog.Logger at Info level.
func NewGologLogger(logger *golog.Logger) *GologLogger {
	return NewGologLoggerWithLevel(logger, LogLevelInfo)
}

// NewGologLoggerWithLevel wraps an existing golog.Logger at the given level.
func NewGologLoggerWithLevel(logger *golog.Logger, level LogLevel) *GologLogger {
	l := &GologLogger{logger: logger}
	l.SetLevel(level)
	return l
}

// Debug logs a debug message.
func (l *GologLogger) Debug(format string, v ...any) {
	if l.level <= LogLevelDebug {
		l.logger.Debug(fmt.Sprintf(format, v...))
	}
}

// Info logs an informational message.
func (l *GologLogger) Info(format string, v ...any) {
	if l.level <= LogLevelInfo {
		l.logger.Info(fmt.Sprintf(format, v...))
	}
}

// Warn logs a warning message.
func (l *GologLogger) Warn(format string, v ...any) {
	if l.level <= LogLevelWarn {
		l.logger.Warn(fmt.Sprintf(format, v...))
	}
}

// Error logs an error message.
func (l *GologLogger) Error(format string, v ...any) {
	if l.level <= LogLevelError {
		l.logger.Error(fmt.Sprintf(format, v...))
	}
}

// SetLevel sets the wrapper's level and mirrors it onto the wrapped logger.
func (l *GologLogger) SetLevel(level LogLevel) {
	l.level = level

	gologLevel := "info"
	switch level {
	case LogLevelDebug:
		gologLevel = "debug"
	case LogLevelInfo:
		gologLevel = "info"
	case LogLevelWarn:
		gologLevel = "warn"
	case LogLevelError:
		gologLevel = "error"
	case LogLevelNone:
		gologLevel = "disable"
	}
	l.logger.SetLevel(gologLevel)
}

// GetLevel returns the wrapper's current level.
func (l *GologLogger) GetLevel() LogLevel {
	return l.level
}
