package logx

import (
	"context"
	"fmt"
	"io"
)

var defaultLogger = NewLogger(DefaultConfig())

// SetDefaultLogger sets the default logger
func SetDefaultLogger(logger *Logger) {
	defaultLogger = logger
}

// GetDefaultLogger returns the default logger
func GetDefaultLogger() *Logger {
	return defaultLogger
}

// SetLevel sets the log level for the default logger
func SetLevel(level Level) {
	defaultLogger.SetLevel(level)
}

// SetOutput sets the output for the default logger
func SetOutput(w io.Writer) {
	defaultLogger.SetOutput(w)
}

// ============================================================================
// Simple Logging Functions
// ============================================================================

func Trace(msg string) { defaultLogger.log(LevelTrace, msg, nil, nil, nil) }
func Debug(msg string) { defaultLogger.log(LevelDebug, msg, nil, nil, nil) }
func Info(msg string)  { defaultLogger.log(LevelInfo, msg, nil, nil, nil) }
func Warn(msg string)  { defaultLogger.log(LevelWarn, msg, nil, nil, nil) }
func Error(msg string) { defaultLogger.log(LevelError, msg, nil, nil, nil) }

// Critical logs at FATAL level without exiting
func Critical(msg string) { defaultLogger.log(LevelFatal, msg, nil, nil, nil) }

// Fatal logs a fatal level message and exits
func Fatal(msg string) {
	defaultLogger.log(LevelFatal, msg, nil, nil, nil)
	defaultLogger.exit(1)
}

// ============================================================================
// Formatted Logging Functions
// ============================================================================

func Debugf(format string, args ...interface{}) {
	defaultLogger.log(LevelDebug, fmt.Sprintf(format, args...), nil, nil, nil)
}

func Infof(format string, args ...interface{}) {
	defaultLogger.log(LevelInfo, fmt.Sprintf(format, args...), nil, nil, nil)
}

func Warnf(format string, args ...interface{}) {
	defaultLogger.log(LevelWarn, fmt.Sprintf(format, args...), nil, nil, nil)
}

func Errorf(format string, args ...interface{}) {
	defaultLogger.log(LevelError, fmt.Sprintf(format, args...), nil, nil, nil)
}

// Fatalf logs a formatted fatal message and exits
func Fatalf(format string, args ...interface{}) {
	defaultLogger.log(LevelFatal, fmt.Sprintf(format, args...), nil, nil, nil)
	defaultLogger.exit(1)
}

// ============================================================================
// Structured Logging
// ============================================================================

// WithFields creates a new logger entry with fields
func WithFields(fields Fields) *Entry {
	return defaultLogger.WithFields(fields)
}

// WithField creates a new logger entry with a single field
func WithField(key string, value interface{}) *Entry {
	return defaultLogger.WithField(key, value)
}

// WithContext creates a new logger entry carrying the fields stored in ctx
func WithContext(ctx context.Context) *Entry {
	return defaultLogger.WithContext(ctx)
}

// WithError creates a new logger entry with an error field
func WithError(err error) *Entry {
	return defaultLogger.WithError(err)
}
