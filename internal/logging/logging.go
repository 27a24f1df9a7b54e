// Package logging provides the process-wide logger used by the relay and
// the extension-side agent.
package logging

import (
	"context"
	"log"
	"os"
	"sync/atomic"
)

var (
	disabled atomic.Bool
	trace    atomic.Bool
	logger   = log.New(os.Stdout, "", log.LstdFlags)
)

// Disable turns off all non-trace logging.
func Disable() {
	disabled.Store(true)
}

// Enable turns logging back on.
func Enable() {
	disabled.Store(false)
}

// SetTrace toggles frame-level tracing (CDP command/event dumps).
func SetTrace(on bool) {
	trace.Store(on)
}

// Tracing reports whether frame-level tracing is enabled.
func Tracing() bool {
	return trace.Load()
}

// Info logs an info message.
func Info(v ...any) {
	if !disabled.Load() {
		logger.Println(v...)
	}
}

// Infof logs a formatted info message.
func Infof(format string, v ...any) {
	if !disabled.Load() {
		logger.Printf(format, v...)
	}
}

// Error logs an error message.
func Error(v ...any) {
	if !disabled.Load() {
		logger.Println(v...)
	}
}

// Errorf logs a formatted error message.
func Errorf(format string, v ...any) {
	if !disabled.Load() {
		logger.Printf(format, v...)
	}
}

// Warn logs a warning message.
func Warn(v ...any) {
	if !disabled.Load() {
		logger.Println(v...)
	}
}

// Warnf logs a formatted warning message.
func Warnf(format string, v ...any) {
	if !disabled.Load() {
		logger.Printf(format, v...)
	}
}

// Debug logs a debug message.
func Debug(v ...any) {
	if !disabled.Load() {
		logger.Println(v...)
	}
}

// Debugf logs a formatted debug message.
func Debugf(format string, v ...any) {
	if !disabled.Load() {
		logger.Printf(format, v...)
	}
}

// Tracef logs a frame-level trace message, gated by SetTrace(true).
// Used for the CDP client <-> relay <-> extension frame dumps.
func Tracef(format string, v ...any) {
	if trace.Load() && !disabled.Load() {
		logger.Printf("[trace] "+format, v...)
	}
}

// Logger is a lightweight logger that can be embedded in structs.
type Logger struct{}

// WithContext returns a Logger. The context is accepted for API symmetry
// with request-scoped loggers elsewhere but is not otherwise consulted.
func WithContext(ctx context.Context) Logger {
	return Logger{}
}

func (l Logger) Info(v ...any)                    { Info(v...) }
func (l Logger) Infof(format string, v ...any)    { Infof(format, v...) }
func (l Logger) Error(v ...any)                   { Error(v...) }
func (l Logger) Errorf(format string, v ...any)   { Errorf(format, v...) }
func (l Logger) Warn(v ...any)                    { Warn(v...) }
func (l Logger) Warnf(format string, v ...any)    { Warnf(format, v...) }
func (l Logger) Debug(v ...any)                   { Debug(v...) }
func (l Logger) Debugf(format string, v ...any)   { Debugf(format, v...) }
