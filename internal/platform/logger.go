// Package platform defines the external collaborator seam spec.md §1
// carves out of scope — monotonic time, sleep, critical sections,
// semaphores, task primitives, and logging — plus a concrete default
// implementation backed by the Go runtime.
//
// Logger keeps the Field/With/component-scoped shape of the teacher's
// hand-rolled kernel/utils/logger.go (itself built only because that
// package's WASM target cannot import arbitrary third-party logging
// libraries) but is backed by go.uber.org/zap, which the teacher's own
// go.mod already carries transitively via go.uber.org/fx.
package platform

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Field is a structured logging key/value pair, mirroring the teacher's
// utils.Field shape so every call site reads identically to the hand
// rolled version it replaces.
type Field = zapcore.Field

func String(key, value string) Field  { return zap.String(key, value) }
func Int(key string, value int) Field { return zap.Int(key, value) }
func Uint64(key string, value uint64) Field {
	return zap.Uint64(key, value)
}
func Bool(key string, value bool) Field { return zap.Bool(key, value) }
func Err(err error) Field               { return zap.Error(err) }
func Any(key string, value interface{}) Field {
	return zap.Any(key, value)
}
func Duration(key string, d interface{ String() string }) Field {
	return zap.String(key, d.String())
}

// Logger is the structured, component-scoped logging seam every
// subsystem receives at construction.
type Logger struct {
	z *zap.Logger
}

// NewLogger wraps an existing *zap.Logger.
func NewLogger(z *zap.Logger) *Logger {
	if z == nil {
		z, _ = zap.NewDevelopment()
	}
	return &Logger{z: z}
}

// NewNopLogger returns a Logger that discards everything, for tests and
// components that were not handed an explicit Logger.
func NewNopLogger() *Logger {
	return &Logger{z: zap.NewNop()}
}

// With returns a child logger scoped to component, exactly the teacher's
// Logger.With(component) composition pattern (kernel.Kernel building
// per-subsystem loggers for its supervisor/meshCoordinator children).
func (l *Logger) With(component string, fields ...Field) *Logger {
	return &Logger{z: l.z.With(append([]Field{String("component", component)}, fields...)...)}
}

func (l *Logger) Debug(msg string, fields ...Field) { l.z.Debug(msg, fields...) }
func (l *Logger) Info(msg string, fields ...Field)  { l.z.Info(msg, fields...) }
func (l *Logger) Warn(msg string, fields ...Field)  { l.z.Warn(msg, fields...) }
func (l *Logger) Error(msg string, fields ...Field) { l.z.Error(msg, fields...) }

// Sync flushes any buffered log entries.
func (l *Logger) Sync() error { return l.z.Sync() }
