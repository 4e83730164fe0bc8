// Package logger defines the minimal structured logging contract the
// permission engine emits through. Implementations accept alternating
// key/value pairs, which keeps call sites terse and mocks trivial.
package logger

type Logger interface {
	Debug(msg string, keyvals ...any)
	Info(msg string, keyvals ...any)
	Error(msg string, keyvals ...any)
}

// NullLogger discards everything; the default for tests.
type NullLogger struct{}

func NewNullLogger() *NullLogger { return &NullLogger{} }

func (*NullLogger) Debug(msg string, keyvals ...any) {}
func (*NullLogger) Info(msg string, keyvals ...any)  {}
func (*NullLogger) Error(msg string, keyvals ...any) {}
