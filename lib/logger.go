package lib

import "testing"

type Logger interface {
	Print(a ...any)
	Println(a ...any)
	Printf(format string, a ...any)
}

// NoLog discards everything.
type NoLog struct{}

func (l *NoLog) Print(a ...any)                 {}
func (l *NoLog) Println(a ...any)               {}
func (l *NoLog) Printf(format string, a ...any) {}

// TestLogger routes debug output to the test log.
type TestLogger struct {
	t      *testing.T
	prefix string
}

func NewTestLogger(t *testing.T, prefix string) *TestLogger {
	return &TestLogger{t: t, prefix: prefix}
}

func (l *TestLogger) Print(a ...any) {
	l.t.Helper()
	if l.prefix != "" {
		a = append([]any{l.prefix + ":"}, a...)
	}
	l.t.Log(a...)
}

func (l *TestLogger) Println(a ...any) {
	l.t.Helper()
	l.Print(a...)
}

func (l *TestLogger) Printf(format string, a ...any) {
	l.t.Helper()
	if l.prefix != "" {
		format = l.prefix + ": " + format
	}
	l.t.Logf(format, a...)
}
