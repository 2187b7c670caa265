package logger

import (
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
)

// Logger writing to test output.
func NewTestLogger(t testing.TB) FileLogger {
	return NewFromZap(zaptest.NewLogger(t))
}

// Logger discarding everything.
func NewNopLogger() FileLogger {
	return NewFromZap(zap.NewNop())
}
