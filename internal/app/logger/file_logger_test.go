package logger_test

import (
	"fabtracker/internal/app/logger"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestPrintlnSeparatesOperands(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	log := logger.NewFromZap(zap.New(core))

	log.Println("Watching", 3, "seller(s)")
	log.Warn("Stale lock", "guild:1")
	log.Error("Unable to fetch")

	entries := logs.AllUntimed()

	assert.Len(t, entries, 3)
	assert.Equal(t, "Watching 3 seller(s)", entries[0].Message)
	assert.Equal(t, zapcore.WarnLevel, entries[1].Level)
	assert.Equal(t, "Stale lock guild:1", entries[1].Message)
	assert.Equal(t, zapcore.ErrorLevel, entries[2].Level)
}

func TestLoggersSatisfyInterface(t *testing.T) {
	var _ logger.LoggerInterface = logger.NewTestLogger(t)
	var _ logger.LoggerInterface = logger.NewNopLogger()
}
