package logger

import (
	"fabtracker/internal/app/helpers"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type LoggerInterface interface {
	Println(message ...any)
	Warn(message ...any)
	Error(message ...any)
}

type FileLogger struct {
	sugar *zap.SugaredLogger
}

// Create logger writing to logs/<fileName> and, unless silent, to stdout.
func NewFileLogger(fileName string, isSilent bool, timezone string) (FileLogger, error) {
	rootDir, err := helpers.GetRootDir()
	if err != nil {
		return FileLogger{}, fmt.Errorf("unable to initialize logger: %w", err)
	}

	if !strings.HasSuffix(fileName, ".log") {
		fileName = helpers.ConcatStrings(fileName, ".log")
	}

	logsDir := filepath.Join(rootDir, "logs")
	if err := os.MkdirAll(logsDir, 0755); err != nil {
		return FileLogger{}, err
	}

	logFile, err := os.OpenFile(filepath.Join(logsDir, fileName), os.O_APPEND|os.O_WRONLY|os.O_CREATE, 0644)
	if err != nil {
		return FileLogger{}, err
	}

	encoder := newEncoder(helpers.LoadLocation(timezone))

	cores := []zapcore.Core{
		zapcore.NewCore(encoder, zapcore.AddSync(logFile), zapcore.InfoLevel),
	}

	if !isSilent {
		cores = append(cores, zapcore.NewCore(encoder, zapcore.Lock(os.Stdout), zapcore.InfoLevel))
	}

	return FileLogger{sugar: zap.New(zapcore.NewTee(cores...)).Sugar()}, nil
}

// Wrap existing zap logger.
func NewFromZap(logger *zap.Logger) FileLogger {
	return FileLogger{sugar: logger.Sugar()}
}

func (l FileLogger) Println(message ...any) {
	l.sugar.Infoln(message...)
}

func (l FileLogger) Warn(message ...any) {
	l.sugar.Warnln(message...)
}

func (l FileLogger) Error(message ...any) {
	l.sugar.Errorln(message...)
}

// Flush buffered entries.
func (l FileLogger) Sync() error {
	return l.sugar.Sync()
}

// Console encoder with "[2006-01-02 15:04:05]" timestamps in given location.
func newEncoder(location *time.Location) zapcore.Encoder {
	config := zap.NewDevelopmentEncoderConfig()
	config.EncodeTime = func(value time.Time, encoder zapcore.PrimitiveArrayEncoder) {
		encoder.AppendString(helpers.ConcatStrings("[", value.In(location).Format(helpers.DateDatabase), "]"))
	}
	config.EncodeCaller = nil
	config.CallerKey = ""

	return zapcore.NewConsoleEncoder(config)
}
