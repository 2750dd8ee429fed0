// Package logger builds the structured logger used by the bridge.
package logger

import (
	"fmt"
	"os"

	"github.com/go-logr/logr"
	"github.com/go-logr/zapr"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New creates a logr.Logger backed by zap writing human readable output to stderr.
// stdout is reserved for the MCP stdio transport. The returned function flushes
// buffered entries and should be deferred by the caller.
func New(name string, level string) (logr.Logger, func(), error) {
	zapLevel, err := zapcore.ParseLevel(level)
	if err != nil {
		return logr.Discard(), func() {}, fmt.Errorf("invalid log level %q: %w", level, err)
	}

	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	consoleEncoder := zapcore.NewConsoleEncoder(encoderConfig)

	core := zapcore.NewCore(consoleEncoder, zapcore.Lock(os.Stderr), zap.NewAtomicLevelAt(zapLevel))
	zapLogger := zap.New(core).Named(name)

	flush := func() {
		_ = zapLogger.Sync() // Best effort
	}
	return zapr.NewLogger(zapLogger), flush, nil
}

// OrDiscard returns log, or a discarding logger when log has no sink
func OrDiscard(log logr.Logger) logr.Logger {
	if log.GetSink() == nil {
		return logr.Discard()
	}
	return log
}
