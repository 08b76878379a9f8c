package logger

import (
	"context"
	"os"

	"github.com/mattn/go-isatty"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger is a thin wrapper that holds both the raw zap.Logger and its
// "Sugared" counterpart for convenience.
type Logger struct {
	*zap.Logger
	*zap.SugaredLogger
}

// New creates a new logger based on the provided log level string.
// Accepted levels (case-insensitive): "debug", "info", "warn", "error".
//
// Output is JSON on stdout with ISO-8601 timestamps and capital levels.
// When stdout is a terminal the console encoder is used instead, which is
// easier to read while watching the monitor loop.
func New(level string) (*Logger, error) {
	var zapLevel zapcore.Level
	if err := zapLevel.UnmarshalText([]byte(level)); err != nil {
		return nil, err
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "ts"
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	encCfg.EncodeLevel = zapcore.CapitalLevelEncoder

	var enc zapcore.Encoder
	if isatty.IsTerminal(os.Stdout.Fd()) {
		enc = zapcore.NewConsoleEncoder(encCfg)
	} else {
		enc = zapcore.NewJSONEncoder(encCfg)
	}

	core := zapcore.NewCore(enc, zapcore.Lock(zapcore.AddSync(os.Stdout)), zapLevel)
	zapLogger := zap.New(core, zap.AddCaller())

	return &Logger{
		Logger:        zapLogger,
		SugaredLogger: zapLogger.Sugar(),
	}, nil
}

// FromContext extracts a *zap.Logger that may have been stored in the context.
// If none is present, the fallback logger is returned. A nil fallback yields
// a no-op logger.
func FromContext(ctx context.Context, fallback *zap.Logger) *zap.Logger {
	if l, ok := ctx.Value(loggerKey{}).(*zap.Logger); ok && l != nil {
		return l
	}
	if fallback == nil {
		return zap.NewNop()
	}
	return fallback
}

// WithContext returns a new context that carries the supplied logger.
// The optimizer uses it to hand the run-scoped logger to phase bodies.
func WithContext(ctx context.Context, l *zap.Logger) context.Context {
	return context.WithValue(ctx, loggerKey{}, l)
}

// loggerKey is an unexported type to avoid key collisions in context.
type loggerKey struct{}

// WithRunID returns a copy of the logger with an optimization_id field.
func WithRunID(l *zap.Logger, runID string) *zap.Logger {
	return l.With(zap.String("optimization_id", runID))
}

// Flush forces any buffered log entries to be written.
// Call this from `main` just before the program exits.
func Flush(l *zap.Logger) {
	// Sync on a console fd can fail with EINVAL/ENOTTY; that is harmless.
	_ = l.Sync()
}
