package zap

import (
	"fmt"
	"strings"

	"github.com/core-tools/hsu-procdesc-go/pkg/logging"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// ZapLogger is a sprintf-style logger backed by a sugared zap logger
type ZapLogger struct {
	sugar *zap.SugaredLogger
}

// ParseLevel maps "debug", "info", "warn" and "error" to zap levels
func ParseLevel(level string) (zapcore.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return zapcore.DebugLevel, nil
	case "", "info":
		return zapcore.InfoLevel, nil
	case "warn", "warning":
		return zapcore.WarnLevel, nil
	case "error":
		return zapcore.ErrorLevel, nil
	default:
		return zapcore.InfoLevel, fmt.Errorf("unsupported log level: %s", level)
	}
}

// NewZapLogger builds a console logger writing to stderr
func NewZapLogger(level string) (*ZapLogger, error) {
	zapLevel, err := ParseLevel(level)
	if err != nil {
		return nil, err
	}

	config := zap.NewDevelopmentConfig()
	config.Level = zap.NewAtomicLevelAt(zapLevel)
	config.DisableStacktrace = true
	config.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder

	base, err := config.Build(zap.AddCallerSkip(3))
	if err != nil {
		return nil, fmt.Errorf("failed to build zap logger: %w", err)
	}

	return NewZapLoggerFrom(base), nil
}

// NewZapLoggerFrom wraps an existing zap logger, mostly for tests with zaptest/observer
func NewZapLoggerFrom(base *zap.Logger) *ZapLogger {
	return &ZapLogger{sugar: base.Sugar()}
}

func (l *ZapLogger) Debugf(format string, args ...interface{}) {
	l.sugar.Debugf(format, args...)
}

func (l *ZapLogger) Infof(format string, args ...interface{}) {
	l.sugar.Infof(format, args...)
}

func (l *ZapLogger) Warnf(format string, args ...interface{}) {
	l.sugar.Warnf(format, args...)
}

func (l *ZapLogger) Errorf(format string, args ...interface{}) {
	l.sugar.Errorf(format, args...)
}

func (l *ZapLogger) Sync() error {
	return l.sugar.Sync()
}

// LogFuncs exposes the backend in the shape logging.NewLogger expects
func (l *ZapLogger) LogFuncs() logging.LogFuncs {
	return logging.LogFuncs{
		Debugf: l.Debugf,
		Infof:  l.Infof,
		Warnf:  l.Warnf,
		Errorf: l.Errorf,
	}
}
