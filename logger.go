package zkmem

import (
	"log"

	"go.uber.org/zap"
)

type Logger interface {
	Infof(format string, args ...any)
	Warnf(format string, args ...any)
}

type defaultLoggerImpl struct {
}

func (*defaultLoggerImpl) Infof(format string, args ...any) {
	log.Printf("[INFO] [zkmem] "+format, args...)
}

func (*defaultLoggerImpl) Warnf(format string, args ...any) {
	log.Printf("[WARN] [zkmem] "+format, args...)
}

type zapLoggerImpl struct {
	sugar *zap.SugaredLogger
}

// NewZapLogger adapts a zap logger to the Logger interface,
// for use with WithLogger.
func NewZapLogger(l *zap.Logger) Logger {
	return &zapLoggerImpl{
		sugar: l.Sugar(),
	}
}

func (l *zapLoggerImpl) Infof(format string, args ...any) {
	l.sugar.Infof(format, args...)
}

func (l *zapLoggerImpl) Warnf(format string, args ...any) {
	l.sugar.Warnf(format, args...)
}
