package zkmem

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestZapLogger(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zapcore.InfoLevel)
	l := NewZapLogger(zap.New(core))

	l.Infof("processed %d requests", 42)
	l.Warnf("session %v", "expired")

	entries := logs.All()
	assert.Equal(t, 2, len(entries))
	assert.Equal(t, "processed 42 requests", entries[0].Message)
	assert.Equal(t, zapcore.InfoLevel, entries[0].Level)
	assert.Equal(t, "session expired", entries[1].Message)
	assert.Equal(t, zapcore.WarnLevel, entries[1].Level)
}
