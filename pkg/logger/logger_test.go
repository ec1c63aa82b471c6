package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestLevelFilter(t *testing.T) {
	cl := NewLoggerWithOptions([]string{"warn", "error"}, nil)

	assert.True(t, cl.enabled(zapcore.WarnLevel))
	assert.True(t, cl.enabled(zapcore.ErrorLevel))
	assert.False(t, cl.enabled(zapcore.InfoLevel))
	assert.False(t, cl.enabled(zapcore.DebugLevel))
}

func TestAllLevels(t *testing.T) {
	cl := NewLoggerWithOptions([]string{"all"}, &Options{})

	for _, lvl := range []zapcore.Level{zapcore.DebugLevel, zapcore.InfoLevel, zapcore.WarnLevel, zapcore.ErrorLevel} {
		assert.True(t, cl.enabled(lvl), lvl.String())
	}
}

func TestWithFields(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	cl := NewWithCore(core).With(zap.String("component", "scanner"))

	cl.Info("scanned", zap.Int32("height", 423001))

	entries := logs.All()
	require.Len(t, entries, 1)
	assert.Equal(t, "scanned", entries[0].Message)
	ctx := entries[0].ContextMap()
	assert.Equal(t, "scanner", ctx["component"])
	assert.EqualValues(t, 423001, ctx["height"])
}

func TestNop(t *testing.T) {
	cl := NewNop()
	cl.Error("ignored")
	assert.NoError(t, cl.Sync())
}
