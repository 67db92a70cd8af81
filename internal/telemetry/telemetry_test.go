package telemetry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestFromEnvReadsLevelAndLogSQL(t *testing.T) {
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("LOG_SQL", "1")
	cfg := FromEnv()
	assert.Equal(t, "debug", cfg.Level)
	assert.True(t, cfg.LogSQL)
}

func TestFromEnvDefaultsLogSQLFalse(t *testing.T) {
	t.Setenv("LOG_SQL", "")
	cfg := FromEnv()
	assert.False(t, cfg.LogSQL)
}

func TestNewDefaultsToInfoLevel(t *testing.T) {
	logger, err := New(Config{})
	require.NoError(t, err)
	defer logger.Sync()
	assert.True(t, logger.Core().Enabled(zapcore.InfoLevel))
	assert.False(t, logger.Core().Enabled(zapcore.DebugLevel))
}

func TestNewRejectsInvalidLevel(t *testing.T) {
	_, err := New(Config{Level: "not-a-level"})
	assert.Error(t, err)
}

func TestSQLLoggerNilReceiverIsNoop(t *testing.T) {
	var l *SQLLogger
	assert.NotPanics(t, func() { l.Statement("label", "SELECT 1") })
}

func TestSQLLoggerDisabledDoesNotPanic(t *testing.T) {
	logger, err := New(Config{})
	require.NoError(t, err)
	defer logger.Sync()
	l := NewSQLLogger(logger, false)
	assert.NotPanics(t, func() { l.Statement("label", "SELECT 1") })
}
