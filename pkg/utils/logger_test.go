package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestNewLogger(t *testing.T) {
	t.Run("debug mode logs at debug level", func(t *testing.T) {
		logger, err := NewLogger(true)
		require.NoError(t, err)
		assert.True(t, logger.Core().Enabled(zapcore.DebugLevel))
		_ = logger.Sync()
	})

	t.Run("production mode logs at info level", func(t *testing.T) {
		logger, err := NewLogger(false)
		require.NoError(t, err)
		assert.False(t, logger.Core().Enabled(zapcore.DebugLevel))
		assert.True(t, logger.Core().Enabled(zapcore.InfoLevel))
		_ = logger.Sync()
	})
}
