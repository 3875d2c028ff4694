package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNewLogger(t *testing.T) {
	for _, mode := range []string{ModeDev, ModeProd} {
		log, err := NewLogger("warn", mode)
		require.NoError(t, err)
		assert.False(t, log.Core().Enabled(zap.InfoLevel))
		assert.True(t, log.Core().Enabled(zap.ErrorLevel))
	}
}

func TestNewLogger_InvalidLevel(t *testing.T) {
	_, err := NewLogger("verbose", ModeProd)
	assert.Error(t, err)
}
