// internal/logging/logger_test.go
package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestLoggerConfig_Validate(t *testing.T) {
	t.Run("valid config passes", func(t *testing.T) {
		config := &LoggerConfig{
			Level:  LevelInfo,
			Format: FormatJSON,
		}
		err := config.Validate()
		assert.NoError(t, err)
	})

	t.Run("rejects invalid level", func(t *testing.T) {
		config := &LoggerConfig{Level: "invalid"}
		err := config.Validate()
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "level")
	})

	t.Run("rejects invalid format", func(t *testing.T) {
		config := &LoggerConfig{Format: "xml"}
		err := config.Validate()
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "format")
	})

	t.Run("applies defaults", func(t *testing.T) {
		config := &LoggerConfig{}
		config.ApplyDefaults()
		assert.Equal(t, LevelInfo, config.Level)
		assert.Equal(t, FormatJSON, config.Format)
		assert.NotNil(t, config.Output)
	})
}

func TestNewLogger(t *testing.T) {
	t.Run("creates logger", func(t *testing.T) {
		logger, err := NewLogger(nil)
		require.NoError(t, err)
		assert.NotNil(t, logger)
	})

	t.Run("rejects invalid config", func(t *testing.T) {
		_, err := NewLogger(&LoggerConfig{Level: "loud"})
		assert.Error(t, err)
	})
}

func TestLogger_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewLogger(&LoggerConfig{
		Level:  LevelWarn,
		Output: &buf,
	})
	require.NoError(t, err)

	t.Run("filters below threshold", func(t *testing.T) {
		buf.Reset()
		logger.Debug("should not appear")
		logger.Info("should not appear")
		assert.Empty(t, buf.String())
	})

	t.Run("logs at and above threshold", func(t *testing.T) {
		buf.Reset()
		logger.Warn("warning")
		logger.Error("failure")
		assert.Contains(t, buf.String(), "warning")
		assert.Contains(t, buf.String(), "failure")
	})
}

func TestLogger_JSONFields(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewLogger(&LoggerConfig{Format: FormatJSON, Output: &buf})
	require.NoError(t, err)

	logger.With(zap.String("user_id", "123")).Info("user logged in")

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "info", entry["level"])
	assert.Equal(t, "user logged in", entry["msg"])
	assert.Equal(t, "123", entry["user_id"])
}

func TestLogger_TextFormat(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewLogger(&LoggerConfig{Format: FormatText, Output: &buf})
	require.NoError(t, err)

	logger.Info("hello")
	assert.Contains(t, buf.String(), "INFO")
	assert.Contains(t, buf.String(), "hello")
}
