// internal/observability/logger_test.go
package observability

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xkilldash9x/kickstart-cli/internal/config"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// bufferSink adapts a bytes.Buffer to zapcore.WriteSyncer.
type bufferSink struct{ bytes.Buffer }

func (b *bufferSink) Sync() error { return nil }

func initWithBuffer(t *testing.T, cfg config.LoggerConfig) *bufferSink {
	t.Helper()
	ResetForTest()
	t.Cleanup(ResetForTest)
	sink := &bufferSink{}
	Initialize(cfg, zapcore.AddSync(sink))
	return sink
}

func TestInitialize(t *testing.T) {
	t.Run("console logger colors the level", func(t *testing.T) {
		sink := initWithBuffer(t, config.LoggerConfig{
			Level:       "debug",
			Format:      "console",
			ServiceName: "kickstart",
			Colors:      config.ColorConfig{Info: "green"},
		})

		GetLogger().Named("install").Info("Step: Set up database")
		Sync()

		output := sink.String()
		assert.Contains(t, output, colorGreen+"INFO"+colorReset)
		assert.Contains(t, output, "kickstart.install.")
		assert.Contains(t, output, "Step: Set up database")
	})

	t.Run("json logger emits structured fields", func(t *testing.T) {
		sink := initWithBuffer(t, config.LoggerConfig{
			Level:       "info",
			Format:      "json",
			ServiceName: "kickstart",
		})

		GetLogger().Warn("navigation failed", zap.Int("status", 503))
		Sync()

		var entry map[string]interface{}
		require.NoError(t, json.Unmarshal(sink.Bytes(), &entry), "log output should be valid JSON")
		assert.Equal(t, "WARN", entry["level"])
		assert.Equal(t, "kickstart", entry["logger"])
		assert.Equal(t, "navigation failed", entry["msg"])
		assert.EqualValues(t, 503, entry["status"])
	})

	t.Run("level filters debug output", func(t *testing.T) {
		sink := initWithBuffer(t, config.LoggerConfig{Level: "info", Format: "json"})

		GetLogger().Debug("hidden")
		Sync()
		assert.Empty(t, sink.String())
	})

	t.Run("invalid level falls back to info", func(t *testing.T) {
		sink := initWithBuffer(t, config.LoggerConfig{Level: "loud", Format: "json"})

		GetLogger().Debug("hidden")
		GetLogger().Info("shown")
		Sync()
		assert.NotContains(t, sink.String(), "hidden")
		assert.Contains(t, sink.String(), "shown")
	})

	t.Run("writes to a rotated log file", func(t *testing.T) {
		logFile := filepath.Join(t.TempDir(), "kickstart.log")
		initWithBuffer(t, config.LoggerConfig{
			Level:   "debug",
			Format:  "console",
			LogFile: logFile,
			MaxSize: 1,
		})

		GetLogger().Error("this should go to the file")
		Sync()

		content, err := os.ReadFile(logFile)
		require.NoError(t, err)
		assert.Contains(t, string(content), "this should go to the file")
	})

	t.Run("only initializes once", func(t *testing.T) {
		sink := initWithBuffer(t, config.LoggerConfig{Level: "info", Format: "json", ServiceName: "first"})
		first := GetLogger()

		Initialize(config.LoggerConfig{Level: "debug", ServiceName: "second"}, zapcore.AddSync(&bufferSink{}))
		assert.Same(t, first, GetLogger())

		GetLogger().Info("test")
		Sync()
		assert.Contains(t, sink.String(), `"logger":"first"`)
	})
}

func TestGetLoggerFallback(t *testing.T) {
	ResetForTest()
	logger := GetLogger()
	require.NotNil(t, logger)
	assert.Nil(t, globalLogger.Load(), "the fallback must not be stored globally")
}
