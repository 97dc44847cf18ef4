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
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/xkilldash9x/inputpipe/internal/config"
)

func initBuffered(t *testing.T, cfg config.LoggerConfig) *bytes.Buffer {
	t.Helper()
	ResetForTest()
	t.Cleanup(ResetForTest)
	var buf bytes.Buffer
	Initialize(cfg, zapcore.AddSync(&buf))
	return &buf
}

func TestInitialize(t *testing.T) {
	t.Run("console output is colorized", func(t *testing.T) {
		buf := initBuffered(t, config.LoggerConfig{
			Level:       "debug",
			Format:      "console",
			ServiceName: "inputpipe",
			Colors:      config.ColorConfig{Info: "green"},
		})
		GetLogger().Named("input_router").Info("Touch forwarding resumed after ack timeout.")
		Sync()

		out := buf.String()
		assert.Contains(t, out, colorGreen+"INFO"+colorReset)
		assert.Contains(t, out, "inputpipe.input_router.")
		assert.Contains(t, out, "Touch forwarding resumed after ack timeout.")
	})

	t.Run("json output is structured", func(t *testing.T) {
		buf := initBuffered(t, config.LoggerConfig{Level: "info", Format: "json", ServiceName: "inputpipe"})
		GetLogger().Warn("Dropping input ack.", zap.String("type", "touchEnd"))
		Sync()

		var entry map[string]any
		require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
		assert.Equal(t, "WARN", entry["level"])
		assert.Equal(t, "inputpipe", entry["logger"])
		assert.Equal(t, "Dropping input ack.", entry["msg"])
		assert.Equal(t, "touchEnd", entry["type"])
	})

	t.Run("a log file gets a json copy", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "inputpipe.log")
		initBuffered(t, config.LoggerConfig{Level: "debug", Format: "console", LogFile: path, MaxSize: 1})
		GetLogger().Error("Synthetic gesture ack rejected.")
		Sync()

		content, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Contains(t, string(content), `"msg":"Synthetic gesture ack rejected."`)
	})

	t.Run("an unknown level falls back to info", func(t *testing.T) {
		buf := initBuffered(t, config.LoggerConfig{Level: "chatty", Format: "json"})
		GetLogger().Debug("hidden")
		GetLogger().Info("shown")
		Sync()
		assert.NotContains(t, buf.String(), "hidden")
		assert.Contains(t, buf.String(), "shown")
	})

	t.Run("only the first call takes effect", func(t *testing.T) {
		buf := initBuffered(t, config.LoggerConfig{Level: "info", Format: "json", ServiceName: "first"})
		first := GetLogger()
		Initialize(config.LoggerConfig{Level: "debug", ServiceName: "second"}, zapcore.AddSync(&bytes.Buffer{}))
		assert.Same(t, first, GetLogger())

		GetLogger().Info("test")
		Sync()
		assert.Contains(t, buf.String(), "first")
		assert.NotContains(t, buf.String(), "second")
	})
}

func TestSetLevel(t *testing.T) {
	buf := initBuffered(t, config.LoggerConfig{Level: "info", Format: "json"})
	GetLogger().Debug("before")
	require.NoError(t, SetLevel("debug"))
	GetLogger().Debug("after")
	Sync()

	assert.NotContains(t, buf.String(), "before")
	assert.Contains(t, buf.String(), "after")
	assert.Error(t, SetLevel("loud"))
}

func TestNewLoggerIsIndependent(t *testing.T) {
	ResetForTest()
	var buf bytes.Buffer
	l := NewLogger(config.LoggerConfig{Format: "json", ServiceName: "replay"}, zapcore.AddSync(&buf), zap.DebugLevel)
	l.Debug("standalone")
	require.NoError(t, l.Sync())
	assert.Contains(t, buf.String(), `"logger":"replay"`)
	assert.Nil(t, globalLogger.Load(), "building a logger does not install it")
}

func TestGetLogger(t *testing.T) {
	t.Run("falls back before initialization", func(t *testing.T) {
		ResetForTest()
		assert.NotNil(t, GetLogger())
	})

	t.Run("returns the installed logger", func(t *testing.T) {
		initBuffered(t, config.LoggerConfig{Level: "info"})
		assert.Same(t, globalLogger.Load(), GetLogger())
	})
}
