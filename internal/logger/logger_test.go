package logger

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestConvertFields(t *testing.T) {
	fields := convertFields("video", "clip.mp4", 42, "skipped", "error", errors.New("boom"), "dangling")

	require.Len(t, fields, 2)
	assert.Equal(t, "video", fields[0].Key)
	assert.Equal(t, "error", fields[1].Key)
	assert.Equal(t, zapcore.ErrorType, fields[1].Type)
}

func TestNew_WritesJSONToFile(t *testing.T) {
	out := filepath.Join(t.TempDir(), "palmtrace.log")

	log, err := New(Config{Level: "debug", Format: "json", Output: out})
	require.NoError(t, err)

	log.Info("run started", "run_id", "abc", "frames", 10)
	log.Sync()

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(data), `"run_id":"abc"`), "log output: %s", data)
	assert.True(t, strings.Contains(string(data), `"timestamp"`))
}

func TestNew_InvalidLevelFallsBackToInfo(t *testing.T) {
	log, err := New(Config{Level: "chatty", Format: "console"})
	require.NoError(t, err)
	assert.True(t, log.Core().Enabled(zapcore.InfoLevel))
	assert.False(t, log.Core().Enabled(zapcore.DebugLevel))
}

func TestNopLogger(t *testing.T) {
	log := NewNopLogger()
	log.With("k", "v").Warn("ignored", "error", errors.New("x"))
}
