package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "palmtrace.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, filepath.Join("./data", "uploads"), cfg.Storage.UploadDir)
	assert.Equal(t, filepath.Join("./data", "results"), cfg.Storage.ResultsDir)
	assert.Equal(t, "mediapipe", cfg.Detector.Backend)
	assert.Equal(t, 2, cfg.Detector.MaxHands)
	assert.Equal(t, 0.5, cfg.Detector.MinDetectionConfidence)
	assert.Equal(t, "h264", cfg.Encoder.Codec)
	assert.Equal(t, 5000000, cfg.Encoder.BitRate)
	assert.Equal(t, "yuv420p", cfg.Encoder.PixelFormat)
	assert.True(t, cfg.Metrics.Enabled)
	assert.Equal(t, filepath.Join("./data", "hooks"), cfg.Hooks.Dir)
	assert.Equal(t, 10*time.Second, cfg.Hooks.Timeout)
	assert.NoError(t, cfg.Validate())
}

func TestLoad_FromFile(t *testing.T) {
	path := writeConfig(t, `
server:
  addr: ":9090"
storage:
  data_dir: /tmp/palmtrace
detector:
  backend: mock
  max_hands: 1
  idle_timeout: 1m
encoder:
  codec: hevc
  bit_rate: 2000000
metrics:
  enabled: false
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.Server.Addr)
	assert.Equal(t, "/tmp/palmtrace/uploads", cfg.Storage.UploadDir)
	assert.Equal(t, "/tmp/palmtrace/palmtrace.db", cfg.Storage.Database)
	assert.Equal(t, "mock", cfg.Detector.Backend)
	assert.Equal(t, 1, cfg.Detector.MaxHands)
	assert.Equal(t, time.Minute, cfg.Detector.IdleTimeout)
	assert.Equal(t, "hevc", cfg.Encoder.Codec)
	assert.Equal(t, 2000000, cfg.Encoder.BitRate)
	assert.False(t, cfg.Metrics.Enabled)
}

func TestLoad_EnvOverrides(t *testing.T) {
	path := writeConfig(t, "server:\n  addr: \":9090\"\n")
	t.Setenv("PALMTRACE_ADDR", ":7070")
	t.Setenv("PALMTRACE_DETECTOR_BACKEND", "mock")
	t.Setenv("PALMTRACE_MAX_HANDS", "4")
	t.Setenv("PALMTRACE_TRAY", "true")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":7070", cfg.Server.Addr)
	assert.Equal(t, "mock", cfg.Detector.Backend)
	assert.Equal(t, 4, cfg.Detector.MaxHands)
	assert.True(t, cfg.Tray.Enabled)
}

func TestLoad_InvalidEnvNumber(t *testing.T) {
	path := writeConfig(t, "")
	t.Setenv("PALMTRACE_BIT_RATE", "fast")

	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestLoad_BadYAML(t *testing.T) {
	path := writeConfig(t, "server: [unterminated")
	_, err := Load(path)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{name: "defaults", mutate: func(*Config) {}},
		{name: "unknown detector", mutate: func(c *Config) { c.Detector.Backend = "yolo" }, wantErr: true},
		{name: "remote without url", mutate: func(c *Config) { c.Detector.Backend = "remote" }, wantErr: true},
		{name: "remote with url", mutate: func(c *Config) {
			c.Detector.Backend = "remote"
			c.Detector.RemoteURL = "http://localhost:9000"
		}},
		{name: "confidence above one", mutate: func(c *Config) { c.Detector.MinTrackingConfidence = 1.5 }, wantErr: true},
		{name: "unknown codec", mutate: func(c *Config) { c.Encoder.Codec = "vp9" }, wantErr: true},
		{name: "unknown encoder", mutate: func(c *Config) { c.Encoder.Backend = "gstreamer" }, wantErr: true},
		{name: "relative metrics path", mutate: func(c *Config) { c.Metrics.Path = "metrics" }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestEnsureDirs(t *testing.T) {
	root := t.TempDir()
	cfg := Default()
	cfg.Storage.DataDir = root
	cfg.Storage.UploadDir = filepath.Join(root, "in")
	cfg.Storage.ResultsDir = filepath.Join(root, "out")
	cfg.Storage.Database = filepath.Join(root, "db", "palmtrace.db")

	require.NoError(t, cfg.EnsureDirs())

	for _, dir := range []string{"in", "out", "db"} {
		info, err := os.Stat(filepath.Join(root, dir))
		require.NoError(t, err)
		assert.True(t, info.IsDir())
	}
}
