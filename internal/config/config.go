// Package config loads the palmtrace configuration from YAML, .env files and
// PALMTRACE_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config represents the application configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Storage  StorageConfig  `yaml:"storage"`
	Detector DetectorConfig `yaml:"detector"`
	Encoder  EncoderConfig  `yaml:"encoder"`
	Log      LogConfig      `yaml:"log"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	Tray     TrayConfig     `yaml:"tray"`
	Hooks    HooksConfig    `yaml:"hooks"`
}

// ServerConfig contains HTTP server configuration.
type ServerConfig struct {
	Addr            string        `yaml:"addr"`
	StaticDir       string        `yaml:"static_dir"`
	MaxUploadMB     int64         `yaml:"max_upload_mb"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// StorageConfig contains on-disk locations.
type StorageConfig struct {
	DataDir    string `yaml:"data_dir"`
	UploadDir  string `yaml:"upload_dir"`
	ResultsDir string `yaml:"results_dir"`
	Database   string `yaml:"database"`
}

// DetectorConfig selects and tunes the hand landmark backend.
type DetectorConfig struct {
	Backend                string        `yaml:"backend"` // mediapipe, remote or mock
	ModelPath              string        `yaml:"model_path"`
	ScriptPath             string        `yaml:"script_path"`
	PythonPath             string        `yaml:"python_path"`
	MaxHands               int           `yaml:"max_hands"`
	MinDetectionConfidence float64       `yaml:"min_detection_confidence"`
	MinPresenceConfidence  float64       `yaml:"min_presence_confidence"`
	MinTrackingConfidence  float64       `yaml:"min_tracking_confidence"`
	IdleTimeout            time.Duration `yaml:"idle_timeout"`
	RemoteURL              string        `yaml:"remote_url"`
	RemoteTimeout          time.Duration `yaml:"remote_timeout"`
	RemoteRetries          int           `yaml:"remote_retries"`
}

// EncoderConfig describes how annotated videos are written.
type EncoderConfig struct {
	Backend     string `yaml:"backend"` // auto, ffmpeg or opencv
	FFmpegPath  string `yaml:"ffmpeg_path"`
	Codec       string `yaml:"codec"` // h264 or hevc
	BitRate     int    `yaml:"bit_rate"`
	PixelFormat string `yaml:"pixel_format"`
}

// LogConfig contains logging configuration.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// MetricsConfig contains Prometheus exposition settings.
type MetricsConfig struct {
	Enabled         bool          `yaml:"enabled"`
	Path            string        `yaml:"path"`
	ProcessInterval time.Duration `yaml:"process_interval"`
}

// TrayConfig toggles the system tray status icon.
type TrayConfig struct {
	Enabled bool   `yaml:"enabled"`
	OpenURL string `yaml:"open_url"`
}

// HooksConfig locates run completion hooks.
type HooksConfig struct {
	Dir     string        `yaml:"dir"`
	Timeout time.Duration `yaml:"timeout"`
}

// Default returns a Config with every default applied.
func Default() *Config {
	cfg := &Config{
		Metrics: MetricsConfig{Enabled: true},
	}
	cfg.setDefaults()
	return cfg
}

// Load reads the configuration file, applies .env and environment overrides,
// then fills defaults. An empty path falls back to the first existing default
// location; when none exists the defaults are used as is.
func Load(configPath string) (*Config, error) {
	// A missing .env file is fine; system environment still applies.
	_ = godotenv.Load()

	cfg := &Config{
		Metrics: MetricsConfig{Enabled: true},
	}

	if configPath == "" {
		configPath = os.Getenv("PALMTRACE_CONFIG")
	}
	if configPath == "" {
		configPath = defaultConfigPath()
	}

	if configPath != "" {
		data, err := os.ReadFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read configuration file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse configuration: %w", err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	cfg.setDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// defaultConfigPath returns the first config file found in common locations.
func defaultConfigPath() string {
	paths := []string{
		"./config/palmtrace.yaml",
		"./palmtrace.yaml",
	}
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".palmtrace", "config.yaml"))
	}

	for _, path := range paths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

func (c *Config) setDefaults() {
	if c.Server.Addr == "" {
		c.Server.Addr = ":8080"
	}
	if c.Server.MaxUploadMB <= 0 {
		c.Server.MaxUploadMB = 1024
	}
	if c.Server.ShutdownTimeout <= 0 {
		c.Server.ShutdownTimeout = 10 * time.Second
	}

	if c.Storage.DataDir == "" {
		c.Storage.DataDir = "./data"
	}
	if c.Storage.UploadDir == "" {
		c.Storage.UploadDir = filepath.Join(c.Storage.DataDir, "uploads")
	}
	if c.Storage.ResultsDir == "" {
		c.Storage.ResultsDir = filepath.Join(c.Storage.DataDir, "results")
	}
	if c.Storage.Database == "" {
		c.Storage.Database = filepath.Join(c.Storage.DataDir, "palmtrace.db")
	}

	if c.Detector.Backend == "" {
		c.Detector.Backend = "mediapipe"
	}
	if c.Detector.ModelPath == "" {
		c.Detector.ModelPath = "hand_landmarker.task"
	}
	if c.Detector.MaxHands <= 0 {
		c.Detector.MaxHands = 2
	}
	if c.Detector.MinDetectionConfidence == 0 {
		c.Detector.MinDetectionConfidence = 0.5
	}
	if c.Detector.MinPresenceConfidence == 0 {
		c.Detector.MinPresenceConfidence = 0.5
	}
	if c.Detector.MinTrackingConfidence == 0 {
		c.Detector.MinTrackingConfidence = 0.5
	}
	if c.Detector.IdleTimeout <= 0 {
		c.Detector.IdleTimeout = 30 * time.Second
	}
	if c.Detector.RemoteTimeout <= 0 {
		c.Detector.RemoteTimeout = 5 * time.Second
	}

	if c.Encoder.Backend == "" {
		c.Encoder.Backend = "auto"
	}
	if c.Encoder.FFmpegPath == "" {
		c.Encoder.FFmpegPath = "ffmpeg"
	}
	if c.Encoder.Codec == "" {
		c.Encoder.Codec = "h264"
	}
	if c.Encoder.BitRate <= 0 {
		c.Encoder.BitRate = 5000000
	}
	if c.Encoder.PixelFormat == "" {
		c.Encoder.PixelFormat = "yuv420p"
	}

	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "console"
	}
	if c.Log.Output == "" {
		c.Log.Output = "stdout"
	}

	if c.Hooks.Dir == "" {
		c.Hooks.Dir = filepath.Join(c.Storage.DataDir, "hooks")
	}
	if c.Hooks.Timeout <= 0 {
		c.Hooks.Timeout = 10 * time.Second
	}

	if c.Metrics.Path == "" {
		c.Metrics.Path = "/metrics"
	}
	if c.Metrics.ProcessInterval <= 0 {
		c.Metrics.ProcessInterval = 5 * time.Second
	}
}

// applyEnv overrides file values with PALMTRACE_* environment variables.
func (c *Config) applyEnv() error {
	strs := map[string]*string{
		"PALMTRACE_ADDR":             &c.Server.Addr,
		"PALMTRACE_STATIC_DIR":       &c.Server.StaticDir,
		"PALMTRACE_DATA_DIR":         &c.Storage.DataDir,
		"PALMTRACE_UPLOAD_DIR":       &c.Storage.UploadDir,
		"PALMTRACE_RESULTS_DIR":      &c.Storage.ResultsDir,
		"PALMTRACE_DATABASE":         &c.Storage.Database,
		"PALMTRACE_DETECTOR_BACKEND": &c.Detector.Backend,
		"PALMTRACE_MODEL_PATH":       &c.Detector.ModelPath,
		"PALMTRACE_DETECTOR_URL":     &c.Detector.RemoteURL,
		"PALMTRACE_ENCODER_BACKEND":  &c.Encoder.Backend,
		"PALMTRACE_FFMPEG_PATH":      &c.Encoder.FFmpegPath,
		"PALMTRACE_CODEC":            &c.Encoder.Codec,
		"PALMTRACE_LOG_LEVEL":        &c.Log.Level,
		"PALMTRACE_LOG_FORMAT":       &c.Log.Format,
		"PALMTRACE_HOOKS_DIR":        &c.Hooks.Dir,
	}
	for key, dst := range strs {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}

	if v := os.Getenv("PALMTRACE_MAX_HANDS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid PALMTRACE_MAX_HANDS %q: %w", v, err)
		}
		c.Detector.MaxHands = n
	}
	if v := os.Getenv("PALMTRACE_BIT_RATE"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid PALMTRACE_BIT_RATE %q: %w", v, err)
		}
		c.Encoder.BitRate = n
	}
	if v := os.Getenv("PALMTRACE_METRICS"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid PALMTRACE_METRICS %q: %w", v, err)
		}
		c.Metrics.Enabled = b
	}
	if v := os.Getenv("PALMTRACE_TRAY"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid PALMTRACE_TRAY %q: %w", v, err)
		}
		c.Tray.Enabled = b
	}
	return nil
}

// Validate reports configuration values that cannot work.
func (c *Config) Validate() error {
	var errs []error

	switch c.Detector.Backend {
	case "mediapipe", "mock":
	case "remote":
		if c.Detector.RemoteURL == "" {
			errs = append(errs, errors.New("detector.remote_url is required for the remote backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown detector.backend %q", c.Detector.Backend))
	}

	for name, v := range map[string]float64{
		"min_detection_confidence": c.Detector.MinDetectionConfidence,
		"min_presence_confidence":  c.Detector.MinPresenceConfidence,
		"min_tracking_confidence":  c.Detector.MinTrackingConfidence,
	} {
		if v < 0 || v > 1 {
			errs = append(errs, fmt.Errorf("detector.%s must be within [0, 1], got %v", name, v))
		}
	}

	switch c.Encoder.Backend {
	case "auto", "ffmpeg", "opencv":
	default:
		errs = append(errs, fmt.Errorf("unknown encoder.backend %q", c.Encoder.Backend))
	}
	switch strings.ToLower(c.Encoder.Codec) {
	case "h264", "hevc":
	default:
		errs = append(errs, fmt.Errorf("encoder.codec must be h264 or hevc, got %q", c.Encoder.Codec))
	}

	if !strings.HasPrefix(c.Metrics.Path, "/") {
		errs = append(errs, fmt.Errorf("metrics.path must start with '/', got %q", c.Metrics.Path))
	}

	return errors.Join(errs...)
}

// EnsureDirs creates the data, upload and results directories.
func (c *Config) EnsureDirs() error {
	for _, dir := range []string{c.Storage.DataDir, c.Storage.UploadDir, c.Storage.ResultsDir, filepath.Dir(c.Storage.Database)} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}
	return nil
}
