package app

import (
	"github.com/ayusman/palmtrace/internal/config"
	"github.com/ayusman/palmtrace/internal/detector"
	"github.com/ayusman/palmtrace/internal/logger"
)

// newBackend builds the configured landmark backend. A MediaPipe backend
// that cannot be set up falls back to the mock detector, which reports no
// hands.
func newBackend(cfg config.DetectorConfig, log *logger.Logger) (detector.Detector, error) {
	switch cfg.Backend {
	case "remote":
		d, err := detector.NewRemoteDetector(detector.RemoteConfig{
			URL:      cfg.RemoteURL,
			Timeout:  cfg.RemoteTimeout,
			Retries:  cfg.RemoteRetries,
			MaxHands: cfg.MaxHands,
		})
		if err != nil {
			return nil, err
		}
		log.Info("using remote hand detection", "url", cfg.RemoteURL)
		return d, nil

	case "mock":
		log.Warn("using mock hand detection")
		return detector.NewMockDetector(), nil
	}

	d, err := detector.NewMediaPipeDetector(detector.Config{
		ModelPath:       cfg.ModelPath,
		ScriptPath:      cfg.ScriptPath,
		PythonPath:      cfg.PythonPath,
		MaxHands:        cfg.MaxHands,
		MinConfidence:   cfg.MinDetectionConfidence,
		MinPresenceConf: cfg.MinPresenceConfidence,
		MinTrackingConf: cfg.MinTrackingConfidence,
		IdleTimeout:     cfg.IdleTimeout,
	})
	if err != nil {
		log.Warn("MediaPipe not available, using mock detector", "error", err)
		return detector.NewMockDetector(), nil
	}
	log.Info("using MediaPipe hand detection")
	return d, nil
}
