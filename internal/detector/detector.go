package detector

import (
	"time"

	"gocv.io/x/gocv"
)

// Detector defines the interface for hand detection backends.
type Detector interface {
	// Detect analyzes an RGB video frame and returns detected hand landmarks
	// with coordinates normalized to the frame size.
	// Returns an empty slice if no hands are detected.
	Detect(frame *gocv.Mat) ([]HandLandmarks, error)

	// Close releases any resources held by the detector.
	Close() error
}

// Config holds configuration options for hand detection.
type Config struct {
	// ModelPath is the hand landmarker model bundle passed to the backend.
	ModelPath string

	// ScriptPath overrides the location of the MediaPipe service script.
	ScriptPath string

	// PythonPath overrides the interpreter used to run the service script.
	PythonPath string

	// MaxHands is the maximum number of hands to detect (default: 2).
	MaxHands int

	// MinConfidence is the minimum detection confidence threshold (0.0-1.0).
	MinConfidence float64

	// MinPresenceConf is the minimum hand presence threshold (0.0-1.0).
	MinPresenceConf float64

	// MinTrackingConf is the minimum tracking confidence threshold (0.0-1.0).
	MinTrackingConf float64

	// IdleTimeout stops the backend process after this long without frames.
	IdleTimeout time.Duration
}

// DefaultConfig returns a Config with sensible default values.
func DefaultConfig() Config {
	return Config{
		ModelPath:       "hand_landmarker.task",
		MaxHands:        2,
		MinConfidence:   0.5,
		MinPresenceConf: 0.5,
		MinTrackingConf: 0.5,
		IdleTimeout:     30 * time.Second,
	}
}
