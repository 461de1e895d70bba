package detector

import (
	"fmt"

	"gocv.io/x/gocv"
)

// HandsDetector turns a landmark backend into per-frame instances with pixel
// coordinates plus an annotated copy of the frame.
type HandsDetector struct {
	backend Detector
}

// NewHandsDetector wraps a landmark backend.
func NewHandsDetector(backend Detector) *HandsDetector {
	return &HandsDetector{backend: backend}
}

// Detect runs the backend on an RGB frame. It returns one Instance per hand,
// never nil, and an annotated clone of the frame that the caller must close.
// The input frame is not modified.
func (d *HandsDetector) Detect(frame gocv.Mat) ([]Instance, gocv.Mat, error) {
	hands, err := d.backend.Detect(&frame)
	if err != nil {
		return nil, gocv.Mat{}, fmt.Errorf("detect landmarks: %w", err)
	}

	w, h := frame.Cols(), frame.Rows()
	instances := make([]Instance, 0, len(hands))
	for i := range hands {
		instances = append(instances, hands[i].Instance(w, h))
	}

	annotated := frame.Clone()
	Annotate(&annotated, hands)

	return instances, annotated, nil
}

// Close closes the backend.
func (d *HandsDetector) Close() error {
	return d.backend.Close()
}
