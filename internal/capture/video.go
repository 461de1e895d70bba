// Package capture decodes uploaded video files frame by frame using GoCV (OpenCV).
package capture

import (
	"errors"
	"fmt"
	"sync"

	"gocv.io/x/gocv"
)

// DefaultFPS is assumed when a container does not report a frame rate.
const DefaultFPS = 30.0

var (
	// ErrOpen is returned when a video file cannot be opened.
	ErrOpen = errors.New("video cannot be opened")

	// ErrNoFrames is returned when a video reports zero or fewer frames.
	ErrNoFrames = errors.New("video reports no frames")
)

// Info describes a decoded video stream as reported by its container.
type Info struct {
	FrameCount int     `json:"frame_count"`
	Width      int     `json:"width"`
	Height     int     `json:"height"`
	FPS        float64 `json:"fps"`
}

// Source yields decoded BGR frames in presentation order.
type Source interface {
	// Info returns the stream properties reported when the source was opened.
	Info() Info
	// Read decodes the next frame into frame. It returns false when no frame
	// could be decoded, which callers treat as end of stream.
	Read(frame *gocv.Mat) bool
	// Close releases the decoder. Calling Close more than once is safe.
	Close() error
}

// fileSource reads frames from a video file.
type fileSource struct {
	path    string
	capture *gocv.VideoCapture
	info    Info
	mu      sync.Mutex
}

// OpenFile opens a video file for decoding.
func OpenFile(path string) (Source, error) {
	vc, err := gocv.VideoCaptureFile(path)
	if err != nil {
		if vc != nil {
			vc.Close()
		}
		return nil, fmt.Errorf("%w: %s: %v", ErrOpen, path, err)
	}
	if !vc.IsOpened() {
		vc.Close()
		return nil, fmt.Errorf("%w: %s", ErrOpen, path)
	}

	info := Info{
		FrameCount: int(vc.Get(gocv.VideoCaptureFrameCount)),
		Width:      int(vc.Get(gocv.VideoCaptureFrameWidth)),
		Height:     int(vc.Get(gocv.VideoCaptureFrameHeight)),
		FPS:        vc.Get(gocv.VideoCaptureFPS),
	}
	if info.FPS <= 0 {
		info.FPS = DefaultFPS
	}

	return &fileSource{path: path, capture: vc, info: info}, nil
}

func (s *fileSource) Info() Info {
	return s.info
}

func (s *fileSource) Read(frame *gocv.Mat) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.capture == nil {
		return false
	}
	if ok := s.capture.Read(frame); !ok {
		return false
	}
	return !frame.Empty()
}

func (s *fileSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.capture == nil {
		return nil
	}
	err := s.capture.Close()
	s.capture = nil
	return err
}

// Validate checks that an opened source reports at least one frame.
func Validate(src Source) error {
	if n := src.Info().FrameCount; n <= 0 {
		return fmt.Errorf("%w (frame count %d)", ErrNoFrames, n)
	}
	return nil
}

// Probe opens a video only to read its stream properties.
func Probe(path string) (Info, error) {
	src, err := OpenFile(path)
	if err != nil {
		return Info{}, err
	}
	defer src.Close()
	return src.Info(), nil
}
