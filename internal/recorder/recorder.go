// Package recorder writes annotated RGB frames into an encoded video file.
package recorder

import (
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"gocv.io/x/gocv"
)

// ErrReleased is returned by Write after Release.
var ErrReleased = errors.New("encoder already released")

// Options fixes the output stream parameters at construction time.
type Options struct {
	Path        string
	Codec       string // h264 or hevc
	FPS         float64
	BitRate     int
	PixelFormat string
	Width       int
	Height      int
}

// Encoder accepts RGB frames in presentation order and produces one video file.
type Encoder interface {
	// Write appends one frame. Frames must be written in presentation order.
	Write(frame gocv.Mat) error
	// Release flushes buffered frames and closes the container. It is idempotent.
	Release() error
	// Frames returns the number of frames accepted so far.
	Frames() int
}

// New creates an encoder. Backend "auto" uses ffmpeg when the binary is on
// PATH and falls back to the OpenCV writer otherwise.
func New(backend, ffmpegPath string, opts Options) (Encoder, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}

	switch Resolve(backend, ffmpegPath) {
	case "ffmpeg":
		return NewFFmpegEncoder(ffmpegPath, opts)
	case "opencv":
		return NewOpenCVEncoder(opts)
	default:
		return nil, fmt.Errorf("unknown encoder backend %q", backend)
	}
}

// Resolve maps a configured backend to the one New will use. Unknown
// backends are returned unchanged.
func Resolve(backend, ffmpegPath string) string {
	if backend != "auto" && backend != "" {
		return backend
	}
	if _, err := exec.LookPath(ffmpegPath); err == nil {
		return "ffmpeg"
	}
	return "opencv"
}

func (o Options) validate() error {
	if o.Path == "" {
		return errors.New("output path is required")
	}
	if o.Width <= 0 || o.Height <= 0 {
		return fmt.Errorf("invalid frame size %dx%d", o.Width, o.Height)
	}
	if o.FPS <= 0 {
		return fmt.Errorf("invalid frame rate %v", o.FPS)
	}
	switch strings.ToLower(o.Codec) {
	case "h264", "hevc":
	default:
		return fmt.Errorf("unsupported codec %q", o.Codec)
	}
	return nil
}

// checkFrame rejects frames that do not match the fixed output dimensions.
func checkFrame(frame gocv.Mat, opts Options) error {
	if frame.Empty() {
		return errors.New("empty frame")
	}
	if frame.Cols() != opts.Width || frame.Rows() != opts.Height {
		return fmt.Errorf("frame size %dx%d does not match %dx%d",
			frame.Cols(), frame.Rows(), opts.Width, opts.Height)
	}
	if frame.Type() != gocv.MatTypeCV8UC3 {
		return fmt.Errorf("unsupported frame type %v", frame.Type())
	}
	return nil
}
