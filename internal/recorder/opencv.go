package recorder

import (
	"fmt"
	"strings"
	"sync"

	"gocv.io/x/gocv"
)

// OpenCVEncoder writes frames with gocv.VideoWriter. Bit rate and pixel
// format are left to the OpenCV backend.
type OpenCVEncoder struct {
	opts   Options
	writer *gocv.VideoWriter
	bgr    gocv.Mat
	frames int

	mu       sync.Mutex
	released bool
	err      error
}

// fourcc maps a codec name to the tag passed to OpenCV.
func fourcc(codec string) string {
	switch strings.ToLower(codec) {
	case "hevc":
		return "hvc1"
	default:
		return "avc1"
	}
}

// NewOpenCVEncoder opens opts.Path for writing. When the platform build has
// no H.264/HEVC encoder it retries with mp4v.
func NewOpenCVEncoder(opts Options) (*OpenCVEncoder, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}

	var writer *gocv.VideoWriter
	var err error
	for _, tag := range []string{fourcc(opts.Codec), "mp4v"} {
		writer, err = gocv.VideoWriterFile(opts.Path, tag, opts.FPS, opts.Width, opts.Height, true)
		if err == nil && writer.IsOpened() {
			break
		}
		if writer != nil {
			writer.Close()
			writer = nil
		}
	}
	if writer == nil {
		if err == nil {
			err = fmt.Errorf("no usable codec")
		}
		return nil, fmt.Errorf("open video writer %s: %w", opts.Path, err)
	}

	return &OpenCVEncoder{opts: opts, writer: writer, bgr: gocv.NewMat()}, nil
}

// Write converts an RGB frame to BGR and appends it.
func (e *OpenCVEncoder) Write(frame gocv.Mat) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.released {
		return ErrReleased
	}
	if err := checkFrame(frame, e.opts); err != nil {
		return err
	}

	gocv.CvtColor(frame, &e.bgr, gocv.ColorRGBToBGR)
	if err := e.writer.Write(e.bgr); err != nil {
		return fmt.Errorf("write frame %d: %w", e.frames, err)
	}
	e.frames++
	return nil
}

// Release closes the writer.
func (e *OpenCVEncoder) Release() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.released {
		return e.err
	}
	e.released = true
	e.err = e.writer.Close()
	e.bgr.Close()
	return e.err
}

// Frames returns the number of frames written.
func (e *OpenCVEncoder) Frames() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.frames
}
