package recorder

import (
	"bytes"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"strings"
	"sync"

	"gocv.io/x/gocv"
)

// stderrLimit caps how much ffmpeg diagnostic output is kept for errors.
const stderrLimit = 4096

// FFmpegEncoder pipes raw rgb24 frames into an ffmpeg process.
type FFmpegEncoder struct {
	opts   Options
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stderr *tailBuffer
	frames int

	mu       sync.Mutex
	released bool
	err      error
}

// NewFFmpegEncoder starts ffmpeg writing to opts.Path.
func NewFFmpegEncoder(ffmpegPath string, opts Options) (*FFmpegEncoder, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}
	if opts.PixelFormat == "" {
		opts.PixelFormat = "yuv420p"
	}

	cmd := exec.Command(ffmpegPath, buildArgs(opts)...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("create stdin pipe: %w", err)
	}
	stderr := &tailBuffer{limit: stderrLimit}
	cmd.Stderr = stderr

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start ffmpeg: %w", err)
	}

	return &FFmpegEncoder{
		opts:   opts,
		cmd:    cmd,
		stdin:  stdin,
		stderr: stderr,
	}, nil
}

// buildArgs returns the ffmpeg command line for opts.
func buildArgs(opts Options) []string {
	codec := "libx264"
	var extra []string
	if strings.EqualFold(opts.Codec, "hevc") {
		codec = "libx265"
		// Players such as Safari only accept HEVC in MP4 under the hvc1 tag.
		extra = []string{"-tag:v", "hvc1"}
	}
	pixFmt := opts.PixelFormat
	if pixFmt == "" {
		pixFmt = "yuv420p"
	}

	args := []string{
		"-y",
		"-loglevel", "error",
		"-f", "rawvideo",
		"-pix_fmt", "rgb24",
		"-s", fmt.Sprintf("%dx%d", opts.Width, opts.Height),
		"-r", strconv.FormatFloat(opts.FPS, 'f', -1, 64),
		"-i", "-",
		"-an",
		"-c:v", codec,
		"-b:v", strconv.Itoa(opts.BitRate),
		"-pix_fmt", pixFmt,
	}
	args = append(args, extra...)
	return append(args, opts.Path)
}

// Write sends one RGB frame to ffmpeg.
func (e *FFmpegEncoder) Write(frame gocv.Mat) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.released {
		return ErrReleased
	}
	if err := checkFrame(frame, e.opts); err != nil {
		return err
	}

	if _, err := e.stdin.Write(frame.ToBytes()); err != nil {
		return fmt.Errorf("write frame %d: %w%s", e.frames, err, e.stderr.suffix())
	}
	e.frames++
	return nil
}

// Release closes stdin and waits for ffmpeg to finish the container.
func (e *FFmpegEncoder) Release() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.released {
		return e.err
	}
	e.released = true

	e.stdin.Close()
	if err := e.cmd.Wait(); err != nil {
		e.err = fmt.Errorf("ffmpeg: %w%s", err, e.stderr.suffix())
	}
	return e.err
}

// Frames returns the number of frames written.
func (e *FFmpegEncoder) Frames() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.frames
}

// tailBuffer keeps the last limit bytes written to it.
type tailBuffer struct {
	mu    sync.Mutex
	buf   bytes.Buffer
	limit int
}

func (b *tailBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.buf.Write(p)
	if over := b.buf.Len() - b.limit; over > 0 {
		b.buf.Next(over)
	}
	return len(p), nil
}

func (b *tailBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return strings.TrimSpace(b.buf.String())
}

func (b *tailBuffer) suffix() string {
	if s := b.String(); s != "" {
		return ": " + s
	}
	return ""
}
