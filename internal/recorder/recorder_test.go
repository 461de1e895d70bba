package recorder

import (
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"
)

func testOptions(dir string) Options {
	return Options{
		Path:        filepath.Join(dir, "result.mp4"),
		Codec:       "h264",
		FPS:         30,
		BitRate:     5000000,
		PixelFormat: "yuv420p",
		Width:       64,
		Height:      48,
	}
}

func TestBuildArgs(t *testing.T) {
	tests := []struct {
		name  string
		codec string
		want  []string
	}{
		{name: "h264", codec: "h264", want: []string{"-c:v libx264", "-b:v 5000000", "-pix_fmt yuv420p", "-s 64x48", "-r 29.97"}},
		{name: "hevc", codec: "hevc", want: []string{"-c:v libx265", "-tag:v hvc1"}},
		{name: "upper case", codec: "HEVC", want: []string{"-c:v libx265"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := testOptions("/out")
			opts.Codec = tt.codec
			opts.FPS = 29.97

			args := buildArgs(opts)
			joined := strings.Join(args, " ")

			for _, w := range tt.want {
				assert.Contains(t, joined, w)
			}
			assert.Equal(t, "/out/result.mp4", args[len(args)-1])
		})
	}
}

func TestOptionsValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Options)
	}{
		{name: "no path", mutate: func(o *Options) { o.Path = "" }},
		{name: "zero width", mutate: func(o *Options) { o.Width = 0 }},
		{name: "zero fps", mutate: func(o *Options) { o.FPS = 0 }},
		{name: "bad codec", mutate: func(o *Options) { o.Codec = "vp9" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := testOptions(t.TempDir())
			tt.mutate(&opts)
			_, err := New("auto", "ffmpeg", opts)
			assert.Error(t, err)
		})
	}
}

func TestNew_UnknownBackend(t *testing.T) {
	_, err := New("gstreamer", "ffmpeg", testOptions(t.TempDir()))
	assert.Error(t, err)
}

func TestResolve(t *testing.T) {
	assert.Equal(t, "opencv", Resolve("opencv", "ffmpeg"))
	assert.Equal(t, "ffmpeg", Resolve("ffmpeg", "/nonexistent/ffmpeg"))
	assert.Equal(t, "opencv", Resolve("auto", "/nonexistent/ffmpeg"))
	assert.Equal(t, "bogus", Resolve("bogus", "ffmpeg"))
}

func TestMemoryEncoder(t *testing.T) {
	enc := NewMemoryEncoder()

	frame := gocv.NewMatWithSize(4, 4, gocv.MatTypeCV8UC3)
	defer frame.Close()

	require.NoError(t, enc.Write(frame))
	require.NoError(t, enc.Write(frame))
	assert.Equal(t, 2, enc.Frames())
	assert.Len(t, enc.Frame(1), 4*4*3)

	require.NoError(t, enc.Release())
	require.NoError(t, enc.Release())
	assert.True(t, enc.Released())
	assert.ErrorIs(t, enc.Write(frame), ErrReleased)
	assert.Equal(t, 2, enc.Frames())
}

func TestMemoryEncoder_FailAt(t *testing.T) {
	enc := NewMemoryEncoder()
	enc.FailAt(1)

	frame := gocv.NewMatWithSize(4, 4, gocv.MatTypeCV8UC3)
	defer frame.Close()

	assert.NoError(t, enc.Write(frame))
	assert.Error(t, enc.Write(frame))
	assert.Equal(t, 1, enc.Frames())
}

func TestTailBuffer(t *testing.T) {
	b := &tailBuffer{limit: 5}
	b.Write([]byte("hello "))
	b.Write([]byte("world"))
	assert.Equal(t, "world", b.String())
	assert.Equal(t, ": world", b.suffix())
}

func TestFFmpegEncoder(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping ffmpeg encoder test in short mode")
	}
	if _, err := exec.LookPath("ffmpeg"); err != nil {
		t.Skip("ffmpeg not installed")
	}

	opts := testOptions(t.TempDir())
	enc, err := NewFFmpegEncoder("ffmpeg", opts)
	require.NoError(t, err)

	frame := gocv.NewMatWithSize(opts.Height, opts.Width, gocv.MatTypeCV8UC3)
	defer frame.Close()

	for i := 0; i < 5; i++ {
		require.NoError(t, enc.Write(frame))
	}

	wrong := gocv.NewMatWithSize(10, 10, gocv.MatTypeCV8UC3)
	defer wrong.Close()
	assert.Error(t, enc.Write(wrong))

	require.NoError(t, enc.Release())
	assert.NoError(t, enc.Release(), "second Release must be a no-op")
	assert.Equal(t, 5, enc.Frames())

	info, err := os.Stat(opts.Path)
	require.NoError(t, err)
	assert.Positive(t, info.Size())
}

func TestOpenCVEncoder(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping OpenCV encoder test in short mode")
	}

	opts := testOptions(t.TempDir())
	enc, err := NewOpenCVEncoder(opts)
	if err != nil {
		t.Skipf("no OpenCV video writer available: %v", err)
	}

	frame := gocv.NewMatWithSize(opts.Height, opts.Width, gocv.MatTypeCV8UC3)
	defer frame.Close()

	for i := 0; i < 3; i++ {
		require.NoError(t, enc.Write(frame))
	}
	require.NoError(t, enc.Release())
	assert.NoError(t, enc.Release())
	assert.ErrorIs(t, enc.Write(frame), ErrReleased)
	assert.Equal(t, 3, enc.Frames())
}
