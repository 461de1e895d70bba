package capture

import (
	"sync"

	"gocv.io/x/gocv"
)

// MockSource plays back in-memory frames for testing. The reported frame
// count may differ from the number of frames actually available, which
// mimics containers that over-report their length.
type MockSource struct {
	frames []gocv.Mat
	info   Info
	index  int
	closes int
	mu     sync.Mutex
}

// NewMockSource returns a source that yields frames and reports info.
// A zero info.FrameCount is kept as is so tests can build invalid sources.
func NewMockSource(frames []gocv.Mat, info Info) *MockSource {
	return &MockSource{frames: frames, info: info}
}

// NewBlankSource creates count black BGR frames of the given size and reports
// reported frames. The frames are closed together with the source.
func NewBlankSource(count, reported, width, height int) *MockSource {
	frames := make([]gocv.Mat, count)
	for i := range frames {
		frames[i] = gocv.NewMatWithSize(height, width, gocv.MatTypeCV8UC3)
	}
	return &MockSource{
		frames: frames,
		info:   Info{FrameCount: reported, Width: width, Height: height, FPS: DefaultFPS},
	}
}

func (s *MockSource) Info() Info {
	return s.info
}

// Read copies the next frame into frame.
func (s *MockSource) Read(frame *gocv.Mat) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closes > 0 || s.index >= len(s.frames) {
		return false
	}
	s.frames[s.index].CopyTo(frame)
	s.index++
	return true
}

// Close records the call. Frames stay usable until Release.
func (s *MockSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closes++
	return nil
}

// Closed reports whether Close was called at least once.
func (s *MockSource) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closes > 0
}

// Reads returns the number of frames handed out so far.
func (s *MockSource) Reads() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.index
}

// Release frees the backing frames.
func (s *MockSource) Release() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.frames {
		s.frames[i].Close()
	}
	s.frames = nil
}
