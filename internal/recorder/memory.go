package recorder

import (
	"errors"
	"sync"

	"gocv.io/x/gocv"
)

// MemoryEncoder records frames in memory. It is used by tests.
type MemoryEncoder struct {
	mu       sync.Mutex
	frames   [][]byte
	releases int
	failAt   int
}

// NewMemoryEncoder creates an empty in-memory encoder.
func NewMemoryEncoder() *MemoryEncoder {
	return &MemoryEncoder{failAt: -1}
}

// FailAt makes the n-th Write (zero based) return an error.
func (e *MemoryEncoder) FailAt(n int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.failAt = n
}

// Write stores a copy of the frame bytes.
func (e *MemoryEncoder) Write(frame gocv.Mat) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.releases > 0 {
		return ErrReleased
	}
	if len(e.frames) == e.failAt {
		return errors.New("disk full")
	}
	e.frames = append(e.frames, frame.ToBytes())
	return nil
}

// Release counts calls; only the first one has an effect.
func (e *MemoryEncoder) Release() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.releases++
	return nil
}

// Frames returns the number of frames written.
func (e *MemoryEncoder) Frames() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.frames)
}

// Frame returns the bytes of the i-th frame.
func (e *MemoryEncoder) Frame(i int) []byte {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.frames[i]
}

// Released reports whether Release was called.
func (e *MemoryEncoder) Released() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.releases > 0
}
