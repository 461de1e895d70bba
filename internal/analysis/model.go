package analysis

import (
	"fmt"
	"io"
	"sync"

	"gocv.io/x/gocv"

	"github.com/ayusman/palmtrace/internal/detector"
)

// FrameDetector finds hands in an RGB frame. It returns one instance per
// hand and an annotated copy of the frame that the caller must close.
type FrameDetector interface {
	Detect(frame gocv.Mat) ([]detector.Instance, gocv.Mat, error)
}

// Model is the shared detector handle. Detection is only allowed while
// holding its guard, so at most one run uses the detector at a time.
type Model struct {
	guard *Guard
	det   FrameDetector
}

// NewModel wraps a detector with a fresh guard.
func NewModel(det FrameDetector) *Model {
	return &Model{guard: NewGuard(), det: det}
}

// TryLock acquires exclusive use of the model without waiting.
func (m *Model) TryLock() (*Lease, bool) {
	return m.guard.TryAcquire()
}

// Unlock releases the model. Releasing with a lease that does not hold the
// guard returns ErrNotHeld.
func (m *Model) Unlock(l *Lease) error {
	return m.guard.Release(l)
}

// Busy reports whether a run currently holds the model.
func (m *Model) Busy() bool {
	return m.guard.Held()
}

// Detect runs the detector on behalf of the lease holder.
func (m *Model) Detect(l *Lease, frame gocv.Mat) ([]detector.Instance, gocv.Mat, error) {
	if !m.guard.holds(l) {
		return nil, gocv.Mat{}, ErrNotHeld
	}
	return m.det.Detect(frame)
}

// Bind returns a FrameDetector that detects under lease l.
func (m *Model) Bind(l *Lease) FrameDetector {
	return leased{model: m, lease: l}
}

// Close closes the underlying detector if it holds resources.
func (m *Model) Close() error {
	if c, ok := m.det.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

type leased struct {
	model *Model
	lease *Lease
}

func (b leased) Detect(frame gocv.Mat) ([]detector.Instance, gocv.Mat, error) {
	return b.model.Detect(b.lease, frame)
}

// modelCache builds a Model once and hands the same instance to every caller.
type modelCache struct {
	once  sync.Once
	model *Model
	err   error
}

func (c *modelCache) load(factory func() (FrameDetector, error)) (*Model, error) {
	c.once.Do(func() {
		det, err := factory()
		if err != nil {
			c.err = fmt.Errorf("load detector: %w", err)
			return
		}
		c.model = NewModel(det)
	})
	return c.model, c.err
}

var shared modelCache

// LoadModel returns the process-wide Model, building it with factory on the
// first call. Later calls ignore factory and return the same Model, or the
// same error if construction failed.
func LoadModel(factory func() (FrameDetector, error)) (*Model, error) {
	return shared.load(factory)
}
