package server

import (
	"fmt"
	"net/http"
	"sync"
	"time"

	"gocv.io/x/gocv"

	"github.com/ayusman/palmtrace/internal/detector"
	"github.com/ayusman/palmtrace/internal/logger"
)

// DefaultPreviewInterval limits preview encoding to about 15 frames per
// second.
const DefaultPreviewInterval = 66 * time.Millisecond

// Preview keeps the latest annotated frame of the running analysis as JPEG
// and streams it to browsers as MJPEG.
type Preview struct {
	interval time.Duration
	log      *logger.Logger

	mu      sync.Mutex
	jpeg    []byte
	seq     uint64
	last    time.Time
	updated chan struct{}

	done      chan struct{}
	closeOnce sync.Once
}

// NewPreview creates a Preview encoding at most one frame per interval.
func NewPreview(interval time.Duration, log *logger.Logger) *Preview {
	if log == nil {
		log = logger.NewNopLogger()
	}
	return &Preview{
		interval: interval,
		log:      log,
		updated:  make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Close ends every open stream. Later requests return right after the
// headers.
func (p *Preview) Close() {
	p.closeOnce.Do(func() { close(p.done) })
}

// Publish stores an RGB frame. Frames arriving faster than the interval
// are dropped. The Mat is not retained.
func (p *Preview) Publish(frame gocv.Mat) {
	p.mu.Lock()
	if time.Since(p.last) < p.interval {
		p.mu.Unlock()
		return
	}
	p.last = time.Now()
	p.mu.Unlock()

	data, err := detector.EncodeJPEG(frame)
	if err != nil {
		p.log.Warn("failed to encode preview frame", "error", err)
		return
	}

	p.mu.Lock()
	p.jpeg = data
	p.seq++
	close(p.updated)
	p.updated = make(chan struct{})
	p.mu.Unlock()
}

// Latest returns the latest JPEG frame and its sequence number. The
// sequence is zero until the first frame arrives.
func (p *Preview) Latest() ([]byte, uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.jpeg, p.seq
}

func (p *Preview) next(after uint64) ([]byte, uint64, <-chan struct{}) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.seq > after {
		return p.jpeg, p.seq, nil
	}
	return nil, after, p.updated
}

// ServeHTTP streams MJPEG frames until the client disconnects or the
// preview is closed.
func (p *Preview) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	w.Header().Set("Content-Type", "multipart/x-mixed-replace; boundary=frame")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flush(w)

	var seq uint64
	for {
		frame, next, wait := p.next(seq)
		if wait != nil {
			select {
			case <-r.Context().Done():
				return
			case <-p.done:
				return
			case <-wait:
				continue
			}
		}
		seq = next

		fmt.Fprintf(w, "--frame\r\n")
		fmt.Fprintf(w, "Content-Type: image/jpeg\r\n")
		fmt.Fprintf(w, "Content-Length: %d\r\n\r\n", len(frame))
		if _, err := w.Write(frame); err != nil {
			return
		}
		fmt.Fprintf(w, "\r\n")
		flush(w)
	}
}

func flush(w http.ResponseWriter) {
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}
}
