package analysis

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"gocv.io/x/gocv"

	"github.com/ayusman/palmtrace/internal/capture"
	"github.com/ayusman/palmtrace/internal/logger"
	"github.com/ayusman/palmtrace/internal/metrics"
	"github.com/ayusman/palmtrace/internal/recorder"
	"github.com/ayusman/palmtrace/internal/store"
)

var (
	// ErrInvalidInput is returned when the source video cannot be opened or
	// reports no frames. The run never starts.
	ErrInvalidInput = errors.New("invalid input video")

	// ErrResourceBusy is returned when another run holds the detector.
	ErrResourceBusy = errors.New("detector is busy, try again later")

	// ErrRunNotFound is returned for unknown or forgotten run IDs.
	ErrRunNotFound = errors.New("run not found")
)

const (
	// storeProgressEvery is how many frames pass between catalog updates.
	storeProgressEvery = 25
	// maxTrackedRuns bounds how many finished runs keep their last progress
	// in memory.
	maxTrackedRuns = 64
	// subscriberBuffer is the channel size handed to progress subscribers.
	subscriberBuffer = 16
)

// RunStore records run lifecycle in the catalog.
type RunStore interface {
	Create(run *store.Run) error
	UpdateProgress(id string, processed int) error
	Finish(id string, status store.RunStatus, processed int, errMsg string) error
}

// FrameSink receives every annotated RGB frame of the running analysis.
// Publish must not retain the Mat.
type FrameSink interface {
	Publish(frame gocv.Mat)
}

// EncoderConfig selects the output encoder and its stream parameters.
type EncoderConfig struct {
	Backend     string
	FFmpegPath  string
	Codec       string
	BitRate     int
	PixelFormat string
}

// Config holds the dependencies of an Analyzer.
type Config struct {
	UploadDir  string
	ResultsDir string
	Encoder    EncoderConfig

	// Store, Metrics and Sink are optional.
	Store   RunStore
	Metrics *metrics.Metrics
	Sink    FrameSink
	Logger  *logger.Logger

	// OpenSource and NewEncoder default to capture.OpenFile and recorder.New.
	OpenSource func(path string) (capture.Source, error)
	NewEncoder func(opts recorder.Options) (recorder.Encoder, error)
}

// Run is one analysis of an uploaded video.
type Run struct {
	ID        string       `json:"id"`
	Video     string       `json:"video"`
	OutputDir string       `json:"-"`
	Info      capture.Info `json:"info"`
	StartedAt time.Time    `json:"started_at"`

	done   chan struct{}
	mu     sync.Mutex
	frames int
	err    error
}

// Done is closed once the run has finished and released its resources.
func (r *Run) Done() <-chan struct{} {
	return r.done
}

// Err returns the error that ended the run, or nil. Valid after Done.
func (r *Run) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

// Frames returns the number of frames recorded. Valid after Done.
func (r *Run) Frames() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.frames
}

func (r *Run) setResult(frames int, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frames = frames
	r.err = err
}

type runState struct {
	run  *Run
	last Progress
	subs map[chan Progress]struct{}
}

// Analyzer admits runs against the shared model and executes them.
type Analyzer struct {
	cfg   Config
	model *Model
	log   *logger.Logger
	wg    sync.WaitGroup

	mu      sync.Mutex
	runs    map[string]*runState
	order   []string
	current string
}

// New creates an Analyzer over model.
func New(model *Model, cfg Config) (*Analyzer, error) {
	if model == nil {
		return nil, errors.New("analysis: model is required")
	}
	if cfg.UploadDir == "" || cfg.ResultsDir == "" {
		return nil, errors.New("analysis: upload and results directories are required")
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.NewNopLogger()
	}
	if cfg.OpenSource == nil {
		cfg.OpenSource = capture.OpenFile
	}
	if cfg.NewEncoder == nil {
		enc := cfg.Encoder
		cfg.NewEncoder = func(opts recorder.Options) (recorder.Encoder, error) {
			return recorder.New(enc.Backend, enc.FFmpegPath, opts)
		}
	}

	return &Analyzer{
		cfg:   cfg,
		model: model,
		log:   cfg.Logger.With("component", "analyzer"),
		runs:  make(map[string]*runState),
	}, nil
}

// Start validates the video, acquires the model and runs the analysis in a
// new goroutine. It returns ErrInvalidInput or ErrResourceBusy without
// starting anything; the video is validated before the model is tried.
func (a *Analyzer) Start(video string) (*Run, error) {
	run, execute, err := a.begin(video)
	if err != nil {
		return nil, err
	}

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		execute()
	}()
	return run, nil
}

// Run is the synchronous form of Start. It returns the run and the error
// that ended it.
func (a *Analyzer) Run(video string) (*Run, error) {
	run, execute, err := a.begin(video)
	if err != nil {
		return nil, err
	}
	execute()
	return run, run.Err()
}

// Wait blocks until runs started with Start have finished.
func (a *Analyzer) Wait() {
	a.wg.Wait()
}

// Busy reports whether a run holds the model.
func (a *Analyzer) Busy() bool {
	return a.model.Busy()
}

// Current returns the progress of the running analysis, if any.
func (a *Analyzer) Current() (Progress, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.current == "" {
		return Progress{}, false
	}
	st, ok := a.runs[a.current]
	if !ok {
		return Progress{}, false
	}
	return st.last, true
}

// Progress returns the last snapshot of a run.
func (a *Analyzer) Progress(runID string) (Progress, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	st, ok := a.runs[runID]
	if !ok {
		return Progress{}, false
	}
	return st.last, true
}

// Subscribe streams progress snapshots of a run. The channel first yields
// the current snapshot and is closed after the final one. Slow readers miss
// intermediate snapshots but always get the final one. cancel stops the
// subscription early.
func (a *Analyzer) Subscribe(runID string) (<-chan Progress, func(), error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	st, ok := a.runs[runID]
	if !ok {
		return nil, nil, ErrRunNotFound
	}

	ch := make(chan Progress, subscriberBuffer)
	ch <- st.last
	if st.last.Done {
		close(ch)
		return ch, func() {}, nil
	}
	st.subs[ch] = struct{}{}

	cancel := func() {
		a.mu.Lock()
		defer a.mu.Unlock()
		if _, ok := st.subs[ch]; ok {
			delete(st.subs, ch)
			close(ch)
		}
	}
	return ch, cancel, nil
}

// begin performs admission: validation, then guard acquisition, then output
// setup. On success the returned function owns the source, the lease and
// the encoder and releases them when it returns.
func (a *Analyzer) begin(video string) (*Run, func(), error) {
	name, err := videoName(video)
	if err != nil {
		a.cfg.Metrics.RunRejected("invalid_input")
		return nil, nil, err
	}

	src, err := a.cfg.OpenSource(filepath.Join(a.cfg.UploadDir, name))
	if err != nil {
		a.cfg.Metrics.RunRejected("invalid_input")
		a.log.Warn("video rejected", "video", name, "error", err)
		return nil, nil, fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}
	handedOff := false
	defer func() {
		if !handedOff {
			if err := src.Close(); err != nil {
				a.log.Warn("failed to close video", "video", name, "error", err)
			}
		}
	}()

	if err := capture.Validate(src); err != nil {
		a.cfg.Metrics.RunRejected("invalid_input")
		a.log.Warn("video rejected", "video", name, "error", err)
		return nil, nil, fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}

	lease, ok := a.model.TryLock()
	if !ok {
		a.cfg.Metrics.RunRejected("busy")
		a.log.Info("run rejected, detector busy", "video", name)
		return nil, nil, ErrResourceBusy
	}
	defer func() {
		if !handedOff {
			if err := a.model.Unlock(lease); err != nil {
				a.log.Error("failed to release detector", "error", err)
			}
		}
	}()

	info := src.Info()
	run := &Run{
		ID:        uuid.NewString(),
		Video:     name,
		OutputDir: OutputDir(a.cfg.ResultsDir, name),
		Info:      info,
		StartedAt: time.Now().UTC(),
		done:      make(chan struct{}),
	}

	if err := os.MkdirAll(run.OutputDir, 0755); err != nil {
		return nil, nil, fmt.Errorf("create output directory: %w", err)
	}

	enc, err := a.cfg.NewEncoder(recorder.Options{
		Path:        filepath.Join(run.OutputDir, ResultVideo),
		Codec:       a.cfg.Encoder.Codec,
		FPS:         info.FPS,
		BitRate:     a.cfg.Encoder.BitRate,
		PixelFormat: a.cfg.Encoder.PixelFormat,
		Width:       info.Width,
		Height:      info.Height,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("create encoder: %w", err)
	}

	if a.cfg.Store != nil {
		err := a.cfg.Store.Create(&store.Run{
			ID:          run.ID,
			VideoName:   name,
			Status:      store.RunRunning,
			TotalFrames: info.FrameCount,
			OutputDir:   run.OutputDir,
			StartedAt:   run.StartedAt,
		})
		if err != nil {
			enc.Release()
			return nil, nil, fmt.Errorf("record run: %w", err)
		}
	}

	a.track(run)
	handedOff = true

	return run, func() { a.execute(run, src, enc, lease) }, nil
}

// execute runs the frame loop. The source and the lease are released by
// separate deferred calls, so a failure in one does not skip the other.
// Bookkeeping happens after both are released.
func (a *Analyzer) execute(run *Run, src capture.Source, enc recorder.Encoder, lease *Lease) {
	var processed int
	var err error

	defer close(run.done)
	defer func() {
		a.finish(run, processed, err)
	}()
	defer func() {
		if uerr := a.model.Unlock(lease); uerr != nil {
			a.log.Error("failed to release detector", "run_id", run.ID, "error", uerr)
		}
	}()
	defer func() {
		if cerr := src.Close(); cerr != nil {
			a.log.Warn("failed to close video", "run_id", run.ID, "error", cerr)
		}
	}()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("run panicked: %v", r)
			enc.Release()
		}
	}()

	log := a.log.With("run_id", run.ID, "video", run.Video)
	log.Info("run started", "frames", run.Info.FrameCount, "width", run.Info.Width,
		"height", run.Info.Height, "fps", run.Info.FPS)
	a.cfg.Metrics.RunStarted()

	total := run.Info.FrameCount
	pipeline := &Pipeline{
		Source:   src,
		Encoder:  enc,
		Detector: a.model.Bind(lease),
		OnProgress: func(p Progress) {
			p.RunID = run.ID
			p.Video = run.Video
			a.publish(p)
			if a.cfg.Store != nil && p.Processed%storeProgressEvery == 0 {
				if serr := a.cfg.Store.UpdateProgress(run.ID, p.Processed); serr != nil {
					log.Warn("failed to record progress", "error", serr)
				}
			}
		},
		OnFrame: func(result FrameResult, annotated gocv.Mat, elapsed time.Duration) {
			if a.cfg.Metrics != nil {
				categories := make([]string, len(result.Results))
				for i, inst := range result.Results {
					categories[i] = inst.CategoryName
				}
				a.cfg.Metrics.FrameProcessed(elapsed, categories, float64(result.FrameNumber+1)/float64(total))
			}
			if a.cfg.Sink != nil {
				a.cfg.Sink.Publish(annotated)
			}
		},
	}

	results, err := pipeline.Run()
	processed = len(results)

	if rerr := enc.Release(); rerr != nil && err == nil {
		err = fmt.Errorf("finalize video: %w", rerr)
	}
	if err == nil {
		err = WriteResults(filepath.Join(run.OutputDir, ResultFile), results)
	}
}

// finish records the outcome of a run and publishes the final snapshot.
func (a *Analyzer) finish(run *Run, processed int, err error) {
	run.setResult(processed, err)

	status := store.RunCompleted
	msg := ""
	if err != nil {
		status = store.RunFailed
		msg = err.Error()
	}

	if a.cfg.Store != nil {
		if serr := a.cfg.Store.Finish(run.ID, status, processed, msg); serr != nil {
			a.log.Warn("failed to record run result", "run_id", run.ID, "error", serr)
		}
	}

	elapsed := time.Since(run.StartedAt)
	a.cfg.Metrics.RunFinished(string(status), elapsed)

	if err != nil {
		a.log.Error("run failed", "run_id", run.ID, "video", run.Video,
			"frames", processed, "error", err)
	} else {
		a.log.Info("run completed", "run_id", run.ID, "video", run.Video,
			"frames", processed, "elapsed", elapsed)
	}

	final := Progress{
		RunID:     run.ID,
		Video:     run.Video,
		Frame:     processed - 1,
		Processed: processed,
		Total:     run.Info.FrameCount,
		Done:      true,
		Error:     msg,
	}
	if err == nil {
		final.Fraction = 1
	} else if final.Total > 0 {
		final.Fraction = float64(processed) / float64(final.Total)
	}
	a.publish(final)
}

// track registers a new run and forgets the oldest finished runs beyond
// maxTrackedRuns.
func (a *Analyzer) track(run *Run) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.runs[run.ID] = &runState{
		run:  run,
		last: Progress{RunID: run.ID, Video: run.Video, Frame: -1, Total: run.Info.FrameCount},
		subs: make(map[chan Progress]struct{}),
	}
	a.order = append(a.order, run.ID)
	a.current = run.ID

	for len(a.order) > maxTrackedRuns {
		oldest := a.order[0]
		if st, ok := a.runs[oldest]; ok && !st.last.Done {
			break
		}
		delete(a.runs, oldest)
		a.order = a.order[1:]
	}
}

// publish stores p as the last snapshot of its run and fans it out.
func (a *Analyzer) publish(p Progress) {
	a.mu.Lock()
	defer a.mu.Unlock()

	st, ok := a.runs[p.RunID]
	if !ok {
		return
	}
	st.last = p

	for ch := range st.subs {
		send(ch, p)
		if p.Done {
			close(ch)
		}
	}
	if p.Done {
		st.subs = make(map[chan Progress]struct{})
		if a.current == p.RunID {
			a.current = ""
		}
	}
}

// send delivers p without blocking, dropping the oldest queued snapshot
// when the subscriber is behind.
func send(ch chan Progress, p Progress) {
	select {
	case ch <- p:
		return
	default:
	}
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- p:
	default:
	}
}

// videoName returns the base name of an uploaded video or ErrInvalidInput
// when the name could escape the upload directory.
func videoName(video string) (string, error) {
	name := strings.TrimSpace(video)
	if name == "" || name == "." || name == ".." ||
		strings.ContainsAny(name, `/\`) || filepath.Base(name) != name {
		return "", fmt.Errorf("%w: bad video name %q", ErrInvalidInput, video)
	}
	return name, nil
}
