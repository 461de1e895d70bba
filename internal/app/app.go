// Package app wires the PalmTrace components into one running service.
package app

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/ayusman/palmtrace/internal/analysis"
	"github.com/ayusman/palmtrace/internal/config"
	"github.com/ayusman/palmtrace/internal/detector"
	"github.com/ayusman/palmtrace/internal/hook"
	"github.com/ayusman/palmtrace/internal/logger"
	"github.com/ayusman/palmtrace/internal/metrics"
	"github.com/ayusman/palmtrace/internal/recorder"
	"github.com/ayusman/palmtrace/internal/server"
	"github.com/ayusman/palmtrace/internal/store"
)

// interruptedReason is recorded on runs left running by a previous process.
const interruptedReason = "interrupted by restart"

// App is the PalmTrace service: catalog, analyzer, preview and HTTP server.
type App struct {
	cfg      *config.Config
	log      *logger.Logger
	store    *store.Store
	hooks    *hook.Dispatcher
	model    *analysis.Model
	analyzer *analysis.Analyzer
	preview  *server.Preview
	metrics  *metrics.Metrics
	server   *server.Server

	closeOnce sync.Once
}

// New builds the service from cfg. The data directories are created, the
// catalog is opened and reconciled with the upload directory, and runs left
// running by a previous process are marked failed.
func New(cfg *config.Config, log *logger.Logger) (*App, error) {
	if log == nil {
		log = logger.NewNopLogger()
	}
	if err := cfg.EnsureDirs(); err != nil {
		return nil, err
	}

	st, err := store.New(cfg.Storage.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to open catalog: %w", err)
	}

	a := &App{cfg: cfg, log: log, store: st}
	if err := a.init(); err != nil {
		st.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) init() error {
	cfg := a.cfg

	n, err := syncUploads(cfg.Storage.UploadDir, a.store.Videos())
	if err != nil {
		return fmt.Errorf("failed to scan uploads: %w", err)
	}
	if n > 0 {
		a.log.Info("registered existing uploads", "count", n)
	}

	failed, err := a.store.Runs().FailRunning(interruptedReason)
	if err != nil {
		return fmt.Errorf("failed to recover runs: %w", err)
	}
	if failed > 0 {
		a.log.Warn("marked interrupted runs as failed", "count", failed)
	}

	manager := hook.NewManager(cfg.Hooks.Dir)
	if err := manager.Discover(); err != nil {
		a.log.Warn("hook discovery failed", "dir", cfg.Hooks.Dir, "error", err)
	}
	for _, h := range manager.List() {
		a.log.Info("hook loaded", "name", h.Manifest.Name, "events", h.Manifest.Events)
	}
	a.hooks = hook.NewDispatcher(manager, hook.NewExecutor(cfg.Hooks.Timeout), a.log)

	a.model, err = analysis.LoadModel(func() (analysis.FrameDetector, error) {
		backend, err := newBackend(cfg.Detector, a.log)
		if err != nil {
			return nil, err
		}
		return detector.NewHandsDetector(backend), nil
	})
	if err != nil {
		return fmt.Errorf("failed to load hand model: %w", err)
	}

	if cfg.Metrics.Enabled {
		a.metrics = metrics.New()
	}
	a.preview = server.NewPreview(server.DefaultPreviewInterval, a.log)

	a.analyzer, err = analysis.New(a.model, analysis.Config{
		UploadDir:  cfg.Storage.UploadDir,
		ResultsDir: cfg.Storage.ResultsDir,
		Encoder: analysis.EncoderConfig{
			Backend:     cfg.Encoder.Backend,
			FFmpegPath:  cfg.Encoder.FFmpegPath,
			Codec:       cfg.Encoder.Codec,
			BitRate:     cfg.Encoder.BitRate,
			PixelFormat: cfg.Encoder.PixelFormat,
		},
		Store:   newRunCatalog(a.store, cfg.Storage.UploadDir, a.hooks),
		Metrics: a.metrics,
		Sink:    a.preview,
		Logger:  a.log,
	})
	if err != nil {
		return err
	}

	a.server = server.New(server.Config{
		StaticDir:      cfg.Server.StaticDir,
		UploadDir:      cfg.Storage.UploadDir,
		ResultsDir:     cfg.Storage.ResultsDir,
		MaxUploadBytes: cfg.Server.MaxUploadMB << 20,
		Store:          a.store,
		Analyzer:       a.analyzer,
		Preview:        a.preview,
		Metrics:        a.metrics,
		MetricsPath:    cfg.Metrics.Path,
		Logger:         a.log,
	})
	return nil
}

// Run serves HTTP until ctx is cancelled.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if a.metrics != nil {
		go a.metrics.SampleProcess(ctx, a.cfg.Metrics.ProcessInterval, a.log)
	}
	return a.server.Run(ctx, a.cfg.Server.Addr, a.cfg.Server.ShutdownTimeout)
}

// Close waits for the running analysis and pending hooks, then releases the
// model and the catalog.
func (a *App) Close() error {
	var errs []error
	a.closeOnce.Do(func() {
		a.analyzer.Wait()
		a.hooks.Wait()
		if err := a.model.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close model: %w", err))
		}
		if err := a.store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close catalog: %w", err))
		}
	})
	return errors.Join(errs...)
}

// Server returns the HTTP handler.
func (a *App) Server() *server.Server {
	return a.server
}

// Analyzer returns the run admission and execution component.
func (a *App) Analyzer() *analysis.Analyzer {
	return a.analyzer
}

// Store returns the catalog.
func (a *App) Store() *store.Store {
	return a.store
}

// Encoder reports which encoder backend new runs will use.
func (a *App) Encoder() string {
	return recorder.Resolve(a.cfg.Encoder.Backend, a.cfg.Encoder.FFmpegPath)
}
