// Package server provides the HTTP server of the PalmTrace hand analysis
// service.
package server

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/ayusman/palmtrace/internal/analysis"
	"github.com/ayusman/palmtrace/internal/logger"
	"github.com/ayusman/palmtrace/internal/metrics"
	"github.com/ayusman/palmtrace/internal/server/api"
	"github.com/ayusman/palmtrace/internal/store"
)

// Config holds the server configuration.
type Config struct {
	StaticDir      string
	UploadDir      string
	ResultsDir     string
	MaxUploadBytes int64

	Store    *store.Store
	Analyzer *analysis.Analyzer
	Preview  *Preview
	Metrics  *metrics.Metrics
	// MetricsPath defaults to /metrics.
	MetricsPath string
	// Probe reads result video shapes; nil uses capture.Probe.
	Probe  api.ProbeFunc
	Logger *logger.Logger
}

// Server represents the HTTP server for the PalmTrace application.
type Server struct {
	config Config
	mux    *http.ServeMux
	log    *logger.Logger
	start  time.Time
}

// New creates a new Server with the given configuration.
func New(config Config) *Server {
	if config.Logger == nil {
		config.Logger = logger.NewNopLogger()
	}
	if config.MetricsPath == "" {
		config.MetricsPath = "/metrics"
	}

	s := &Server{
		config: config,
		mux:    http.NewServeMux(),
		log:    config.Logger.With("component", "http"),
		start:  time.Now(),
	}
	s.setupRoutes()
	return s
}

// setupRoutes configures all HTTP routes for the server.
func (s *Server) setupRoutes() {
	s.mux.HandleFunc("/api/health", s.handleHealth)

	if s.config.Store != nil && s.config.UploadDir != "" {
		videos := api.NewVideosHandler(s.config.Store, s.config.UploadDir, s.config.MaxUploadBytes, s.log)
		s.mux.Handle("/api/videos", videos)
		s.mux.Handle("/api/videos/", videos)
	}

	if s.config.Store != nil && s.config.Analyzer != nil {
		runs := api.NewRunsHandler(s.config.Analyzer, s.config.Store, s.log)
		progress := NewProgressHandler(s.config.Analyzer, s.log)

		// /api/runs/{id}/progress is a WebSocket; everything else is JSON.
		router := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if strings.HasSuffix(r.URL.Path, "/progress") {
				progress.ServeHTTP(w, r)
				return
			}
			runs.ServeHTTP(w, r)
		})
		s.mux.Handle("/api/runs", router)
		s.mux.Handle("/api/runs/", router)
	}

	if s.config.ResultsDir != "" {
		results := api.NewResultsHandler(s.config.ResultsDir, s.config.Probe, s.log)
		s.mux.Handle("/api/results", results)
		s.mux.Handle("/api/results/", results)
	}

	if s.config.Preview != nil {
		s.mux.Handle("/api/preview", s.config.Preview)
	}

	if s.config.Metrics != nil {
		s.mux.Handle(s.config.MetricsPath, s.config.Metrics.Handler())
	}

	// Serve static files if StaticDir is configured
	if s.config.StaticDir != "" {
		fs := http.FileServer(http.Dir(s.config.StaticDir))
		s.mux.Handle("/", fs)
	}
}

// ServeHTTP implements the http.Handler interface.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
	start := time.Now()
	s.mux.ServeHTTP(rec, r)

	if strings.HasPrefix(r.URL.Path, "/api/") {
		s.log.Debug("request", "method", r.Method, "path", r.URL.Path,
			"status", rec.status, "duration", time.Since(start))
	}
}

type healthResponse struct {
	Status  string             `json:"status"`
	Uptime  string             `json:"uptime"`
	Busy    bool               `json:"busy"`
	Current *analysis.Progress `json:"current,omitempty"`
}

// handleHealth handles GET requests to /api/health. It also reports
// whether an analysis is running.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	response := healthResponse{
		Status: "ok",
		Uptime: time.Since(s.start).Round(time.Second).String(),
	}
	if a := s.config.Analyzer; a != nil {
		response.Busy = a.Busy()
		if p, ok := a.Current(); ok {
			response.Current = &p
		}
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(response); err != nil {
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
		return
	}
}

// Run serves on addr until ctx is cancelled, then shuts down gracefully
// within shutdownTimeout.
func (s *Server) Run(ctx context.Context, addr string, shutdownTimeout time.Duration) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln, shutdownTimeout)
}

// Serve is Run on an existing listener. Preview streams are ended when
// shutdown starts; connections still open after shutdownTimeout are closed.
func (s *Server) Serve(ctx context.Context, ln net.Listener, shutdownTimeout time.Duration) error {
	srv := &http.Server{
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}
	if p := s.config.Preview; p != nil {
		srv.RegisterOnShutdown(p.Close)
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("server listening", "addr", ln.Addr().String())
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		s.log.Warn("graceful shutdown timed out, closing connections", "error", err)
		if cerr := srv.Close(); cerr != nil {
			return cerr
		}
	}
	s.log.Info("server stopped")
	return nil
}

// statusRecorder captures the response status for request logging. It
// passes through flushing and hijacking for streaming handlers.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response does not support hijacking")
	}
	r.status = http.StatusSwitchingProtocols
	return h.Hijack()
}

func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}
