// Package metrics exposes Prometheus metrics for analysis runs and the
// palmtrace process. A nil *Metrics is valid and records nothing.
package metrics

import (
	"context"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shirou/gopsutil/v4/process"

	"github.com/ayusman/palmtrace/internal/logger"
)

const namespace = "palmtrace"

// Metrics holds every collector registered by palmtrace.
type Metrics struct {
	registry *prometheus.Registry

	runs          *prometheus.CounterVec
	rejections    *prometheus.CounterVec
	frames        prometheus.Counter
	hands         *prometheus.CounterVec
	runDuration   prometheus.Histogram
	frameDuration prometheus.Histogram
	detectorBusy  prometheus.Gauge
	runProgress   prometheus.Gauge
	memoryRSS     prometheus.Gauge
	cpuPercent    prometheus.Gauge
}

// New creates a registry with the palmtrace collectors plus the Go runtime
// collector.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Analysis runs by final status.",
		}, []string{"status"}),
		rejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "run_rejections_total",
			Help:      "Run requests rejected before start, by reason.",
		}, []string{"reason"}),
		frames: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_processed_total",
			Help:      "Frames decoded, detected and encoded.",
		}),
		hands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "hands_detected_total",
			Help:      "Detected hand instances by category.",
		}, []string{"category"}),
		runDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Wall time of analysis runs.",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 12),
		}),
		frameDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "frame_duration_seconds",
			Help:      "Per-frame detect and encode time.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10),
		}),
		detectorBusy: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "detector_busy",
			Help:      "1 while an analysis run holds the detector.",
		}),
		runProgress: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "run_progress_ratio",
			Help:      "Progress of the current run, 0 to 1.",
		}),
		memoryRSS: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "process_memory_rss_bytes",
			Help:      "Resident memory of the palmtrace process.",
		}),
		cpuPercent: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "process_cpu_percent",
			Help:      "CPU usage of the palmtrace process in percent.",
		}),
	}

	m.registry.MustRegister(
		m.runs, m.rejections, m.frames, m.hands,
		m.runDuration, m.frameDuration,
		m.detectorBusy, m.runProgress,
		m.memoryRSS, m.cpuPercent,
		collectors.NewGoCollector(),
	)
	return m
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// RunStarted marks the detector busy.
func (m *Metrics) RunStarted() {
	if m == nil {
		return
	}
	m.detectorBusy.Set(1)
	m.runProgress.Set(0)
}

// RunFinished records the final status and duration of a run.
func (m *Metrics) RunFinished(status string, d time.Duration) {
	if m == nil {
		return
	}
	m.runs.WithLabelValues(status).Inc()
	m.runDuration.Observe(d.Seconds())
	m.detectorBusy.Set(0)
}

// RunRejected counts a run that never started ("busy" or "invalid_input").
func (m *Metrics) RunRejected(reason string) {
	if m == nil {
		return
	}
	m.rejections.WithLabelValues(reason).Inc()
}

// FrameProcessed records one frame and the categories of its instances.
func (m *Metrics) FrameProcessed(d time.Duration, categories []string, progress float64) {
	if m == nil {
		return
	}
	m.frames.Inc()
	m.frameDuration.Observe(d.Seconds())
	for _, c := range categories {
		m.hands.WithLabelValues(c).Inc()
	}
	m.runProgress.Set(progress)
}

// SampleProcess updates the process gauges every interval until ctx is done.
func (m *Metrics) SampleProcess(ctx context.Context, interval time.Duration, log *logger.Logger) {
	if m == nil {
		return
	}
	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		log.Warn("process metrics disabled", "error", err)
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		m.sample(proc)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (m *Metrics) sample(proc *process.Process) {
	if mem, err := proc.MemoryInfo(); err == nil {
		m.memoryRSS.Set(float64(mem.RSS))
	}
	if cpu, err := proc.CPUPercent(); err == nil {
		m.cpuPercent.Set(cpu)
	}
}
