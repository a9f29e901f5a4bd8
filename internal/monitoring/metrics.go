package monitoring

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the worker
type Metrics struct {
	// Sandbox metrics
	SandboxesActive     prometheus.Gauge
	SandboxesReady      prometheus.Gauge
	SandboxesCreated    prometheus.Counter
	SandboxesFailed     *prometheus.CounterVec
	SandboxReplacements prometheus.Counter

	// Job metrics
	JobsReceived  prometheus.Counter
	JobsDeduped   prometheus.Counter
	JobsCompleted *prometheus.CounterVec
	RunsInFlight  prometheus.Gauge

	// Latency metrics
	RunDuration prometheus.Histogram
	AcquireWait prometheus.Histogram

	// System metrics
	Uptime    prometheus.Gauge
	startTime time.Time
}

// NewMetrics creates a new metrics collector
func NewMetrics() *Metrics {
	m := &Metrics{
		startTime: time.Now(),

		SandboxesActive: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "worker_sandboxes_active",
				Help: "Number of sandbox instances owned by the pool",
			},
		),
		SandboxesReady: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "worker_sandboxes_ready",
				Help: "Number of sandbox instances currently ready",
			},
		),
		SandboxesCreated: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "worker_sandboxes_created_total",
				Help: "Total number of sandbox instances created",
			},
		),
		SandboxesFailed: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "worker_sandboxes_failed_total",
				Help: "Total number of sandbox instance failures",
			},
			[]string{"reason"},
		),
		SandboxReplacements: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "worker_sandbox_replacements_total",
				Help: "Total number of background sandbox replacements",
			},
		),

		JobsReceived: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "worker_jobs_received_total",
				Help: "Total number of job deliveries received",
			},
		),
		JobsDeduped: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "worker_jobs_deduped_total",
				Help: "Total number of redeliveries discarded as in-flight",
			},
		),
		JobsCompleted: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "worker_jobs_completed_total",
				Help: "Total number of jobs by outcome",
			},
			[]string{"outcome"},
		),
		RunsInFlight: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "worker_runs_in_flight",
				Help: "Number of runs currently executing",
			},
		),

		RunDuration: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "worker_run_duration_seconds",
				Help:    "Run duration from acquisition to terminal state",
				Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10, 30, 60, 120, 300},
			},
		),
		AcquireWait: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "worker_acquire_wait_seconds",
				Help:    "Time spent waiting for a ready sandbox",
				Buckets: []float64{.001, .005, .01, .05, .1, .5, 1, 5, 10, 30},
			},
		),

		Uptime: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "worker_uptime_seconds",
				Help: "Worker uptime in seconds",
			},
		),
	}

	go m.updateUptime()

	return m
}

// updateUptime continuously updates the uptime metric
func (m *Metrics) updateUptime() {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for range ticker.C {
		m.Uptime.Set(time.Since(m.startTime).Seconds())
	}
}

// All record helpers are nil-safe so components can run without a
// collector in tests.

// SetSandboxCounts updates the pool size gauges
func (m *Metrics) SetSandboxCounts(active, ready int) {
	if m == nil {
		return
	}
	m.SandboxesActive.Set(float64(active))
	m.SandboxesReady.Set(float64(ready))
}

// IncSandboxesCreated increments the created counter
func (m *Metrics) IncSandboxesCreated() {
	if m == nil {
		return
	}
	m.SandboxesCreated.Inc()
}

// RecordSandboxFailure records a sandbox instance failure
func (m *Metrics) RecordSandboxFailure(reason string) {
	if m == nil {
		return
	}
	m.SandboxesFailed.WithLabelValues(reason).Inc()
}

// IncSandboxReplacements increments the replacement counter
func (m *Metrics) IncSandboxReplacements() {
	if m == nil {
		return
	}
	m.SandboxReplacements.Inc()
}

// IncJobsReceived increments the received counter
func (m *Metrics) IncJobsReceived() {
	if m == nil {
		return
	}
	m.JobsReceived.Inc()
}

// IncJobsDeduped increments the dedup counter
func (m *Metrics) IncJobsDeduped() {
	if m == nil {
		return
	}
	m.JobsDeduped.Inc()
}

// RecordJobOutcome records a completed job and its run duration
func (m *Metrics) RecordJobOutcome(outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	m.JobsCompleted.WithLabelValues(outcome).Inc()
	m.RunDuration.Observe(duration.Seconds())
}

// RecordAcquireWait records time spent waiting for a sandbox
func (m *Metrics) RecordAcquireWait(wait time.Duration) {
	if m == nil {
		return
	}
	m.AcquireWait.Observe(wait.Seconds())
}

// SetRunsInFlight updates the in-flight run gauge
func (m *Metrics) SetRunsInFlight(count int) {
	if m == nil {
		return
	}
	m.RunsInFlight.Set(float64(count))
}
