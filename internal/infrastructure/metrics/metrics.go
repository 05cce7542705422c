// Package metrics exposes the audit pipeline's Prometheus collectors on a
// private registry.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "tubeaudit"

// Metrics methods are safe on a nil receiver so callers can run without
// instrumentation.
type Metrics struct {
	registry *prometheus.Registry

	jobsCreated    *prometheus.CounterVec
	jobsFinished   *prometheus.CounterVec
	stageDuration  *prometheus.HistogramVec
	jobsInProgress prometheus.Gauge
	sweepDeleted   *prometheus.CounterVec
	dispatchErrors *prometheus.CounterVec
}

func New() *Metrics {
	m := &Metrics{registry: prometheus.NewRegistry()}

	m.jobsCreated = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_created_total",
			Help:      "Audit jobs created, by dispatch mode.",
		},
		[]string{"mode"},
	)
	m.jobsFinished = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_finished_total",
			Help:      "Audit jobs that reached a terminal status.",
		},
		[]string{"status"},
	)
	// Fetching large channels can take minutes.
	m.stageDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_duration_seconds",
			Help:      "Pipeline stage duration.",
			Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300, 600},
		},
		[]string{"stage"},
	)
	m.jobsInProgress = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "jobs_in_progress",
		Help:      "Pipelines currently running in this process.",
	})
	m.sweepDeleted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sweep_deleted_total",
			Help:      "Rows and blobs removed by the retention sweeper.",
		},
		[]string{"kind"},
	)
	m.dispatchErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dispatch_errors_total",
			Help:      "Jobs that could not be handed to the dispatcher.",
		},
		[]string{"mode"},
	)

	m.registry.MustRegister(
		m.jobsCreated,
		m.jobsFinished,
		m.stageDuration,
		m.jobsInProgress,
		m.sweepDeleted,
		m.dispatchErrors,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

func (m *Metrics) JobCreated(mode string) {
	if m == nil {
		return
	}
	m.jobsCreated.WithLabelValues(mode).Inc()
}

func (m *Metrics) JobFinished(status string) {
	if m == nil {
		return
	}
	m.jobsFinished.WithLabelValues(status).Inc()
}

func (m *Metrics) ObserveStage(stage string, d time.Duration) {
	if m == nil {
		return
	}
	m.stageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

// TrackRun increments the in-progress gauge and returns the matching decrement.
func (m *Metrics) TrackRun() func() {
	if m == nil {
		return func() {}
	}
	m.jobsInProgress.Inc()
	return m.jobsInProgress.Dec
}

// SweepDeleted records removals; kind is "job" or "artifact".
func (m *Metrics) SweepDeleted(kind string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.sweepDeleted.WithLabelValues(kind).Add(float64(n))
}

func (m *Metrics) DispatchError(mode string) {
	if m == nil {
		return
	}
	m.dispatchErrors.WithLabelValues(mode).Inc()
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
