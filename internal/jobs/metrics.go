// Package jobmetrics instruments the billing sweeps run by the worker.
package jobmetrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	outcomeSuccess = "success"
	outcomeFailure = "failure"
)

// Metrics holds the collectors shared by every sweep.
type Metrics struct {
	runs        *prometheus.CounterVec
	failures    *prometheus.CounterVec
	duration    *prometheus.HistogramVec
	affected    *prometheus.CounterVec
	lastSuccess *prometheus.GaugeVec
	now         func() time.Time
}

var (
	defaultOnce    sync.Once
	defaultMetrics *Metrics
)

// NewMetrics registers the collectors. A nil registerer means the process-wide
// default registry, registered once.
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	if registerer != nil {
		return register(registerer, time.Now)
	}
	defaultOnce.Do(func() {
		defaultMetrics = register(prometheus.DefaultRegisterer, time.Now)
	})
	return defaultMetrics
}

// Run is one in-flight sweep execution.
type Run struct {
	metrics *Metrics
	job     string
	started time.Time
}

// Track starts timing a run of job. A nil Metrics yields a no-op Run.
func (m *Metrics) Track(job string) *Run {
	if m == nil {
		return &Run{job: job}
	}
	return &Run{metrics: m, job: job, started: m.now()}
}

// End records the run outcome and returns err unchanged.
func (r *Run) End(err error) error {
	if r == nil || r.metrics == nil || r.job == "" {
		return err
	}
	m := r.metrics
	finished := m.now()
	m.duration.WithLabelValues(r.job).Observe(finished.Sub(r.started).Seconds())
	if err != nil {
		m.failures.WithLabelValues(r.job).Inc()
		m.runs.WithLabelValues(r.job, outcomeFailure).Inc()
		return err
	}
	m.runs.WithLabelValues(r.job, outcomeSuccess).Inc()
	m.lastSuccess.WithLabelValues(r.job).Set(float64(finished.Unix()))
	return nil
}

// AddAffected adds the number of invoices or quotes a sweep changed.
func (m *Metrics) AddAffected(job string, count int) {
	if m == nil || count <= 0 {
		return
	}
	m.affected.WithLabelValues(job).Add(float64(count))
}

func register(registerer prometheus.Registerer, now func() time.Time) *Metrics {
	jobLabel := []string{"job"}
	m := &Metrics{
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "odyssey_jobs_total",
			Help: "Sweep executions by job and outcome.",
		}, []string{"job", "status"}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "odyssey_jobs_failures_total",
			Help: "Failed sweep executions by job.",
		}, jobLabel),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "odyssey_job_duration_seconds",
			Help:    "Sweep execution time in seconds.",
			Buckets: []float64{0.05, 0.1, 0.5, 1, 5, 15, 60, 300},
		}, jobLabel),
		affected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "odyssey_job_affected_documents_total",
			Help: "Invoices or quotes whose status a sweep changed.",
		}, jobLabel),
		lastSuccess: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "odyssey_job_last_success_timestamp_seconds",
			Help: "Unix time of the last successful sweep run.",
		}, jobLabel),
		now: now,
	}
	registerer.MustRegister(m.runs, m.failures, m.duration, m.affected, m.lastSuccess)
	return m
}
