// Package jobmetrics instruments background jobs. A nil *Metrics is valid and
// records nothing, so job structs can be built without a registry in tests.
package jobmetrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Run outcomes.
const (
	StatusSuccess = "success"
	StatusFailure = "failure"
	// StatusSkipped marks a run that found another replica holding the job lock.
	StatusSkipped = "skipped"
)

// Metrics exposes Prometheus collectors for background jobs.
type Metrics struct {
	runs        *prometheus.CounterVec
	duration    *prometheus.HistogramVec
	lastSuccess *prometheus.GaugeVec
	findings    *prometheus.GaugeVec
	affected    *prometheus.CounterVec
}

// NewMetrics registers the job collectors on registerer.
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	m := &Metrics{
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "steelworks_jobs_total",
			Help: "Job runs by job name and status (success, failure, skipped).",
		}, []string{"job", "status"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "steelworks_job_duration_seconds",
			Help:    "Duration of job runs that did work.",
			Buckets: []float64{.1, .5, 1, 5, 15, 30, 60, 120, 300},
		}, []string{"job"}),
		lastSuccess: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "steelworks_job_last_success_timestamp_seconds",
			Help: "Unix time of the last successful run per job.",
		}, []string{"job"}),
		findings: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "steelworks_integrity_findings",
			Help: "Rows flagged by the last dispatch integrity scan, by check.",
		}, []string{"check"}),
		affected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "steelworks_job_rows_affected_total",
			Help: "Rows changed by maintenance jobs.",
		}, []string{"job"}),
	}
	registerer.MustRegister(m.runs, m.duration, m.lastSuccess, m.findings, m.affected)
	return m
}

// Tracker measures one job run.
type Tracker struct {
	metrics *Metrics
	job     string
	start   time.Time
	now     func() time.Time
}

// Track starts timing a run of job.
func (m *Metrics) Track(job string) *Tracker {
	return &Tracker{metrics: m, job: job, start: time.Now(), now: time.Now}
}

// End records the outcome of err and returns err unchanged.
func (t *Tracker) End(err error) error {
	if t.metrics == nil {
		return err
	}
	status := StatusSuccess
	if err != nil {
		status = StatusFailure
	}
	end := t.now()
	t.metrics.runs.WithLabelValues(t.job, status).Inc()
	t.metrics.duration.WithLabelValues(t.job).Observe(end.Sub(t.start).Seconds())
	if err == nil {
		t.metrics.lastSuccess.WithLabelValues(t.job).Set(float64(end.Unix()))
	}
	return err
}

// Skip records a run that did no work because the job lock was held elsewhere.
func (t *Tracker) Skip() {
	if t.metrics == nil {
		return
	}
	t.metrics.runs.WithLabelValues(t.job, StatusSkipped).Inc()
}

// SetFindings records how many rows the last integrity scan flagged for check.
func (m *Metrics) SetFindings(check string, count int) {
	if m == nil {
		return
	}
	m.findings.WithLabelValues(check).Set(float64(count))
}

// AddAffected counts rows a maintenance job changed, e.g. purged keys.
func (m *Metrics) AddAffected(job string, rows int64) {
	if m == nil || rows <= 0 {
		return
	}
	m.affected.WithLabelValues(job).Add(float64(rows))
}
