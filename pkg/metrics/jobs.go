package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// JobMetrics tracks scheduled maintenance job outcomes.
type JobMetrics struct {
	runs      *prometheus.CounterVec
	durations *prometheus.HistogramVec
}

// NewJobMetrics registers the job metrics on the provided registerer.
func NewJobMetrics(reg prometheus.Registerer) *JobMetrics {
	if reg == nil {
		return &JobMetrics{}
	}
	runs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "maintenance_job_runs_total",
		Help: "Maintenance job runs by job and outcome.",
	}, []string{"job", "outcome"})
	durations := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "maintenance_job_duration_seconds",
		Help:    "Maintenance job run durations.",
		Buckets: []float64{0.1, 0.5, 1, 5, 15, 60, 300},
	}, []string{"job"})
	reg.MustRegister(runs, durations)
	return &JobMetrics{runs: runs, durations: durations}
}

// IncSuccess counts one successful run for the job.
func (m *JobMetrics) IncSuccess(job string) {
	if m == nil || m.runs == nil {
		return
	}
	m.runs.WithLabelValues(normalizeLabel(job), "success").Inc()
}

// IncFailure counts one failed run for the job.
func (m *JobMetrics) IncFailure(job string) {
	if m == nil || m.runs == nil {
		return
	}
	m.runs.WithLabelValues(normalizeLabel(job), "failure").Inc()
}

// ObserveDuration records how long a job run took.
func (m *JobMetrics) ObserveDuration(job string, duration time.Duration) {
	if m == nil || m.durations == nil {
		return
	}
	m.durations.WithLabelValues(normalizeLabel(job)).Observe(duration.Seconds())
}
