// Package metrics exposes the service's Prometheus instrumentation. One
// Metrics value is created at startup, registered on a registry, and
// shared by the pipeline and the reaper.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds every collector the service registers.
type Metrics struct {
	ClaimsAcquired      prometheus.Counter
	ClaimConflicts      prometheus.Counter
	JobsCompleted       prometheus.Counter
	JobsFailed          prometheus.Counter
	ChunksStreamed      *prometheus.CounterVec
	JobDuration         prometheus.Histogram
	StaleClaimsReleased prometheus.Counter
}

// New creates the collectors and registers them on reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		ClaimsAcquired: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "skim",
			Subsystem: "pipeline",
			Name:      "claims_acquired_total",
			Help:      "Number of processing claims acquired.",
		}),
		ClaimConflicts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "skim",
			Subsystem: "pipeline",
			Name:      "claim_conflicts_total",
			Help:      "Number of claim attempts that found another worker holding the job.",
		}),
		JobsCompleted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "skim",
			Subsystem: "pipeline",
			Name:      "jobs_completed_total",
			Help:      "Number of digest jobs completed successfully.",
		}),
		JobsFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "skim",
			Subsystem: "pipeline",
			Name:      "jobs_failed_total",
			Help:      "Number of digest jobs that ended in a terminal error.",
		}),
		ChunksStreamed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "skim",
			Subsystem: "pipeline",
			Name:      "chunks_streamed_total",
			Help:      "Number of generation chunks forwarded to clients.",
		}, []string{"variant"}),
		JobDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "skim",
			Subsystem: "pipeline",
			Name:      "job_duration_seconds",
			Help:      "Wall-clock duration of processed digest jobs.",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600},
		}),
		StaleClaimsReleased: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "skim",
			Subsystem: "reaper",
			Name:      "stale_claims_released_total",
			Help:      "Number of abandoned processing claims released by the reaper.",
		}),
	}

	reg.MustRegister(
		m.ClaimsAcquired,
		m.ClaimConflicts,
		m.JobsCompleted,
		m.JobsFailed,
		m.ChunksStreamed,
		m.JobDuration,
		m.StaleClaimsReleased,
	)

	return m
}

// ObserveJobDuration records how long a job took to process.
func (m *Metrics) ObserveJobDuration(d time.Duration) {
	m.JobDuration.Observe(d.Seconds())
}
