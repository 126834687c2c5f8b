package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "microfin"

// EngineMetrics counts lifecycle transitions and sweep activity. A nil *EngineMetrics is a no-op.
type EngineMetrics struct {
	transitions   *prometheus.CounterVec
	moved         *prometheus.CounterVec
	sweepRecords  *prometheus.CounterVec
	jobDuration   *prometheus.HistogramVec
	jobRuns       *prometheus.CounterVec
	notifications *prometheus.CounterVec
}

// New registers the engine metrics on the provided registerer.
func New(reg prometheus.Registerer) *EngineMetrics {
	if reg == nil {
		return &EngineMetrics{}
	}
	m := &EngineMetrics{
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transitions_total",
			Help:      "Lifecycle transitions by entity and resulting status.",
		}, []string{"entity", "status"}),
		moved: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "moved_amount_total",
			Help:      "Amount moved between accounts by reason.",
		}, []string{"reason"}),
		sweepRecords: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sweep_records_total",
			Help:      "Records visited by sweeps by outcome.",
		}, []string{"sweep", "outcome"}),
		jobDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "job_duration_seconds",
			Help:      "Duration of scheduled jobs in seconds.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"job"}),
		jobRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "job_runs_total",
			Help:      "Scheduled job executions by result.",
		}, []string{"job", "result"}),
		notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_total",
			Help:      "Notification attempts by result.",
		}, []string{"result"}),
	}
	reg.MustRegister(m.transitions, m.moved, m.sweepRecords, m.jobDuration, m.jobRuns, m.notifications)
	return m
}

// Transition records an entity reaching status.
func (m *EngineMetrics) Transition(entity, status string) {
	if m == nil || m.transitions == nil {
		return
	}
	m.transitions.WithLabelValues(entity, status).Inc()
}

// Moved adds amount to the moved total for reason.
func (m *EngineMetrics) Moved(reason string, amount float64) {
	if m == nil || m.moved == nil {
		return
	}
	m.moved.WithLabelValues(reason).Add(amount)
}

// SweepRecord counts one record handled by a sweep.
func (m *EngineMetrics) SweepRecord(sweep, outcome string) {
	if m == nil || m.sweepRecords == nil {
		return
	}
	m.sweepRecords.WithLabelValues(normalizeLabel(sweep), outcome).Inc()
}

// ObserveJob records a scheduled job run.
func (m *EngineMetrics) ObserveJob(job string, duration time.Duration, err error) {
	if m == nil || m.jobDuration == nil {
		return
	}
	job = normalizeLabel(job)
	m.jobDuration.WithLabelValues(job).Observe(duration.Seconds())
	result := "success"
	if err != nil {
		result = "failure"
	}
	m.jobRuns.WithLabelValues(job, result).Inc()
}

// Notification counts a notification attempt.
func (m *EngineMetrics) Notification(err error) {
	if m == nil || m.notifications == nil {
		return
	}
	result := "delivered"
	if err != nil {
		result = "failed"
	}
	m.notifications.WithLabelValues(result).Inc()
}

func normalizeLabel(job string) string {
	if job == "" {
		return "unknown"
	}
	return job
}
