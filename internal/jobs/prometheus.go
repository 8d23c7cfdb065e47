package jobs

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PromMetrics exports job lifecycle counters, labeled by queue.
type PromMetrics struct {
	completed    *prometheus.CounterVec
	failed       *prometheus.CounterVec
	deadLettered *prometheus.CounterVec
	stalled      *prometheus.CounterVec
}

// NewPromMetrics registers the job counters with the given registerer.
func NewPromMetrics(reg prometheus.Registerer) *PromMetrics {
	factory := promauto.With(reg)
	return &PromMetrics{
		completed: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "jobs_completed_total",
			Help: "Jobs completed successfully, by queue.",
		}, []string{"queue"}),
		failed: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "jobs_failed_attempts_total",
			Help: "Failed job attempts, including retried ones, by queue.",
		}, []string{"queue"}),
		deadLettered: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "jobs_dead_lettered_total",
			Help: "Jobs moved to the dead-letter queue, by queue.",
		}, []string{"queue"}),
		stalled: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "jobs_stalled_total",
			Help: "Jobs requeued after their worker stalled, by queue.",
		}, []string{"queue"}),
	}
}

func (m *PromMetrics) JobCompleted(t Type)    { m.completed.WithLabelValues(string(t)).Inc() }
func (m *PromMetrics) JobFailed(t Type)       { m.failed.WithLabelValues(string(t)).Inc() }
func (m *PromMetrics) JobDeadLettered(t Type) { m.deadLettered.WithLabelValues(string(t)).Inc() }
func (m *PromMetrics) JobStalled(t Type)      { m.stalled.WithLabelValues(string(t)).Inc() }
