package jobs

import (
	"context"
	"log/slog"
	"time"

	"github.com/fabworks-io/fabworks/internal/queue"
	"github.com/fabworks-io/fabworks/pkg/apperror"
	"github.com/fabworks-io/fabworks/pkg/logger"
)

// recentSample caps how many recent completed jobs feed the average
// processing time.
const recentSample = 100

// unhealthyFailedRate is the failed-percentage threshold above which a
// queue is reported unhealthy.
const unhealthyFailedRate = 50.0

// QueueHealth is one queue's entry in a health report.
type QueueHealth struct {
	Healthy    bool    `json:"healthy"`
	Paused     bool    `json:"paused"`
	FailedRate float64 `json:"failedRate"`
}

// HealthReport aggregates per-queue health into one verdict.
type HealthReport struct {
	Healthy bool                 `json:"healthy"`
	Queues  map[Type]QueueHealth `json:"queues"`
}

// MetricsService computes point-in-time queue metrics and health.
type MetricsService struct {
	set *QueueSet
	log *slog.Logger
}

func NewMetricsService(set *QueueSet, log *slog.Logger) *MetricsService {
	return &MetricsService{
		set: set,
		log: log.With(logger.Scope("jobs.metrics")),
	}
}

// QueueMetrics returns the metrics snapshot of one queue.
func (m *MetricsService) QueueMetrics(ctx context.Context, t Type) (*QueueMetrics, error) {
	q, ok := m.set.Get(t)
	if !ok {
		return nil, apperror.NewQueueNotFound(string(t))
	}

	counts, err := q.Counts(ctx)
	if err != nil {
		return nil, err
	}
	paused, err := q.IsPaused(ctx)
	if err != nil {
		return nil, err
	}

	completedRate, failedRate := rates(counts)

	avg, err := m.avgProcessingTime(ctx, q)
	if err != nil {
		return nil, err
	}

	return &QueueMetrics{
		Queue:             t,
		Counts:            counts,
		Paused:            paused,
		CompletedRate:     completedRate,
		FailedRate:        failedRate,
		AvgProcessingTime: avg,
	}, nil
}

// rates returns the completed and failed percentages of terminal jobs.
// Both are zero when nothing has finished yet.
func rates(counts queue.Counts) (completed, failed float64) {
	total := counts.Completed + counts.Failed
	if total == 0 {
		return 0, 0
	}
	return float64(counts.Completed) / float64(total) * 100,
		float64(counts.Failed) / float64(total) * 100
}

// avgProcessingTime averages wall time over the most recent completed jobs
// that carry both processing timestamps.
func (m *MetricsService) avgProcessingTime(ctx context.Context, q queue.Queue) (time.Duration, error) {
	recent, err := q.GetJobs(ctx, []queue.State{queue.StateCompleted}, 0, recentSample)
	if err != nil {
		return 0, err
	}

	var total time.Duration
	var n int
	for _, job := range recent {
		started, finished := job.ProcessedOn(), job.FinishedOn()
		if started == nil || finished == nil {
			continue
		}
		total += finished.Sub(*started)
		n++
	}
	if n == 0 {
		return 0, nil
	}
	return total / time.Duration(n), nil
}

// AllMetrics returns metrics for every queue, in Types() order.
func (m *MetricsService) AllMetrics(ctx context.Context) ([]QueueMetrics, error) {
	out := make([]QueueMetrics, 0, len(Types()))
	for _, t := range Types() {
		qm, err := m.QueueMetrics(ctx, t)
		if err != nil {
			return nil, err
		}
		out = append(out, *qm)
	}
	return out, nil
}

// HealthCheck reports each queue healthy when it is not paused and its
// failed rate is below the threshold.
func (m *MetricsService) HealthCheck(ctx context.Context) (*HealthReport, error) {
	report := &HealthReport{
		Healthy: true,
		Queues:  make(map[Type]QueueHealth, len(Types())),
	}
	for _, t := range Types() {
		qm, err := m.QueueMetrics(ctx, t)
		if err != nil {
			return nil, err
		}
		healthy := !qm.Paused && qm.FailedRate < unhealthyFailedRate
		report.Queues[t] = QueueHealth{
			Healthy:    healthy,
			Paused:     qm.Paused,
			FailedRate: qm.FailedRate,
		}
		if !healthy {
			report.Healthy = false
		}
	}
	return report, nil
}
