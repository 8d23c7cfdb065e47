package jobs

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fabworks-io/fabworks/internal/queue"
	"github.com/fabworks-io/fabworks/pkg/logger"
)

func newMetricsEnv(t *testing.T) (*testEnv, *MetricsService) {
	t.Helper()
	env := newTestEnv(t)
	return env, NewMetricsService(env.set, logger.NewLogger())
}

func TestQueueMetrics_EmptyQueueHasZeroRates(t *testing.T) {
	ctx := context.Background()
	_, metrics := newMetricsEnv(t)

	qm, err := metrics.QueueMetrics(ctx, TypeFileAnalysis)
	require.NoError(t, err)

	assert.Equal(t, TypeFileAnalysis, qm.Queue)
	assert.Equal(t, queue.Counts{}, qm.Counts)
	assert.False(t, qm.Paused)
	assert.Zero(t, qm.CompletedRate)
	assert.Zero(t, qm.FailedRate)
	assert.Zero(t, qm.AvgProcessingTime)
}

func TestQueueMetrics_UnknownQueue(t *testing.T) {
	_, metrics := newMetricsEnv(t)

	_, err := metrics.QueueMetrics(context.Background(), Type("unknown"))
	require.Error(t, err)
}

func TestQueueMetrics_RatesAndAverage(t *testing.T) {
	ctx := context.Background()
	env, metrics := newMetricsEnv(t)

	env.process(t, TypeFileAnalysis, okHandler)

	for i := 0; i < 3; i++ {
		_, err := env.svc.Submit(ctx, TypeFileAnalysis,
			map[string]any{FieldTenantID: "tenant-a"}, SubmitOptions{Attempts: 1})
		require.NoError(t, err)
	}

	require.Eventually(t, func() bool {
		qm, err := metrics.QueueMetrics(ctx, TypeFileAnalysis)
		return err == nil && qm.Counts.Completed == 3
	}, time.Second, 5*time.Millisecond)

	qm, err := metrics.QueueMetrics(ctx, TypeFileAnalysis)
	require.NoError(t, err)
	assert.Equal(t, 100.0, qm.CompletedRate)
	assert.Zero(t, qm.FailedRate)
	assert.GreaterOrEqual(t, qm.AvgProcessingTime, time.Duration(0))
}

func TestRates(t *testing.T) {
	completed, failed := rates(queue.Counts{Completed: 3, Failed: 1})
	assert.Equal(t, 75.0, completed)
	assert.Equal(t, 25.0, failed)

	completed, failed = rates(queue.Counts{})
	assert.Zero(t, completed)
	assert.Zero(t, failed)
}

func TestAllMetrics(t *testing.T) {
	ctx := context.Background()
	_, metrics := newMetricsEnv(t)

	all, err := metrics.AllMetrics(ctx)
	require.NoError(t, err)
	require.Len(t, all, len(Types()))
	for i, jobType := range Types() {
		assert.Equal(t, jobType, all[i].Queue)
	}
}

func TestHealthCheck(t *testing.T) {
	ctx := context.Background()
	env, metrics := newMetricsEnv(t)

	report, err := metrics.HealthCheck(ctx)
	require.NoError(t, err)
	assert.True(t, report.Healthy)
	require.Len(t, report.Queues, len(Types()))

	// a paused queue makes the whole system unhealthy
	require.NoError(t, env.svc.PauseQueue(ctx, TypeEmailNotification))

	report, err = metrics.HealthCheck(ctx)
	require.NoError(t, err)
	assert.False(t, report.Healthy)
	assert.False(t, report.Queues[TypeEmailNotification].Healthy)
	assert.True(t, report.Queues[TypeEmailNotification].Paused)
	assert.True(t, report.Queues[TypeFileAnalysis].Healthy)
}
