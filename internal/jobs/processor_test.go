package jobs

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fabworks-io/fabworks/internal/queue"
	"github.com/fabworks-io/fabworks/pkg/logger"
)

type stubProcessor struct {
	jobType Type
	fn      func(ctx context.Context, job queue.Job) (Result, error)
}

func (p *stubProcessor) Type() Type { return p.jobType }
func (p *stubProcessor) Process(ctx context.Context, job queue.Job) (Result, error) {
	return p.fn(ctx, job)
}

func TestSucceedAndFail(t *testing.T) {
	started := time.Now().Add(-100 * time.Millisecond)

	res := Succeed(map[string]any{"n": 1}, started)
	assert.True(t, res.Success)
	assert.Nil(t, res.Error)
	assert.GreaterOrEqual(t, res.Duration, 100*time.Millisecond)

	res = Fail("FILE_ANALYSIS_FAILED", "Analysis failed", map[string]any{"fileId": "f-1"}, started)
	assert.False(t, res.Success)
	require.NotNil(t, res.Error)
	assert.Equal(t, "FILE_ANALYSIS_FAILED", res.Error.Code)
	assert.Equal(t, "Analysis failed", res.Error.Message)
	assert.GreaterOrEqual(t, res.Duration, 100*time.Millisecond)
}

func TestHandlerFor_BusinessFailureCompletesJob(t *testing.T) {
	ctx := context.Background()
	q := queue.NewMemoryQueue("test", queue.WithPollInterval(5*time.Millisecond))
	t.Cleanup(func() { _ = q.Close() })

	proc := &stubProcessor{jobType: TypeEmailNotification, fn: func(ctx context.Context, job queue.Job) (Result, error) {
		return Fail("EMAIL_SEND_FAILED", "Recipient rejected", nil, time.Now()), nil
	}}
	q.Process(1, HandlerFor(proc, logger.NewLogger()))
	require.NoError(t, q.Start(ctx))

	job, err := q.Add(ctx, "email-notification", nil, queue.Options{Attempts: 3})
	require.NoError(t, err)

	// business failures are final: the job completes without retries
	require.Eventually(t, func() bool {
		state, err := job.State(ctx)
		return err == nil && state == queue.StateCompleted
	}, time.Second, 5*time.Millisecond)

	assert.Equal(t, 1, job.AttemptsMade())
	res, ok := job.ReturnValue().(Result)
	require.True(t, ok)
	assert.False(t, res.Success)
	assert.Equal(t, "EMAIL_SEND_FAILED", res.Error.Code)
}

func TestHandlerFor_InfrastructureErrorRetries(t *testing.T) {
	ctx := context.Background()
	q := queue.NewMemoryQueue("test", queue.WithPollInterval(5*time.Millisecond))
	t.Cleanup(func() { _ = q.Close() })

	proc := &stubProcessor{jobType: TypeFileAnalysis, fn: func(ctx context.Context, job queue.Job) (Result, error) {
		return Result{}, errors.New("connection refused")
	}}
	q.Process(1, HandlerFor(proc, logger.NewLogger()))
	require.NoError(t, q.Start(ctx))

	job, err := q.Add(ctx, "file-analysis", nil, queue.Options{
		Attempts: 2,
		Backoff:  queue.Backoff{Kind: queue.BackoffFixed, Delay: time.Millisecond},
	})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		state, err := job.State(ctx)
		return err == nil && state == queue.StateFailed
	}, time.Second, 5*time.Millisecond)

	assert.Equal(t, 2, job.AttemptsMade())
	assert.Equal(t, "connection refused", job.FailedReason())
}

func TestHandlerFor_PanicBecomesRetryableError(t *testing.T) {
	ctx := context.Background()
	q := queue.NewMemoryQueue("test", queue.WithPollInterval(5*time.Millisecond))
	t.Cleanup(func() { _ = q.Close() })

	proc := &stubProcessor{jobType: TypeFileAnalysis, fn: func(ctx context.Context, job queue.Job) (Result, error) {
		panic("nil dereference somewhere")
	}}
	q.Process(1, HandlerFor(proc, logger.NewLogger()))
	require.NoError(t, q.Start(ctx))

	job, err := q.Add(ctx, "file-analysis", nil, queue.Options{Attempts: 1})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		state, err := job.State(ctx)
		return err == nil && state == queue.StateFailed
	}, time.Second, 5*time.Millisecond)

	assert.Contains(t, job.FailedReason(), "processor panic")
}

func TestReportAndCancelled(t *testing.T) {
	ctx := context.Background()
	q := queue.NewMemoryQueue("test", queue.WithPollInterval(5*time.Millisecond))
	t.Cleanup(func() { _ = q.Close() })

	job, err := q.Add(ctx, "work", map[string]any{"k": "v"}, queue.Options{})
	require.NoError(t, err)

	Report(ctx, job, 30, "Analyzing file", "analyzing")
	progress, err := job.Progress(ctx)
	require.NoError(t, err)
	assert.Equal(t, 30, progress.Percentage)
	assert.Equal(t, "analyzing", progress.Step)

	assert.False(t, Cancelled(job))

	data := job.Data()
	data[FieldCancelled] = true
	require.NoError(t, job.Update(ctx, data))
	assert.True(t, Cancelled(job))
}
