package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/fabworks-io/fabworks/internal/queue"
	"github.com/fabworks-io/fabworks/pkg/logger"
)

// Processor executes jobs of one type. Process returns a Result for both
// business success and business failure; it returns a non-nil error only
// for infrastructure failures that should go through the retry cycle.
type Processor interface {
	Type() Type
	Process(ctx context.Context, job queue.Job) (Result, error)
}

// Succeed builds a successful Result with the elapsed duration.
func Succeed(data any, started time.Time) Result {
	return Result{
		Success:  true,
		Data:     data,
		Duration: time.Since(started),
	}
}

// Fail builds a business-failure Result. The job still completes: business
// failures are final and must not be retried.
func Fail(code, message string, details any, started time.Time) Result {
	return Result{
		Success: false,
		Error: &ResultError{
			Code:    code,
			Message: message,
			Details: details,
		},
		Duration: time.Since(started),
	}
}

// Cancelled reports whether the job was flagged for cancellation while
// running. Processors check this between stages and abandon work when set.
func Cancelled(job queue.Job) bool {
	return IsCancelled(job.Data())
}

// Report writes a milestone progress update to the job and appends it to
// the job log. Progress failures are swallowed: losing an update must not
// fail the job.
func Report(ctx context.Context, job queue.Job, pct int, message, step string) {
	_ = job.SetProgress(ctx, queue.Progress{
		Percentage: pct,
		Message:    message,
		Step:       step,
	})
	_ = job.Log(ctx, fmt.Sprintf("%s (%d%%)", message, pct))
}

// HandlerFor adapts a Processor to the queue's Handler contract. Panics are
// converted to errors so a panicking attempt goes through the normal retry
// cycle instead of killing the worker.
func HandlerFor(p Processor, log *slog.Logger) queue.Handler {
	log = log.With(logger.Scope("jobs." + string(p.Type())))
	return func(ctx context.Context, job queue.Job) (result any, err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("processor panic: %v", r)
				log.Error("processor panicked",
					slog.String("job_id", job.ID()),
					slog.Any("panic", r))
			}
		}()

		log.Info("processing job",
			slog.String("job_id", job.ID()),
			slog.Int("attempt", job.AttemptsMade()+1))

		res, err := p.Process(ctx, job)
		if err != nil {
			return nil, err
		}

		if res.Success {
			log.Info("job processed",
				slog.String("job_id", job.ID()),
				slog.Duration("duration", res.Duration))
		} else {
			code := ""
			if res.Error != nil {
				code = res.Error.Code
			}
			log.Warn("job finished with business failure",
				slog.String("job_id", job.ID()),
				slog.String("error_code", code),
				slog.Duration("duration", res.Duration))
		}
		return res, nil
	}
}
