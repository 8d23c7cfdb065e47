package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"maps"
	"time"

	"github.com/google/uuid"

	"github.com/fabworks-io/fabworks/internal/config"
	"github.com/fabworks-io/fabworks/internal/queue"
	"github.com/fabworks-io/fabworks/internal/tenant"
	"github.com/fabworks-io/fabworks/pkg/apperror"
	"github.com/fabworks-io/fabworks/pkg/logger"
)

// maxAttemptsReason is the reason recorded when a job is auto-escalated to
// the dead-letter queue after its last attempt.
const maxAttemptsReason = "Max attempts reached"

// Observer receives job lifecycle notifications for metrics export.
type Observer interface {
	JobCompleted(t Type)
	JobFailed(t Type)
	JobDeadLettered(t Type)
	JobStalled(t Type)
}

// NopObserver is an Observer that does nothing.
type NopObserver struct{}

func (NopObserver) JobCompleted(Type)    {}
func (NopObserver) JobFailed(Type)       {}
func (NopObserver) JobDeadLettered(Type) {}
func (NopObserver) JobStalled(Type)      {}

// QueueSet bundles one queue per job type plus the dead-letter queue.
type QueueSet struct {
	queues     map[Type]queue.Queue
	deadLetter queue.Queue
}

// NewQueueSet builds the set from a factory invoked once per queue name.
func NewQueueSet(newQueue func(name string) queue.Queue) *QueueSet {
	set := &QueueSet{queues: make(map[Type]queue.Queue)}
	for _, t := range Types() {
		set.queues[t] = newQueue(string(t))
	}
	set.deadLetter = newQueue(DeadLetterQueue)
	return set
}

// Get returns the queue for the given type.
func (s *QueueSet) Get(t Type) (queue.Queue, bool) {
	q, ok := s.queues[t]
	return q, ok
}

// DeadLetter returns the dead-letter queue.
func (s *QueueSet) DeadLetter() queue.Queue { return s.deadLetter }

// Start starts every queue in the set.
func (s *QueueSet) Start(ctx context.Context) error {
	for t, q := range s.queues {
		if err := q.Start(ctx); err != nil {
			return fmt.Errorf("start queue %s: %w", t, err)
		}
	}
	return s.deadLetter.Start(ctx)
}

// Close stops every queue in the set.
func (s *QueueSet) Close() error {
	var firstErr error
	for _, q := range s.queues {
		if err := q.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if err := s.deadLetter.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

// Service is the job system's front door: it accepts, schedules, inspects
// and manages jobs across every typed queue.
type Service struct {
	cfg      config.JobsConfig
	set      *QueueSet
	tracking TrackingStore
	observer Observer
	log      *slog.Logger
}

// NewService wires the service and subscribes it to every queue's lifecycle
// events.
func NewService(cfg *config.Config, set *QueueSet, tracking TrackingStore, observer Observer, log *slog.Logger) *Service {
	if observer == nil {
		observer = NopObserver{}
	}
	s := &Service{
		cfg:      cfg.Jobs,
		set:      set,
		tracking: tracking,
		observer: observer,
		log:      log.With(logger.Scope("jobs.service")),
	}
	for t, q := range set.queues {
		q.Subscribe(&queueListener{svc: s, jobType: t})
	}
	return s
}

// defaultOptions returns the configured system-wide job options.
func (s *Service) defaultOptions() queue.Options {
	return queue.Options{
		Attempts: s.cfg.DefaultAttempts,
		Backoff: queue.Backoff{
			Kind:  queue.BackoffExponential,
			Delay: s.cfg.BackoffDelay,
		},
		RemoveOnComplete: s.cfg.RemoveOnComplete,
		RemoveOnFail:     s.cfg.RemoveOnFail,
	}
}

// resolveOptions merges per-submission overrides over the defaults.
func (s *Service) resolveOptions(opts SubmitOptions) queue.Options {
	resolved := s.defaultOptions()
	if opts.Attempts > 0 {
		resolved.Attempts = opts.Attempts
	}
	if opts.Backoff.Delay > 0 || opts.Backoff.Kind != "" {
		resolved.Backoff = opts.Backoff
	}
	if opts.RemoveOnComplete > 0 {
		resolved.RemoveOnComplete = opts.RemoveOnComplete
	}
	if opts.RemoveOnFail > 0 {
		resolved.RemoveOnFail = opts.RemoveOnFail
	}
	resolved.Priority = opts.Priority
	resolved.Timeout = opts.Timeout
	return resolved
}

// resolveTenant returns the tenant id from the payload, falling back to the
// ambient request context.
func (s *Service) resolveTenant(ctx context.Context, payload map[string]any) (string, error) {
	if id := TenantIDOf(payload); id != "" {
		return id, nil
	}
	if id, ok := tenant.FromContext(ctx); ok {
		return id, nil
	}
	return "", apperror.ErrMissingTenant
}

// Submit queues a job for immediate processing and returns its receipt.
func (s *Service) Submit(ctx context.Context, t Type, payload map[string]any, opts SubmitOptions) (*Submission, error) {
	return s.submit(ctx, t, payload, opts, 0)
}

// Schedule queues a job that becomes eligible after the given delay.
func (s *Service) Schedule(ctx context.Context, t Type, payload map[string]any, delay time.Duration, opts SubmitOptions) (*Submission, error) {
	return s.submit(ctx, t, payload, opts, delay)
}

func (s *Service) submit(ctx context.Context, t Type, payload map[string]any, opts SubmitOptions, delay time.Duration) (*Submission, error) {
	q, ok := s.set.Get(t)
	if !ok {
		return nil, apperror.NewQueueNotFound(string(t))
	}

	tenantID, err := s.resolveTenant(ctx, payload)
	if err != nil {
		return nil, err
	}

	now := time.Now()

	data := maps.Clone(payload)
	if data == nil {
		data = make(map[string]any)
	}

	// keep a caller-supplied correlation id so traces survive across systems
	correlationID, _ := data[FieldCorrelationID].(string)
	if correlationID == "" {
		correlationID = uuid.NewString()
	}

	data[FieldTenantID] = tenantID
	data[FieldCorrelationID] = correlationID
	data[FieldSubmittedAt] = now.UTC().Format(time.RFC3339Nano)

	resolved := s.resolveOptions(opts)
	resolved.Delay = delay

	job, err := q.Add(ctx, string(t), data, resolved)
	if err != nil {
		return nil, apperror.NewInternal(fmt.Sprintf("failed to queue %s job", t), err)
	}

	entry := TrackingEntry{Type: t, TenantID: tenantID}
	if err := s.tracking.Track(ctx, job.ID(), entry); err != nil {
		// status lookups fall back to scanning, so tracking failures do
		// not fail the submission
		s.log.Warn("job tracking write failed",
			slog.String("job_id", job.ID()),
			logger.Error(err))
	}

	s.log.Info("job queued",
		slog.String("job_id", job.ID()),
		slog.String("job_type", string(t)),
		slog.String("tenant_id", tenantID),
		slog.String("correlation_id", correlationID),
		slog.Duration("delay", delay))

	return &Submission{
		JobID:         job.ID(),
		Type:          t,
		TenantID:      tenantID,
		CorrelationID: correlationID,
		QueuedAt:      now,
	}, nil
}

// ScheduleRecurring registers a recurring job for the tenant on the given
// cron schedule. The registration is keyed by type and tenant, so
// re-registering replaces the previous schedule instead of stacking.
func (s *Service) ScheduleRecurring(ctx context.Context, t Type, payload map[string]any, cronExpr string) error {
	q, ok := s.set.Get(t)
	if !ok {
		return apperror.NewQueueNotFound(string(t))
	}

	tenantID, err := s.resolveTenant(ctx, payload)
	if err != nil {
		return err
	}

	data := maps.Clone(payload)
	if data == nil {
		data = make(map[string]any)
	}
	data[FieldTenantID] = tenantID

	name := fmt.Sprintf("%s-recurring-%s", t, tenantID)
	if err := q.AddRepeatable(ctx, name, data, cronExpr, s.defaultOptions()); err != nil {
		return apperror.NewBadRequest(fmt.Sprintf("Invalid recurring schedule for %s", t)).WithInternal(err)
	}

	s.log.Info("recurring job registered",
		slog.String("job_name", name),
		slog.String("tenant_id", tenantID),
		slog.String("cron", cronExpr))
	return nil
}

// findJob locates a job by id: first through the tracking index, then by
// scanning every queue. Returns (nil, "", nil) when the job does not exist.
func (s *Service) findJob(ctx context.Context, jobID string) (queue.Job, Type, error) {
	entry, err := s.tracking.Lookup(ctx, jobID)
	if err != nil {
		s.log.Warn("job tracking lookup failed",
			slog.String("job_id", jobID),
			logger.Error(err))
	}
	if entry != nil {
		if q, ok := s.set.Get(entry.Type); ok {
			job, err := q.GetJob(ctx, jobID)
			if err != nil {
				return nil, "", err
			}
			if job != nil {
				return job, entry.Type, nil
			}
		}
	}

	for _, t := range Types() {
		q, ok := s.set.Get(t)
		if !ok {
			continue
		}
		job, err := q.GetJob(ctx, jobID)
		if err != nil {
			return nil, "", err
		}
		if job != nil {
			return job, t, nil
		}
	}
	return nil, "", nil
}

// Status returns the status snapshot of a job, or nil if it does not exist.
func (s *Service) Status(ctx context.Context, jobID string) (*StatusView, error) {
	job, t, err := s.findJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job == nil {
		return nil, nil
	}
	return s.statusView(ctx, t, job)
}

func (s *Service) statusView(ctx context.Context, t Type, job queue.Job) (*StatusView, error) {
	state, err := job.State(ctx)
	if err != nil {
		return nil, err
	}
	progress, err := job.Progress(ctx)
	if err != nil {
		return nil, err
	}

	return &StatusView{
		ID:           job.ID(),
		Type:         t,
		Status:       StatusOf(state),
		Progress:     progress,
		Data:         job.Data(),
		Result:       job.ReturnValue(),
		FailedReason: job.FailedReason(),
		AttemptsMade: job.AttemptsMade(),
		CreatedAt:    job.CreatedAt(),
		ProcessedOn:  job.ProcessedOn(),
		FinishedOn:   job.FinishedOn(),
	}, nil
}

// Cancel cancels a job. Jobs that are already processing are flagged for
// cooperative cancellation through their payload; anything else is removed
// outright.
func (s *Service) Cancel(ctx context.Context, jobID string) error {
	job, t, err := s.findJob(ctx, jobID)
	if err != nil {
		return err
	}
	if job == nil {
		return apperror.NewNotFound("Job", jobID)
	}

	state, err := job.State(ctx)
	if err != nil {
		return err
	}

	if state == queue.StateActive {
		data := job.Data()
		data[FieldCancelled] = true
		if err := job.Update(ctx, data); err != nil {
			return apperror.NewInternal("failed to flag job for cancellation", err)
		}
		s.log.Info("job flagged for cancellation",
			slog.String("job_id", jobID),
			slog.String("job_type", string(t)))
		return nil
	}

	if err := job.Remove(ctx); err != nil {
		return apperror.NewInternal("failed to remove job", err)
	}
	s.log.Info("job cancelled",
		slog.String("job_id", jobID),
		slog.String("job_type", string(t)),
		slog.String("state", string(state)))
	return nil
}

// Retry re-enqueues a failed job. Jobs in any other state are rejected.
func (s *Service) Retry(ctx context.Context, jobID string) error {
	job, t, err := s.findJob(ctx, jobID)
	if err != nil {
		return err
	}
	if job == nil {
		return apperror.NewNotFound("Job", jobID)
	}

	state, err := job.State(ctx)
	if err != nil {
		return err
	}
	if state != queue.StateFailed {
		return apperror.NewInvalidState(
			fmt.Sprintf("Job %s is in %s state and cannot be retried", jobID, state))
	}

	if err := job.Retry(ctx); err != nil {
		return apperror.NewInternal("failed to retry job", err)
	}
	s.log.Info("job retried",
		slog.String("job_id", jobID),
		slog.String("job_type", string(t)))
	return nil
}

// MoveToDeadLetter moves a job onto the dead-letter queue, preserving its
// payload and failure history, and removes the original. A missing job is a
// no-op so escalation and manual moves never race each other into an error.
func (s *Service) MoveToDeadLetter(ctx context.Context, jobID, reason string) error {
	job, t, err := s.findJob(ctx, jobID)
	if err != nil {
		return err
	}
	if job == nil {
		s.log.Debug("dead-letter move skipped, job not found",
			slog.String("job_id", jobID))
		return nil
	}

	record := DeadLetterRecord{
		OriginalJob: DeadLetterJob{
			ID:           job.ID(),
			Name:         job.Name(),
			Data:         job.Data(),
			Opts:         job.Opts(),
			FailedReason: job.FailedReason(),
			Stacktrace:   job.Stacktrace(),
			AttemptsMade: job.AttemptsMade(),
		},
		Reason:  reason,
		MovedAt: time.Now(),
	}

	data, err := recordToPayload(record)
	if err != nil {
		return apperror.NewInternal("failed to encode dead-letter record", err)
	}
	if _, err := s.set.DeadLetter().Add(ctx, job.Name(), data, queue.Options{}); err != nil {
		return apperror.NewInternal("failed to enqueue dead-letter record", err)
	}
	if err := job.Remove(ctx); err != nil {
		return apperror.NewInternal("failed to remove dead-lettered job", err)
	}

	s.observer.JobDeadLettered(t)
	s.log.Warn("job moved to dead-letter queue",
		slog.String("job_id", jobID),
		slog.String("job_type", string(t)),
		slog.String("reason", reason))
	return nil
}

// recordToPayload flattens a DeadLetterRecord into a queue payload.
func recordToPayload(record DeadLetterRecord) (map[string]any, error) {
	raw, err := json.Marshal(record)
	if err != nil {
		return nil, err
	}
	var data map[string]any
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, err
	}
	return data, nil
}

// PauseQueue pauses processing on one queue.
func (s *Service) PauseQueue(ctx context.Context, t Type) error {
	q, ok := s.set.Get(t)
	if !ok {
		return apperror.NewQueueNotFound(string(t))
	}
	if err := q.Pause(ctx); err != nil {
		return apperror.NewInternal("failed to pause queue", err)
	}
	s.log.Info("queue paused", slog.String("job_type", string(t)))
	return nil
}

// ResumeQueue resumes processing on one queue.
func (s *Service) ResumeQueue(ctx context.Context, t Type) error {
	q, ok := s.set.Get(t)
	if !ok {
		return apperror.NewQueueNotFound(string(t))
	}
	if err := q.Resume(ctx); err != nil {
		return apperror.NewInternal("failed to resume queue", err)
	}
	s.log.Info("queue resumed", slog.String("job_type", string(t)))
	return nil
}

// CleanOld removes jobs older than grace in the given states and returns the
// removed job IDs. An empty type sweeps every queue; empty states default to
// completed and failed so active work is never cleaned by accident.
func (s *Service) CleanOld(ctx context.Context, t Type, grace time.Duration, states []queue.State) ([]string, error) {
	targets := Types()
	if t != "" {
		if _, ok := s.set.Get(t); !ok {
			return nil, apperror.NewQueueNotFound(string(t))
		}
		targets = []Type{t}
	}
	if len(states) == 0 {
		states = []queue.State{queue.StateCompleted, queue.StateFailed}
	}

	var removed []string
	for _, target := range targets {
		q, ok := s.set.Get(target)
		if !ok {
			continue
		}
		for _, state := range states {
			ids, err := q.Clean(ctx, grace, state)
			if err != nil {
				return removed, fmt.Errorf("clean %s jobs on %s: %w", state, target, err)
			}
			removed = append(removed, ids...)
		}
	}
	if len(removed) > 0 {
		s.log.Info("cleaned old jobs", slog.Int("removed", len(removed)))
	}
	return removed, nil
}

// defaultTenantPageSize caps tenant listings when the caller passes no limit.
const defaultTenantPageSize = 100

// JobsByTenant lists a tenant's jobs with offset/limit paging. An empty type
// scans every queue, an empty status matches every state, and a non-positive
// limit falls back to defaultTenantPageSize.
func (s *Service) JobsByTenant(ctx context.Context, t Type, tenantID string, status Status, offset, limit int) ([]StatusView, error) {
	targets := Types()
	if t != "" {
		if _, ok := s.set.Get(t); !ok {
			return nil, apperror.NewQueueNotFound(string(t))
		}
		targets = []Type{t}
	}

	states := queue.States()
	if status != "" {
		states = []queue.State{StateOf(status)}
		if status == StatusPending {
			states = append(states, queue.StatePaused)
		}
	}

	type tenantJob struct {
		jobType Type
		job     queue.Job
	}
	var matched []tenantJob
	for _, target := range targets {
		q, ok := s.set.Get(target)
		if !ok {
			continue
		}
		jobs, err := q.GetJobs(ctx, states, 0, 0)
		if err != nil {
			return nil, err
		}
		for _, job := range jobs {
			if TenantIDOf(job.Data()) == tenantID {
				matched = append(matched, tenantJob{jobType: target, job: job})
			}
		}
	}

	if offset > 0 {
		if offset >= len(matched) {
			return nil, nil
		}
		matched = matched[offset:]
	}
	if limit <= 0 {
		limit = defaultTenantPageSize
	}
	if len(matched) > limit {
		matched = matched[:limit]
	}

	views := make([]StatusView, 0, len(matched))
	for _, entry := range matched {
		view, err := s.statusView(ctx, entry.jobType, entry.job)
		if err != nil {
			return nil, err
		}
		views = append(views, *view)
	}
	return views, nil
}

// queueListener routes one queue's lifecycle events into logging, metrics
// and dead-letter escalation.
type queueListener struct {
	svc     *Service
	jobType Type
}

func (l *queueListener) OnCompleted(job queue.Job) {
	l.svc.observer.JobCompleted(l.jobType)
	l.svc.log.Debug("job completed",
		slog.String("job_id", job.ID()),
		slog.String("job_type", string(l.jobType)),
		slog.Int("attempts", job.AttemptsMade()))
}

func (l *queueListener) OnFailed(job queue.Job, err error) {
	l.svc.observer.JobFailed(l.jobType)

	attempts := job.Opts().Attempts
	if attempts <= 0 {
		attempts = l.svc.cfg.DefaultAttempts
	}

	if job.AttemptsMade() < attempts {
		l.svc.log.Warn("job attempt failed, will retry",
			slog.String("job_id", job.ID()),
			slog.String("job_type", string(l.jobType)),
			slog.Int("attempts_made", job.AttemptsMade()),
			logger.Error(err))
		return
	}

	l.svc.log.Error("job failed permanently",
		slog.String("job_id", job.ID()),
		slog.String("job_type", string(l.jobType)),
		slog.Int("attempts_made", job.AttemptsMade()),
		logger.Error(err))

	if dlErr := l.svc.MoveToDeadLetter(context.Background(), job.ID(), maxAttemptsReason); dlErr != nil {
		l.svc.log.Error("dead-letter escalation failed",
			slog.String("job_id", job.ID()),
			logger.Error(dlErr))
	}
}

func (l *queueListener) OnStalled(job queue.Job) {
	l.svc.observer.JobStalled(l.jobType)
	l.svc.log.Warn("job stalled and was requeued",
		slog.String("job_id", job.ID()),
		slog.String("job_type", string(l.jobType)))
}

func (l *queueListener) OnError(err error) {
	l.svc.log.Error("queue error",
		slog.String("job_type", string(l.jobType)),
		logger.Error(err))
}
