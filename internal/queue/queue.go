// Package queue provides the durable job queue primitive the job system is
// built on: named queues with retry/backoff, delayed delivery, pause/resume,
// retention, repeatable (cron) jobs and lifecycle events.
//
// Two implementations exist: a Redis-backed queue for production and an
// in-memory queue with identical semantics used in tests and single-node
// development. Callers depend only on the Queue and Job interfaces.
package queue

import (
	"context"
	"time"
)

// State is the underlying state of a job inside a queue.
type State string

const (
	StateWaiting   State = "waiting"
	StateActive    State = "active"
	StateCompleted State = "completed"
	StateFailed    State = "failed"
	StateDelayed   State = "delayed"
	StatePaused    State = "paused"
	StateStuck     State = "stuck"
)

// States returns every defined queue state.
func States() []State {
	return []State{
		StateWaiting, StateActive, StateCompleted,
		StateFailed, StateDelayed, StatePaused, StateStuck,
	}
}

// BackoffKind selects the delay strategy between retry attempts.
type BackoffKind string

const (
	BackoffFixed       BackoffKind = "fixed"
	BackoffExponential BackoffKind = "exponential"
)

// Backoff describes the delay applied before a failed job is retried.
type Backoff struct {
	Kind  BackoffKind   `json:"type"`
	Delay time.Duration `json:"delay"`
}

// Options control a single job's scheduling, retry and retention behavior.
// Zero values mean "unset": implementations treat Attempts==0 as a single
// attempt and RemoveOnComplete/RemoveOnFail==0 as unbounded retention, so
// callers that want queue-level defaults must resolve them before Add.
type Options struct {
	// Delay postpones eligibility for execution from enqueue time
	Delay time.Duration `json:"delay,omitempty"`

	// Attempts is the total number of execution attempts (including the first)
	Attempts int `json:"attempts,omitempty"`

	// Backoff is the delay strategy between attempts
	Backoff Backoff `json:"backoff"`

	// RemoveOnComplete / RemoveOnFail keep only the most recent N terminal jobs
	RemoveOnComplete int `json:"removeOnComplete,omitempty"`
	RemoveOnFail     int `json:"removeOnFail,omitempty"`

	// Priority orders delivery within a queue: higher runs first
	Priority int `json:"priority,omitempty"`

	// Timeout bounds one execution attempt; exceeding it is a failure
	Timeout time.Duration `json:"timeout,omitempty"`
}

// Progress is the mutable progress report attached to a job while it runs.
type Progress struct {
	Percentage int            `json:"percentage"`
	Message    string         `json:"message,omitempty"`
	Step       string         `json:"step,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// Counts holds the per-state job counts of one queue.
type Counts struct {
	Waiting   int `json:"waiting"`
	Active    int `json:"active"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
	Delayed   int `json:"delayed"`
}

// Handler processes one job attempt. A nil error completes the job with the
// returned value; a non-nil error triggers the queue's attempt/backoff cycle.
type Handler func(ctx context.Context, job Job) (any, error)

// Listener receives queue lifecycle events. OnFailed is invoked after every
// failed attempt, not only the terminal one; listeners inspect AttemptsMade
// against Opts().Attempts to tell a retryable failure from a permanent one.
type Listener interface {
	OnCompleted(job Job)
	OnFailed(job Job, err error)
	OnStalled(job Job)
	OnError(err error)
}

// Queue is a named, durable, ordered collection of jobs. Delivery order
// within a queue is (priority desc, enqueue order), modulo Delay eligibility.
type Queue interface {
	Name() string

	// Add enqueues a job and returns its handle.
	Add(ctx context.Context, name string, data map[string]any, opts Options) (Job, error)

	// AddRepeatable registers a named recurring job re-fired on the cron
	// schedule by the queue's own cron engine. Re-registering the same name
	// replaces the previous schedule.
	AddRepeatable(ctx context.Context, name string, data map[string]any, cronExpr string, opts Options) error

	// GetJob returns the job with the given id, or (nil, nil) if not found.
	GetJob(ctx context.Context, id string) (Job, error)

	// GetJobs returns jobs in the given states. Completed and failed jobs are
	// returned newest first. A limit <= 0 means no limit.
	GetJobs(ctx context.Context, states []State, offset, limit int) ([]Job, error)

	Counts(ctx context.Context) (Counts, error)

	IsPaused(ctx context.Context) (bool, error)
	Pause(ctx context.Context) error
	Resume(ctx context.Context) error

	// Clean removes terminal jobs in the given state whose terminal timestamp
	// is older than grace, returning the removed ids. States without a
	// terminal timestamp are a no-op.
	Clean(ctx context.Context, grace time.Duration, state State) ([]string, error)

	// Subscribe registers a lifecycle event listener.
	Subscribe(l Listener)

	// Process registers the handler run by this queue's worker slots.
	Process(concurrency int, handler Handler)

	// Start launches worker slots and background maintenance; Close stops
	// them and waits for in-flight attempts.
	Start(ctx context.Context) error
	Close() error
}

// Job is a handle to one enqueued unit of work. Most field accessors return
// the snapshot loaded when the handle was created; State, Progress and Data
// re-read the store, so a payload update made while the job runs is visible
// through Data.
type Job interface {
	ID() string
	Name() string
	QueueName() string
	Data() map[string]any
	Opts() Options

	State(ctx context.Context) (State, error)
	AttemptsMade() int

	CreatedAt() time.Time
	ProcessedOn() *time.Time
	FinishedOn() *time.Time

	FailedReason() string
	Stacktrace() []string
	ReturnValue() any

	Progress(ctx context.Context) (Progress, error)
	SetProgress(ctx context.Context, p Progress) error

	// Log appends a line to the job's append-only log.
	Log(ctx context.Context, line string) error

	// Retry re-enqueues a failed job for execution.
	Retry(ctx context.Context) error

	// Remove deletes the job; removing an active job is an error.
	Remove(ctx context.Context) error

	// Update replaces the job's payload.
	Update(ctx context.Context, data map[string]any) error
}
