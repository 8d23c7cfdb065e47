package queue

import (
	"context"
	"fmt"
	"maps"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
)

// defaultPollInterval is how often an idle in-memory worker slot looks for
// eligible work. Tests override it for faster feedback.
const defaultPollInterval = 25 * time.Millisecond

// MemoryQueue is an in-memory Queue implementation with the same semantics
// as the Redis backend. It backs unit tests and single-node development.
type MemoryQueue struct {
	name string
	poll time.Duration

	mu        sync.Mutex
	jobs      map[string]*memRecord
	wait      []*memRecord
	delayed   []*memRecord
	active    map[string]*memRecord
	completed []*memRecord
	failed    []*memRecord
	paused    bool
	seq       int64

	handler     Handler
	concurrency int
	listeners   []Listener

	cron    *cron.Cron
	repeats map[string]cron.EntryID

	started bool
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

type memRecord struct {
	id   string
	name string
	data map[string]any
	opts Options

	state        State
	seq          int64
	attemptsMade int

	createdAt   time.Time
	eligibleAt  time.Time
	processedOn *time.Time
	finishedOn  *time.Time

	failedReason string
	stacktrace   []string
	returnValue  any
	progress     Progress
	logs         []string
}

// MemoryOption configures a MemoryQueue.
type MemoryOption func(*MemoryQueue)

// WithPollInterval overrides the idle worker poll interval.
func WithPollInterval(d time.Duration) MemoryOption {
	return func(q *MemoryQueue) { q.poll = d }
}

// NewMemoryQueue creates an in-memory queue with the given name.
func NewMemoryQueue(name string, opts ...MemoryOption) *MemoryQueue {
	q := &MemoryQueue{
		name:    name,
		poll:    defaultPollInterval,
		jobs:    make(map[string]*memRecord),
		active:  make(map[string]*memRecord),
		cron:    cron.New(),
		repeats: make(map[string]cron.EntryID),
		stopCh:  make(chan struct{}),
	}
	for _, o := range opts {
		o(q)
	}
	return q
}

func (q *MemoryQueue) Name() string { return q.name }

func (q *MemoryQueue) Add(ctx context.Context, name string, data map[string]any, opts Options) (Job, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	now := time.Now()
	q.seq++
	rec := &memRecord{
		id:        uuid.NewString(),
		name:      name,
		data:      maps.Clone(data),
		opts:      opts,
		seq:       q.seq,
		createdAt: now,
	}
	if rec.data == nil {
		rec.data = make(map[string]any)
	}

	if opts.Delay > 0 {
		rec.state = StateDelayed
		rec.eligibleAt = now.Add(opts.Delay)
		q.delayed = append(q.delayed, rec)
	} else {
		rec.state = StateWaiting
		rec.eligibleAt = now
		q.wait = append(q.wait, rec)
	}
	q.jobs[rec.id] = rec

	return &memJob{q: q, rec: rec}, nil
}

func (q *MemoryQueue) AddRepeatable(ctx context.Context, name string, data map[string]any, cronExpr string, opts Options) error {
	if _, err := cron.ParseStandard(cronExpr); err != nil {
		return fmt.Errorf("invalid cron expression %q: %w", cronExpr, err)
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	// Re-registering a name replaces the previous schedule
	if id, ok := q.repeats[name]; ok {
		q.cron.Remove(id)
	}

	payload := maps.Clone(data)
	entryID, err := q.cron.AddFunc(cronExpr, func() {
		if _, err := q.Add(context.Background(), name, payload, opts); err != nil {
			q.emitError(err)
		}
	})
	if err != nil {
		return fmt.Errorf("register repeatable %q: %w", name, err)
	}
	q.repeats[name] = entryID

	return nil
}

// RepeatableCount returns the number of registered recurring jobs.
func (q *MemoryQueue) RepeatableCount() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.repeats)
}

func (q *MemoryQueue) GetJob(ctx context.Context, id string) (Job, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	rec, ok := q.jobs[id]
	if !ok {
		return nil, nil
	}
	return &memJob{q: q, rec: rec}, nil
}

func (q *MemoryQueue) GetJobs(ctx context.Context, states []State, offset, limit int) ([]Job, error) {
	q.mu.Lock()

	var recs []*memRecord
	for _, state := range states {
		switch state {
		case StateWaiting:
			if !q.paused {
				recs = append(recs, q.wait...)
			}
		case StatePaused:
			if q.paused {
				recs = append(recs, q.wait...)
			}
		case StateActive:
			for _, rec := range q.active {
				recs = append(recs, rec)
			}
		case StateDelayed:
			recs = append(recs, q.delayed...)
		case StateCompleted:
			// newest first
			for i := len(q.completed) - 1; i >= 0; i-- {
				recs = append(recs, q.completed[i])
			}
		case StateFailed:
			for i := len(q.failed) - 1; i >= 0; i-- {
				recs = append(recs, q.failed[i])
			}
		}
	}
	q.mu.Unlock()

	if offset > 0 {
		if offset >= len(recs) {
			return nil, nil
		}
		recs = recs[offset:]
	}
	if limit > 0 && len(recs) > limit {
		recs = recs[:limit]
	}

	jobs := make([]Job, len(recs))
	for i, rec := range recs {
		jobs[i] = &memJob{q: q, rec: rec}
	}
	return jobs, nil
}

func (q *MemoryQueue) Counts(ctx context.Context) (Counts, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	return Counts{
		Waiting:   len(q.wait),
		Active:    len(q.active),
		Completed: len(q.completed),
		Failed:    len(q.failed),
		Delayed:   len(q.delayed),
	}, nil
}

func (q *MemoryQueue) IsPaused(ctx context.Context) (bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.paused, nil
}

func (q *MemoryQueue) Pause(ctx context.Context) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.paused = true
	return nil
}

func (q *MemoryQueue) Resume(ctx context.Context) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.paused = false
	return nil
}

func (q *MemoryQueue) Clean(ctx context.Context, grace time.Duration, state State) ([]string, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	cutoff := time.Now().Add(-grace)

	var list *[]*memRecord
	switch state {
	case StateCompleted:
		list = &q.completed
	case StateFailed:
		list = &q.failed
	default:
		// only terminal states have a timestamp to age against
		return nil, nil
	}

	var removed []string
	kept := (*list)[:0]
	for _, rec := range *list {
		if rec.finishedOn != nil && rec.finishedOn.Before(cutoff) {
			removed = append(removed, rec.id)
			delete(q.jobs, rec.id)
			continue
		}
		kept = append(kept, rec)
	}
	*list = kept

	return removed, nil
}

func (q *MemoryQueue) Subscribe(l Listener) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.listeners = append(q.listeners, l)
}

func (q *MemoryQueue) Process(concurrency int, handler Handler) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if concurrency < 1 {
		concurrency = 1
	}
	q.concurrency = concurrency
	q.handler = handler
}

func (q *MemoryQueue) Start(ctx context.Context) error {
	q.mu.Lock()
	if q.started {
		q.mu.Unlock()
		return nil
	}
	q.started = true
	q.stopCh = make(chan struct{})
	handler := q.handler
	concurrency := q.concurrency
	q.mu.Unlock()

	q.cron.Start()

	if handler == nil {
		return nil
	}
	for i := 0; i < concurrency; i++ {
		q.wg.Add(1)
		go q.worker()
	}
	return nil
}

func (q *MemoryQueue) Close() error {
	q.mu.Lock()
	if !q.started {
		q.mu.Unlock()
		return nil
	}
	q.started = false
	close(q.stopCh)
	q.mu.Unlock()

	q.cron.Stop()
	q.wg.Wait()
	return nil
}

func (q *MemoryQueue) worker() {
	defer q.wg.Done()

	ticker := time.NewTicker(q.poll)
	defer ticker.Stop()

	for {
		select {
		case <-q.stopCh:
			return
		case <-ticker.C:
			for {
				rec := q.takeNext()
				if rec == nil {
					break
				}
				q.runJob(rec)
			}
		}
	}
}

// takeNext promotes due delayed jobs and claims the next eligible waiting
// job: highest priority first, then enqueue order.
func (q *MemoryQueue) takeNext() *memRecord {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.paused {
		return nil
	}

	now := time.Now()
	kept := q.delayed[:0]
	for _, rec := range q.delayed {
		if !rec.eligibleAt.After(now) {
			rec.state = StateWaiting
			q.wait = append(q.wait, rec)
			continue
		}
		kept = append(kept, rec)
	}
	q.delayed = kept

	if len(q.wait) == 0 {
		return nil
	}

	best := 0
	for i, rec := range q.wait {
		if rec.opts.Priority > q.wait[best].opts.Priority ||
			(rec.opts.Priority == q.wait[best].opts.Priority && rec.seq < q.wait[best].seq) {
			best = i
		}
	}
	rec := q.wait[best]
	q.wait = append(q.wait[:best], q.wait[best+1:]...)

	rec.state = StateActive
	q.active[rec.id] = rec
	if rec.processedOn == nil {
		started := now
		rec.processedOn = &started
	}
	return rec
}

func (q *MemoryQueue) runJob(rec *memRecord) {
	handle := &memJob{q: q, rec: rec}

	ctx := context.Background()
	cancel := func() {}
	if rec.opts.Timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, rec.opts.Timeout)
	}
	rv, err := q.handler(ctx, handle)
	cancel()

	now := time.Now()

	q.mu.Lock()
	rec.attemptsMade++
	delete(q.active, rec.id)

	if err == nil {
		rec.state = StateCompleted
		rec.finishedOn = &now
		rec.returnValue = rv
		q.completed = append(q.completed, rec)
		q.trimLocked(&q.completed, rec.opts.RemoveOnComplete)
		listeners := append([]Listener(nil), q.listeners...)
		q.mu.Unlock()

		for _, l := range listeners {
			l.OnCompleted(handle)
		}
		return
	}

	rec.failedReason = err.Error()
	rec.stacktrace = append(rec.stacktrace, err.Error())
	if rec.attemptsMade < resolveAttempts(rec.opts) {
		rec.state = StateDelayed
		rec.eligibleAt = now.Add(NextBackoff(rec.opts.Backoff, rec.attemptsMade))
		q.delayed = append(q.delayed, rec)
	} else {
		rec.state = StateFailed
		rec.finishedOn = &now
		q.failed = append(q.failed, rec)
		q.trimLocked(&q.failed, rec.opts.RemoveOnFail)
	}
	listeners := append([]Listener(nil), q.listeners...)
	q.mu.Unlock()

	for _, l := range listeners {
		l.OnFailed(handle, err)
	}
}

// trimLocked drops the oldest terminal jobs beyond the retention count.
// Caller holds q.mu.
func (q *MemoryQueue) trimLocked(list *[]*memRecord, keep int) {
	if keep <= 0 {
		return
	}
	for len(*list) > keep {
		old := (*list)[0]
		*list = (*list)[1:]
		delete(q.jobs, old.id)
	}
}

func (q *MemoryQueue) emitError(err error) {
	q.mu.Lock()
	listeners := append([]Listener(nil), q.listeners...)
	q.mu.Unlock()

	for _, l := range listeners {
		l.OnError(err)
	}
}

// memJob is the Job handle for the in-memory queue.
type memJob struct {
	q   *MemoryQueue
	rec *memRecord
}

func (j *memJob) ID() string        { return j.rec.id }
func (j *memJob) Name() string      { return j.rec.name }
func (j *memJob) QueueName() string { return j.q.name }

func (j *memJob) Data() map[string]any {
	j.q.mu.Lock()
	defer j.q.mu.Unlock()
	return maps.Clone(j.rec.data)
}

func (j *memJob) Opts() Options { return j.rec.opts }

func (j *memJob) State(ctx context.Context) (State, error) {
	j.q.mu.Lock()
	defer j.q.mu.Unlock()

	if j.rec.state == StateWaiting && j.q.paused {
		return StatePaused, nil
	}
	if _, ok := j.q.jobs[j.rec.id]; !ok {
		return "", fmt.Errorf("job %s no longer exists", j.rec.id)
	}
	return j.rec.state, nil
}

func (j *memJob) AttemptsMade() int {
	j.q.mu.Lock()
	defer j.q.mu.Unlock()
	return j.rec.attemptsMade
}

func (j *memJob) CreatedAt() time.Time { return j.rec.createdAt }

func (j *memJob) ProcessedOn() *time.Time {
	j.q.mu.Lock()
	defer j.q.mu.Unlock()
	return j.rec.processedOn
}

func (j *memJob) FinishedOn() *time.Time {
	j.q.mu.Lock()
	defer j.q.mu.Unlock()
	return j.rec.finishedOn
}

func (j *memJob) FailedReason() string {
	j.q.mu.Lock()
	defer j.q.mu.Unlock()
	return j.rec.failedReason
}

func (j *memJob) Stacktrace() []string {
	j.q.mu.Lock()
	defer j.q.mu.Unlock()
	return append([]string(nil), j.rec.stacktrace...)
}

func (j *memJob) ReturnValue() any {
	j.q.mu.Lock()
	defer j.q.mu.Unlock()
	return j.rec.returnValue
}

func (j *memJob) Progress(ctx context.Context) (Progress, error) {
	j.q.mu.Lock()
	defer j.q.mu.Unlock()
	return j.rec.progress, nil
}

func (j *memJob) SetProgress(ctx context.Context, p Progress) error {
	j.q.mu.Lock()
	defer j.q.mu.Unlock()
	j.rec.progress = p
	return nil
}

func (j *memJob) Log(ctx context.Context, line string) error {
	j.q.mu.Lock()
	defer j.q.mu.Unlock()
	j.rec.logs = append(j.rec.logs, line)
	return nil
}

// Logs returns the job's appended log lines (test helper).
func (j *memJob) Logs() []string {
	j.q.mu.Lock()
	defer j.q.mu.Unlock()
	return append([]string(nil), j.rec.logs...)
}

func (j *memJob) Retry(ctx context.Context) error {
	j.q.mu.Lock()
	defer j.q.mu.Unlock()

	if j.rec.state != StateFailed {
		return fmt.Errorf("job %s is not in failed state", j.rec.id)
	}

	for i, rec := range j.q.failed {
		if rec.id == j.rec.id {
			j.q.failed = append(j.q.failed[:i], j.q.failed[i+1:]...)
			break
		}
	}

	j.q.seq++
	j.rec.seq = j.q.seq
	j.rec.state = StateWaiting
	j.rec.finishedOn = nil
	j.rec.eligibleAt = time.Now()
	j.q.wait = append(j.q.wait, j.rec)

	return nil
}

func (j *memJob) Remove(ctx context.Context) error {
	j.q.mu.Lock()
	defer j.q.mu.Unlock()

	if j.rec.state == StateActive {
		return fmt.Errorf("cannot remove active job %s", j.rec.id)
	}

	removeFrom := func(list *[]*memRecord) {
		for i, rec := range *list {
			if rec.id == j.rec.id {
				*list = append((*list)[:i], (*list)[i+1:]...)
				return
			}
		}
	}
	removeFrom(&j.q.wait)
	removeFrom(&j.q.delayed)
	removeFrom(&j.q.completed)
	removeFrom(&j.q.failed)
	delete(j.q.jobs, j.rec.id)

	return nil
}

func (j *memJob) Update(ctx context.Context, data map[string]any) error {
	j.q.mu.Lock()
	defer j.q.mu.Unlock()
	j.rec.data = maps.Clone(data)
	return nil
}
