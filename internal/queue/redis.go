package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"maps"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"
)

// priorityBand separates priority classes in the wait zset score so that a
// higher priority always sorts ahead of any enqueue sequence number.
const priorityBand = 1e12

// RedisConfig holds tunables for the Redis-backed queue.
type RedisQueueConfig struct {
	// KeyPrefix namespaces all keys (default "queue")
	KeyPrefix string
	// PollInterval is how often idle workers look for eligible jobs
	PollInterval time.Duration
	// LeaseTimeout is how long a worker may hold a job before it is
	// considered stalled
	LeaseTimeout time.Duration
	// StallInterval is how often expired leases are swept
	StallInterval time.Duration
}

func (c *RedisQueueConfig) applyDefaults() {
	if c.KeyPrefix == "" {
		c.KeyPrefix = "queue"
	}
	if c.PollInterval <= 0 {
		c.PollInterval = 250 * time.Millisecond
	}
	if c.LeaseTimeout <= 0 {
		c.LeaseTimeout = 30 * time.Second
	}
	if c.StallInterval <= 0 {
		c.StallInterval = 30 * time.Second
	}
}

// RedisQueue is the Redis-backed Queue implementation.
//
// Key layout, per queue ({p} = prefix:name):
//
//	{p}:job:{id}   job document (JSON)
//	{p}:wait       zset, score = seq - priority*band
//	{p}:delayed    zset, score = eligibleAt unix ms
//	{p}:active     set of in-flight job ids
//	{p}:lease:{id} worker lease with expiry; a missing lease for an
//	               active job marks it stalled
//	{p}:completed  zset, score = finishedOn unix ms
//	{p}:failed     zset, score = finishedOn unix ms
//	{p}:paused     pause flag
//	{p}:repeat     hash of recurring job definitions
//	{p}:seq        enqueue sequence counter
type RedisQueue struct {
	name string
	rdb  *redis.Client
	cfg  RedisQueueConfig
	log  *slog.Logger

	mu          sync.Mutex
	handler     Handler
	concurrency int
	listeners   []Listener

	cron    *cron.Cron
	repeats map[string]cron.EntryID

	started bool
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

type jobDoc struct {
	ID           string         `json:"id"`
	Name         string         `json:"name"`
	Data         map[string]any `json:"data"`
	Opts         Options        `json:"opts"`
	AttemptsMade int            `json:"attemptsMade"`
	CreatedAt    int64          `json:"createdAt"`
	ProcessedOn  *int64         `json:"processedOn,omitempty"`
	FinishedOn   *int64         `json:"finishedOn,omitempty"`
	FailedReason string         `json:"failedReason,omitempty"`
	Stacktrace   []string       `json:"stacktrace,omitempty"`
	ReturnValue  any            `json:"returnValue,omitempty"`
	Progress     Progress       `json:"progress"`
	Logs         []string       `json:"logs,omitempty"`
	Seq          int64          `json:"seq"`
}

type repeatDef struct {
	Cron string         `json:"cron"`
	Data map[string]any `json:"data"`
	Opts Options        `json:"opts"`
}

// NewRedisQueue creates a Redis-backed queue with the given name.
func NewRedisQueue(name string, rdb *redis.Client, cfg RedisQueueConfig, log *slog.Logger) *RedisQueue {
	cfg.applyDefaults()
	return &RedisQueue{
		name:    name,
		rdb:     rdb,
		cfg:     cfg,
		log:     log.With(slog.String("queue", name)),
		cron:    cron.New(),
		repeats: make(map[string]cron.EntryID),
		stopCh:  make(chan struct{}),
	}
}

func (q *RedisQueue) Name() string { return q.name }

func (q *RedisQueue) key(stem string) string {
	return q.cfg.KeyPrefix + ":" + q.name + ":" + stem
}

func (q *RedisQueue) jobKey(id string) string   { return q.key("job:" + id) }
func (q *RedisQueue) leaseKey(id string) string { return q.key("lease:" + id) }

// waitScore orders the wait zset: higher priority first, then enqueue order.
func waitScore(priority int, seq int64) float64 {
	return float64(seq) - float64(priority)*priorityBand
}

func unixMS(t time.Time) int64 { return t.UnixMilli() }

func (q *RedisQueue) Add(ctx context.Context, name string, data map[string]any, opts Options) (Job, error) {
	seq, err := q.rdb.Incr(ctx, q.key("seq")).Result()
	if err != nil {
		return nil, fmt.Errorf("next sequence: %w", err)
	}

	now := time.Now()
	doc := &jobDoc{
		ID:        uuid.NewString(),
		Name:      name,
		Data:      maps.Clone(data),
		Opts:      opts,
		CreatedAt: unixMS(now),
		Seq:       seq,
	}
	if doc.Data == nil {
		doc.Data = make(map[string]any)
	}

	if err := q.saveDoc(ctx, doc); err != nil {
		return nil, err
	}

	if opts.Delay > 0 {
		err = q.rdb.ZAdd(ctx, q.key("delayed"), redis.Z{
			Score:  float64(unixMS(now.Add(opts.Delay))),
			Member: doc.ID,
		}).Err()
	} else {
		err = q.rdb.ZAdd(ctx, q.key("wait"), redis.Z{
			Score:  waitScore(opts.Priority, seq),
			Member: doc.ID,
		}).Err()
	}
	if err != nil {
		return nil, fmt.Errorf("enqueue job %s: %w", doc.ID, err)
	}

	return &redisJob{q: q, doc: doc}, nil
}

func (q *RedisQueue) AddRepeatable(ctx context.Context, name string, data map[string]any, cronExpr string, opts Options) error {
	if _, err := cron.ParseStandard(cronExpr); err != nil {
		return fmt.Errorf("invalid cron expression %q: %w", cronExpr, err)
	}

	def := repeatDef{Cron: cronExpr, Data: maps.Clone(data), Opts: opts}
	raw, err := json.Marshal(def)
	if err != nil {
		return fmt.Errorf("marshal repeatable %q: %w", name, err)
	}
	if err := q.rdb.HSet(ctx, q.key("repeat"), name, raw).Err(); err != nil {
		return fmt.Errorf("persist repeatable %q: %w", name, err)
	}

	return q.registerRepeat(name, def)
}

func (q *RedisQueue) registerRepeat(name string, def repeatDef) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if id, ok := q.repeats[name]; ok {
		q.cron.Remove(id)
	}
	entryID, err := q.cron.AddFunc(def.Cron, func() {
		if _, err := q.Add(context.Background(), name, def.Data, def.Opts); err != nil {
			q.log.Error("recurring job enqueue failed",
				slog.String("job_name", name),
				slog.String("error", err.Error()))
			q.emit(func(l Listener) { l.OnError(err) })
		}
	})
	if err != nil {
		return fmt.Errorf("register repeatable %q: %w", name, err)
	}
	q.repeats[name] = entryID
	return nil
}

func (q *RedisQueue) GetJob(ctx context.Context, id string) (Job, error) {
	doc, err := q.loadDoc(ctx, id)
	if err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, nil
	}
	return &redisJob{q: q, doc: doc}, nil
}

func (q *RedisQueue) GetJobs(ctx context.Context, states []State, offset, limit int) ([]Job, error) {
	paused, err := q.IsPaused(ctx)
	if err != nil {
		return nil, err
	}

	var ids []string
	for _, state := range states {
		var stateIDs []string
		switch state {
		case StateWaiting:
			if !paused {
				stateIDs, err = q.rdb.ZRange(ctx, q.key("wait"), 0, -1).Result()
			}
		case StatePaused:
			if paused {
				stateIDs, err = q.rdb.ZRange(ctx, q.key("wait"), 0, -1).Result()
			}
		case StateActive:
			stateIDs, err = q.rdb.SMembers(ctx, q.key("active")).Result()
		case StateDelayed:
			stateIDs, err = q.rdb.ZRange(ctx, q.key("delayed"), 0, -1).Result()
		case StateCompleted:
			stateIDs, err = q.rdb.ZRevRange(ctx, q.key("completed"), 0, -1).Result()
		case StateFailed:
			stateIDs, err = q.rdb.ZRevRange(ctx, q.key("failed"), 0, -1).Result()
		}
		if err != nil {
			return nil, fmt.Errorf("list %s jobs: %w", state, err)
		}
		ids = append(ids, stateIDs...)
	}

	if offset > 0 {
		if offset >= len(ids) {
			return nil, nil
		}
		ids = ids[offset:]
	}
	if limit > 0 && len(ids) > limit {
		ids = ids[:limit]
	}

	jobs := make([]Job, 0, len(ids))
	for _, id := range ids {
		doc, err := q.loadDoc(ctx, id)
		if err != nil {
			return nil, err
		}
		if doc == nil {
			continue
		}
		jobs = append(jobs, &redisJob{q: q, doc: doc})
	}
	return jobs, nil
}

func (q *RedisQueue) Counts(ctx context.Context) (Counts, error) {
	pipe := q.rdb.Pipeline()
	waiting := pipe.ZCard(ctx, q.key("wait"))
	active := pipe.SCard(ctx, q.key("active"))
	completed := pipe.ZCard(ctx, q.key("completed"))
	failed := pipe.ZCard(ctx, q.key("failed"))
	delayed := pipe.ZCard(ctx, q.key("delayed"))
	if _, err := pipe.Exec(ctx); err != nil {
		return Counts{}, fmt.Errorf("queue counts: %w", err)
	}

	return Counts{
		Waiting:   int(waiting.Val()),
		Active:    int(active.Val()),
		Completed: int(completed.Val()),
		Failed:    int(failed.Val()),
		Delayed:   int(delayed.Val()),
	}, nil
}

func (q *RedisQueue) IsPaused(ctx context.Context) (bool, error) {
	n, err := q.rdb.Exists(ctx, q.key("paused")).Result()
	if err != nil {
		return false, fmt.Errorf("read pause flag: %w", err)
	}
	return n > 0, nil
}

func (q *RedisQueue) Pause(ctx context.Context) error {
	return q.rdb.Set(ctx, q.key("paused"), "1", 0).Err()
}

func (q *RedisQueue) Resume(ctx context.Context) error {
	return q.rdb.Del(ctx, q.key("paused")).Err()
}

func (q *RedisQueue) Clean(ctx context.Context, grace time.Duration, state State) ([]string, error) {
	var key string
	switch state {
	case StateCompleted:
		key = q.key("completed")
	case StateFailed:
		key = q.key("failed")
	default:
		return nil, nil
	}

	cutoff := strconv.FormatInt(unixMS(time.Now().Add(-grace)), 10)
	ids, err := q.rdb.ZRangeByScore(ctx, key, &redis.ZRangeBy{Min: "-inf", Max: cutoff}).Result()
	if err != nil {
		return nil, fmt.Errorf("list old %s jobs: %w", state, err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	pipe := q.rdb.TxPipeline()
	for _, id := range ids {
		pipe.ZRem(ctx, key, id)
		pipe.Del(ctx, q.jobKey(id))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("clean %s jobs: %w", state, err)
	}
	return ids, nil
}

func (q *RedisQueue) Subscribe(l Listener) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.listeners = append(q.listeners, l)
}

func (q *RedisQueue) Process(concurrency int, handler Handler) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if concurrency < 1 {
		concurrency = 1
	}
	q.concurrency = concurrency
	q.handler = handler
}

func (q *RedisQueue) Start(ctx context.Context) error {
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

	// Re-register persisted recurring jobs
	defs, err := q.rdb.HGetAll(ctx, q.key("repeat")).Result()
	if err != nil {
		return fmt.Errorf("load repeatables: %w", err)
	}
	for name, raw := range defs {
		var def repeatDef
		if err := json.Unmarshal([]byte(raw), &def); err != nil {
			q.log.Warn("skipping malformed repeatable",
				slog.String("job_name", name),
				slog.String("error", err.Error()))
			continue
		}
		if err := q.registerRepeat(name, def); err != nil {
			return err
		}
	}
	q.cron.Start()

	if handler != nil {
		for i := 0; i < concurrency; i++ {
			q.wg.Add(1)
			go q.worker()
		}
		q.wg.Add(1)
		go q.stallSweeper()
	}

	return nil
}

func (q *RedisQueue) Close() error {
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

func (q *RedisQueue) worker() {
	defer q.wg.Done()

	ticker := time.NewTicker(q.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-q.stopCh:
			return
		case <-ticker.C:
			q.drain()
		}
	}
}

// drain claims and runs eligible jobs until the queue is empty or paused.
func (q *RedisQueue) drain() {
	ctx := context.Background()
	for {
		select {
		case <-q.stopCh:
			return
		default:
		}

		paused, err := q.IsPaused(ctx)
		if err != nil {
			q.emitError(err)
			return
		}
		if paused {
			return
		}

		if err := q.promoteDelayed(ctx); err != nil {
			q.emitError(err)
		}

		zs, err := q.rdb.ZPopMin(ctx, q.key("wait"), 1).Result()
		if err != nil {
			q.emitError(fmt.Errorf("claim job: %w", err))
			return
		}
		if len(zs) == 0 {
			return
		}

		id, _ := zs[0].Member.(string)
		q.runJob(ctx, id)
	}
}

// promoteDelayed moves due delayed jobs onto the wait zset.
func (q *RedisQueue) promoteDelayed(ctx context.Context) error {
	nowStr := strconv.FormatInt(unixMS(time.Now()), 10)
	ids, err := q.rdb.ZRangeByScore(ctx, q.key("delayed"), &redis.ZRangeBy{
		Min: "-inf", Max: nowStr, Offset: 0, Count: 100,
	}).Result()
	if err != nil || len(ids) == 0 {
		return err
	}

	pipe := q.rdb.TxPipeline()
	for _, id := range ids {
		doc, err := q.loadDoc(ctx, id)
		if err != nil || doc == nil {
			pipe.ZRem(ctx, q.key("delayed"), id)
			continue
		}
		pipe.ZRem(ctx, q.key("delayed"), id)
		pipe.ZAdd(ctx, q.key("wait"), redis.Z{
			Score:  waitScore(doc.Opts.Priority, doc.Seq),
			Member: id,
		})
	}
	_, err = pipe.Exec(ctx)
	return err
}

func (q *RedisQueue) runJob(ctx context.Context, id string) {
	if err := q.rdb.SAdd(ctx, q.key("active"), id).Err(); err != nil {
		q.emitError(err)
		return
	}
	if err := q.rdb.Set(ctx, q.leaseKey(id), "1", q.cfg.LeaseTimeout).Err(); err != nil {
		q.emitError(err)
	}

	doc, err := q.loadDoc(ctx, id)
	if err != nil || doc == nil {
		q.rdb.SRem(ctx, q.key("active"), id)
		q.rdb.Del(ctx, q.leaseKey(id))
		if err != nil {
			q.emitError(err)
		}
		return
	}

	if doc.ProcessedOn == nil {
		started := unixMS(time.Now())
		doc.ProcessedOn = &started
		if err := q.saveDoc(ctx, doc); err != nil {
			q.emitError(err)
		}
	}

	// Keep the lease alive while the handler runs
	leaseDone := make(chan struct{})
	q.wg.Add(1)
	go func() {
		defer q.wg.Done()
		t := time.NewTicker(q.cfg.LeaseTimeout / 2)
		defer t.Stop()
		for {
			select {
			case <-leaseDone:
				return
			case <-t.C:
				q.rdb.Expire(ctx, q.leaseKey(id), q.cfg.LeaseTimeout)
			}
		}
	}()

	handle := &redisJob{q: q, doc: doc}

	runCtx := ctx
	cancel := func() {}
	if doc.Opts.Timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, doc.Opts.Timeout)
	}
	q.mu.Lock()
	handler := q.handler
	q.mu.Unlock()
	rv, runErr := handler(runCtx, handle)
	cancel()
	close(leaseDone)

	q.finalize(ctx, id, rv, runErr)
}

func (q *RedisQueue) finalize(ctx context.Context, id string, rv any, runErr error) {
	q.rdb.SRem(ctx, q.key("active"), id)
	q.rdb.Del(ctx, q.leaseKey(id))

	// Reload: the handler may have written progress or payload updates
	doc, err := q.loadDoc(ctx, id)
	if err != nil || doc == nil {
		if err != nil {
			q.emitError(err)
		}
		return
	}

	now := unixMS(time.Now())
	doc.AttemptsMade++

	if runErr == nil {
		doc.FinishedOn = &now
		doc.ReturnValue = rv
		if err := q.saveDoc(ctx, doc); err != nil {
			q.emitError(err)
			return
		}
		if err := q.rdb.ZAdd(ctx, q.key("completed"), redis.Z{Score: float64(now), Member: id}).Err(); err != nil {
			q.emitError(err)
			return
		}
		q.trimTerminal(ctx, q.key("completed"), doc.Opts.RemoveOnComplete)
		handle := &redisJob{q: q, doc: doc}
		q.emit(func(l Listener) { l.OnCompleted(handle) })
		return
	}

	doc.FailedReason = runErr.Error()
	doc.Stacktrace = append(doc.Stacktrace, runErr.Error())

	if doc.AttemptsMade < resolveAttempts(doc.Opts) {
		eligible := time.Now().Add(NextBackoff(doc.Opts.Backoff, doc.AttemptsMade))
		if err := q.saveDoc(ctx, doc); err != nil {
			q.emitError(err)
			return
		}
		if err := q.rdb.ZAdd(ctx, q.key("delayed"), redis.Z{
			Score:  float64(unixMS(eligible)),
			Member: id,
		}).Err(); err != nil {
			q.emitError(err)
			return
		}
	} else {
		doc.FinishedOn = &now
		if err := q.saveDoc(ctx, doc); err != nil {
			q.emitError(err)
			return
		}
		if err := q.rdb.ZAdd(ctx, q.key("failed"), redis.Z{Score: float64(now), Member: id}).Err(); err != nil {
			q.emitError(err)
			return
		}
		q.trimTerminal(ctx, q.key("failed"), doc.Opts.RemoveOnFail)
	}

	handle := &redisJob{q: q, doc: doc}
	q.emit(func(l Listener) { l.OnFailed(handle, runErr) })
}

// trimTerminal drops the oldest terminal jobs beyond the retention count.
func (q *RedisQueue) trimTerminal(ctx context.Context, key string, keep int) {
	if keep <= 0 {
		return
	}
	n, err := q.rdb.ZCard(ctx, key).Result()
	if err != nil || n <= int64(keep) {
		return
	}
	old, err := q.rdb.ZRange(ctx, key, 0, n-int64(keep)-1).Result()
	if err != nil || len(old) == 0 {
		return
	}
	pipe := q.rdb.TxPipeline()
	for _, id := range old {
		pipe.ZRem(ctx, key, id)
		pipe.Del(ctx, q.jobKey(id))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		q.emitError(err)
	}
}

// stallSweeper requeues active jobs whose worker lease expired.
func (q *RedisQueue) stallSweeper() {
	defer q.wg.Done()

	ticker := time.NewTicker(q.cfg.StallInterval)
	defer ticker.Stop()

	for {
		select {
		case <-q.stopCh:
			return
		case <-ticker.C:
			q.sweepStalled(context.Background())
		}
	}
}

func (q *RedisQueue) sweepStalled(ctx context.Context) {
	ids, err := q.rdb.SMembers(ctx, q.key("active")).Result()
	if err != nil {
		q.emitError(err)
		return
	}

	for _, id := range ids {
		n, err := q.rdb.Exists(ctx, q.leaseKey(id)).Result()
		if err != nil || n > 0 {
			continue
		}

		doc, err := q.loadDoc(ctx, id)
		if err != nil || doc == nil {
			q.rdb.SRem(ctx, q.key("active"), id)
			continue
		}

		pipe := q.rdb.TxPipeline()
		pipe.SRem(ctx, q.key("active"), id)
		pipe.ZAdd(ctx, q.key("wait"), redis.Z{
			Score:  waitScore(doc.Opts.Priority, doc.Seq),
			Member: id,
		})
		if _, err := pipe.Exec(ctx); err != nil {
			q.emitError(err)
			continue
		}

		q.log.Warn("requeued stalled job", slog.String("job_id", id))
		handle := &redisJob{q: q, doc: doc}
		q.emit(func(l Listener) { l.OnStalled(handle) })
	}
}

func (q *RedisQueue) loadDoc(ctx context.Context, id string) (*jobDoc, error) {
	raw, err := q.rdb.Get(ctx, q.jobKey(id)).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load job %s: %w", id, err)
	}
	doc := &jobDoc{}
	if err := json.Unmarshal([]byte(raw), doc); err != nil {
		return nil, fmt.Errorf("decode job %s: %w", id, err)
	}
	return doc, nil
}

func (q *RedisQueue) saveDoc(ctx context.Context, doc *jobDoc) error {
	raw, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode job %s: %w", doc.ID, err)
	}
	if err := q.rdb.Set(ctx, q.jobKey(doc.ID), raw, 0).Err(); err != nil {
		return fmt.Errorf("save job %s: %w", doc.ID, err)
	}
	return nil
}

func (q *RedisQueue) emit(fn func(Listener)) {
	q.mu.Lock()
	listeners := append([]Listener(nil), q.listeners...)
	q.mu.Unlock()
	for _, l := range listeners {
		fn(l)
	}
}

func (q *RedisQueue) emitError(err error) {
	q.log.Error("queue error", slog.String("error", err.Error()))
	q.emit(func(l Listener) { l.OnError(err) })
}

// redisJob is the Job handle for the Redis queue. Accessors read the
// snapshot loaded when the handle was created.
type redisJob struct {
	q   *RedisQueue
	doc *jobDoc
}

func (j *redisJob) ID() string        { return j.doc.ID }
func (j *redisJob) Name() string      { return j.doc.Name }
func (j *redisJob) QueueName() string { return j.q.name }

// Data re-reads the store so payload updates made while the job runs (such
// as a cancellation flag) are visible to the handler.
func (j *redisJob) Data() map[string]any {
	if doc, err := j.q.loadDoc(context.Background(), j.doc.ID); err == nil && doc != nil {
		j.doc = doc
	}
	return maps.Clone(j.doc.Data)
}

func (j *redisJob) Opts() Options     { return j.doc.Opts }
func (j *redisJob) AttemptsMade() int { return j.doc.AttemptsMade }

func (j *redisJob) CreatedAt() time.Time {
	return time.UnixMilli(j.doc.CreatedAt)
}

func (j *redisJob) ProcessedOn() *time.Time { return msToTime(j.doc.ProcessedOn) }
func (j *redisJob) FinishedOn() *time.Time  { return msToTime(j.doc.FinishedOn) }

func msToTime(ms *int64) *time.Time {
	if ms == nil {
		return nil
	}
	t := time.UnixMilli(*ms)
	return &t
}

func (j *redisJob) FailedReason() string { return j.doc.FailedReason }
func (j *redisJob) Stacktrace() []string {
	return append([]string(nil), j.doc.Stacktrace...)
}
func (j *redisJob) ReturnValue() any { return j.doc.ReturnValue }

func (j *redisJob) State(ctx context.Context) (State, error) {
	pipe := j.q.rdb.Pipeline()
	wait := pipe.ZScore(ctx, j.q.key("wait"), j.doc.ID)
	delayed := pipe.ZScore(ctx, j.q.key("delayed"), j.doc.ID)
	active := pipe.SIsMember(ctx, j.q.key("active"), j.doc.ID)
	completed := pipe.ZScore(ctx, j.q.key("completed"), j.doc.ID)
	failed := pipe.ZScore(ctx, j.q.key("failed"), j.doc.ID)
	paused := pipe.Exists(ctx, j.q.key("paused"))
	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		return "", fmt.Errorf("job state %s: %w", j.doc.ID, err)
	}

	switch {
	case active.Val():
		return StateActive, nil
	case wait.Err() == nil:
		if paused.Val() > 0 {
			return StatePaused, nil
		}
		return StateWaiting, nil
	case delayed.Err() == nil:
		return StateDelayed, nil
	case completed.Err() == nil:
		return StateCompleted, nil
	case failed.Err() == nil:
		return StateFailed, nil
	default:
		return "", fmt.Errorf("job %s no longer exists", j.doc.ID)
	}
}

func (j *redisJob) Progress(ctx context.Context) (Progress, error) {
	doc, err := j.q.loadDoc(ctx, j.doc.ID)
	if err != nil {
		return Progress{}, err
	}
	if doc == nil {
		return Progress{}, fmt.Errorf("job %s no longer exists", j.doc.ID)
	}
	return doc.Progress, nil
}

func (j *redisJob) SetProgress(ctx context.Context, p Progress) error {
	return j.mutate(ctx, func(doc *jobDoc) { doc.Progress = p })
}

func (j *redisJob) Log(ctx context.Context, line string) error {
	return j.mutate(ctx, func(doc *jobDoc) { doc.Logs = append(doc.Logs, line) })
}

func (j *redisJob) Update(ctx context.Context, data map[string]any) error {
	return j.mutate(ctx, func(doc *jobDoc) { doc.Data = maps.Clone(data) })
}

func (j *redisJob) mutate(ctx context.Context, fn func(*jobDoc)) error {
	doc, err := j.q.loadDoc(ctx, j.doc.ID)
	if err != nil {
		return err
	}
	if doc == nil {
		return fmt.Errorf("job %s no longer exists", j.doc.ID)
	}
	fn(doc)
	j.doc = doc
	return j.q.saveDoc(ctx, doc)
}

func (j *redisJob) Retry(ctx context.Context) error {
	if err := j.q.rdb.ZScore(ctx, j.q.key("failed"), j.doc.ID).Err(); err != nil {
		if err == redis.Nil {
			return fmt.Errorf("job %s is not in failed state", j.doc.ID)
		}
		return err
	}

	seq, err := j.q.rdb.Incr(ctx, j.q.key("seq")).Result()
	if err != nil {
		return fmt.Errorf("next sequence: %w", err)
	}

	if err := j.mutate(ctx, func(doc *jobDoc) {
		doc.FinishedOn = nil
		doc.Seq = seq
	}); err != nil {
		return err
	}

	pipe := j.q.rdb.TxPipeline()
	pipe.ZRem(ctx, j.q.key("failed"), j.doc.ID)
	pipe.ZAdd(ctx, j.q.key("wait"), redis.Z{
		Score:  waitScore(j.doc.Opts.Priority, seq),
		Member: j.doc.ID,
	})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("retry job %s: %w", j.doc.ID, err)
	}
	return nil
}

func (j *redisJob) Remove(ctx context.Context) error {
	isActive, err := j.q.rdb.SIsMember(ctx, j.q.key("active"), j.doc.ID).Result()
	if err != nil {
		return err
	}
	if isActive {
		return fmt.Errorf("cannot remove active job %s", j.doc.ID)
	}

	pipe := j.q.rdb.TxPipeline()
	pipe.ZRem(ctx, j.q.key("wait"), j.doc.ID)
	pipe.ZRem(ctx, j.q.key("delayed"), j.doc.ID)
	pipe.ZRem(ctx, j.q.key("completed"), j.doc.ID)
	pipe.ZRem(ctx, j.q.key("failed"), j.doc.ID)
	pipe.Del(ctx, j.q.jobKey(j.doc.ID))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("remove job %s: %w", j.doc.ID, err)
	}
	return nil
}
