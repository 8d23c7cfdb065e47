package jobs

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/fabworks-io/fabworks/internal/config"
	"github.com/fabworks-io/fabworks/internal/queue"
	"github.com/fabworks-io/fabworks/pkg/logger"
)

// fieldSweptAt marks a dead-letter record as already surfaced so each
// record is alerted on once.
const fieldSweptAt = "sweptAt"

// DeadLetterSweeper periodically surfaces waiting dead-letter records for
// manual intervention. Records stay on the queue until an operator
// reprocesses or removes them.
type DeadLetterSweeper struct {
	set      *QueueSet
	interval time.Duration
	batch    int
	log      *slog.Logger

	mu      sync.Mutex
	started bool
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

func NewDeadLetterSweeper(cfg *config.Config, set *QueueSet, log *slog.Logger) *DeadLetterSweeper {
	return &DeadLetterSweeper{
		set:      set,
		interval: cfg.Jobs.DeadLetterSweepInterval,
		batch:    cfg.Jobs.DeadLetterSweepBatch,
		log:      log.With(logger.Scope("jobs.deadletter")),
	}
}

func (s *DeadLetterSweeper) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return nil
	}
	s.started = true
	s.stopCh = make(chan struct{})

	s.wg.Add(1)
	go s.run()
	return nil
}

func (s *DeadLetterSweeper) Stop() error {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return nil
	}
	s.started = false
	close(s.stopCh)
	s.mu.Unlock()

	s.wg.Wait()
	return nil
}

func (s *DeadLetterSweeper) run() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.Sweep(context.Background())
		}
	}
}

// Sweep surfaces up to one batch of not-yet-seen dead-letter records.
func (s *DeadLetterSweeper) Sweep(ctx context.Context) {
	records, err := s.set.DeadLetter().GetJobs(ctx, []queue.State{queue.StateWaiting}, 0, s.batch)
	if err != nil {
		s.log.Error("dead-letter sweep failed", logger.Error(err))
		return
	}

	for _, record := range records {
		data := record.Data()
		if _, seen := data[fieldSweptAt]; seen {
			continue
		}

		reason, _ := data["reason"].(string)
		original, _ := data["originalJob"].(map[string]any)
		originalID, _ := original["id"].(string)
		originalName, _ := original["name"].(string)

		s.log.Warn("dead-letter record requires manual intervention",
			slog.String("record_id", record.ID()),
			slog.String("original_job_id", originalID),
			slog.String("original_job_name", originalName),
			slog.String("reason", reason))

		data[fieldSweptAt] = time.Now().UTC().Format(time.RFC3339Nano)
		if err := record.Update(ctx, data); err != nil {
			s.log.Error("failed to mark dead-letter record as seen",
				slog.String("record_id", record.ID()),
				logger.Error(err))
		}
	}
}
