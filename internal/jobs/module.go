package jobs

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"

	"github.com/fabworks-io/fabworks/internal/config"
	"github.com/fabworks-io/fabworks/internal/queue"
	"github.com/fabworks-io/fabworks/pkg/logger"
)

// Module provides the job system: queues, submission service, tracking,
// metrics and the dead-letter sweeper. Processors register themselves into
// the "processors" value group from their own modules.
var Module = fx.Module("jobs",
	fx.Provide(
		NewRedisClient,
		NewQueueSetFromConfig,
		NewTrackingStoreFromConfig,
		NewPromMetricsFromDefault,
		func(m *PromMetrics) Observer { return m },
		NewService,
		NewMetricsService,
		NewDeadLetterSweeper,
	),
	fx.Invoke(
		RegisterProcessors,
		RegisterLifecycle,
	),
)

// NewRedisClient builds the shared Redis client. The connection is verified
// on startup only when a Redis-backed component is configured.
func NewRedisClient(lc fx.Lifecycle, cfg *config.Config, log *slog.Logger) *redis.Client {
	log = log.With(logger.Scope("redis"))

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if cfg.Jobs.Backend != "redis" {
				return nil
			}
			if err := client.Ping(ctx).Err(); err != nil {
				return fmt.Errorf("ping redis: %w", err)
			}
			log.Info("redis connected", slog.String("addr", cfg.Redis.Addr))
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return client.Close()
		},
	})

	return client
}

// NewQueueSetFromConfig builds one queue per job type on the configured
// backend.
func NewQueueSetFromConfig(cfg *config.Config, rdb *redis.Client, log *slog.Logger) *QueueSet {
	if cfg.Jobs.Backend == "memory" {
		return NewQueueSet(func(name string) queue.Queue {
			return queue.NewMemoryQueue(name, queue.WithPollInterval(cfg.Jobs.PollInterval))
		})
	}

	queueCfg := queue.RedisQueueConfig{
		KeyPrefix:     cfg.Redis.KeyPrefix,
		PollInterval:  cfg.Jobs.PollInterval,
		LeaseTimeout:  cfg.Jobs.LeaseTimeout,
		StallInterval: cfg.Jobs.StallInterval,
	}
	return NewQueueSet(func(name string) queue.Queue {
		return queue.NewRedisQueue(name, rdb, queueCfg, log)
	})
}

// NewTrackingStoreFromConfig builds the job tracking index on the same
// backend as the queues.
func NewTrackingStoreFromConfig(cfg *config.Config, rdb *redis.Client) TrackingStore {
	if cfg.Jobs.Backend == "memory" {
		return NewMemoryTrackingStore(cfg.Jobs.TrackingTTL)
	}
	return NewRedisTrackingStore(rdb, cfg.Redis.KeyPrefix, cfg.Jobs.TrackingTTL)
}

// NewPromMetricsFromDefault registers the job counters with the default
// Prometheus registry served on /metrics.
func NewPromMetricsFromDefault() *PromMetrics {
	return NewPromMetrics(prometheus.DefaultRegisterer)
}

// ProcessorParams collects every processor contributed by domain modules.
type ProcessorParams struct {
	fx.In
	Processors []Processor `group:"processors"`
	Cfg        *config.Config
	Set        *QueueSet
	Log        *slog.Logger
}

// RegisterProcessors binds each contributed processor to its queue's
// worker slots.
func RegisterProcessors(p ProcessorParams) error {
	for _, proc := range p.Processors {
		q, ok := p.Set.Get(proc.Type())
		if !ok {
			return fmt.Errorf("no queue registered for processor type %s", proc.Type())
		}
		q.Process(p.Cfg.Jobs.WorkerConcurrency, HandlerFor(proc, p.Log))
	}
	return nil
}

// RegisterLifecycle starts the queues and the dead-letter sweeper with the
// application.
func RegisterLifecycle(lc fx.Lifecycle, set *QueueSet, sweeper *DeadLetterSweeper, log *slog.Logger) {
	log = log.With(logger.Scope("jobs"))

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if err := set.Start(ctx); err != nil {
				return err
			}
			if err := sweeper.Start(ctx); err != nil {
				return err
			}
			log.Info("job system started")
			return nil
		},
		OnStop: func(ctx context.Context) error {
			if err := sweeper.Stop(); err != nil {
				return err
			}
			if err := set.Close(); err != nil {
				return err
			}
			log.Info("job system stopped")
			return nil
		},
	})
}

// AsProcessor annotates a processor constructor into the "processors"
// group.
func AsProcessor(constructor any) any {
	return fx.Annotate(constructor,
		fx.As(new(Processor)),
		fx.ResultTags(`group:"processors"`),
	)
}
