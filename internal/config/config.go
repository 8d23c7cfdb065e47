package config

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/caarlos0/env/v11"
	"go.uber.org/fx"
)

var Module = fx.Module("config",
	fx.Provide(NewConfig),
)

// Config holds all application configuration
type Config struct {
	// Server settings
	ServerPort    int    `env:"SERVER_PORT" envDefault:"3002"`
	ServerAddress string `env:"SERVER_ADDRESS" envDefault:"0.0.0.0"`
	Environment   string `env:"ENVIRONMENT" envDefault:"local"`
	Debug         bool   `env:"DEBUG" envDefault:"false"`
	LogLevel      string `env:"LOG_LEVEL" envDefault:"info"`

	// Redis backing store (queues + tracking index)
	Redis RedisConfig

	// Job system tunables
	Jobs JobsConfig

	// File analysis worker service
	Analysis AnalysisConfig

	// Outbound email settings
	Email EmailConfig

	// Server timeouts
	ReadTimeout     time.Duration `env:"SERVER_READ_TIMEOUT" envDefault:"5s"`
	WriteTimeout    time.Duration `env:"SERVER_WRITE_TIMEOUT" envDefault:"60s"`
	IdleTimeout     time.Duration `env:"SERVER_IDLE_TIMEOUT" envDefault:"120s"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`
}

// RedisConfig holds Redis connection settings
type RedisConfig struct {
	Addr      string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	Password  string `env:"REDIS_PASSWORD" envDefault:""`
	DB        int    `env:"REDIS_DB" envDefault:"0"`
	KeyPrefix string `env:"REDIS_KEY_PREFIX" envDefault:"fabworks"`
}

// JobsConfig holds queue defaults and background-task intervals.
// The per-job option defaults mirror the queue-level policy: jobs that do
// not specify their own options inherit these.
type JobsConfig struct {
	// Backend selects the queue store implementation: "redis" or "memory"
	Backend string `env:"JOBS_BACKEND" envDefault:"redis"`

	// Default retry policy for jobs that do not set their own
	DefaultAttempts int           `env:"JOBS_DEFAULT_ATTEMPTS" envDefault:"3"`
	BackoffDelay    time.Duration `env:"JOBS_BACKOFF_DELAY" envDefault:"5s"`

	// Retention: how many terminal jobs each queue keeps
	RemoveOnComplete int `env:"JOBS_REMOVE_ON_COMPLETE" envDefault:"100"`
	RemoveOnFail     int `env:"JOBS_REMOVE_ON_FAIL" envDefault:"1000"`

	// Worker slots per queue
	WorkerConcurrency int `env:"JOBS_WORKER_CONCURRENCY" envDefault:"4"`

	// How often idle workers poll for eligible jobs
	PollInterval time.Duration `env:"JOBS_POLL_INTERVAL" envDefault:"250ms"`

	// Lease held by a worker while processing; an expired lease marks the
	// job stalled and requeues it
	LeaseTimeout  time.Duration `env:"JOBS_LEASE_TIMEOUT" envDefault:"30s"`
	StallInterval time.Duration `env:"JOBS_STALL_INTERVAL" envDefault:"30s"`

	// Dead-letter queue sweep
	DeadLetterSweepInterval time.Duration `env:"JOBS_DLQ_SWEEP_INTERVAL" envDefault:"60s"`
	DeadLetterSweepBatch    int           `env:"JOBS_DLQ_SWEEP_BATCH" envDefault:"10"`

	// Tracking index entry lifetime
	TrackingTTL time.Duration `env:"JOBS_TRACKING_TTL" envDefault:"168h"`
}

// AnalysisConfig holds settings for the external file-analysis service.
// When disabled, file analysis falls back to basic local analysis.
type AnalysisConfig struct {
	Enabled bool          `env:"WORKER_SERVICE_ENABLED" envDefault:"true"`
	URL     string        `env:"WORKER_SERVICE_URL" envDefault:"http://localhost:8000"`
	Timeout time.Duration `env:"WORKER_SERVICE_TIMEOUT" envDefault:"5m"`
}

// EmailConfig holds outbound email settings. When Mailgun credentials are
// missing, notification sends fall back to a logging transport.
type EmailConfig struct {
	Enabled       bool   `env:"EMAIL_ENABLED" envDefault:"true"`
	MailgunDomain string `env:"MAILGUN_DOMAIN" envDefault:""`
	MailgunAPIKey string `env:"MAILGUN_API_KEY" envDefault:""`
	FromEmail     string `env:"EMAIL_FROM_ADDRESS" envDefault:"noreply@fabworks.io"`
	FromName      string `env:"EMAIL_FROM_NAME" envDefault:"Fabworks Quoting"`
	SupportEmail  string `env:"EMAIL_SUPPORT_ADDRESS" envDefault:"support@fabworks.io"`
	WebsiteURL    string `env:"APP_URL" envDefault:"https://app.fabworks.io"`
}

// IsConfigured reports whether Mailgun credentials are present
func (c EmailConfig) IsConfigured() bool {
	return c.MailgunDomain != "" && c.MailgunAPIKey != ""
}

// Addr returns the listen address for the operational HTTP server
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.ServerAddress, c.ServerPort)
}

// NewConfig parses configuration from environment variables
func NewConfig(log *slog.Logger) (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	log.Info("configuration loaded",
		slog.String("environment", cfg.Environment),
		slog.String("jobs_backend", cfg.Jobs.Backend),
		slog.String("redis_addr", cfg.Redis.Addr),
		slog.Int("worker_concurrency", cfg.Jobs.WorkerConcurrency),
	)

	return cfg, nil
}
