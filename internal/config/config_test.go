package config

import (
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.Default()
}

func TestNewConfig_Defaults(t *testing.T) {
	cfg, err := NewConfig(testLogger())
	require.NoError(t, err)

	assert.Equal(t, 3002, cfg.ServerPort)
	assert.Equal(t, "0.0.0.0", cfg.ServerAddress)
	assert.Equal(t, "local", cfg.Environment)

	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
	assert.Equal(t, "fabworks", cfg.Redis.KeyPrefix)

	assert.Equal(t, "redis", cfg.Jobs.Backend)
	assert.Equal(t, 3, cfg.Jobs.DefaultAttempts)
	assert.Equal(t, 5*time.Second, cfg.Jobs.BackoffDelay)
	assert.Equal(t, 100, cfg.Jobs.RemoveOnComplete)
	assert.Equal(t, 1000, cfg.Jobs.RemoveOnFail)
	assert.Equal(t, 4, cfg.Jobs.WorkerConcurrency)
	assert.Equal(t, 60*time.Second, cfg.Jobs.DeadLetterSweepInterval)
	assert.Equal(t, 10, cfg.Jobs.DeadLetterSweepBatch)
	assert.Equal(t, 7*24*time.Hour, cfg.Jobs.TrackingTTL)

	assert.Equal(t, "http://localhost:8000", cfg.Analysis.URL)
	assert.Equal(t, 5*time.Minute, cfg.Analysis.Timeout)
}

func TestNewConfig_EnvOverrides(t *testing.T) {
	t.Setenv("SERVER_PORT", "8088")
	t.Setenv("JOBS_BACKEND", "memory")
	t.Setenv("JOBS_DEFAULT_ATTEMPTS", "5")
	t.Setenv("JOBS_BACKOFF_DELAY", "1s")
	t.Setenv("REDIS_ADDR", "redis.internal:6380")

	cfg, err := NewConfig(testLogger())
	require.NoError(t, err)

	assert.Equal(t, 8088, cfg.ServerPort)
	assert.Equal(t, "memory", cfg.Jobs.Backend)
	assert.Equal(t, 5, cfg.Jobs.DefaultAttempts)
	assert.Equal(t, time.Second, cfg.Jobs.BackoffDelay)
	assert.Equal(t, "redis.internal:6380", cfg.Redis.Addr)
}

func TestConfig_Addr(t *testing.T) {
	cfg := &Config{ServerAddress: "127.0.0.1", ServerPort: 9000}
	assert.Equal(t, "127.0.0.1:9000", cfg.Addr())
}
