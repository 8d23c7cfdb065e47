package logger

import (
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScope(t *testing.T) {
	tests := []struct {
		name  string
		scope string
	}{
		{"basic scope", "jobs"},
		{"nested scope", "jobs.dlq.sweeper"},
		{"empty scope", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			attr := Scope(tt.scope)
			assert.Equal(t, "scope", attr.Key)
			assert.Equal(t, tt.scope, attr.Value.String())
		})
	}
}

func TestError(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{"simple error", errors.New("something went wrong")},
		{"nil error", nil},
		{"joined error", errors.Join(errors.New("outer"), errors.New("inner"))},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			attr := Error(tt.err)
			assert.Equal(t, "error", attr.Key)
			assert.Equal(t, tt.err, attr.Value.Any())
		})
	}
}

func TestNewLogger_DefaultLevel(t *testing.T) {
	t.Setenv("LOG_LEVEL", "")
	t.Setenv("GO_ENV", "")

	log := NewLogger()
	require.NotNil(t, log)

	assert.True(t, log.Enabled(nil, slog.LevelInfo))
	assert.False(t, log.Enabled(nil, slog.LevelDebug))
}

func TestNewLogger_DebugLevel(t *testing.T) {
	t.Setenv("LOG_LEVEL", "debug")

	log := NewLogger()
	require.NotNil(t, log)

	assert.True(t, log.Enabled(nil, slog.LevelDebug))
}

func TestNewLogger_WarnLevel(t *testing.T) {
	t.Setenv("LOG_LEVEL", "warn")

	log := NewLogger()
	require.NotNil(t, log)

	assert.False(t, log.Enabled(nil, slog.LevelInfo))
	assert.True(t, log.Enabled(nil, slog.LevelWarn))
}
