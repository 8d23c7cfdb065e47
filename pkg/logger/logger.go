// Package logger provides the application's structured logging setup.
//
// All services receive a *slog.Logger and scope it with logger.Scope:
//
//	log.With(logger.Scope("jobs.svc"))
package logger

import (
	"log/slog"
	"os"
	"strings"

	"go.uber.org/fx"
)

var Module = fx.Module("logger",
	fx.Provide(NewLogger),
)

// NewLogger creates the root slog logger.
// Level comes from LOG_LEVEL (debug|info|warn|error, default info).
// Output is JSON unless GO_ENV is empty or "local", in which case a
// human-readable text handler is used.
func NewLogger() *slog.Logger {
	level := slog.LevelInfo
	switch strings.ToLower(os.Getenv("LOG_LEVEL")) {
	case "debug":
		level = slog.LevelDebug
	case "warn", "warning":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	env := strings.ToLower(os.Getenv("GO_ENV"))
	if env == "" || env == "local" || env == "development" {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

// Scope returns a "scope" attribute identifying the component a log line
// originates from.
func Scope(scope string) slog.Attr {
	return slog.String("scope", scope)
}

// Error returns an "error" attribute for the given error.
func Error(err error) slog.Attr {
	return slog.Any("error", err)
}
