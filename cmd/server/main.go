// Package main provides the entry point for the Fabworks job server
//
// @title Fabworks Job Server
// @version 1.0.0
// @description Background job processing for the Fabworks manufacturing quoting platform
// @host localhost:3002
// @BasePath /
// @schemes http https
package main

import (
	"log/slog"

	"github.com/joho/godotenv"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"

	"github.com/fabworks-io/fabworks/domain/fileanalysis"
	"github.com/fabworks-io/fabworks/domain/health"
	"github.com/fabworks-io/fabworks/domain/notifications"
	"github.com/fabworks-io/fabworks/domain/quotecalc"
	"github.com/fabworks-io/fabworks/domain/reports"
	"github.com/fabworks-io/fabworks/internal/config"
	"github.com/fabworks-io/fabworks/internal/jobs"
	"github.com/fabworks-io/fabworks/internal/server"
	"github.com/fabworks-io/fabworks/pkg/analysis"
	"github.com/fabworks-io/fabworks/pkg/logger"
)

func main() {
	// Load .env files if present (for local development)
	// Order matters: .env.local overrides .env
	_ = godotenv.Load("../../.env")
	_ = godotenv.Overload("../../.env.local")

	fx.New(
		// Logging
		fx.WithLogger(func(log *slog.Logger) fxevent.Logger {
			return &fxevent.SlogLogger{Logger: log}
		}),

		// Infrastructure modules
		logger.Module,
		config.Module,
		server.Module,

		// Job system (queues, tracking, dead-letter sweeper, metrics)
		jobs.Module,

		// Analysis service client (external geometry/DFM worker)
		analysis.Module,

		// Processors
		fileanalysis.Module,
		quotecalc.Module,
		notifications.Module,
		reports.Module,

		// Operational endpoints
		health.Module,
	).Run()
}
