package health

import (
	"context"
	"net/http"
	"runtime"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/fabworks-io/fabworks/internal/config"
	"github.com/fabworks-io/fabworks/internal/jobs"
	"github.com/fabworks-io/fabworks/internal/version"
)

// Handler handles health check requests
type Handler struct {
	metrics *jobs.MetricsService
	cfg     *config.Config
	startAt time.Time
}

// NewHandler creates a new health handler
func NewHandler(metrics *jobs.MetricsService, cfg *config.Config) *Handler {
	return &Handler{
		metrics: metrics,
		cfg:     cfg,
		startAt: time.Now(),
	}
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string           `json:"status"`
	Timestamp string           `json:"timestamp"`
	Uptime    string           `json:"uptime"`
	Version   string           `json:"version"`
	Checks    map[string]Check `json:"checks"`
}

// Check represents an individual health check result
type Check struct {
	Status     string  `json:"status"`
	FailedRate float64 `json:"failedRate"`
	Paused     bool    `json:"paused,omitempty"`
}

// Health returns the overall service health
// @Summary      Get service health
// @Description  Returns health status aggregated across all job queues
// @Tags         health
// @Produce      json
// @Success      200 {object} HealthResponse "Service is healthy"
// @Success      503 {object} HealthResponse "Service is unhealthy"
// @Router       /health [get]
func (h *Handler) Health(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	report, err := h.metrics.HealthCheck(ctx)
	if err != nil {
		return err
	}

	checks := make(map[string]Check, len(report.Queues))
	for queueType, q := range report.Queues {
		status := "healthy"
		if !q.Healthy {
			status = "unhealthy"
		}
		checks[string(queueType)] = Check{
			Status:     status,
			FailedRate: q.FailedRate,
			Paused:     q.Paused,
		}
	}

	overallStatus := "healthy"
	statusCode := http.StatusOK
	if !report.Healthy {
		overallStatus = "unhealthy"
		statusCode = http.StatusServiceUnavailable
	}

	return c.JSON(statusCode, HealthResponse{
		Status:    overallStatus,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Uptime:    time.Since(h.startAt).String(),
		Version:   version.Version,
		Checks:    checks,
	})
}

// Healthz returns a simple health check (for k8s liveness probe)
// @Summary      Liveness probe
// @Tags         health
// @Produce      plain
// @Success      200 {string} string "OK"
// @Router       /healthz [get]
func (h *Handler) Healthz(c echo.Context) error {
	return c.String(http.StatusOK, "OK")
}

// Ready returns readiness status (for k8s readiness probe)
// @Summary      Readiness probe
// @Description  Ready once all job queues report healthy
// @Tags         health
// @Produce      json
// @Success      200 {object} map[string]any "Service is ready"
// @Success      503 {object} map[string]any "Service is not ready"
// @Router       /ready [get]
func (h *Handler) Ready(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	report, err := h.metrics.HealthCheck(ctx)
	if err != nil || !report.Healthy {
		return c.JSON(http.StatusServiceUnavailable, map[string]any{
			"status":  "not_ready",
			"message": "One or more job queues are unhealthy",
		})
	}

	return c.JSON(http.StatusOK, map[string]any{
		"status": "ready",
	})
}

// Debug returns debug information (only in development)
// @Summary      Get debug information
// @Tags         health
// @Produce      json
// @Success      200 {object} map[string]any "Debug information"
// @Failure      404 {object} map[string]any "Not found in production"
// @Router       /debug [get]
func (h *Handler) Debug(c echo.Context) error {
	if h.cfg.Environment == "production" {
		return echo.NewHTTPError(http.StatusNotFound, "Not found")
	}

	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	return c.JSON(http.StatusOK, map[string]any{
		"environment": h.cfg.Environment,
		"debug":       h.cfg.Debug,
		"go_version":  runtime.Version(),
		"goroutines":  runtime.NumGoroutine(),
		"memory": map[string]any{
			"alloc_mb":       mem.Alloc / 1024 / 1024,
			"total_alloc_mb": mem.TotalAlloc / 1024 / 1024,
			"sys_mb":         mem.Sys / 1024 / 1024,
			"num_gc":         mem.NumGC,
		},
		"jobs": map[string]any{
			"backend":            h.cfg.Jobs.Backend,
			"worker_concurrency": h.cfg.Jobs.WorkerConcurrency,
		},
	})
}
