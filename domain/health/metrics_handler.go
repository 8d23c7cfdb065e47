package health

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/fabworks-io/fabworks/internal/jobs"
)

// MetricsHandler handles job metrics requests
type MetricsHandler struct {
	metrics *jobs.MetricsService
}

// NewMetricsHandler creates a new metrics handler
func NewMetricsHandler(metrics *jobs.MetricsService) *MetricsHandler {
	return &MetricsHandler{metrics: metrics}
}

// AllJobMetrics contains metrics for all job queues
type AllJobMetrics struct {
	Queues    []jobs.QueueMetrics `json:"queues"`
	Timestamp string              `json:"timestamp"`
}

// JobMetrics returns counts and rates for all job queues
// @Summary      Get job queue metrics
// @Tags         metrics
// @Produce      json
// @Success      200 {object} AllJobMetrics "Per-queue metrics"
// @Router       /api/metrics/jobs [get]
func (h *MetricsHandler) JobMetrics(c echo.Context) error {
	all, err := h.metrics.AllMetrics(c.Request().Context())
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, AllJobMetrics{
		Queues:    all,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

// QueueMetrics returns metrics for a single queue
// @Summary      Get metrics for one job queue
// @Tags         metrics
// @Produce      json
// @Success      200 {object} jobs.QueueMetrics "Queue metrics"
// @Failure      404 {object} map[string]any "Unknown queue"
// @Router       /api/metrics/jobs/:type [get]
func (h *MetricsHandler) QueueMetrics(c echo.Context) error {
	queueType := jobs.Type(c.Param("type"))

	metrics, err := h.metrics.QueueMetrics(c.Request().Context(), queueType)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, metrics)
}
