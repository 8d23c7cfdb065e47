package health

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fabworks-io/fabworks/internal/config"
	"github.com/fabworks-io/fabworks/internal/jobs"
	"github.com/fabworks-io/fabworks/internal/queue"
	"github.com/fabworks-io/fabworks/pkg/logger"
)

func newTestHandlers(t *testing.T) (*Handler, *MetricsHandler, *jobs.QueueSet) {
	t.Helper()
	set := jobs.NewQueueSet(func(name string) queue.Queue {
		return queue.NewMemoryQueue(name)
	})
	t.Cleanup(func() { _ = set.Close() })

	metrics := jobs.NewMetricsService(set, logger.NewLogger())
	cfg := &config.Config{Environment: "test", Jobs: config.JobsConfig{Backend: "memory"}}
	return NewHandler(metrics, cfg), NewMetricsHandler(metrics), set
}

func doRequest(t *testing.T, handler echo.HandlerFunc, path string) *httptest.ResponseRecorder {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	require.NoError(t, handler(e.NewContext(req, rec)))
	return rec
}

func TestHealth_AllQueuesHealthy(t *testing.T) {
	h, _, _ := newTestHandlers(t)

	rec := doRequest(t, h.Health, "/health")
	assert.Equal(t, http.StatusOK, rec.Code)

	var body HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body.Status)
	assert.Len(t, body.Checks, len(jobs.Types()))
	for _, check := range body.Checks {
		assert.Equal(t, "healthy", check.Status)
	}
}

func TestHealth_PausedQueueIsUnhealthy(t *testing.T) {
	h, _, set := newTestHandlers(t)

	q, ok := set.Get(jobs.TypeFileAnalysis)
	require.True(t, ok)
	require.NoError(t, q.Pause(context.Background()))

	rec := doRequest(t, h.Health, "/health")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var body HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "unhealthy", body.Status)
	assert.Equal(t, "unhealthy", body.Checks[string(jobs.TypeFileAnalysis)].Status)
	assert.True(t, body.Checks[string(jobs.TypeFileAnalysis)].Paused)
}

func TestHealthz(t *testing.T) {
	h, _, _ := newTestHandlers(t)

	rec := doRequest(t, h.Healthz, "/healthz")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())
}

func TestReady(t *testing.T) {
	h, _, set := newTestHandlers(t)

	rec := doRequest(t, h.Ready, "/ready")
	assert.Equal(t, http.StatusOK, rec.Code)

	q, _ := set.Get(jobs.TypeQuoteCalculation)
	require.NoError(t, q.Pause(context.Background()))

	rec = doRequest(t, h.Ready, "/ready")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestDebug_HiddenInProduction(t *testing.T) {
	set := jobs.NewQueueSet(func(name string) queue.Queue {
		return queue.NewMemoryQueue(name)
	})
	t.Cleanup(func() { _ = set.Close() })

	metrics := jobs.NewMetricsService(set, logger.NewLogger())
	h := NewHandler(metrics, &config.Config{Environment: "production"})

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/debug", nil)
	rec := httptest.NewRecorder()
	err := h.Debug(e.NewContext(req, rec))

	var httpErr *echo.HTTPError
	require.ErrorAs(t, err, &httpErr)
	assert.Equal(t, http.StatusNotFound, httpErr.Code)
}

func TestJobMetrics(t *testing.T) {
	_, m, _ := newTestHandlers(t)

	rec := doRequest(t, m.JobMetrics, "/api/metrics/jobs")
	assert.Equal(t, http.StatusOK, rec.Code)

	var body AllJobMetrics
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Len(t, body.Queues, len(jobs.Types()))
	assert.NotEmpty(t, body.Timestamp)
}

func TestQueueMetrics_UnknownQueue(t *testing.T) {
	_, m, _ := newTestHandlers(t)

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/api/metrics/jobs/nope", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("type")
	c.SetParamValues("nope")

	require.Error(t, m.QueueMetrics(c))
}
