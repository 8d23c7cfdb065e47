package quotecalc

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fabworks-io/fabworks/internal/jobs"
	"github.com/fabworks-io/fabworks/internal/queue"
	"github.com/fabworks-io/fabworks/pkg/logger"
)

func newTestJob(t *testing.T, data map[string]any) queue.Job {
	t.Helper()
	q := queue.NewMemoryQueue("quote-calculation")
	t.Cleanup(func() { _ = q.Close() })
	job, err := q.Add(context.Background(), "quote-calculation", data, queue.Options{})
	require.NoError(t, err)
	return job
}

func quotePayload() map[string]any {
	return map[string]any{
		"quoteId":  "q-1",
		"tenantId": "tenant-a",
		"items": []any{
			map[string]any{
				"id":         "item-1",
				"fileId":     "f-1",
				"material":   "aluminum-6061",
				"process":    "cnc-milling",
				"quantity":   float64(10),
				"volume":     float64(120),
				"complexity": "moderate",
			},
			map[string]any{
				"id":       "item-2",
				"fileId":   "f-2",
				"material": "abs",
				"process":  "3d-printing-fdm",
				"quantity": float64(5),
				"volume":   float64(40),
			},
		},
	}
}

func seededRepo() *MemoryRepository {
	repo := NewMemoryRepository()
	repo.PutQuote(QuoteRecord{ID: "q-1", TenantID: "tenant-a", Customer: "Acme Fabrication"})
	return repo
}

func TestProcess_CalculatesAndSaves(t *testing.T) {
	ctx := context.Background()
	repo := seededRepo()
	proc := NewProcessor(repo, logger.NewLogger())

	job := newTestJob(t, quotePayload())

	res, err := proc.Process(ctx, job)
	require.NoError(t, err)
	require.True(t, res.Success)

	got, ok := res.Data.(CalcResult)
	require.True(t, ok)
	assert.Equal(t, "q-1", got.QuoteID)
	require.Len(t, got.Items, 2)
	assert.Greater(t, got.Summary.Total, got.Summary.Subtotal)
	assert.Equal(t, "MXN", got.Summary.Currency)
	assert.Equal(t, got.Summary.Subtotal, got.Pricing.BasePrice)
	assert.Equal(t, DefaultPricingConfig().DefaultMargin, got.Pricing.ProfitMargin)
	require.NotEmpty(t, got.Pricing.Adjustments)
	assert.Equal(t, "tax", got.Pricing.Adjustments[len(got.Pricing.Adjustments)-1].Type)

	saved := repo.GetCalculation("tenant-a", "q-1")
	require.NotNil(t, saved)
	assert.Equal(t, got.Summary.Total, saved.Summary.Total)

	progress, err := job.Progress(ctx)
	require.NoError(t, err)
	assert.Equal(t, 100, progress.Percentage)
	assert.Equal(t, "saving-results", progress.Step)
	assert.Equal(t, "q-1", progress.Metadata["quoteId"])
	assert.Equal(t, 2, progress.Metadata["itemsProcessed"])
}

func TestProcess_RushOrderCarriesAdjustment(t *testing.T) {
	payload := quotePayload()
	payload["rushOrder"] = true
	proc := NewProcessor(seededRepo(), logger.NewLogger())

	res, err := proc.Process(context.Background(), newTestJob(t, payload))
	require.NoError(t, err)
	require.True(t, res.Success)

	got := res.Data.(CalcResult)
	assert.Greater(t, got.Summary.RushFee, 0.0)

	var types []string
	for _, adj := range got.Pricing.Adjustments {
		types = append(types, adj.Type)
	}
	assert.Contains(t, types, "rush-fee")
}

func TestProcess_QuoteNotFoundIsBusinessFailure(t *testing.T) {
	proc := NewProcessor(NewMemoryRepository(), logger.NewLogger())

	res, err := proc.Process(context.Background(), newTestJob(t, quotePayload()))
	require.NoError(t, err)
	assert.False(t, res.Success)
	require.NotNil(t, res.Error)
	assert.Equal(t, "QUOTE_CALCULATION_FAILED", res.Error.Code)
	assert.Contains(t, res.Error.Message, "Quote q-1 not found")
}

func TestProcess_UnknownMaterialIsBusinessFailure(t *testing.T) {
	payload := quotePayload()
	payload["items"] = []any{
		map[string]any{
			"id":       "item-1",
			"material": "unobtainium",
			"process":  "cnc-milling",
			"quantity": float64(1),
		},
	}
	proc := NewProcessor(seededRepo(), logger.NewLogger())

	res, err := proc.Process(context.Background(), newTestJob(t, payload))
	require.NoError(t, err)
	assert.False(t, res.Success)
	require.NotNil(t, res.Error)
	assert.Contains(t, res.Error.Message, "unknown material")
}

func TestProcess_MissingQuoteIDIsBusinessFailure(t *testing.T) {
	proc := NewProcessor(seededRepo(), logger.NewLogger())

	res, err := proc.Process(context.Background(), newTestJob(t, map[string]any{"tenantId": "tenant-a"}))
	require.NoError(t, err)
	assert.False(t, res.Success)
	require.NotNil(t, res.Error)
	assert.Equal(t, "QUOTE_CALCULATION_FAILED", res.Error.Code)
}

type failingRepo struct {
	*MemoryRepository
}

func (r *failingRepo) SaveCalculation(ctx context.Context, tenantID, quoteID string, result CalcResult) error {
	return errors.New("connection reset")
}

func TestProcess_SaveFailureIsRetryable(t *testing.T) {
	repo := &failingRepo{MemoryRepository: seededRepo()}
	proc := NewProcessor(repo, logger.NewLogger())

	_, err := proc.Process(context.Background(), newTestJob(t, quotePayload()))
	require.Error(t, err)
}

func TestProcess_CancelledBeforePricing(t *testing.T) {
	payload := quotePayload()
	payload[jobs.FieldCancelled] = true
	proc := NewProcessor(seededRepo(), logger.NewLogger())

	res, err := proc.Process(context.Background(), newTestJob(t, payload))
	require.NoError(t, err)
	assert.False(t, res.Success)
	require.NotNil(t, res.Error)
	assert.Contains(t, res.Error.Message, "cancelled")
}

func TestProcessorType(t *testing.T) {
	proc := NewProcessor(NewMemoryRepository(), logger.NewLogger())
	assert.Equal(t, jobs.TypeQuoteCalculation, proc.Type())
}

func TestDecodePayload_Defaults(t *testing.T) {
	p, err := decodePayload(quotePayload())
	require.NoError(t, err)
	assert.Equal(t, "MXN", p.Currency)
	assert.False(t, p.RushOrder)
	assert.Equal(t, "tenant-a", p.TenantID)
	require.Len(t, p.Items, 2)
	assert.Equal(t, 10, p.Items[0].Quantity)
	assert.Equal(t, 120.0, p.Items[0].Volume)
}
