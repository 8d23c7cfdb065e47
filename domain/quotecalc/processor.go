// Package quotecalc processes quote-calculation jobs: it prices every item
// of a quote against the material and process rate tables, rolls the items
// up into a quote summary and persists the calculation. The pricing loop
// checks for cooperative cancellation between items.
package quotecalc

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/fabworks-io/fabworks/internal/jobs"
	"github.com/fabworks-io/fabworks/internal/queue"
	"github.com/fabworks-io/fabworks/pkg/logger"
)

const errCode = "QUOTE_CALCULATION_FAILED"

// Item is one line of a quote-calculation payload.
type Item struct {
	ID         string
	FileID     string
	Material   string
	Process    string
	Quantity   int
	Volume     float64
	Complexity string
}

// Payload is the job payload for a quote-calculation job.
type Payload struct {
	QuoteID   string
	Items     []Item
	RushOrder bool
	Currency  string
	TenantID  string
}

func decodePayload(data map[string]any) (Payload, error) {
	p := Payload{
		TenantID: jobs.TenantIDOf(data),
		Currency: "MXN",
	}
	p.QuoteID, _ = data["quoteId"].(string)
	if currency, ok := data["currency"].(string); ok && currency != "" {
		p.Currency = currency
	}
	p.RushOrder, _ = data["rushOrder"].(bool)

	rawItems, _ := data["items"].([]any)
	for _, raw := range rawItems {
		fields, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		item := Item{}
		item.ID, _ = fields["id"].(string)
		item.FileID, _ = fields["fileId"].(string)
		item.Material, _ = fields["material"].(string)
		item.Process, _ = fields["process"].(string)
		item.Quantity = intField(fields, "quantity")
		item.Volume = floatField(fields, "volume")
		item.Complexity, _ = fields["complexity"].(string)
		p.Items = append(p.Items, item)
	}

	if p.QuoteID == "" {
		return p, fmt.Errorf("payload is missing quoteId")
	}
	if len(p.Items) == 0 {
		return p, fmt.Errorf("payload has no items")
	}
	return p, nil
}

// JSON numbers decode as float64; direct submissions may carry ints.
func intField(fields map[string]any, key string) int {
	switch v := fields[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	}
	return 0
}

func floatField(fields map[string]any, key string) float64 {
	switch v := fields[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	}
	return 0
}

// CalcResult is the full result of a quote calculation.
type CalcResult struct {
	QuoteID string       `json:"quoteId"`
	Items   []PricedItem `json:"items"`
	Summary Summary      `json:"summary"`
	Pricing PricingInfo  `json:"pricing"`
}

// PricingInfo exposes the pricing inputs behind a calculation.
type PricingInfo struct {
	BasePrice    float64      `json:"basePrice"`
	Adjustments  []Adjustment `json:"adjustments"`
	ProfitMargin float64      `json:"profitMargin"`
}

// Adjustment is one summary-level price adjustment.
type Adjustment struct {
	Type   string  `json:"type"`
	Amount float64 `json:"amount"`
	Reason string  `json:"reason"`
}

// Processor handles quote-calculation jobs.
type Processor struct {
	repo Repository
	cfg  PricingConfig
	log  *slog.Logger
}

func NewProcessor(repo Repository, log *slog.Logger) *Processor {
	return &Processor{
		repo: repo,
		cfg:  DefaultPricingConfig(),
		log:  log.With(logger.Scope("quotecalc")),
	}
}

func (p *Processor) Type() jobs.Type { return jobs.TypeQuoteCalculation }

func (p *Processor) Process(ctx context.Context, job queue.Job) (jobs.Result, error) {
	started := time.Now()

	payload, err := decodePayload(job.Data())
	if err != nil {
		return jobs.Fail(errCode, err.Error(), nil, started), nil
	}

	p.log.Info("starting quote calculation",
		slog.String("job_id", job.ID()),
		slog.String("quote_id", payload.QuoteID),
		slog.String("tenant_id", payload.TenantID),
		slog.Int("item_count", len(payload.Items)))

	if jobs.Cancelled(job) {
		return jobs.Fail(errCode, "Job was cancelled", nil, started), nil
	}

	p.report(ctx, job, payload, 10, "Loading quote data", 0)
	quote, err := p.repo.LoadQuote(ctx, payload.TenantID, payload.QuoteID)
	if err != nil {
		return jobs.Result{}, fmt.Errorf("load quote: %w", err)
	}
	if quote == nil {
		return jobs.Fail(errCode,
			fmt.Sprintf("Quote %s not found", payload.QuoteID), nil, started), nil
	}

	p.report(ctx, job, payload, 20, "Validating files and materials", 0)
	if err := validateItems(payload.Items); err != nil {
		return jobs.Fail(errCode, err.Error(), nil, started), nil
	}

	p.report(ctx, job, payload, 30, "Calculating item prices", 0)

	pricedItems := make([]PricedItem, 0, len(payload.Items))
	totalQuantity := 0
	progressPerItem := 50.0 / float64(len(payload.Items))
	progress := 30.0

	for _, item := range payload.Items {
		if jobs.Cancelled(job) {
			return jobs.Fail(errCode, "Job was cancelled", nil, started), nil
		}

		priced, err := priceItem(item, p.cfg)
		if err != nil {
			return jobs.Fail(errCode, err.Error(),
				map[string]any{"itemId": item.ID}, started), nil
		}
		pricedItems = append(pricedItems, priced)
		if item.Quantity > 0 {
			totalQuantity += item.Quantity
		} else {
			totalQuantity++
		}

		progress += progressPerItem
		p.report(ctx, job, payload, int(math.Round(progress)),
			fmt.Sprintf("Calculated price for item %d/%d", len(pricedItems), len(payload.Items)),
			len(pricedItems))
	}

	p.report(ctx, job, payload, 80, "Calculating quote summary", len(pricedItems))
	summary := summarize(pricedItems, totalQuantity, payload.RushOrder, payload.Currency, p.cfg, time.Now())

	result := CalcResult{
		QuoteID: payload.QuoteID,
		Items:   pricedItems,
		Summary: summary,
		Pricing: PricingInfo{
			BasePrice:    summary.Subtotal,
			Adjustments:  adjustments(summary),
			ProfitMargin: p.cfg.DefaultMargin,
		},
	}

	p.report(ctx, job, payload, 90, "Saving calculation results", len(pricedItems))
	if err := p.repo.SaveCalculation(ctx, payload.TenantID, payload.QuoteID, result); err != nil {
		return jobs.Result{}, fmt.Errorf("save calculation results: %w", err)
	}

	p.report(ctx, job, payload, 100, "Quote calculation completed", len(pricedItems))
	return jobs.Succeed(result, started), nil
}

func validateItems(items []Item) error {
	for _, item := range items {
		if _, ok := materialRates[item.Material]; !ok {
			return fmt.Errorf("unknown material %q", item.Material)
		}
		if _, ok := processRates[item.Process]; !ok {
			return fmt.Errorf("unknown process %q", item.Process)
		}
	}
	return nil
}

func adjustments(summary Summary) []Adjustment {
	var out []Adjustment
	if summary.VolumeDiscount > 0 {
		out = append(out, Adjustment{
			Type:   "volume-discount",
			Amount: -summary.VolumeDiscount,
			Reason: "Volume discount",
		})
	}
	if summary.RushFee > 0 {
		out = append(out, Adjustment{
			Type:   "rush-fee",
			Amount: summary.RushFee,
			Reason: "Rush order surcharge",
		})
	}
	out = append(out, Adjustment{
		Type:   "tax",
		Amount: summary.Tax,
		Reason: "Tax",
	})
	return out
}

func (p *Processor) report(ctx context.Context, job queue.Job, payload Payload, pct int, message string, itemsProcessed int) {
	_ = job.SetProgress(ctx, queue.Progress{
		Percentage: pct,
		Message:    message,
		Step:       stepFor(pct),
		Metadata: map[string]any{
			"quoteId":        payload.QuoteID,
			"itemsProcessed": itemsProcessed,
		},
	})
	_ = job.Log(ctx, fmt.Sprintf("%s (%d%%)", message, pct))
}

// stepFor derives the pipeline step from the progress percentage.
func stepFor(pct int) string {
	switch {
	case pct <= 20:
		return "loading-data"
	case pct <= 30:
		return "validating"
	case pct <= 80:
		return "calculating-prices"
	case pct <= 90:
		return "calculating-summary"
	default:
		return "saving-results"
	}
}
