package quotecalc

import (
	"fmt"
	"math"
	"time"
)

// materialRate holds per-material pricing inputs. Density is g/cm3 and
// CostPerKg is in the quote currency.
type materialRate struct {
	Density   float64
	CostPerKg float64
}

// processRate holds per-process pricing inputs.
type processRate struct {
	SetupCost  float64
	HourlyRate float64
}

// Base-rate tables. Tenant-specific overrides layer on top of these
// through PricingConfig.
var (
	materialRates = map[string]materialRate{
		"aluminum-6061": {Density: 2.70, CostPerKg: 4.50},
		"steel-1018":    {Density: 7.87, CostPerKg: 2.80},
		"stainless-304": {Density: 8.00, CostPerKg: 6.20},
		"abs":           {Density: 1.05, CostPerKg: 18.00},
		"pla":           {Density: 1.24, CostPerKg: 15.00},
		"nylon-12":      {Density: 1.01, CostPerKg: 55.00},
	}

	processRates = map[string]processRate{
		"cnc-milling":     {SetupCost: 50.00, HourlyRate: 75.00},
		"cnc-turning":     {SetupCost: 40.00, HourlyRate: 65.00},
		"3d-printing-fdm": {SetupCost: 10.00, HourlyRate: 25.00},
		"3d-printing-sls": {SetupCost: 25.00, HourlyRate: 45.00},
		"laser-cutting":   {SetupCost: 30.00, HourlyRate: 55.00},
		"sheet-metal":     {SetupCost: 45.00, HourlyRate: 60.00},
	}
)

// PricingConfig holds the tenant-level pricing knobs.
type PricingConfig struct {
	DefaultMargin     float64
	OverheadRate      float64
	RushOrderRate     float64
	TaxRate           float64
	QuoteValidityDays int
	// VolumeDiscounts maps minimum total quantity to discount fraction
	VolumeDiscounts map[int]float64
}

// DefaultPricingConfig returns the system-wide pricing defaults.
func DefaultPricingConfig() PricingConfig {
	return PricingConfig{
		DefaultMargin:     0.35,
		OverheadRate:      0.15,
		RushOrderRate:     0.25,
		TaxRate:           0.16,
		QuoteValidityDays: 30,
		VolumeDiscounts: map[int]float64{
			10:  0.05,
			50:  0.10,
			100: 0.15,
		},
	}
}

// PricedItem is the calculated price breakdown of one quote item.
type PricedItem struct {
	ID           string  `json:"id"`
	FileID       string  `json:"fileId"`
	UnitPrice    float64 `json:"unitPrice"`
	TotalPrice   float64 `json:"totalPrice"`
	MaterialCost float64 `json:"materialCost"`
	LaborCost    float64 `json:"laborCost"`
	OverheadCost float64 `json:"overheadCost"`
	Margin       float64 `json:"margin"`
	LeadTimeDays int     `json:"leadTime"`
}

// Summary is the quote-level rollup of the priced items.
type Summary struct {
	Subtotal       float64   `json:"subtotal"`
	RushFee        float64   `json:"rushFee,omitempty"`
	VolumeDiscount float64   `json:"volumeDiscount,omitempty"`
	Tax            float64   `json:"tax"`
	Total          float64   `json:"total"`
	Currency       string    `json:"currency"`
	ValidUntil     time.Time `json:"validUntil"`
}

// priceItem calculates the cost breakdown for one item. Volume is in cm3.
func priceItem(item Item, cfg PricingConfig) (PricedItem, error) {
	material, ok := materialRates[item.Material]
	if !ok {
		return PricedItem{}, fmt.Errorf("unknown material %q", item.Material)
	}
	process, ok := processRates[item.Process]
	if !ok {
		return PricedItem{}, fmt.Errorf("unknown process %q", item.Process)
	}

	massKg := item.Volume * material.Density / 1000
	materialCost := massKg * material.CostPerKg

	hours := machineHours(item.Volume, item.Process, item.Complexity)
	laborCost := process.SetupCost + hours*process.HourlyRate

	overheadCost := (materialCost + laborCost) * cfg.OverheadRate

	unitCost := materialCost + laborCost + overheadCost
	unitPrice := round2(unitCost * (1 + cfg.DefaultMargin))

	quantity := item.Quantity
	if quantity < 1 {
		quantity = 1
	}

	return PricedItem{
		ID:           item.ID,
		FileID:       item.FileID,
		UnitPrice:    unitPrice,
		TotalPrice:   round2(unitPrice * float64(quantity)),
		MaterialCost: round2(materialCost),
		LaborCost:    round2(laborCost),
		OverheadCost: round2(overheadCost),
		Margin:       cfg.DefaultMargin,
		LeadTimeDays: leadTimeDays(item.Process, quantity),
	}, nil
}

// machineHours estimates machine time from part volume, process and
// complexity.
func machineHours(volume float64, process, complexity string) float64 {
	base := 0.25 + volume/500
	switch process {
	case "3d-printing-fdm", "3d-printing-sls":
		base = 0.5 + volume/100
	case "laser-cutting", "sheet-metal":
		base = 0.1 + volume/1000
	}
	switch complexity {
	case "complex":
		base *= 2
	case "moderate":
		base *= 1.4
	}
	return base
}

func leadTimeDays(process string, quantity int) int {
	days := 3
	switch process {
	case "cnc-milling", "cnc-turning":
		days = 5
	case "sheet-metal":
		days = 7
	}
	// every 25 units adds a day
	return days + quantity/25
}

// summarize rolls the priced items up into the quote summary.
func summarize(items []PricedItem, totalQuantity int, rushOrder bool, currency string, cfg PricingConfig, now time.Time) Summary {
	var subtotal float64
	for _, item := range items {
		subtotal += item.TotalPrice
	}

	summary := Summary{
		Subtotal: round2(subtotal),
		Currency: currency,
	}

	discounted := subtotal
	if rate := volumeDiscountRate(totalQuantity, cfg); rate > 0 {
		summary.VolumeDiscount = round2(subtotal * rate)
		discounted -= summary.VolumeDiscount
	}

	if rushOrder {
		summary.RushFee = round2(discounted * cfg.RushOrderRate)
		discounted += summary.RushFee
	}

	summary.Tax = round2(discounted * cfg.TaxRate)
	summary.Total = round2(discounted + summary.Tax)
	summary.ValidUntil = now.AddDate(0, 0, cfg.QuoteValidityDays)
	return summary
}

// volumeDiscountRate returns the largest discount whose threshold the
// quantity meets.
func volumeDiscountRate(quantity int, cfg PricingConfig) float64 {
	best := 0.0
	for threshold, rate := range cfg.VolumeDiscounts {
		if quantity >= threshold && rate > best {
			best = rate
		}
	}
	return best
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
