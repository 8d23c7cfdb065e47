package quotecalc

import (
	"context"
	"sync"
	"time"
)

// QuoteRecord is the stored quote a calculation runs against.
type QuoteRecord struct {
	ID       string
	TenantID string
	Customer string
}

// Repository loads quotes and persists calculation results.
type Repository interface {
	LoadQuote(ctx context.Context, tenantID, quoteID string) (*QuoteRecord, error)
	SaveCalculation(ctx context.Context, tenantID, quoteID string, result CalcResult) error
}

// MemoryRepository is the in-process Repository. Production deployments
// swap in a database-backed implementation.
type MemoryRepository struct {
	mu           sync.RWMutex
	quotes       map[string]QuoteRecord
	calculations map[string]savedCalculation
}

type savedCalculation struct {
	result  CalcResult
	savedAt time.Time
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		quotes:       make(map[string]QuoteRecord),
		calculations: make(map[string]savedCalculation),
	}
}

func (r *MemoryRepository) key(tenantID, quoteID string) string {
	return tenantID + "/" + quoteID
}

// PutQuote seeds a quote record.
func (r *MemoryRepository) PutQuote(record QuoteRecord) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.quotes[r.key(record.TenantID, record.ID)] = record
}

func (r *MemoryRepository) LoadQuote(ctx context.Context, tenantID, quoteID string) (*QuoteRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	record, ok := r.quotes[r.key(tenantID, quoteID)]
	if !ok {
		return nil, nil
	}
	return &record, nil
}

func (r *MemoryRepository) SaveCalculation(ctx context.Context, tenantID, quoteID string, result CalcResult) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calculations[r.key(tenantID, quoteID)] = savedCalculation{result: result, savedAt: time.Now()}
	return nil
}

// GetCalculation returns a stored calculation, or nil when absent.
func (r *MemoryRepository) GetCalculation(tenantID, quoteID string) *CalcResult {
	r.mu.RLock()
	defer r.mu.RUnlock()
	saved, ok := r.calculations[r.key(tenantID, quoteID)]
	if !ok {
		return nil
	}
	result := saved.result
	return &result
}
