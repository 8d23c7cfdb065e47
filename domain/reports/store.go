package reports

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ReportRecord is the persisted metadata of a generated report.
type ReportRecord struct {
	ID          string
	TenantID    string
	Type        string
	EntityID    string
	FileName    string
	FileURL     string
	FileSize    int64
	ContentType string
	Options     map[string]any
	GeneratedAt time.Time
}

// MetadataStore persists report metadata.
type MetadataStore interface {
	SaveReport(ctx context.Context, record ReportRecord) (string, error)
}

// MemoryMetadataStore keeps report records in memory.
type MemoryMetadataStore struct {
	mu      sync.RWMutex
	records map[string]ReportRecord
}

func NewMemoryMetadataStore() *MemoryMetadataStore {
	return &MemoryMetadataStore{records: make(map[string]ReportRecord)}
}

func (s *MemoryMetadataStore) SaveReport(ctx context.Context, record ReportRecord) (string, error) {
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	s.mu.Lock()
	s.records[record.ID] = record
	s.mu.Unlock()
	return record.ID, nil
}

// Get returns a stored record for tests.
func (s *MemoryMetadataStore) Get(id string) (ReportRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	record, ok := s.records[id]
	return record, ok
}
