package reports

import (
	"context"
	"fmt"
	"sync"
)

// Report types accepted in the report-generation job payload.
const (
	ReportQuote     = "quote"
	ReportOrder     = "order"
	ReportAnalytics = "analytics"
)

func validReportType(t string) bool {
	switch t {
	case ReportQuote, ReportOrder, ReportAnalytics:
		return true
	}
	return false
}

// Loader loads the source data for a report.
type Loader interface {
	LoadReportData(ctx context.Context, reportType, entityID, tenantID string) (map[string]any, error)
}

// MemoryLoader serves report data seeded in memory. Production deployments
// provide a Loader backed by the business database.
type MemoryLoader struct {
	mu   sync.RWMutex
	data map[string]map[string]any
}

func NewMemoryLoader() *MemoryLoader {
	return &MemoryLoader{data: make(map[string]map[string]any)}
}

func (l *MemoryLoader) key(reportType, entityID, tenantID string) string {
	return tenantID + "/" + reportType + "/" + entityID
}

// Put seeds report data for tests and local runs.
func (l *MemoryLoader) Put(reportType, entityID, tenantID string, data map[string]any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.data[l.key(reportType, entityID, tenantID)] = data
}

func (l *MemoryLoader) LoadReportData(ctx context.Context, reportType, entityID, tenantID string) (map[string]any, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	data, ok := l.data[l.key(reportType, entityID, tenantID)]
	if !ok {
		return nil, fmt.Errorf("no %s data for entity %s", reportType, entityID)
	}
	return data, nil
}
