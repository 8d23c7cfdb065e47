package fileanalysis

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/fabworks-io/fabworks/internal/config"
)

// Fetcher retrieves the raw bytes of an uploaded file.
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// HTTPFetcher downloads files over HTTP, typically from presigned object
// store URLs.
type HTTPFetcher struct {
	rc *resty.Client
}

func NewHTTPFetcher(cfg *config.Config) *HTTPFetcher {
	return &HTTPFetcher{
		rc: resty.New().SetTimeout(cfg.Analysis.Timeout),
	}
}

func (f *HTTPFetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	resp, err := f.rc.R().SetContext(ctx).Get(url)
	if err != nil {
		return nil, fmt.Errorf("download file: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("download file: %s", resp.Status())
	}
	return resp.Body(), nil
}

// Store persists analysis results per tenant and file.
type Store interface {
	SaveAnalysis(ctx context.Context, tenantID, fileID string, result Analysis) error
}

// MemoryStore keeps analysis results in process. Production deployments
// swap in a database-backed implementation.
type MemoryStore struct {
	mu      sync.RWMutex
	results map[string]savedAnalysis
}

type savedAnalysis struct {
	result  Analysis
	savedAt time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{results: make(map[string]savedAnalysis)}
}

func (s *MemoryStore) key(tenantID, fileID string) string {
	return tenantID + "/" + fileID
}

func (s *MemoryStore) SaveAnalysis(ctx context.Context, tenantID, fileID string, result Analysis) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results[s.key(tenantID, fileID)] = savedAnalysis{result: result, savedAt: time.Now()}
	return nil
}

// GetAnalysis returns a stored result, or nil when absent.
func (s *MemoryStore) GetAnalysis(tenantID, fileID string) *Analysis {
	s.mu.RLock()
	defer s.mu.RUnlock()
	saved, ok := s.results[s.key(tenantID, fileID)]
	if !ok {
		return nil
	}
	result := saved.result
	return &result
}
