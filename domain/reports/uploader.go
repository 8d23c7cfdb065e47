package reports

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// UploadResult describes a stored report file.
type UploadResult struct {
	FileURL     string
	FileName    string
	FileSize    int64
	ContentType string
	UploadedAt  time.Time
}

// Uploader stores generated report files and issues download URLs.
type Uploader interface {
	UploadReport(ctx context.Context, doc *Document, tenantID, reportType, entityID string) (*UploadResult, error)
	PresignedURL(ctx context.Context, fileURL string, expiry time.Duration) (string, error)
}

// MemoryUploader keeps report files in memory and issues fake download
// URLs. Production deployments provide an Uploader backed by object
// storage.
type MemoryUploader struct {
	mu    sync.RWMutex
	files map[string][]byte
}

func NewMemoryUploader() *MemoryUploader {
	return &MemoryUploader{files: make(map[string][]byte)}
}

func (u *MemoryUploader) UploadReport(ctx context.Context, doc *Document, tenantID, reportType, entityID string) (*UploadResult, error) {
	key := fmt.Sprintf("reports/%s/%s/%s/%s", tenantID, reportType, entityID, doc.FileName)

	u.mu.Lock()
	u.files[key] = doc.Content
	u.mu.Unlock()

	return &UploadResult{
		FileURL:     "mem://" + key,
		FileName:    doc.FileName,
		FileSize:    int64(len(doc.Content)),
		ContentType: doc.ContentType,
		UploadedAt:  time.Now(),
	}, nil
}

func (u *MemoryUploader) PresignedURL(ctx context.Context, fileURL string, expiry time.Duration) (string, error) {
	return fmt.Sprintf("%s?expires=%d", fileURL, time.Now().Add(expiry).Unix()), nil
}

// Get returns a stored file for tests.
func (u *MemoryUploader) Get(key string) []byte {
	u.mu.RLock()
	defer u.mu.RUnlock()
	return u.files[key]
}

// Len reports how many files are stored.
func (u *MemoryUploader) Len() int {
	u.mu.RLock()
	defer u.mu.RUnlock()
	return len(u.files)
}
