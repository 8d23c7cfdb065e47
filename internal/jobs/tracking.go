package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// TrackingStore is the job id -> (type, tenant) index written on submission.
// Lookup returns (nil, nil) for unknown or expired ids; callers fall back to
// scanning the queues.
type TrackingStore interface {
	Track(ctx context.Context, jobID string, entry TrackingEntry) error
	Lookup(ctx context.Context, jobID string) (*TrackingEntry, error)
	Remove(ctx context.Context, jobID string) error
}

// RedisTrackingStore keeps tracking entries in Redis with a TTL, so the
// index cleans itself up alongside job retention.
type RedisTrackingStore struct {
	rdb    *redis.Client
	prefix string
	ttl    time.Duration
}

func NewRedisTrackingStore(rdb *redis.Client, prefix string, ttl time.Duration) *RedisTrackingStore {
	return &RedisTrackingStore{rdb: rdb, prefix: prefix, ttl: ttl}
}

func (s *RedisTrackingStore) key(jobID string) string {
	return s.prefix + ":job-tracking:" + jobID
}

func (s *RedisTrackingStore) Track(ctx context.Context, jobID string, entry TrackingEntry) error {
	raw, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal tracking entry: %w", err)
	}
	if err := s.rdb.Set(ctx, s.key(jobID), raw, s.ttl).Err(); err != nil {
		return fmt.Errorf("track job %s: %w", jobID, err)
	}
	return nil
}

func (s *RedisTrackingStore) Lookup(ctx context.Context, jobID string) (*TrackingEntry, error) {
	raw, err := s.rdb.Get(ctx, s.key(jobID)).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("lookup job %s: %w", jobID, err)
	}
	entry := &TrackingEntry{}
	if err := json.Unmarshal([]byte(raw), entry); err != nil {
		return nil, fmt.Errorf("decode tracking entry %s: %w", jobID, err)
	}
	return entry, nil
}

func (s *RedisTrackingStore) Remove(ctx context.Context, jobID string) error {
	return s.rdb.Del(ctx, s.key(jobID)).Err()
}

// MemoryTrackingStore is the in-process TrackingStore used in tests and
// single-node development.
type MemoryTrackingStore struct {
	mu      sync.RWMutex
	ttl     time.Duration
	entries map[string]memoryTracking
}

type memoryTracking struct {
	entry     TrackingEntry
	expiresAt time.Time
}

func NewMemoryTrackingStore(ttl time.Duration) *MemoryTrackingStore {
	return &MemoryTrackingStore{
		ttl:     ttl,
		entries: make(map[string]memoryTracking),
	}
}

func (s *MemoryTrackingStore) Track(ctx context.Context, jobID string, entry TrackingEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec := memoryTracking{entry: entry}
	if s.ttl > 0 {
		rec.expiresAt = time.Now().Add(s.ttl)
	}
	s.entries[jobID] = rec
	return nil
}

func (s *MemoryTrackingStore) Lookup(ctx context.Context, jobID string) (*TrackingEntry, error) {
	s.mu.RLock()
	rec, ok := s.entries[jobID]
	s.mu.RUnlock()
	if !ok {
		return nil, nil
	}
	if !rec.expiresAt.IsZero() && time.Now().After(rec.expiresAt) {
		s.mu.Lock()
		delete(s.entries, jobID)
		s.mu.Unlock()
		return nil, nil
	}
	entry := rec.entry
	return &entry, nil
}

func (s *MemoryTrackingStore) Remove(ctx context.Context, jobID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, jobID)
	return nil
}
