package ratelimit

import (
	"context"
	"sync"
	"time"
)

// MemoryStore keeps window counters in process memory. Suitable for
// tests and single-instance deployments; counters reset on restart.
type MemoryStore struct {
	mu       sync.Mutex
	counters map[string]*windowCounter
}

type windowCounter struct {
	count     int64
	expiresAt time.Time
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{counters: make(map[string]*windowCounter)}
}

// Increment implements Store. Expired windows are replaced lazily on
// the next increment, so no background sweeper is required.
func (s *MemoryStore) Increment(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	c, ok := s.counters[key]
	if !ok || now.After(c.expiresAt) {
		c = &windowCounter{expiresAt: now.Add(window)}
		s.counters[key] = c
	}
	c.count++

	return c.count, time.Until(c.expiresAt), nil
}
