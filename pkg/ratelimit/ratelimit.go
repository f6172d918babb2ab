// Package ratelimit guards the usage API with a fixed-window request
// limiter. Counters live in a pluggable Store; production uses Redis so
// limits hold across replicas, tests use the in-memory store.
package ratelimit

import (
	"context"
	"errors"
	"time"
)

var (
	ErrStoreRequired  = errors.New("ratelimit: store is required")
	ErrInvalidLimit   = errors.New("ratelimit: limit must be positive")
	ErrInvalidWindow  = errors.New("ratelimit: window must be positive")
	ErrKeyRequired    = errors.New("ratelimit: key must not be empty")
	ErrStoreUnhealthy = errors.New("ratelimit: store failure")
)

// Result describes the outcome of a limiter check.
type Result struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetAt   time.Time
}

// RetryAfter returns how long to wait before the next request may pass.
// Zero when the request was allowed.
func (r *Result) RetryAfter() time.Duration {
	if r.Allowed {
		return 0
	}
	return time.Until(r.ResetAt)
}

// Store is a windowed counter backend. Increment adds one to the counter
// for key, creating it with the window TTL if absent, and returns the new
// count plus the remaining window.
type Store interface {
	Increment(ctx context.Context, key string, window time.Duration) (count int64, ttl time.Duration, err error)
}

// Limiter allows at most limit requests per key per window.
type Limiter struct {
	store  Store
	limit  int
	window time.Duration
}

// New constructs a fixed-window Limiter.
func New(store Store, limit int, window time.Duration) (*Limiter, error) {
	if store == nil {
		return nil, ErrStoreRequired
	}
	if limit <= 0 {
		return nil, ErrInvalidLimit
	}
	if window <= 0 {
		return nil, ErrInvalidWindow
	}
	return &Limiter{store: store, limit: limit, window: window}, nil
}

// Allow consumes one slot for key and reports whether the request fits
// in the current window.
func (l *Limiter) Allow(ctx context.Context, key string) (*Result, error) {
	if key == "" {
		return nil, ErrKeyRequired
	}

	count, ttl, err := l.store.Increment(ctx, key, l.window)
	if err != nil {
		return nil, errors.Join(ErrStoreUnhealthy, err)
	}

	return &Result{
		Allowed:   count <= int64(l.limit),
		Limit:     l.limit,
		Remaining: max(0, l.limit-int(count)),
		ResetAt:   time.Now().Add(ttl),
	}, nil
}
