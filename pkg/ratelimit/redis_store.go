package ratelimit

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore backs window counters with Redis so limits are shared
// across service replicas.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore wraps client. Keys are namespaced with prefix
// ("ratelimit" when empty).
func NewRedisStore(client *redis.Client, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "ratelimit"
	}
	return &RedisStore{client: client, prefix: prefix}
}

// Increment implements Store using INCR + EXPIRE NX in one pipeline.
// EXPIRE NX only sets the TTL on the first increment of a window, which
// keeps the window boundary stable under concurrency.
func (s *RedisStore) Increment(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error) {
	namespaced := s.prefix + ":" + key

	pipe := s.client.TxPipeline()
	incr := pipe.Incr(ctx, namespaced)
	pipe.ExpireNX(ctx, namespaced, window)
	ttl := pipe.TTL(ctx, namespaced)

	if _, err := pipe.Exec(ctx); err != nil {
		return 0, 0, err
	}

	remaining := ttl.Val()
	if remaining < 0 {
		remaining = window
	}
	return incr.Val(), remaining, nil
}
