package validator

import (
	"context"
	"fmt"
	"log"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisLimiter is a sliding-window rate limiter backed by a Redis sorted
// set per identifier, for deployments where multiple engine instances
// must share one window. Redis errors fail open: an unreachable limiter
// must not take the analysis path down with it.
type RedisLimiter struct {
	client      *redis.Client
	maxRequests int
	window      time.Duration
	keyPrefix   string
	seq         uint64
}

// NewRedisLimiter creates a limiter allowing maxRequests per window,
// using the given Redis address.
func NewRedisLimiter(addr string, maxRequests int, window time.Duration) *RedisLimiter {
	return &RedisLimiter{
		client:      redis.NewClient(&redis.Options{Addr: addr}),
		maxRequests: maxRequests,
		window:      window,
		keyPrefix:   "sentinel:ratelimit:",
	}
}

// Allow records one request for identifier and reports whether it fits in
// the current window shared across instances.
func (l *RedisLimiter) Allow(identifier string) bool {
	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	key := l.keyPrefix + identifier
	now := time.Now()
	windowStart := now.Add(-l.window)

	pipe := l.client.TxPipeline()
	pipe.ZRemRangeByScore(ctx, key, "0", fmt.Sprintf("%d", windowStart.UnixNano()))
	count := pipe.ZCard(ctx, key)
	if _, err := pipe.Exec(ctx); err != nil {
		log.Printf("[WARN] rate limiter redis error, allowing request: %v", err)
		return true
	}

	if count.Val() >= int64(l.maxRequests) {
		return false
	}

	// Member must be unique per request or same-instant requests collapse
	// into one sorted-set entry and undercount the window.
	seq := atomic.AddUint64(&l.seq, 1)
	member := redis.Z{
		Score:  float64(now.UnixNano()),
		Member: fmt.Sprintf("%d-%d", now.UnixNano(), seq),
	}
	add := l.client.TxPipeline()
	add.ZAdd(ctx, key, member)
	add.Expire(ctx, key, l.window)
	if _, err := add.Exec(ctx); err != nil {
		log.Printf("[WARN] rate limiter redis error, allowing request: %v", err)
	}
	return true
}

// Close releases the underlying Redis connection.
func (l *RedisLimiter) Close() error {
	return l.client.Close()
}
