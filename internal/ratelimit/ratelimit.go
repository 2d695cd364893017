package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Limiter answers whether a scope may make another request right now.
type Limiter interface {
	Allow(ctx context.Context, scope string) (bool, error)
}

const keyPrefix = "vouch:ratelimit:"

// RedisLimiter is a fixed-window counter shared across instances.
type RedisLimiter struct {
	rdb    *redis.Client
	limit  int
	window time.Duration
	logger *zap.Logger
}

// NewRedisLimiter connects to Redis and returns a limiter allowing limit
// requests per window per scope.
func NewRedisLimiter(redisURL string, limit int, window time.Duration, logger *zap.Logger) (*RedisLimiter, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &RedisLimiter{rdb: rdb, limit: limit, window: window, logger: logger}, nil
}

// Allow increments the scope's counter for the current window.
func (l *RedisLimiter) Allow(ctx context.Context, scope string) (bool, error) {
	bucket := time.Now().Unix() / int64(l.window.Seconds())
	key := fmt.Sprintf("%s%s:%d", keyPrefix, scope, bucket)

	count, err := l.rdb.Incr(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("incr %s: %w", key, err)
	}
	if count == 1 {
		if err := l.rdb.Expire(ctx, key, l.window).Err(); err != nil {
			l.logger.Warn("set rate limit expiry failed", zap.Error(err))
		}
	}
	return count <= int64(l.limit), nil
}

// Close shuts down the Redis connection.
func (l *RedisLimiter) Close() error {
	return l.rdb.Close()
}

// MemoryLimiter is the in-process fallback used when Redis is not
// configured. Same fixed-window behavior, scoped to one instance.
type MemoryLimiter struct {
	limit  int
	window time.Duration

	mu     sync.Mutex
	counts map[string]int
	bucket int64
}

// NewMemoryLimiter returns an in-process fixed-window limiter.
func NewMemoryLimiter(limit int, window time.Duration) *MemoryLimiter {
	return &MemoryLimiter{
		limit:  limit,
		window: window,
		counts: make(map[string]int),
	}
}

// Allow increments the scope's counter for the current window.
func (l *MemoryLimiter) Allow(ctx context.Context, scope string) (bool, error) {
	bucket := time.Now().Unix() / int64(l.window.Seconds())

	l.mu.Lock()
	defer l.mu.Unlock()
	if bucket != l.bucket {
		l.bucket = bucket
		l.counts = make(map[string]int)
	}
	l.counts[scope]++
	return l.counts[scope] <= l.limit, nil
}
