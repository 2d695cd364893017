package ratelimit

import (
	"context"
	"testing"
	"time"

	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"
	"go.uber.org/zap"
)

func startRedis(t *testing.T) string {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}
	ctx := context.Background()

	container, err := tcredis.Run(ctx, "redis:7-alpine")
	if err != nil {
		t.Fatalf("start redis: %v", err)
	}
	t.Cleanup(func() { container.Terminate(ctx) })

	endpoint, err := container.Endpoint(ctx, "")
	if err != nil {
		t.Fatalf("redis endpoint: %v", err)
	}
	return "redis://" + endpoint
}

func TestRedisLimiterEnforcesLimit(t *testing.T) {
	url := startRedis(t)

	l, err := NewRedisLimiter(url, 2, time.Hour, zap.NewNop())
	if err != nil {
		t.Fatalf("create limiter: %v", err)
	}
	t.Cleanup(func() { l.Close() })
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		ok, err := l.Allow(ctx, "alice")
		if err != nil {
			t.Fatalf("allow: %v", err)
		}
		if !ok {
			t.Fatalf("request %d within limit must be allowed", i+1)
		}
	}
	if ok, _ := l.Allow(ctx, "alice"); ok {
		t.Error("request over limit must be denied")
	}
	if ok, _ := l.Allow(ctx, "bob"); !ok {
		t.Error("bob's first request must be allowed despite alice's limit")
	}
}

func TestRedisLimiterBadURL(t *testing.T) {
	if _, err := NewRedisLimiter("not-a-url", 1, time.Minute, zap.NewNop()); err == nil {
		t.Fatal("expected error for malformed redis url")
	}
}
