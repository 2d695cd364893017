package ratelimit

import (
	"context"
	"testing"
	"time"
)

func TestMemoryLimiterEnforcesLimit(t *testing.T) {
	l := NewMemoryLimiter(3, time.Hour)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		ok, err := l.Allow(ctx, "alice")
		if err != nil {
			t.Fatalf("allow: %v", err)
		}
		if !ok {
			t.Fatalf("request %d within limit must be allowed", i+1)
		}
	}

	ok, err := l.Allow(ctx, "alice")
	if err != nil {
		t.Fatalf("allow: %v", err)
	}
	if ok {
		t.Error("request over limit must be denied")
	}
}

func TestMemoryLimiterScopesAreIndependent(t *testing.T) {
	l := NewMemoryLimiter(1, time.Hour)
	ctx := context.Background()

	if ok, _ := l.Allow(ctx, "alice"); !ok {
		t.Fatal("first request for alice must be allowed")
	}
	if ok, _ := l.Allow(ctx, "alice"); ok {
		t.Fatal("second request for alice must be denied")
	}
	if ok, _ := l.Allow(ctx, "bob"); !ok {
		t.Error("bob's first request must be allowed despite alice's limit")
	}
}

func TestMemoryLimiterWindowResets(t *testing.T) {
	l := NewMemoryLimiter(1, time.Second)
	ctx := context.Background()

	l.Allow(ctx, "alice")
	if ok, _ := l.Allow(ctx, "alice"); ok {
		t.Fatal("second request in window must be denied")
	}

	// Force the window forward instead of sleeping.
	l.mu.Lock()
	l.bucket -= 2
	l.mu.Unlock()

	if ok, _ := l.Allow(ctx, "alice"); !ok {
		t.Error("request in a new window must be allowed")
	}
}
