package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newLimiter(t *testing.T, limit int) (*FixedWindowLimiter, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	l, err := NewFixedWindowLimiter(client, "user-prompt", limit, time.Minute)
	if err != nil {
		t.Fatalf("new limiter: %v", err)
	}
	// pin the clock so the test never straddles a window boundary
	fixed := time.Date(2026, 1, 1, 12, 0, 30, 0, time.UTC)
	l.now = func() time.Time { return fixed }
	return l, mr
}

func TestFixedWindowLimiter_BlocksAfterLimit(t *testing.T) {
	l, _ := newLimiter(t, 5)
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		if !l.Allow(ctx, "10.0.0.1") {
			t.Fatalf("request %d should pass", i+1)
		}
	}
	if l.Allow(ctx, "10.0.0.1") {
		t.Fatalf("sixth request should be blocked")
	}
	if !l.Allow(ctx, "10.0.0.2") {
		t.Fatalf("other clients keep their own quota")
	}
}

func TestFixedWindowLimiter_NewWindowResets(t *testing.T) {
	l, _ := newLimiter(t, 1)
	ctx := context.Background()
	if !l.Allow(ctx, "ip") || l.Allow(ctx, "ip") {
		t.Fatalf("expected one request per window")
	}
	next := l.now().Add(time.Minute)
	l.now = func() time.Time { return next }
	if !l.Allow(ctx, "ip") {
		t.Fatalf("next window should pass")
	}
}

func TestFixedWindowLimiter_FailClosed(t *testing.T) {
	l, mr := newLimiter(t, 1)
	mr.Close()
	if l.Allow(context.Background(), "ip") {
		t.Fatalf("limiter should fail closed on redis errors")
	}
}

func TestFixedWindowLimiter_RequiresClient(t *testing.T) {
	l, err := NewFixedWindowLimiter(nil, "x", 1, time.Second)
	if err == nil || l != nil {
		t.Fatalf("expected constructor error for nil client")
	}
}
