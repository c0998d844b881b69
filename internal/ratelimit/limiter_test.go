package ratelimit

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

// newTestLimiter connects to a local Redis instance. Tests are skipped if
// Redis is unavailable.
func newTestLimiter(t *testing.T) *Limiter {
	t.Helper()

	client := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("redis not available: %v", err)
	}
	t.Cleanup(func() { client.Close() })
	return NewLimiter(client)
}

func TestAllowWithinLimit(t *testing.T) {
	l := newTestLimiter(t)
	ctx := context.Background()
	rule := Rule{Key: "rl:test:", Limit: 3, Window: 10 * time.Second}
	id := fmt.Sprintf("within-%d", time.Now().UnixNano())

	for i := 0; i < rule.Limit; i++ {
		allowed, err := l.Allow(ctx, id, rule)
		if err != nil {
			t.Fatalf("allow %d: %v", i, err)
		}
		if !allowed {
			t.Fatalf("request %d should be allowed", i)
		}
	}

	allowed, err := l.Allow(ctx, id, rule)
	if err != nil {
		t.Fatalf("allow over limit: %v", err)
	}
	if allowed {
		t.Error("request over the limit should be denied")
	}
}

func TestRemaining(t *testing.T) {
	l := newTestLimiter(t)
	ctx := context.Background()
	rule := Rule{Key: "rl:test:", Limit: 5, Window: 10 * time.Second}
	id := fmt.Sprintf("remaining-%d", time.Now().UnixNano())

	remaining, err := l.Remaining(ctx, id, rule)
	if err != nil {
		t.Fatalf("remaining before use: %v", err)
	}
	if remaining != rule.Limit {
		t.Errorf("expected full limit %d, got %d", rule.Limit, remaining)
	}

	if _, err := l.Allow(ctx, id, rule); err != nil {
		t.Fatalf("allow: %v", err)
	}
	if _, err := l.Allow(ctx, id, rule); err != nil {
		t.Fatalf("allow: %v", err)
	}

	remaining, err = l.Remaining(ctx, id, rule)
	if err != nil {
		t.Fatalf("remaining after use: %v", err)
	}
	if remaining != rule.Limit-2 {
		t.Errorf("expected %d remaining, got %d", rule.Limit-2, remaining)
	}
}

func TestRetryAfter(t *testing.T) {
	l := newTestLimiter(t)
	ctx := context.Background()
	rule := Rule{Key: "rl:test:", Limit: 1, Window: 30 * time.Second}
	id := fmt.Sprintf("retry-%d", time.Now().UnixNano())

	// No key yet: no wait.
	d, err := l.RetryAfter(ctx, id, rule)
	if err != nil {
		t.Fatalf("retry-after before use: %v", err)
	}
	if d != 0 {
		t.Errorf("expected zero retry-after for fresh identifier, got %s", d)
	}

	if _, err := l.Allow(ctx, id, rule); err != nil {
		t.Fatalf("allow: %v", err)
	}

	d, err = l.RetryAfter(ctx, id, rule)
	if err != nil {
		t.Fatalf("retry-after after use: %v", err)
	}
	if d <= 0 || d > rule.Window {
		t.Errorf("expected retry-after in (0, %s], got %s", rule.Window, d)
	}
}
