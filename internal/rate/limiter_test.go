package rate

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		_ = rdb.Close()
		mr.Close()
	})
	return mr, rdb
}

func TestWindowLimitsAndExpires(t *testing.T) {
	mr, rdb := newRedis(t)
	ctx := context.Background()
	w := NewWindow(rdb, "t", 3, time.Minute)

	for i := 0; i < 2; i++ {
		if err := w.Hit(ctx, "alice"); err != nil {
			t.Fatalf("hit %d: %v", i, err)
		}
	}
	if err := w.Check(ctx, "alice"); err != nil {
		t.Fatalf("check under budget: %v", err)
	}
	if err := w.Hit(ctx, "alice"); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited on budget, got %v", err)
	}
	if err := w.Check(ctx, "alice"); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited from check, got %v", err)
	}
	if err := w.Check(ctx, "bob"); err != nil {
		t.Fatalf("keys must be independent: %v", err)
	}

	mr.FastForward(61 * time.Second)
	if err := w.Check(ctx, "alice"); err != nil {
		t.Fatalf("expected window to expire, got %v", err)
	}
}

func TestWindowReset(t *testing.T) {
	_, rdb := newRedis(t)
	ctx := context.Background()
	w := NewWindow(rdb, "t", 2, time.Minute)

	_ = w.Hit(ctx, "alice")
	_ = w.Hit(ctx, "alice")
	if err := w.Reset(ctx, "alice"); err != nil {
		t.Fatalf("reset: %v", err)
	}
	n, err := w.Count(ctx, "alice")
	if err != nil || n != 0 {
		t.Fatalf("expected zero count after reset, got %d %v", n, err)
	}
}

func TestNilWindowNeverLimits(t *testing.T) {
	var w *Window
	if err := w.Hit(context.Background(), "x"); err != nil {
		t.Fatalf("nil window hit: %v", err)
	}
	if NewWindow(nil, "t", 3, time.Minute) != nil {
		t.Fatalf("expected nil window without a client")
	}
}

func TestWindowBackendFailure(t *testing.T) {
	mr, rdb := newRedis(t)
	w := NewWindow(rdb, "t", 2, time.Minute)
	mr.Close()

	if err := w.Hit(context.Background(), "alice"); !errors.Is(err, ErrRedisUnavailable) {
		t.Fatalf("expected ErrRedisUnavailable, got %v", err)
	}
}
