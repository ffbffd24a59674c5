package limiters

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

func TestLoginLimiterPerEmail(t *testing.T) {
	_, rdb := newRedis(t)
	ctx := context.Background()
	l := NewLoginLimiter(rdb, LoginConfig{MaxAttempts: 3, Cooldown: time.Minute})

	for i := 0; i < 2; i++ {
		if err := l.RecordFailure(ctx, "Admin@Acme.test", ""); err != nil {
			t.Fatalf("failure %d: %v", i, err)
		}
	}
	if err := l.Check(ctx, "admin@acme.test", ""); err != nil {
		t.Fatalf("expected budget left: %v", err)
	}
	if err := l.RecordFailure(ctx, " admin@acme.test", ""); !errors.Is(err, ErrLoginRateLimited) {
		t.Fatalf("expected ErrLoginRateLimited, got %v", err)
	}
	if err := l.Check(ctx, "ADMIN@acme.test", ""); !errors.Is(err, ErrLoginRateLimited) {
		t.Fatalf("expected limited check, got %v", err)
	}

	if err := l.Reset(ctx, "admin@acme.test"); err != nil {
		t.Fatalf("reset: %v", err)
	}
	if err := l.Check(ctx, "admin@acme.test", ""); err != nil {
		t.Fatalf("expected reset to clear limit: %v", err)
	}
}

func TestLoginLimiterPerIP(t *testing.T) {
	_, rdb := newRedis(t)
	ctx := context.Background()
	l := NewLoginLimiter(rdb, LoginConfig{MaxAttempts: 2, Cooldown: time.Minute, EnableIPThrottle: true})

	_ = l.RecordFailure(ctx, "a@x.test", "10.0.0.1")
	_ = l.RecordFailure(ctx, "b@x.test", "10.0.0.1")
	if err := l.Check(ctx, "c@x.test", "10.0.0.1"); !errors.Is(err, ErrLoginRateLimited) {
		t.Fatalf("expected ip limit, got %v", err)
	}
	if err := l.Check(ctx, "c@x.test", "10.0.0.2"); err != nil {
		t.Fatalf("other ip should pass: %v", err)
	}
}

func TestTOTPLimiterDefaultsAndUnavailable(t *testing.T) {
	mr, rdb := newRedis(t)
	ctx := context.Background()
	l := NewTOTPLimiter(rdb, TOTPLimiterConfig{})

	for i := 0; i < defaultTOTPMaxAttempts-1; i++ {
		if err := l.RecordFailure(ctx, "u1"); err != nil {
			t.Fatalf("failure %d: %v", i, err)
		}
	}
	if err := l.RecordFailure(ctx, "u1"); !errors.Is(err, ErrTOTPRateLimited) {
		t.Fatalf("expected ErrTOTPRateLimited, got %v", err)
	}

	mr.FastForward(defaultTOTPCooldown + time.Second)
	if err := l.Check(ctx, "u1"); err != nil {
		t.Fatalf("expected cooldown to lapse: %v", err)
	}

	mr.Close()
	if err := l.Check(ctx, "u1"); !errors.Is(err, ErrTOTPUnavailable) {
		t.Fatalf("expected ErrTOTPUnavailable, got %v", err)
	}
}

func TestNilLimitersAreNoOps(t *testing.T) {
	var l *LoginLimiter
	var tl *TOTPLimiter
	ctx := context.Background()
	if l.Check(ctx, "a", "b") != nil || l.RecordFailure(ctx, "a", "b") != nil || l.Reset(ctx, "a") != nil {
		t.Fatalf("nil login limiter must be a no-op")
	}
	if tl.Check(ctx, "a") != nil || tl.RecordFailure(ctx, "a") != nil || tl.Reset(ctx, "a") != nil {
		t.Fatalf("nil totp limiter must be a no-op")
	}
}
