package limiters

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/lucaaxano/poa-app-sub000/internal/rate"
)

var (
	ErrTOTPRateLimited = errors.New("totp rate limited")
	ErrTOTPUnavailable = errors.New("totp unavailable")
)

// TOTPLimiterConfig bounds failed second-factor codes per identity. Zero
// fields fall back to 5 attempts per minute.
type TOTPLimiterConfig struct {
	MaxAttempts int
	Cooldown    time.Duration
}

const (
	defaultTOTPMaxAttempts = 5
	defaultTOTPCooldown    = time.Minute
)

func (c TOTPLimiterConfig) withDefaults() TOTPLimiterConfig {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = defaultTOTPMaxAttempts
	}
	if c.Cooldown <= 0 {
		c.Cooldown = defaultTOTPCooldown
	}
	return c
}

// TOTPLimiter counts wrong codes and backup codes per identity, shared by
// the login second step and the account TOTP endpoints.
type TOTPLimiter struct {
	attempts *rate.Window
}

func NewTOTPLimiter(redisClient redis.UniversalClient, cfg TOTPLimiterConfig) *TOTPLimiter {
	cfg = cfg.withDefaults()
	return &TOTPLimiter{
		attempts: rate.NewWindow(redisClient, "att", cfg.MaxAttempts, cfg.Cooldown),
	}
}

func (l *TOTPLimiter) Check(ctx context.Context, identityID string) error {
	if l == nil {
		return nil
	}
	return classify(l.attempts.Check(ctx, identityID), ErrTOTPRateLimited, ErrTOTPUnavailable)
}

func (l *TOTPLimiter) RecordFailure(ctx context.Context, identityID string) error {
	if l == nil {
		return nil
	}
	return classify(l.attempts.Hit(ctx, identityID), ErrTOTPRateLimited, ErrTOTPUnavailable)
}

// Reset clears the counter after a code was accepted.
func (l *TOTPLimiter) Reset(ctx context.Context, identityID string) error {
	if l == nil {
		return nil
	}
	return classify(l.attempts.Reset(ctx, identityID), ErrTOTPRateLimited, ErrTOTPUnavailable)
}

// classify translates window errors into the caller's sentinels, keeping the
// Redis cause attached to the unavailable case.
func classify(err, limited, unavailable error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, rate.ErrRateLimited):
		return limited
	default:
		return errors.Join(unavailable, err)
	}
}
