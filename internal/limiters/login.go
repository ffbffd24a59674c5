package limiters

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/lucaaxano/poa-app-sub000/internal/rate"
)

var (
	ErrLoginRateLimited = errors.New("login rate limited")
	ErrLoginUnavailable = errors.New("login limiter unavailable")
)

// LoginConfig holds thresholds for failed password attempts.
type LoginConfig struct {
	MaxAttempts      int
	Cooldown         time.Duration
	EnableIPThrottle bool
}

type LoginLimiter struct {
	user *rate.Window
	ip   *rate.Window
}

func NewLoginLimiter(redisClient redis.UniversalClient, cfg LoginConfig) *LoginLimiter {
	l := &LoginLimiter{
		user: rate.NewWindow(redisClient, "pal", cfg.MaxAttempts, cfg.Cooldown),
	}
	if cfg.EnableIPThrottle {
		l.ip = rate.NewWindow(redisClient, "pali", cfg.MaxAttempts, cfg.Cooldown)
	}
	return l
}

// Check fails once email (or ip) has used its budget of failures.
func (l *LoginLimiter) Check(ctx context.Context, email, ip string) error {
	if l == nil {
		return nil
	}
	if err := l.user.Check(ctx, normalizeIdentifier(email)); err != nil {
		return mapLoginErr(err)
	}
	if ip != "" {
		if err := l.ip.Check(ctx, ip); err != nil {
			return mapLoginErr(err)
		}
	}
	return nil
}

// RecordFailure counts a failed attempt.
func (l *LoginLimiter) RecordFailure(ctx context.Context, email, ip string) error {
	if l == nil {
		return nil
	}
	userErr := l.user.Hit(ctx, normalizeIdentifier(email))
	if userErr != nil && !errors.Is(userErr, rate.ErrRateLimited) {
		return mapLoginErr(userErr)
	}
	if ip != "" {
		if err := l.ip.Hit(ctx, ip); err != nil {
			return mapLoginErr(err)
		}
	}
	return mapLoginErr(userErr)
}

// Reset clears the per-email counter after a successful login. The per-IP
// counter is left to expire so one good account cannot unlock an IP.
func (l *LoginLimiter) Reset(ctx context.Context, email string) error {
	if l == nil {
		return nil
	}
	return mapLoginErr(l.user.Reset(ctx, normalizeIdentifier(email)))
}

func mapLoginErr(err error) error {
	return classify(err, ErrLoginRateLimited, ErrLoginUnavailable)
}

func normalizeIdentifier(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
