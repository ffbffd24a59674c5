package rate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Window counts events per key in fixed windows of length ttl and reports
// ErrRateLimited once max is reached.
type Window struct {
	redis  redis.UniversalClient
	prefix string
	max    int64
	ttl    time.Duration
}

// NewWindow returns a counter namespaced by prefix. A nil client or max <= 0
// yields a nil Window, which never limits.
func NewWindow(redisClient redis.UniversalClient, prefix string, max int, ttl time.Duration) *Window {
	if redisClient == nil || max <= 0 || ttl <= 0 {
		return nil
	}
	return &Window{
		redis:  redisClient,
		prefix: prefix,
		max:    int64(max),
		ttl:    ttl,
	}
}

func (w *Window) key(id string) string {
	return w.prefix + ":" + id
}

// Check fails with ErrRateLimited when key has already used its budget.
func (w *Window) Check(ctx context.Context, id string) error {
	if w == nil {
		return nil
	}
	count, err := w.Count(ctx, id)
	if err != nil {
		return err
	}
	if int64(count) >= w.max {
		return ErrRateLimited
	}
	return nil
}

// Hit records one event and fails with ErrRateLimited once the budget is spent.
func (w *Window) Hit(ctx context.Context, id string) error {
	if w == nil {
		return nil
	}
	key := w.key(id)
	count, err := w.redis.Incr(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	if count == 1 {
		if err := w.redis.Expire(ctx, key, w.ttl).Err(); err != nil {
			return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
	}

	if count >= w.max {
		return ErrRateLimited
	}
	return nil
}

// Count returns the events recorded for key in the current window.
func (w *Window) Count(ctx context.Context, id string) (int, error) {
	if w == nil {
		return 0, nil
	}
	count, err := w.redis.Get(ctx, w.key(id)).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if count < 0 {
		return 0, nil
	}
	return int(count), nil
}

// Reset clears the counters for ids.
func (w *Window) Reset(ctx context.Context, ids ...string) error {
	if w == nil || len(ids) == 0 {
		return nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = w.key(id)
	}
	if err := w.redis.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}
