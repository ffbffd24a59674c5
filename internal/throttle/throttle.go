// Package throttle keeps an in-process token bucket per key. It backs the
// forgot-password throttle and the daemon's per-IP request limit, where a
// shared Redis counter is not required.
package throttle

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

type bucket struct {
	lim  *rate.Limiter
	seen time.Time
}

// Keyed holds one limiter per key. Buckets idle for longer than idle are
// dropped on a later call, so the map does not grow without bound.
type Keyed struct {
	mu        sync.Mutex
	buckets   map[string]*bucket
	limit     rate.Limit
	burst     int
	idle      time.Duration
	lastSweep time.Time
	now       func() time.Time
}

// New allows burst events at once per key, refilled at one event per every.
func New(every time.Duration, burst int, idle time.Duration) *Keyed {
	if burst <= 0 {
		burst = 1
	}
	if idle <= 0 {
		idle = 5 * time.Minute
	}
	lim := rate.Inf
	if every > 0 {
		lim = rate.Every(every)
	}
	return &Keyed{
		buckets: make(map[string]*bucket),
		limit:   lim,
		burst:   burst,
		idle:    idle,
		now:     time.Now,
	}
}

// Allow reports whether key may proceed now and spends a token if so.
func (k *Keyed) Allow(key string) bool {
	if k == nil {
		return true
	}
	k.mu.Lock()
	defer k.mu.Unlock()

	now := k.now()
	if now.Sub(k.lastSweep) > k.idle {
		k.sweepLocked(now)
	}

	b, ok := k.buckets[key]
	if !ok {
		b = &bucket{lim: rate.NewLimiter(k.limit, k.burst)}
		k.buckets[key] = b
	}
	b.seen = now
	return b.lim.AllowN(now, 1)
}

// Len returns the number of tracked keys.
func (k *Keyed) Len() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.buckets)
}

func (k *Keyed) sweepLocked(now time.Time) {
	for key, b := range k.buckets {
		if now.Sub(b.seen) > k.idle {
			delete(k.buckets, key)
		}
	}
	k.lastSweep = now
}
