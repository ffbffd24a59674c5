package cache

import (
	"errors"
	"sort"
	"sync"
	"time"
)

// Config bounds the cache.
type Config struct {
	TTL           time.Duration
	MaxEntries    int
	SweepInterval time.Duration
}

// Validate reports the first invalid field.
func (c Config) Validate() error {
	if c.TTL <= 0 {
		return errors.New("cache TTL must be > 0")
	}
	if c.MaxEntries <= 0 {
		return errors.New("cache MaxEntries must be > 0")
	}
	if c.SweepInterval <= 0 {
		return errors.New("cache SweepInterval must be > 0")
	}
	return nil
}

// Entry is a cached value and the time it was stored.
type Entry[V any] struct {
	Key      string
	Value    V
	CachedAt time.Time

	seq uint64
}

// Option customises a Cache.
type Option func(*options)

type options struct {
	now     func() time.Time
	onEvict func(key string, reason EvictReason)
}

// EvictReason says why an entry left the cache.
type EvictReason uint8

const (
	EvictExpired EvictReason = iota + 1
	EvictCapacity
)

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// WithEvictHook is called, under no lock, for every entry removed by expiry or
// capacity. Explicit Invalidate and Clear do not call it.
func WithEvictHook(fn func(key string, reason EvictReason)) Option {
	return func(o *options) { o.onEvict = fn }
}

// Cache is a TTL- and size-bounded map safe for concurrent use.
type Cache[V any] struct {
	cfg  Config
	opts options

	mu      sync.Mutex
	entries map[string]Entry[V]
	seq     uint64

	lifecycle sync.Mutex
	stop      chan struct{}
	done      chan struct{}
}

// New returns an empty cache. cfg must pass Validate.
func New[V any](cfg Config, opts ...Option) (*Cache[V], error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return &Cache[V]{
		cfg:     cfg,
		opts:    o,
		entries: make(map[string]Entry[V]),
	}, nil
}

// Get returns the entry for key when present and younger than the TTL.
func (c *Cache[V]) Get(key string) (Entry[V], bool) {
	now := c.opts.now()

	c.mu.Lock()
	e, ok := c.entries[key]
	if ok && c.expired(e, now) {
		delete(c.entries, key)
		ok = false
	}
	c.mu.Unlock()

	if !ok {
		return Entry[V]{}, false
	}
	return e, true
}

// Put stores value under key, stamping it with the current time, then evicts
// the oldest entries until the cache is back within MaxEntries.
func (c *Cache[V]) Put(key string, value V) {
	now := c.opts.now()

	c.mu.Lock()
	c.seq++
	c.entries[key] = Entry[V]{Key: key, Value: value, CachedAt: now, seq: c.seq}
	var evicted []string
	if over := len(c.entries) - c.cfg.MaxEntries; over > 0 {
		evicted = c.evictOldestLocked(over)
	}
	c.mu.Unlock()

	c.notify(evicted, EvictCapacity)
}

// Invalidate drops key. The next Get is a miss regardless of TTL.
func (c *Cache[V]) Invalidate(key string) {
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
}

// Clear drops every entry.
func (c *Cache[V]) Clear() {
	c.mu.Lock()
	c.entries = make(map[string]Entry[V])
	c.mu.Unlock()
}

// Len counts stored entries, including expired ones not yet swept.
func (c *Cache[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Sweep removes every expired entry and returns how many were removed.
func (c *Cache[V]) Sweep() int {
	now := c.opts.now()

	c.mu.Lock()
	var removed []string
	for key, e := range c.entries {
		if c.expired(e, now) {
			delete(c.entries, key)
			removed = append(removed, key)
		}
	}
	c.mu.Unlock()

	c.notify(removed, EvictExpired)
	return len(removed)
}

// Start launches the periodic sweeper. Calling Start on a running cache is a no-op.
func (c *Cache[V]) Start() {
	c.lifecycle.Lock()
	defer c.lifecycle.Unlock()

	if c.stop != nil {
		return
	}
	c.stop = make(chan struct{})
	c.done = make(chan struct{})
	go c.run(c.stop, c.done)
}

// Stop halts the sweeper and waits for it to exit. Stop on a stopped cache is a no-op.
func (c *Cache[V]) Stop() {
	c.lifecycle.Lock()
	defer c.lifecycle.Unlock()

	if c.stop == nil {
		return
	}
	close(c.stop)
	<-c.done
	c.stop = nil
	c.done = nil
}

func (c *Cache[V]) run(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(c.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.Sweep()
		case <-stop:
			return
		}
	}
}

func (c *Cache[V]) expired(e Entry[V], now time.Time) bool {
	return now.Sub(e.CachedAt) >= c.cfg.TTL
}

func (c *Cache[V]) evictOldestLocked(n int) []string {
	all := make([]Entry[V], 0, len(c.entries))
	for _, e := range c.entries {
		all = append(all, e)
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].CachedAt.Equal(all[j].CachedAt) {
			return all[i].seq < all[j].seq
		}
		return all[i].CachedAt.Before(all[j].CachedAt)
	})

	evicted := make([]string, 0, n)
	for _, e := range all[:n] {
		delete(c.entries, e.Key)
		evicted = append(evicted, e.Key)
	}
	return evicted
}

func (c *Cache[V]) notify(keys []string, reason EvictReason) {
	if c.opts.onEvict == nil {
		return
	}
	for _, key := range keys {
		c.opts.onEvict(key, reason)
	}
}
