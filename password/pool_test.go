package password

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"
)

type countingHasher struct {
	Hasher
	inFlight atomic.Int32
	peak     atomic.Int32
	delay    time.Duration
}

func (c *countingHasher) Hash(secret string) (string, error) {
	n := c.inFlight.Add(1)
	defer c.inFlight.Add(-1)
	for {
		p := c.peak.Load()
		if n <= p || c.peak.CompareAndSwap(p, n) {
			break
		}
	}
	time.Sleep(c.delay)
	return c.Hasher.Hash(secret)
}

func TestPoolBoundsConcurrency(t *testing.T) {
	inner, _ := NewBcrypt(bcrypt.MinCost)
	counting := &countingHasher{Hasher: inner, delay: 5 * time.Millisecond}
	pool := NewPool(counting, 2)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := pool.Hash(context.Background(), "secret-value"); err != nil {
				t.Errorf("Hash error: %v", err)
			}
		}()
	}
	wg.Wait()

	if peak := counting.peak.Load(); peak > 2 {
		t.Fatalf("expected at most 2 concurrent hashes, saw %d", peak)
	}
}

func TestPoolHonoursContextWhileQueued(t *testing.T) {
	inner, _ := NewBcrypt(bcrypt.MinCost)
	pool := NewPool(&countingHasher{Hasher: inner, delay: 50 * time.Millisecond}, 1)

	go func() { _, _ = pool.Hash(context.Background(), "occupy") }()
	time.Sleep(5 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Millisecond)
	defer cancel()
	if _, err := pool.Hash(ctx, "queued"); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}

func TestPoolVerifyAnyFindsMatch(t *testing.T) {
	inner, _ := NewBcrypt(bcrypt.MinCost)
	pool := NewPool(inner, 4)
	ctx := context.Background()

	hashes, err := pool.HashAll(ctx, []string{"alpha", "bravo", "charlie", "delta"})
	if err != nil {
		t.Fatalf("HashAll error: %v", err)
	}

	idx, err := pool.VerifyAny(ctx, "charlie", hashes)
	if err != nil {
		t.Fatalf("VerifyAny error: %v", err)
	}
	if idx != 2 {
		t.Fatalf("expected index 2, got %d", idx)
	}

	idx, err = pool.VerifyAny(ctx, "echo", hashes)
	if err != nil {
		t.Fatalf("VerifyAny error: %v", err)
	}
	if idx != -1 {
		t.Fatalf("expected no match, got %d", idx)
	}
}

func TestPoolVerifyAnySkipsMalformedEntries(t *testing.T) {
	inner, _ := NewBcrypt(bcrypt.MinCost)
	pool := NewPool(inner, 2)
	ctx := context.Background()

	good, err := pool.Hash(ctx, "token-value")
	if err != nil {
		t.Fatalf("Hash error: %v", err)
	}

	idx, err := pool.VerifyAny(ctx, "token-value", []string{"garbage", good})
	if err != nil {
		t.Fatalf("VerifyAny error: %v", err)
	}
	if idx != 1 {
		t.Fatalf("expected index 1, got %d", idx)
	}

	if idx, _ := pool.VerifyAny(ctx, "", []string{good}); idx != -1 {
		t.Fatalf("empty secret must never match, got %d", idx)
	}
}
