package password

import (
	"context"
	"errors"
	"runtime"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

// Pool runs a Hasher with bounded concurrency. Hashing is CPU-bound and slow by
// design, so request paths queue here instead of saturating every core.
type Pool struct {
	hasher Hasher
	sem    *semaphore.Weighted
	size   int
}

// NewPool bounds h to size concurrent calls. size <= 0 uses GOMAXPROCS.
func NewPool(h Hasher, size int) *Pool {
	if size <= 0 {
		size = runtime.GOMAXPROCS(0)
	}
	return &Pool{
		hasher: h,
		sem:    semaphore.NewWeighted(int64(size)),
		size:   size,
	}
}

// Size returns the concurrency bound.
func (p *Pool) Size() int {
	return p.size
}

// Hasher returns the wrapped hasher.
func (p *Pool) Hasher() Hasher {
	return p.hasher
}

func (p *Pool) Hash(ctx context.Context, secret string) (string, error) {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return "", err
	}
	defer p.sem.Release(1)
	return p.hasher.Hash(secret)
}

func (p *Pool) Verify(ctx context.Context, secret, encoded string) (bool, error) {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return false, err
	}
	defer p.sem.Release(1)
	return p.hasher.Verify(secret, encoded)
}

func (p *Pool) NeedsUpgrade(encoded string) (bool, error) {
	return p.hasher.NeedsUpgrade(encoded)
}

// HashAll hashes each secret, preserving order.
func (p *Pool) HashAll(ctx context.Context, secrets []string) ([]string, error) {
	out := make([]string, len(secrets))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.size)
	for i, s := range secrets {
		i, s := i, s
		g.Go(func() error {
			h, err := p.Hash(gctx, s)
			if err != nil {
				return err
			}
			out[i] = h
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

var errMatched = errors.New("matched")

// VerifyAny compares secret against every encoded hash and returns the index of
// a match, or -1. Malformed entries count as non-matches so one corrupt record
// cannot block the scan. The scan stops early once a match is found.
func (p *Pool) VerifyAny(ctx context.Context, secret string, encoded []string) (int, error) {
	if secret == "" || len(encoded) == 0 {
		return -1, nil
	}

	var found atomic.Int64
	found.Store(-1)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.size)
	for i, h := range encoded {
		i, h := i, h
		g.Go(func() error {
			if gctx.Err() != nil {
				return nil
			}
			ok, err := p.Verify(gctx, secret, h)
			if err != nil {
				return nil
			}
			if ok {
				found.CompareAndSwap(-1, int64(i))
				return errMatched
			}
			return nil
		})
	}

	err := g.Wait()
	if idx := found.Load(); idx >= 0 {
		return int(idx), nil
	}
	if err != nil && !errors.Is(err, errMatched) {
		return -1, err
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return -1, ctxErr
	}
	return -1, nil
}
