// Command poa-loadtest drives concurrent Login, Authenticate and Refresh
// calls against an engine backed by the in-memory store and Redis, and
// prints per-phase latency percentiles.
package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	poaAuth "github.com/lucaaxano/poa-app-sub000"
	"github.com/lucaaxano/poa-app-sub000/store/memstore"
)

const seedPassword = "load-test-password-1"

type account struct {
	email   string
	access  string
	refresh atomic.Value
}

func main() {
	var (
		accounts    = flag.Int("accounts", 200, "number of companies to register")
		concurrency = flag.Int("concurrency", 64, "number of concurrent workers")
		ops         = flag.Int("ops", 20000, "operations per phase")
		logins      = flag.Int("logins", 500, "operations in the login phase (each runs one hash verification)")
		redisAddr   = flag.String("redis-addr", "", "redis address; if empty, POA_AUTH_REDIS_ADDR env or miniredis is used")
		algorithm   = flag.String("hash", "bcrypt", "password hash: bcrypt or argon2id")
		cost        = flag.Int("bcrypt-cost", 4, "bcrypt cost when -hash=bcrypt")
	)
	flag.Parse()

	if *accounts <= 0 || *concurrency <= 0 || *ops <= 0 || *logins <= 0 {
		fmt.Fprintln(os.Stderr, "accounts, concurrency, ops and logins must be > 0")
		os.Exit(2)
	}

	ctx := context.Background()
	client, cleanup, err := connect(*redisAddr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "redis: %v\n", err)
		os.Exit(1)
	}
	defer cleanup()

	cfg := poaAuth.DefaultConfig()
	cfg.Tokens.SigningMethod = "hs256"
	cfg.Tokens.PrivateKey = []byte(strings.Repeat("L", 32))
	cfg.Password.Algorithm = *algorithm
	cfg.Password.BcryptCost = *cost
	cfg.Password.MaxLength = 72
	cfg.Metrics.Enabled = true
	cfg.Metrics.EnableLatencyHistograms = true

	engine, err := poaAuth.New().
		WithConfig(cfg).
		WithStore(memstore.New()).
		WithRedis(client).
		Build()
	if err != nil {
		fmt.Fprintf(os.Stderr, "engine build failed: %v\n", err)
		os.Exit(1)
	}
	defer engine.Close()

	fmt.Printf("registering %d companies...\n", *accounts)
	startSeed := time.Now()
	states, err := seed(ctx, engine, *accounts, *concurrency)
	if err != nil {
		fmt.Fprintf(os.Stderr, "seed failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("seeded in %s\n", time.Since(startSeed).Round(time.Millisecond))

	loginReport := runPhase("login", *logins, *concurrency, 7919, func(r *rand.Rand) error {
		a := states[r.Intn(len(states))]
		_, err := engine.Login(ctx, a.email, seedPassword)
		return err
	})
	authReport := runPhase("authenticate", *ops, *concurrency, 6151, func(r *rand.Rand) error {
		_, err := engine.Authenticate(ctx, states[r.Intn(len(states))].access)
		return err
	})
	refreshReport := runPhase("refresh", *ops, *concurrency, 4271, func(r *rand.Rand) error {
		a := states[r.Intn(len(states))]
		pair, err := engine.Refresh(ctx, a.refresh.Load().(string))
		if err == nil {
			a.refresh.Store(pair.RefreshToken)
		}
		return err
	})

	fmt.Println("---- results ----")
	for _, r := range []phaseReport{loginReport, authReport, refreshReport} {
		r.write(os.Stdout)
	}

	snap := engine.MetricsSnapshot()
	fmt.Printf("cache: hits=%d misses=%d\n", snap.Counters[poaAuth.MetricCacheHit], snap.Counters[poaAuth.MetricCacheMiss])
}

func connect(addr string) (redis.UniversalClient, func(), error) {
	if addr == "" {
		addr = os.Getenv("POA_AUTH_REDIS_ADDR")
	}
	if addr != "" {
		client := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{addr}})
		fmt.Printf("using redis at %s\n", addr)
		return client, func() { _ = client.Close() }, nil
	}

	mr, err := miniredis.Run()
	if err != nil {
		return nil, nil, err
	}
	client := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{mr.Addr()}})
	fmt.Printf("using miniredis at %s\n", mr.Addr())
	return client, func() {
		_ = client.Close()
		mr.Close()
	}, nil
}

func seed(ctx context.Context, engine *poaAuth.Engine, n, concurrency int) ([]*account, error) {
	states := make([]*account, n)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for i := 0; i < n; i++ {
		i := i
		g.Go(func() error {
			email := fmt.Sprintf("admin-%d@load.test", i)
			res, err := engine.Register(gctx, poaAuth.RegisterRequest{
				CompanyName: fmt.Sprintf("Load %d", i),
				Name:        "Load Admin",
				Email:       email,
				Password:    seedPassword,
			})
			if err != nil {
				return fmt.Errorf("register %s: %w", email, err)
			}
			a := &account{email: email, access: res.Tokens.AccessToken}
			a.refresh.Store(res.Tokens.RefreshToken)
			states[i] = a
			return nil
		})
	}
	return states, g.Wait()
}

func runPhase(name string, ops, concurrency int, salt int64, op func(r *rand.Rand) error) phaseReport {
	var (
		wg        sync.WaitGroup
		cursor    int64
		failures  int64
		latencies = make([]time.Duration, 0, ops)
		mu        sync.Mutex
	)

	start := time.Now()
	for w := 0; w < concurrency; w++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			r := rand.New(rand.NewSource(time.Now().UnixNano() + int64(worker)*salt))
			for {
				if int(atomic.AddInt64(&cursor, 1)) > ops {
					return
				}
				t0 := time.Now()
				err := op(r)
				d := time.Since(t0)
				if err != nil {
					atomic.AddInt64(&failures, 1)
				}
				mu.Lock()
				latencies = append(latencies, d)
				mu.Unlock()
			}
		}(w)
	}
	wg.Wait()
	return newPhaseReport(name, time.Since(start), latencies, failures)
}
