package poaAuth

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/pquerna/otp"
	pqtotp "github.com/pquerna/otp/totp"
	"github.com/redis/go-redis/v9"

	"github.com/lucaaxano/poa-app-sub000/store"
	"github.com/lucaaxano/poa-app-sub000/store/memstore"
)

const testPassword = "correct-password-123"

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type recordingNotifier struct {
	mu          sync.Mutex
	resets      []ResetNotice
	invitations []InvitationNotice
}

func (n *recordingNotifier) PasswordReset(_ context.Context, notice ResetNotice) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.resets = append(n.resets, notice)
	return nil
}

func (n *recordingNotifier) Invitation(_ context.Context, notice InvitationNotice) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.invitations = append(n.invitations, notice)
	return nil
}

func (n *recordingNotifier) lastReset(t testing.TB) ResetNotice {
	t.Helper()
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.resets) == 0 {
		t.Fatal("expected a password reset notice")
	}
	return n.resets[len(n.resets)-1]
}

func newTestRedis(t testing.TB) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis start failed: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		_ = rdb.Close()
		mr.Close()
	})
	return mr, rdb
}

// testConfig keeps hashing cheap: bcrypt at its minimum cost.
func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Tokens.SigningMethod = "hs256"
	cfg.Tokens.PrivateKey = []byte(strings.Repeat("k", 32))
	cfg.Password.Algorithm = "bcrypt"
	cfg.Password.BcryptCost = 4
	cfg.Password.MaxLength = 72
	cfg.Metrics.Enabled = true
	return cfg
}

type testEnv struct {
	engine   *Engine
	store    *memstore.Store
	clock    *testClock
	redis    *miniredis.Miniredis
	rdb      *redis.Client
	notifier *recordingNotifier
}

type envOption func(*envSettings)

type envSettings struct {
	cfg   Config
	fault func(op string) error
	sink  AuditSink
}

func withConfig(mutate func(*Config)) envOption {
	return func(s *envSettings) { mutate(&s.cfg) }
}

func withFault(fn func(op string) error) envOption {
	return func(s *envSettings) { s.fault = fn }
}

func withSink(sink AuditSink) envOption {
	return func(s *envSettings) {
		s.sink = sink
		s.cfg.Audit.Enabled = true
		s.cfg.Audit.BufferSize = 64
		s.cfg.Audit.DropIfFull = false
	}
}

func newTestEnv(t testing.TB, opts ...envOption) *testEnv {
	t.Helper()

	settings := envSettings{cfg: testConfig()}
	for _, opt := range opts {
		opt(&settings)
	}

	clock := newTestClock()
	mr, rdb := newTestRedis(t)

	storeOpts := []memstore.Option{memstore.WithClock(clock.Now)}
	if settings.fault != nil {
		storeOpts = append(storeOpts, memstore.WithFault(settings.fault))
	}
	st := memstore.New(storeOpts...)
	notifier := &recordingNotifier{}

	engine, err := New().
		WithConfig(settings.cfg).
		WithStore(st).
		WithRedis(rdb).
		WithNotifier(notifier).
		WithAuditSink(settings.sink).
		WithClock(clock.Now).
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	t.Cleanup(engine.Close)

	return &testEnv{
		engine:   engine,
		store:    st,
		clock:    clock,
		redis:    mr,
		rdb:      rdb,
		notifier: notifier,
	}
}

func (env *testEnv) register(t testing.TB, email string) *RegisterResult {
	t.Helper()

	res, err := env.engine.Register(context.Background(), RegisterRequest{
		CompanyName: "Acme",
		Name:        "Ada Admin",
		Email:       email,
		Password:    testPassword,
	})
	if err != nil {
		t.Fatalf("register %s failed: %v", email, err)
	}
	return res
}

func (env *testEnv) identity(t testing.TB, id string) *store.Identity {
	t.Helper()

	identity, err := env.store.Identities().FindByID(context.Background(), id)
	if err != nil {
		t.Fatalf("load identity %s failed: %v", id, err)
	}
	return identity
}

// enableTOTP runs setup and confirmation and returns the secret and the
// plaintext backup codes.
func (env *testEnv) enableTOTP(t testing.TB, identityID string) (string, []string) {
	t.Helper()

	ctx := context.Background()
	setup, err := env.engine.GenerateTOTPSetup(ctx, identityID)
	if err != nil {
		t.Fatalf("GenerateTOTPSetup failed: %v", err)
	}
	if err := env.engine.EnableTOTP(ctx, identityID, env.code(t, setup.Secret)); err != nil {
		t.Fatalf("EnableTOTP failed: %v", err)
	}
	return setup.Secret, setup.BackupCodes
}

func (env *testEnv) code(t testing.TB, secret string) string {
	t.Helper()

	code, err := pqtotp.GenerateCodeCustom(secret, env.clock.Now(), pqtotp.ValidateOpts{
		Period:    30,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	})
	if err != nil {
		t.Fatalf("generate totp code failed: %v", err)
	}
	return code
}
