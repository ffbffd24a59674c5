package totp

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/pquerna/otp/totp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/lucaaxano/poa-app-sub000/password"
)

type memStore struct {
	mu     sync.Mutex
	states map[string]State
}

func newMemStore() *memStore {
	return &memStore{states: make(map[string]State)}
}

func (m *memStore) LoadState(_ context.Context, id string) (State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.states[id]
	if !ok {
		return State{}, ErrNotFound
	}
	st.BackupCodes = append([]string(nil), st.BackupCodes...)
	return st, nil
}

func (m *memStore) SaveSecret(_ context.Context, id, secret string, hashes []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	st := m.states[id]
	if st.Enabled {
		return ErrAlreadyEnabled
	}
	st.Secret = secret
	st.BackupCodes = hashes
	m.states[id] = st
	return nil
}

func (m *memStore) MarkEnabled(_ context.Context, id, secret string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	st := m.states[id]
	if st.Secret != secret {
		return ErrNoPendingSecret
	}
	st.Enabled = true
	m.states[id] = st
	return nil
}

func (m *memStore) Clear(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	st := m.states[id]
	st.Secret, st.Enabled, st.BackupCodes = "", false, nil
	m.states[id] = st
	return nil
}

func (m *memStore) ReplaceBackupCodes(_ context.Context, id string, hashes []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	st := m.states[id]
	st.BackupCodes = hashes
	m.states[id] = st
	return nil
}

func (m *memStore) ConsumeBackupCode(_ context.Context, id, hash string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st := m.states[id]
	for i, h := range st.BackupCodes {
		if h == hash {
			st.BackupCodes = append(st.BackupCodes[:i:i], st.BackupCodes[i+1:]...)
			m.states[id] = st
			return true, nil
		}
	}
	return false, nil
}

type fixture struct {
	engine *Engine
	store  *memStore
	now    time.Time
	pool   *password.Pool
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	hasher, err := password.NewBcrypt(bcrypt.MinCost)
	require.NoError(t, err)
	pool := password.NewPool(hasher, 4)

	pwHash, err := pool.Hash(context.Background(), "Secret123!")
	require.NoError(t, err)

	f := &fixture{
		store: newMemStore(),
		now:   time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC),
		pool:  pool,
	}
	f.store.states["u1"] = State{PasswordHash: pwHash}

	f.engine, err = New(f.store, pool, DefaultConfig(), WithClock(func() time.Time { return f.now }))
	require.NoError(t, err)
	return f
}

func (f *fixture) code(t *testing.T, secret string, at time.Time) string {
	t.Helper()
	code, err := totp.GenerateCodeCustom(secret, at, DefaultConfig().validateOpts())
	require.NoError(t, err)
	return code
}

func (f *fixture) enable(t *testing.T) *Setup {
	t.Helper()
	ctx := context.Background()
	setup, err := f.engine.GenerateSetup(ctx, "u1", "admin@acme.test")
	require.NoError(t, err)
	require.NoError(t, f.engine.Enable(ctx, "u1", f.code(t, setup.Secret, f.now)))
	return setup
}

func TestGenerateSetupLeavesDisabled(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	setup, err := f.engine.GenerateSetup(ctx, "u1", "admin@acme.test")
	require.NoError(t, err)
	assert.NotEmpty(t, setup.Secret)
	assert.True(t, strings.HasPrefix(setup.URI, "otpauth://totp/"))
	assert.Contains(t, setup.URI, "issuer=poa")
	require.Len(t, setup.BackupCodes, 10)
	for _, c := range setup.BackupCodes {
		assert.Len(t, c, 10)
		assert.Equal(t, strings.ToUpper(c), c)
	}

	phase, err := f.engine.PhaseOf(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, PhaseSecretIssued, phase)

	enabled, err := f.engine.IsEnabled(ctx, "u1")
	require.NoError(t, err)
	assert.False(t, enabled)

	stored := f.store.states["u1"]
	require.Len(t, stored.BackupCodes, 10)
	for i, h := range stored.BackupCodes {
		assert.NotEqual(t, setup.BackupCodes[i], h, "backup codes must be stored hashed")
	}
}

func TestEnableRequiresSetup(t *testing.T) {
	f := newFixture(t)
	err := f.engine.Enable(context.Background(), "u1", "123456")
	assert.ErrorIs(t, err, ErrNoPendingSecret)
}

func TestEnableRejectsCodeForDifferentSecret(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.engine.GenerateSetup(ctx, "u1", "admin@acme.test")
	require.NoError(t, err)

	foreign, err := totp.Generate(totp.GenerateOpts{Issuer: "other", AccountName: "x@y.test"})
	require.NoError(t, err)
	err = f.engine.Enable(ctx, "u1", f.code(t, foreign.Secret(), f.now))
	assert.ErrorIs(t, err, ErrInvalidCode)

	enabled, err := f.engine.IsEnabled(ctx, "u1")
	require.NoError(t, err)
	assert.False(t, enabled)
}

func TestEnableAndValidateWithDrift(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	setup := f.enable(t)

	assert.NoError(t, f.engine.Validate(ctx, "u1", f.code(t, setup.Secret, f.now)))
	assert.NoError(t, f.engine.Validate(ctx, "u1", f.code(t, setup.Secret, f.now.Add(-30*time.Second))))
	assert.NoError(t, f.engine.Validate(ctx, "u1", f.code(t, setup.Secret, f.now.Add(30*time.Second))))
	assert.ErrorIs(t, f.engine.Validate(ctx, "u1", f.code(t, setup.Secret, f.now.Add(-90*time.Second))), ErrInvalidCode)
	assert.ErrorIs(t, f.engine.Validate(ctx, "u1", "12ab56"), ErrInvalidCode)
	assert.ErrorIs(t, f.engine.Validate(ctx, "u1", ""), ErrInvalidCode)

	_, err := f.engine.GenerateSetup(ctx, "u1", "admin@acme.test")
	assert.ErrorIs(t, err, ErrAlreadyEnabled)
	assert.ErrorIs(t, f.engine.Enable(ctx, "u1", f.code(t, setup.Secret, f.now)), ErrAlreadyEnabled)
}

func TestValidateRequiresEnabled(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	setup, err := f.engine.GenerateSetup(ctx, "u1", "admin@acme.test")
	require.NoError(t, err)

	err = f.engine.Validate(ctx, "u1", f.code(t, setup.Secret, f.now))
	assert.ErrorIs(t, err, ErrNotEnabled)
}

func TestBackupCodeSingleUse(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	setup := f.enable(t)
	code := setup.BackupCodes[3]

	require.NoError(t, f.engine.UseBackupCode(ctx, "u1", strings.ToLower(code)))
	assert.ErrorIs(t, f.engine.UseBackupCode(ctx, "u1", code), ErrInvalidCode)
	assert.Len(t, f.store.states["u1"].BackupCodes, 9)

	dashed := setup.BackupCodes[0][:5] + "-" + setup.BackupCodes[0][5:]
	assert.NoError(t, f.engine.UseBackupCode(ctx, "u1", dashed))
	assert.ErrorIs(t, f.engine.UseBackupCode(ctx, "u1", "NOTACODE!!"), ErrInvalidCode)
}

func TestBackupCodeConcurrentUseWinsOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	setup := f.enable(t)

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := f.engine.UseBackupCode(ctx, "u1", setup.BackupCodes[0]); err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, wins)
}

func TestRegenerateBackupCodesInvalidatesOldSet(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	setup := f.enable(t)

	fresh, err := f.engine.RegenerateBackupCodes(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, fresh, 10)

	assert.ErrorIs(t, f.engine.UseBackupCode(ctx, "u1", setup.BackupCodes[0]), ErrInvalidCode)
	assert.NoError(t, f.engine.UseBackupCode(ctx, "u1", fresh[0]))
}

func TestRegenerateRequiresEnabled(t *testing.T) {
	f := newFixture(t)
	_, err := f.engine.RegenerateBackupCodes(context.Background(), "u1")
	assert.ErrorIs(t, err, ErrNotEnabled)
}

func TestDisable(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.enable(t)

	assert.ErrorIs(t, f.engine.Disable(ctx, "u1", "wrong"), ErrInvalidPassword)
	require.NoError(t, f.engine.Disable(ctx, "u1", "Secret123!"))

	phase, err := f.engine.PhaseOf(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, PhaseNoSecret, phase)
	assert.Empty(t, f.store.states["u1"].BackupCodes)

	assert.ErrorIs(t, f.engine.Disable(ctx, "u1", "Secret123!"), ErrNotEnabled)
}

func TestUnknownIdentity(t *testing.T) {
	f := newFixture(t)
	_, err := f.engine.IsEnabled(context.Background(), "ghost")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestQRCodePNG(t *testing.T) {
	f := newFixture(t)
	setup, err := f.engine.GenerateSetup(context.Background(), "u1", "admin@acme.test")
	require.NoError(t, err)

	img, err := QRCodePNG(setup.URI, 128)
	require.NoError(t, err)
	assert.Equal(t, []byte("\x89PNG"), img[:4])
}

func TestConfigValidation(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Skew = 5
	_, err := New(newMemStore(), password.NewPool(&password.Bcrypt{}, 1), cfg)
	assert.Error(t, err)
}
