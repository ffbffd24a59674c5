package totp

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"

	"github.com/lucaaxano/poa-app-sub000/password"
)

var (
	ErrNotFound        = errors.New("totp: identity not found")
	ErrAlreadyEnabled  = errors.New("totp: already enabled")
	ErrNoPendingSecret = errors.New("totp: no pending secret")
	ErrNotEnabled      = errors.New("totp: not enabled")
	ErrInvalidCode     = errors.New("totp: invalid code")
	ErrInvalidPassword = errors.New("totp: invalid password")
)

// Phase is where an identity sits in the second-factor lifecycle.
type Phase int

const (
	PhaseNoSecret Phase = iota
	PhaseSecretIssued
	PhaseEnabled
)

func (p Phase) String() string {
	switch p {
	case PhaseNoSecret:
		return "no_secret"
	case PhaseSecretIssued:
		return "secret_issued"
	case PhaseEnabled:
		return "enabled"
	default:
		return "unknown"
	}
}

// State is the second-factor view of one identity.
type State struct {
	Secret       string
	Enabled      bool
	BackupCodes  []string
	PasswordHash string
}

func (s State) Phase() Phase {
	switch {
	case s.Enabled && s.Secret != "":
		return PhaseEnabled
	case s.Secret != "":
		return PhaseSecretIssued
	default:
		return PhaseNoSecret
	}
}

// Store persists second-factor state. Implementations return ErrNotFound for
// unknown identities.
type Store interface {
	LoadState(ctx context.Context, identityID string) (State, error)
	// SaveSecret stores a new unconfirmed secret and its backup code hashes. It
	// fails with ErrAlreadyEnabled if the identity was enabled in the meantime.
	SaveSecret(ctx context.Context, identityID, secret string, backupHashes []string) error
	// MarkEnabled turns the second factor on, provided the stored secret is
	// still secret. Otherwise it fails with ErrNoPendingSecret.
	MarkEnabled(ctx context.Context, identityID, secret string) error
	Clear(ctx context.Context, identityID string) error
	ReplaceBackupCodes(ctx context.Context, identityID string, hashes []string) error
	// ConsumeBackupCode removes hash if present and reports whether it did.
	ConsumeBackupCode(ctx context.Context, identityID, hash string) (bool, error)
}

// Config controls code generation and validation.
type Config struct {
	Issuer           string
	Period           uint
	Skew             uint
	Digits           otp.Digits
	Algorithm        otp.Algorithm
	SecretSize       uint
	BackupCodeCount  int
	BackupCodeLength int
}

// DefaultConfig returns the RFC 6238 profile authenticator apps expect.
func DefaultConfig() Config {
	return Config{
		Issuer:           "poa",
		Period:           30,
		Skew:             1,
		Digits:           otp.DigitsSix,
		Algorithm:        otp.AlgorithmSHA1,
		SecretSize:       20,
		BackupCodeCount:  10,
		BackupCodeLength: 10,
	}
}

func (c Config) validate() error {
	if strings.TrimSpace(c.Issuer) == "" {
		return errors.New("totp: issuer must be set")
	}
	if c.Period == 0 {
		return errors.New("totp: period must be > 0")
	}
	if c.Skew > 2 {
		return errors.New("totp: skew must be <= 2")
	}
	if c.Digits != otp.DigitsSix && c.Digits != otp.DigitsEight {
		return errors.New("totp: digits must be 6 or 8")
	}
	if c.SecretSize < 16 {
		return errors.New("totp: secret size must be >= 16 bytes")
	}
	if c.BackupCodeCount <= 0 || c.BackupCodeCount > 32 {
		return errors.New("totp: backup code count must be in [1,32]")
	}
	if c.BackupCodeLength < 8 || c.BackupCodeLength > 32 {
		return errors.New("totp: backup code length must be in [8,32]")
	}
	return nil
}

func (c Config) validateOpts() totp.ValidateOpts {
	return totp.ValidateOpts{
		Period:    c.Period,
		Skew:      c.Skew,
		Digits:    c.Digits,
		Algorithm: c.Algorithm,
	}
}

// Setup is returned once by GenerateSetup. BackupCodes are plaintext and are
// never retrievable again.
type Setup struct {
	Secret      string
	URI         string
	BackupCodes []string
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock replaces time.Now for code validation.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// Engine runs the second-factor state machine against a Store.
type Engine struct {
	store  Store
	hashes *password.Pool
	config Config
	now    func() time.Time
}

// New validates cfg and returns an engine. hashes is used for backup codes and
// password re-verification.
func New(st Store, hashes *password.Pool, cfg Config, opts ...Option) (*Engine, error) {
	if st == nil || hashes == nil {
		return nil, errors.New("totp: store and hash pool are required")
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	e := &Engine{store: st, hashes: hashes, config: cfg, now: time.Now}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// GenerateSetup issues a new secret and backup codes for identityID. Any
// earlier unconfirmed secret is replaced.
func (e *Engine) GenerateSetup(ctx context.Context, identityID, accountName string) (*Setup, error) {
	state, err := e.store.LoadState(ctx, identityID)
	if err != nil {
		return nil, err
	}
	if state.Phase() == PhaseEnabled {
		return nil, ErrAlreadyEnabled
	}

	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      e.config.Issuer,
		AccountName: accountName,
		Period:      e.config.Period,
		SecretSize:  e.config.SecretSize,
		Digits:      e.config.Digits,
		Algorithm:   e.config.Algorithm,
	})
	if err != nil {
		return nil, fmt.Errorf("totp: generate secret: %w", err)
	}

	codes, hashes, err := e.newBackupCodes(ctx)
	if err != nil {
		return nil, err
	}
	if err := e.store.SaveSecret(ctx, identityID, key.Secret(), hashes); err != nil {
		return nil, err
	}

	return &Setup{
		Secret:      key.Secret(),
		URI:         key.URL(),
		BackupCodes: codes,
	}, nil
}

// Enable confirms the pending secret with a current code.
func (e *Engine) Enable(ctx context.Context, identityID, code string) error {
	state, err := e.store.LoadState(ctx, identityID)
	if err != nil {
		return err
	}
	switch state.Phase() {
	case PhaseEnabled:
		return ErrAlreadyEnabled
	case PhaseNoSecret:
		return ErrNoPendingSecret
	}
	if !e.check(code, state.Secret) {
		return ErrInvalidCode
	}
	return e.store.MarkEnabled(ctx, identityID, state.Secret)
}

// Validate checks code against an enabled identity's secret.
func (e *Engine) Validate(ctx context.Context, identityID, code string) error {
	state, err := e.store.LoadState(ctx, identityID)
	if err != nil {
		return err
	}
	if state.Phase() != PhaseEnabled {
		return ErrNotEnabled
	}
	if !e.check(code, state.Secret) {
		return ErrInvalidCode
	}
	return nil
}

// UseBackupCode matches code against the stored hashes and burns the match.
func (e *Engine) UseBackupCode(ctx context.Context, identityID, code string) error {
	state, err := e.store.LoadState(ctx, identityID)
	if err != nil {
		return err
	}
	if state.Phase() != PhaseEnabled {
		return ErrNotEnabled
	}

	canonical, ok := e.canonicalBackupCode(code)
	if !ok {
		return ErrInvalidCode
	}
	idx, err := e.hashes.VerifyAny(ctx, canonical, state.BackupCodes)
	if err != nil {
		return err
	}
	if idx < 0 {
		return ErrInvalidCode
	}

	consumed, err := e.store.ConsumeBackupCode(ctx, identityID, state.BackupCodes[idx])
	if err != nil {
		return err
	}
	if !consumed {
		// Lost a race with another use of the same code.
		return ErrInvalidCode
	}
	return nil
}

// Disable re-verifies the password, then clears the secret and backup codes.
// It also cancels a setup that was never confirmed.
func (e *Engine) Disable(ctx context.Context, identityID, pw string) error {
	state, err := e.store.LoadState(ctx, identityID)
	if err != nil {
		return err
	}
	if state.Phase() == PhaseNoSecret {
		return ErrNotEnabled
	}

	ok, err := e.hashes.Verify(ctx, pw, state.PasswordHash)
	if err != nil && !errors.Is(err, password.ErrMalformedHash) {
		return err
	}
	if !ok {
		return ErrInvalidPassword
	}
	return e.store.Clear(ctx, identityID)
}

// RegenerateBackupCodes replaces the whole set in a single write.
func (e *Engine) RegenerateBackupCodes(ctx context.Context, identityID string) ([]string, error) {
	state, err := e.store.LoadState(ctx, identityID)
	if err != nil {
		return nil, err
	}
	if state.Phase() != PhaseEnabled {
		return nil, ErrNotEnabled
	}

	codes, hashes, err := e.newBackupCodes(ctx)
	if err != nil {
		return nil, err
	}
	if err := e.store.ReplaceBackupCodes(ctx, identityID, hashes); err != nil {
		return nil, err
	}
	return codes, nil
}

func (e *Engine) IsEnabled(ctx context.Context, identityID string) (bool, error) {
	state, err := e.store.LoadState(ctx, identityID)
	if err != nil {
		return false, err
	}
	return state.Phase() == PhaseEnabled, nil
}

// PhaseOf reports the lifecycle phase of identityID.
func (e *Engine) PhaseOf(ctx context.Context, identityID string) (Phase, error) {
	state, err := e.store.LoadState(ctx, identityID)
	if err != nil {
		return PhaseNoSecret, err
	}
	return state.Phase(), nil
}

func (e *Engine) check(code, secret string) bool {
	code = strings.TrimSpace(code)
	if len(code) != e.config.Digits.Length() || !isDigits(code) {
		return false
	}
	ok, err := totp.ValidateCustom(code, secret, e.now().UTC(), e.config.validateOpts())
	return err == nil && ok
}

func isDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return s != ""
}
