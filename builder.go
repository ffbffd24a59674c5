package poaAuth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pquerna/otp"
	"github.com/redis/go-redis/v9"

	"github.com/lucaaxano/poa-app-sub000/cache"
	internalaudit "github.com/lucaaxano/poa-app-sub000/internal/audit"
	internalflows "github.com/lucaaxano/poa-app-sub000/internal/flows"
	"github.com/lucaaxano/poa-app-sub000/internal/limiters"
	"github.com/lucaaxano/poa-app-sub000/internal/stores"
	"github.com/lucaaxano/poa-app-sub000/internal/throttle"
	"github.com/lucaaxano/poa-app-sub000/jwt"
	"github.com/lucaaxano/poa-app-sub000/password"
	"github.com/lucaaxano/poa-app-sub000/store"
	"github.com/lucaaxano/poa-app-sub000/totp"
)

// Builder defines a public type used by poaAuth APIs.
//
// Builder instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Builder struct {
	config Config
	store  store.Store
	redis  redis.UniversalClient

	auditSink AuditSink
	notifier  Notifier
	now       func() time.Time

	built bool
}

// New describes the new operation and its observable behavior.
//
// New may return an error when input validation, dependency calls, or security checks fail.
// New does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func New() *Builder {
	return &Builder{
		config: defaultConfig(),
	}
}

// WithConfig describes the withconfig operation and its observable behavior.
//
// WithConfig may return an error when input validation, dependency calls, or security checks fail.
// WithConfig does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithStore sets the identity store. It is required.
func (b *Builder) WithStore(st store.Store) *Builder {
	b.store = st
	return b
}

// WithRedis sets the client backing pending handles and attempt limiters.
// Without it, Build dials Config.Redis.Addr.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithAuditSink sets where audit events go when Config.Audit.Enabled is set.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithNotifier sets who delivers reset and invitation tokens. The default
// discards them.
func (b *Builder) WithNotifier(n Notifier) *Builder {
	b.notifier = n
	return b
}

// WithClock replaces time.Now for token issuance, one-time token expiry, TOTP
// windows and cache ages.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.now = now
	return b
}

// WithMetricsEnabled toggles Config.Metrics.Enabled.
func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// WithLatencyHistograms toggles Config.Metrics.EnableLatencyHistograms.
func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build describes the build operation and its observable behavior.
//
// Build may return an error when input validation, dependency calls, or security checks fail.
// Build does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if b.store == nil {
		return nil, errors.New("identity store required")
	}

	now := b.now
	if now == nil {
		now = time.Now
	}

	// -------- REDIS --------
	rdb := b.redis
	ownsRedis := false
	if rdb == nil {
		if cfg.Redis.Addr == "" {
			return nil, errors.New("redis client required")
		}
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		ownsRedis = true
	}

	engine := &Engine{
		config:    cloneConfig(cfg),
		store:     b.store,
		redis:     rdb,
		ownsRedis: ownsRedis,
		now:       now,
		notifier:  b.notifier,
	}
	if engine.notifier == nil {
		engine.notifier = NoOpNotifier{}
	}
	engine.metrics = NewMetrics(cfg.Metrics)

	fail := func(err error) (*Engine, error) {
		if ownsRedis {
			_ = rdb.Close()
		}
		return nil, err
	}

	// -------- SECRET HASHER --------
	hasher, err := password.New(password.Config{
		Algorithm: password.Algorithm(strings.ToLower(cfg.Password.Algorithm)),
		Argon2: password.Argon2Params{
			Memory:      cfg.Password.Memory,
			Time:        cfg.Password.Time,
			Parallelism: cfg.Password.Parallelism,
			SaltLength:  cfg.Password.SaltLength,
			KeyLength:   cfg.Password.KeyLength,
		},
		BcryptCost: cfg.Password.BcryptCost,
	})
	if err != nil {
		return fail(fmt.Errorf("%w: %v", ErrInvalidConfig, err))
	}
	engine.hashes = password.NewPool(hasher, cfg.Password.Workers)

	dummy, err := engine.hashes.Hash(context.Background(), uuid.NewString())
	if err != nil {
		return fail(err)
	}
	engine.dummyHash = dummy

	// -------- TOKEN SIGNER --------
	tm, err := jwt.NewManager(jwt.Config{
		SigningMethod: jwt.SigningMethod(cfg.Tokens.SigningMethod),
		PrivateKey:    cloneBytes(cfg.Tokens.PrivateKey),
		PublicKey:     cloneBytes(cfg.Tokens.PublicKey),
		Issuer:        cfg.Tokens.Issuer,
		Audience:      cfg.Tokens.Audience,
		KeyID:         cfg.Tokens.KeyID,
		Leeway:        cfg.Tokens.Leeway,
		Now:           now,
	})
	if err != nil {
		return fail(fmt.Errorf("%w: %v", ErrInvalidConfig, err))
	}
	engine.tokens = tm

	// -------- TOTP ENGINE --------
	te, err := totp.New(&totpStore{store: b.store}, engine.hashes, totp.Config{
		Issuer:           cfg.TOTP.Issuer,
		Period:           cfg.TOTP.Period,
		Skew:             cfg.TOTP.Skew,
		Digits:           otpDigits(cfg.TOTP.Digits),
		Algorithm:        otpAlgorithm(cfg.TOTP.Algorithm),
		SecretSize:       cfg.TOTP.SecretSize,
		BackupCodeCount:  cfg.TOTP.BackupCodeCount,
		BackupCodeLength: cfg.TOTP.BackupCodeLength,
	}, totp.WithClock(now))
	if err != nil {
		return fail(fmt.Errorf("%w: %v", ErrInvalidConfig, err))
	}
	engine.totp = te

	// -------- LIMITERS & PENDING HANDLES --------
	engine.loginLimiter = limiters.NewLoginLimiter(rdb, limiters.LoginConfig{
		MaxAttempts:      cfg.Login.MaxAttempts,
		Cooldown:         cfg.Login.Cooldown,
		EnableIPThrottle: cfg.Login.EnableIPThrottle,
	})
	engine.totpLimiter = limiters.NewTOTPLimiter(rdb, limiters.TOTPLimiterConfig{
		MaxAttempts: cfg.TOTP.MaxAttempts,
		Cooldown:    cfg.TOTP.Cooldown,
	})
	engine.pending = stores.NewPendingHandleStore(rdb, cfg.MFA.RedisPrefix).WithClock(now)
	engine.resetThrottle = throttle.New(cfg.ForgotPassword.Every, cfg.ForgotPassword.Burst, cfg.ForgotPassword.IdleTTL)

	// -------- IDENTITY CACHE --------
	ic, err := cache.New[identitySnapshot](cache.Config{
		TTL:           cfg.Cache.TTL,
		MaxEntries:    cfg.Cache.MaxEntries,
		SweepInterval: cfg.Cache.SweepInterval,
	}, cache.WithClock(now), cache.WithEvictHook(func(string, cache.EvictReason) {
		engine.metricInc(MetricCacheEvicted)
	}))
	if err != nil {
		return fail(fmt.Errorf("%w: %v", ErrInvalidConfig, err))
	}
	engine.cache = ic

	engine.audit = internalaudit.NewDispatcher(internalaudit.Config{
		Enabled:    cfg.Audit.Enabled,
		BufferSize: cfg.Audit.BufferSize,
		DropIfFull: cfg.Audit.DropIfFull,
	}, b.auditSink)

	engine.flows = internalflows.Deps{
		Login:         engine.loginFlowDeps(),
		PasswordReset: engine.passwordResetFlowDeps(),
	}

	engine.cache.Start()
	b.built = true

	return engine, nil
}

func otpDigits(n int) otp.Digits {
	if n == 8 {
		return otp.DigitsEight
	}
	return otp.DigitsSix
}

func otpAlgorithm(name string) otp.Algorithm {
	switch strings.ToUpper(name) {
	case "SHA256":
		return otp.AlgorithmSHA256
	case "SHA512":
		return otp.AlgorithmSHA512
	default:
		return otp.AlgorithmSHA1
	}
}
