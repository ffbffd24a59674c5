package poaAuth

import (
	"errors"
	"strings"
	"time"

	"github.com/lucaaxano/poa-app-sub000/password"
)

// Config defines a public type used by poaAuth APIs.
//
// Config instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Config struct {
	Tokens         TokensConfig
	Password       PasswordConfig
	Cache          CacheConfig
	TOTP           TOTPConfig
	MFA            MFAConfig
	OneTimeTokens  OneTimeTokenConfig
	Login          LoginConfig
	ForgotPassword ForgotPasswordConfig
	Redis          RedisConfig
	Audit          AuditConfig
	Metrics        MetricsConfig
}

/*
====================================
TOKENS CONFIG
====================================
*/

// TokensConfig controls access/refresh issuance.
type TokensConfig struct {
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	SigningMethod string // "ed25519" (default) or "hs256"
	PrivateKey    []byte
	PublicKey     []byte
	Issuer        string
	Audience      string
	KeyID         string
	Leeway        time.Duration
}

/*
====================================
PASSWORD CONFIG
====================================
*/

// PasswordConfig selects the secret hasher and the password policy. Memory is
// in KiB. Workers bounds concurrent hash operations; 0 means GOMAXPROCS.
type PasswordConfig struct {
	Algorithm      string // "argon2id" (default) or "bcrypt"
	Memory         uint32
	Time           uint32
	Parallelism    uint8
	SaltLength     uint32
	KeyLength      uint32
	BcryptCost     int
	Workers        int
	MinLength      int
	MaxLength      int
	UpgradeOnLogin bool
}

/*
====================================
CACHE CONFIG
====================================
*/

// CacheConfig bounds the validated-identity cache.
type CacheConfig struct {
	TTL           time.Duration
	MaxEntries    int
	SweepInterval time.Duration
}

/*
====================================
TOTP CONFIG
====================================
*/

// TOTPConfig controls second-factor codes, backup codes and the per-identity
// attempt budget.
type TOTPConfig struct {
	Issuer           string
	Digits           int
	Period           uint
	Algorithm        string // "SHA1" (default), "SHA256" or "SHA512"
	Skew             uint
	SecretSize       uint
	BackupCodeCount  int
	BackupCodeLength int
	MaxAttempts      int
	Cooldown         time.Duration
}

/*
====================================
MFA CONFIG
====================================
*/

// MFAConfig controls the pending-second-factor handle.
type MFAConfig struct {
	PendingTTL  time.Duration
	RedisPrefix string
}

/*
====================================
ONE-TIME TOKEN CONFIG
====================================
*/

// OneTimeTokenConfig sets invitation and reset token lifetimes.
type OneTimeTokenConfig struct {
	InvitationTTL time.Duration
	ResetTTL      time.Duration
}

/*
====================================
LOGIN CONFIG
====================================
*/

// LoginConfig bounds failed password attempts.
type LoginConfig struct {
	MaxAttempts      int
	Cooldown         time.Duration
	EnableIPThrottle bool
}

/*
====================================
FORGOT PASSWORD CONFIG
====================================
*/

// ForgotPasswordConfig throttles reset requests per email address. Throttled
// requests still get the generic answer but mint nothing.
type ForgotPasswordConfig struct {
	Every   time.Duration
	Burst   int
	IdleTTL time.Duration
}

/*
====================================
REDIS CONFIG
====================================
*/

// RedisConfig is used by Build when no client was passed to WithRedis.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

/*
====================================
AUDIT CONFIG
====================================
*/

// AuditConfig controls the async audit dispatcher.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

/*
====================================
METRICS CONFIG
====================================
*/

// MetricsConfig controls in-process counters.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

/*
====================================
DEFAULT CONFIG
====================================
*/

// DefaultConfig describes the defaultconfig operation and its observable behavior.
//
// DefaultConfig may return an error when input validation, dependency calls, or security checks fail.
// DefaultConfig does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func DefaultConfig() Config {
	return defaultConfig()
}

func defaultConfig() Config {
	return Config{
		Tokens: TokensConfig{
			AccessTTL:     15 * time.Minute,
			RefreshTTL:    7 * 24 * time.Hour,
			SigningMethod: "ed25519",
			Issuer:        "poa",
		},
		Password: PasswordConfig{
			Algorithm:      "argon2id",
			Memory:         65536,
			Time:           3,
			Parallelism:    2,
			SaltLength:     16,
			KeyLength:      32,
			BcryptCost:     12,
			Workers:        0,
			MinLength:      8,
			MaxLength:      128,
			UpgradeOnLogin: true,
		},
		Cache: CacheConfig{
			TTL:           5 * time.Minute,
			MaxEntries:    10000,
			SweepInterval: time.Minute,
		},
		TOTP: TOTPConfig{
			Issuer:           "poa",
			Digits:           6,
			Period:           30,
			Algorithm:        "SHA1",
			Skew:             1,
			SecretSize:       20,
			BackupCodeCount:  10,
			BackupCodeLength: 10,
			MaxAttempts:      5,
			Cooldown:         time.Minute,
		},
		MFA: MFAConfig{
			PendingTTL:  5 * time.Minute,
			RedisPrefix: "pmh",
		},
		OneTimeTokens: OneTimeTokenConfig{
			InvitationTTL: 7 * 24 * time.Hour,
			ResetTTL:      time.Hour,
		},
		Login: LoginConfig{
			MaxAttempts:      5,
			Cooldown:         15 * time.Minute,
			EnableIPThrottle: false,
		},
		ForgotPassword: ForgotPasswordConfig{
			Every:   time.Minute,
			Burst:   3,
			IdleTTL: time.Hour,
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled:                 false,
			EnableLatencyHistograms: false,
		},
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.Tokens.PrivateKey = cloneBytes(cfg.Tokens.PrivateKey)
	out.Tokens.PublicKey = cloneBytes(cfg.Tokens.PublicKey)
	return out
}

func cloneBytes(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

/*
====================================
VALIDATION
====================================
*/

// Validate describes the validate operation and its observable behavior.
//
// Validate may return an error when input validation, dependency calls, or security checks fail.
// Validate does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (c *Config) Validate() error {
	// Tokens
	if c.Tokens.AccessTTL <= 0 {
		return errors.New("Tokens AccessTTL must be > 0")
	}
	if c.Tokens.RefreshTTL <= 0 {
		return errors.New("Tokens RefreshTTL must be > 0")
	}
	if c.Tokens.RefreshTTL < c.Tokens.AccessTTL {
		return errors.New("Tokens RefreshTTL must be >= AccessTTL")
	}
	switch c.Tokens.SigningMethod {
	case "ed25519":
		if len(c.Tokens.PrivateKey) == 0 {
			return errors.New("ed25519 requires PrivateKey")
		}
		if len(c.Tokens.PublicKey) == 0 {
			return errors.New("ed25519 requires PublicKey")
		}
	case "hs256":
		if len(c.Tokens.PrivateKey) == 0 {
			return errors.New("hs256 requires PrivateKey")
		}
	default:
		return errors.New("unsupported Tokens signing method")
	}
	if c.Tokens.Leeway < 0 || c.Tokens.Leeway > 2*time.Minute {
		return errors.New("Tokens Leeway must be between 0 and 2m")
	}

	// Password
	switch strings.ToLower(c.Password.Algorithm) {
	case "argon2id":
		if c.Password.Memory < 8*1024 {
			return errors.New("Password Memory must be >= 8192 KB")
		}
		if c.Password.Time < 1 {
			return errors.New("Password Time must be >= 1")
		}
		if c.Password.Parallelism < 1 {
			return errors.New("Password Parallelism must be >= 1")
		}
		if c.Password.SaltLength < 16 {
			return errors.New("Password SaltLength must be >= 16")
		}
		if c.Password.KeyLength < 16 {
			return errors.New("Password KeyLength must be >= 16")
		}
	case "bcrypt":
		if c.Password.BcryptCost < 4 || c.Password.BcryptCost > 31 {
			return errors.New("Password BcryptCost must be between 4 and 31")
		}
		if c.Password.MaxLength > password.MaxBcryptSecretBytes {
			return errors.New("Password MaxLength must be <= 72 with bcrypt")
		}
	default:
		return errors.New("Password Algorithm must be 'argon2id' or 'bcrypt'")
	}
	if c.Password.Workers < 0 {
		return errors.New("Password Workers must be >= 0")
	}
	if c.Password.MinLength < 1 {
		return errors.New("Password MinLength must be >= 1")
	}
	if c.Password.MaxLength < c.Password.MinLength {
		return errors.New("Password MaxLength must be >= MinLength")
	}

	// Cache
	if c.Cache.TTL <= 0 {
		return errors.New("Cache TTL must be > 0")
	}
	if c.Cache.MaxEntries <= 0 {
		return errors.New("Cache MaxEntries must be > 0")
	}
	if c.Cache.SweepInterval <= 0 {
		return errors.New("Cache SweepInterval must be > 0")
	}

	// TOTP
	if c.TOTP.Digits != 6 && c.TOTP.Digits != 8 {
		return errors.New("TOTP Digits must be 6 or 8")
	}
	if c.TOTP.Period == 0 {
		return errors.New("TOTP Period must be > 0")
	}
	if c.TOTP.Skew > 2 {
		return errors.New("TOTP Skew must be <= 2")
	}
	switch strings.ToUpper(c.TOTP.Algorithm) {
	case "SHA1", "SHA256", "SHA512":
	default:
		return errors.New("TOTP Algorithm must be SHA1, SHA256 or SHA512")
	}
	if c.TOTP.SecretSize < 10 {
		return errors.New("TOTP SecretSize must be >= 10")
	}
	if c.TOTP.BackupCodeCount <= 0 {
		return errors.New("TOTP BackupCodeCount must be > 0")
	}
	if c.TOTP.BackupCodeLength < 8 {
		return errors.New("TOTP BackupCodeLength must be >= 8")
	}
	if c.TOTP.MaxAttempts <= 0 {
		return errors.New("TOTP MaxAttempts must be > 0")
	}
	if c.TOTP.Cooldown <= 0 {
		return errors.New("TOTP Cooldown must be > 0")
	}

	// MFA
	if c.MFA.PendingTTL <= 0 {
		return errors.New("MFA PendingTTL must be > 0")
	}
	if c.MFA.PendingTTL > 15*time.Minute {
		return errors.New("MFA PendingTTL must be <= 15m")
	}
	if c.MFA.RedisPrefix == "" {
		return errors.New("MFA RedisPrefix must not be empty")
	}

	// One-time tokens
	if c.OneTimeTokens.InvitationTTL <= 0 {
		return errors.New("OneTimeTokens InvitationTTL must be > 0")
	}
	if c.OneTimeTokens.ResetTTL <= 0 {
		return errors.New("OneTimeTokens ResetTTL must be > 0")
	}

	// Login
	if c.Login.MaxAttempts <= 0 {
		return errors.New("Login MaxAttempts must be > 0")
	}
	if c.Login.Cooldown <= 0 {
		return errors.New("Login Cooldown must be > 0")
	}

	// Forgot password
	if c.ForgotPassword.Every <= 0 {
		return errors.New("ForgotPassword Every must be > 0")
	}
	if c.ForgotPassword.Burst <= 0 {
		return errors.New("ForgotPassword Burst must be > 0")
	}
	if c.ForgotPassword.IdleTTL <= 0 {
		return errors.New("ForgotPassword IdleTTL must be > 0")
	}

	// Audit
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0")
	}

	return nil
}
