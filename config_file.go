package poaAuth

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// FileConfig is the on-disk TOML shape of [Config]. Durations are strings such
// as "15m"; key material is referenced by path or, for hs256, given inline.
// Zero values keep the defaults.
type FileConfig struct {
	Tokens struct {
		AccessTTL      duration `toml:"access_ttl"`
		RefreshTTL     duration `toml:"refresh_ttl"`
		SigningMethod  string   `toml:"signing_method"`
		PrivateKeyFile string   `toml:"private_key_file"`
		PublicKeyFile  string   `toml:"public_key_file"`
		Secret         string   `toml:"secret"`
		Issuer         string   `toml:"issuer"`
		Audience       string   `toml:"audience"`
		KeyID          string   `toml:"key_id"`
		Leeway         duration `toml:"leeway"`
	} `toml:"tokens"`
	Password struct {
		Algorithm      string `toml:"algorithm"`
		Memory         uint32 `toml:"memory_kib"`
		Time           uint32 `toml:"time"`
		Parallelism    uint8  `toml:"parallelism"`
		BcryptCost     int    `toml:"bcrypt_cost"`
		Workers        int    `toml:"workers"`
		MinLength      int    `toml:"min_length"`
		MaxLength      int    `toml:"max_length"`
		UpgradeOnLogin *bool  `toml:"upgrade_on_login"`
	} `toml:"password"`
	Cache struct {
		TTL           duration `toml:"ttl"`
		MaxEntries    int      `toml:"max_entries"`
		SweepInterval duration `toml:"sweep_interval"`
	} `toml:"cache"`
	TOTP struct {
		Issuer      string   `toml:"issuer"`
		Digits      int      `toml:"digits"`
		Algorithm   string   `toml:"algorithm"`
		Skew        *uint    `toml:"skew"`
		MaxAttempts int      `toml:"max_attempts"`
		Cooldown    duration `toml:"cooldown"`
	} `toml:"totp"`
	MFA struct {
		PendingTTL  duration `toml:"pending_ttl"`
		RedisPrefix string   `toml:"redis_prefix"`
	} `toml:"mfa"`
	OneTimeTokens struct {
		InvitationTTL duration `toml:"invitation_ttl"`
		ResetTTL      duration `toml:"reset_ttl"`
	} `toml:"one_time_tokens"`
	Login struct {
		MaxAttempts      int      `toml:"max_attempts"`
		Cooldown         duration `toml:"cooldown"`
		EnableIPThrottle *bool    `toml:"enable_ip_throttle"`
	} `toml:"login"`
	ForgotPassword struct {
		Every   duration `toml:"every"`
		Burst   int      `toml:"burst"`
		IdleTTL duration `toml:"idle_ttl"`
	} `toml:"forgot_password"`
	Redis struct {
		Addr     string `toml:"addr"`
		Password string `toml:"password"`
		DB       int    `toml:"db"`
	} `toml:"redis"`
	Audit struct {
		Enabled    bool  `toml:"enabled"`
		BufferSize int   `toml:"buffer_size"`
		DropIfFull *bool `toml:"drop_if_full"`
	} `toml:"audit"`
	Metrics struct {
		Enabled                 bool `toml:"enabled"`
		EnableLatencyHistograms bool `toml:"latency_histograms"`
	} `toml:"metrics"`
}

type duration time.Duration

func (d *duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(strings.TrimSpace(string(text)))
	if err != nil {
		return err
	}
	*d = duration(parsed)
	return nil
}

func (d duration) set(dst *time.Duration) {
	if d > 0 {
		*dst = time.Duration(d)
	}
}

// LoadConfigFile decodes the TOML file at path over [DefaultConfig]. Sections
// it does not know, such as a daemon's own [server] table, are ignored.
func LoadConfigFile(path string) (Config, error) {
	var fc FileConfig
	if _, err := toml.DecodeFile(path, &fc); err != nil {
		return Config{}, fmt.Errorf("%w: decode %s: %v", ErrInvalidConfig, path, err)
	}
	cfg := defaultConfig()
	if err := fc.Apply(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Apply copies every field set in fc onto cfg and loads referenced key files.
func (fc *FileConfig) Apply(cfg *Config) error {
	t := fc.Tokens
	t.AccessTTL.set(&cfg.Tokens.AccessTTL)
	t.RefreshTTL.set(&cfg.Tokens.RefreshTTL)
	t.Leeway.set(&cfg.Tokens.Leeway)
	setString(&cfg.Tokens.SigningMethod, strings.ToLower(t.SigningMethod))
	setString(&cfg.Tokens.Issuer, t.Issuer)
	setString(&cfg.Tokens.Audience, t.Audience)
	setString(&cfg.Tokens.KeyID, t.KeyID)
	if t.Secret != "" {
		cfg.Tokens.PrivateKey = []byte(t.Secret)
	}
	if t.PrivateKeyFile != "" {
		key, err := os.ReadFile(t.PrivateKeyFile)
		if err != nil {
			return fmt.Errorf("%w: private key: %v", ErrInvalidConfig, err)
		}
		cfg.Tokens.PrivateKey = key
	}
	if t.PublicKeyFile != "" {
		key, err := os.ReadFile(t.PublicKeyFile)
		if err != nil {
			return fmt.Errorf("%w: public key: %v", ErrInvalidConfig, err)
		}
		cfg.Tokens.PublicKey = key
	}

	p := fc.Password
	setString(&cfg.Password.Algorithm, strings.ToLower(p.Algorithm))
	if p.Memory > 0 {
		cfg.Password.Memory = p.Memory
	}
	if p.Time > 0 {
		cfg.Password.Time = p.Time
	}
	if p.Parallelism > 0 {
		cfg.Password.Parallelism = p.Parallelism
	}
	setInt(&cfg.Password.BcryptCost, p.BcryptCost)
	setInt(&cfg.Password.Workers, p.Workers)
	setInt(&cfg.Password.MinLength, p.MinLength)
	setInt(&cfg.Password.MaxLength, p.MaxLength)
	if p.UpgradeOnLogin != nil {
		cfg.Password.UpgradeOnLogin = *p.UpgradeOnLogin
	}

	fc.Cache.TTL.set(&cfg.Cache.TTL)
	fc.Cache.SweepInterval.set(&cfg.Cache.SweepInterval)
	setInt(&cfg.Cache.MaxEntries, fc.Cache.MaxEntries)

	setString(&cfg.TOTP.Issuer, fc.TOTP.Issuer)
	setInt(&cfg.TOTP.Digits, fc.TOTP.Digits)
	setString(&cfg.TOTP.Algorithm, strings.ToUpper(fc.TOTP.Algorithm))
	if fc.TOTP.Skew != nil {
		cfg.TOTP.Skew = *fc.TOTP.Skew
	}
	setInt(&cfg.TOTP.MaxAttempts, fc.TOTP.MaxAttempts)
	fc.TOTP.Cooldown.set(&cfg.TOTP.Cooldown)

	fc.MFA.PendingTTL.set(&cfg.MFA.PendingTTL)
	setString(&cfg.MFA.RedisPrefix, fc.MFA.RedisPrefix)

	fc.OneTimeTokens.InvitationTTL.set(&cfg.OneTimeTokens.InvitationTTL)
	fc.OneTimeTokens.ResetTTL.set(&cfg.OneTimeTokens.ResetTTL)

	setInt(&cfg.Login.MaxAttempts, fc.Login.MaxAttempts)
	fc.Login.Cooldown.set(&cfg.Login.Cooldown)
	if fc.Login.EnableIPThrottle != nil {
		cfg.Login.EnableIPThrottle = *fc.Login.EnableIPThrottle
	}

	fc.ForgotPassword.Every.set(&cfg.ForgotPassword.Every)
	setInt(&cfg.ForgotPassword.Burst, fc.ForgotPassword.Burst)
	fc.ForgotPassword.IdleTTL.set(&cfg.ForgotPassword.IdleTTL)

	setString(&cfg.Redis.Addr, fc.Redis.Addr)
	setString(&cfg.Redis.Password, fc.Redis.Password)
	setInt(&cfg.Redis.DB, fc.Redis.DB)

	if fc.Audit.Enabled {
		cfg.Audit.Enabled = true
	}
	setInt(&cfg.Audit.BufferSize, fc.Audit.BufferSize)
	if fc.Audit.DropIfFull != nil {
		cfg.Audit.DropIfFull = *fc.Audit.DropIfFull
	}

	if fc.Metrics.Enabled {
		cfg.Metrics.Enabled = true
	}
	if fc.Metrics.EnableLatencyHistograms {
		cfg.Metrics.EnableLatencyHistograms = true
	}
	return nil
}

// ApplyEnvOverrides applies environment variable overrides to the config.
//
//   - POA_AUTH_ISSUER: overrides tokens.issuer and totp.issuer
//   - POA_AUTH_ACCESS_TTL, POA_AUTH_REFRESH_TTL: token lifetimes
//   - POA_AUTH_HS256_SECRET: switches signing to hs256 with this secret
//   - POA_AUTH_REDIS_ADDR, POA_AUTH_REDIS_PASSWORD: redis connection
//   - POA_AUTH_AUDIT, POA_AUTH_METRICS: "1" or "true" to enable
//
// Unparseable values are ignored.
func (c *Config) ApplyEnvOverrides() {
	if issuer := os.Getenv("POA_AUTH_ISSUER"); issuer != "" {
		c.Tokens.Issuer = issuer
		c.TOTP.Issuer = issuer
	}

	if v := os.Getenv("POA_AUTH_ACCESS_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			c.Tokens.AccessTTL = d
		}
	}
	if v := os.Getenv("POA_AUTH_REFRESH_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			c.Tokens.RefreshTTL = d
		}
	}

	if secret := os.Getenv("POA_AUTH_HS256_SECRET"); secret != "" {
		c.Tokens.SigningMethod = "hs256"
		c.Tokens.PrivateKey = []byte(secret)
		c.Tokens.PublicKey = nil
	}

	if addr := os.Getenv("POA_AUTH_REDIS_ADDR"); addr != "" {
		c.Redis.Addr = addr
	}
	if pw := os.Getenv("POA_AUTH_REDIS_PASSWORD"); pw != "" {
		c.Redis.Password = pw
	}

	if v := os.Getenv("POA_AUTH_AUDIT"); v != "" {
		c.Audit.Enabled = envBool(v)
	}
	if v := os.Getenv("POA_AUTH_METRICS"); v != "" {
		c.Metrics.Enabled = envBool(v)
	}
}

func envBool(v string) bool {
	b, err := strconv.ParseBool(strings.TrimSpace(v))
	return err == nil && b
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setInt(dst *int, v int) {
	if v > 0 {
		*dst = v
	}
}
