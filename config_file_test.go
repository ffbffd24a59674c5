package poaAuth

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()

	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestLoadConfigFileOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "poa.toml", `
[server]
listen = ":8080"

[tokens]
signing_method = "HS256"
secret = "0123456789abcdef0123456789abcdef"
access_ttl = "10m"
refresh_ttl = "48h"
issuer = "poa-test"

[password]
algorithm = "bcrypt"
bcrypt_cost = 10
max_length = 72
upgrade_on_login = false

[totp]
digits = 8
algorithm = "sha256"
skew = 0

[login]
max_attempts = 7
enable_ip_throttle = true

[one_time_tokens]
reset_ttl = "30m"

[audit]
enabled = true
drop_if_full = false
`)

	cfg, err := LoadConfigFile(path)
	if err != nil {
		t.Fatalf("LoadConfigFile failed: %v", err)
	}
	if cfg.Tokens.SigningMethod != "hs256" || string(cfg.Tokens.PrivateKey) != "0123456789abcdef0123456789abcdef" {
		t.Fatalf("unexpected token config %+v", cfg.Tokens)
	}
	if cfg.Tokens.AccessTTL != 10*time.Minute || cfg.Tokens.RefreshTTL != 48*time.Hour {
		t.Fatalf("unexpected lifetimes %v / %v", cfg.Tokens.AccessTTL, cfg.Tokens.RefreshTTL)
	}
	if cfg.Password.Algorithm != "bcrypt" || cfg.Password.BcryptCost != 10 || cfg.Password.UpgradeOnLogin {
		t.Fatalf("unexpected password config %+v", cfg.Password)
	}
	if cfg.TOTP.Digits != 8 || cfg.TOTP.Algorithm != "SHA256" || cfg.TOTP.Skew != 0 {
		t.Fatalf("unexpected totp config %+v", cfg.TOTP)
	}
	if cfg.Login.MaxAttempts != 7 || !cfg.Login.EnableIPThrottle {
		t.Fatalf("unexpected login config %+v", cfg.Login)
	}
	if cfg.OneTimeTokens.ResetTTL != 30*time.Minute || cfg.OneTimeTokens.InvitationTTL != 7*24*time.Hour {
		t.Fatalf("unexpected one-time token config %+v", cfg.OneTimeTokens)
	}
	if !cfg.Audit.Enabled || cfg.Audit.DropIfFull {
		t.Fatalf("unexpected audit config %+v", cfg.Audit)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected loaded config to validate, got %v", err)
	}
}

func TestLoadConfigFileReadsKeyFiles(t *testing.T) {
	dir := t.TempDir()
	priv := writeFile(t, dir, "ed.key", "private-bytes")
	pub := writeFile(t, dir, "ed.pub", "public-bytes")
	path := writeFile(t, dir, "poa.toml", `
[tokens]
private_key_file = "`+filepath.ToSlash(priv)+`"
public_key_file = "`+filepath.ToSlash(pub)+`"
`)

	cfg, err := LoadConfigFile(path)
	if err != nil {
		t.Fatalf("LoadConfigFile failed: %v", err)
	}
	if string(cfg.Tokens.PrivateKey) != "private-bytes" || string(cfg.Tokens.PublicKey) != "public-bytes" {
		t.Fatalf("unexpected keys %q / %q", cfg.Tokens.PrivateKey, cfg.Tokens.PublicKey)
	}
}

func TestLoadConfigFileErrors(t *testing.T) {
	dir := t.TempDir()

	if _, err := LoadConfigFile(filepath.Join(dir, "missing.toml")); !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("missing file: expected ErrInvalidConfig, got %v", err)
	}

	bad := writeFile(t, dir, "bad.toml", "[tokens]\naccess_ttl = \"soon\"\n")
	if _, err := LoadConfigFile(bad); !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("bad duration: expected ErrInvalidConfig, got %v", err)
	}

	missingKey := writeFile(t, dir, "key.toml", "[tokens]\nprivate_key_file = \"/nonexistent/key\"\n")
	if _, err := LoadConfigFile(missingKey); !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("missing key: expected ErrInvalidConfig, got %v", err)
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	t.Setenv("POA_AUTH_ISSUER", "env-issuer")
	t.Setenv("POA_AUTH_ACCESS_TTL", "3m")
	t.Setenv("POA_AUTH_REFRESH_TTL", "not-a-duration")
	t.Setenv("POA_AUTH_HS256_SECRET", "env-secret-env-secret-env-secret")
	t.Setenv("POA_AUTH_REDIS_ADDR", "redis:6379")
	t.Setenv("POA_AUTH_AUDIT", "true")
	t.Setenv("POA_AUTH_METRICS", "0")

	cfg := DefaultConfig()
	cfg.Metrics.Enabled = true
	cfg.ApplyEnvOverrides()

	if cfg.Tokens.Issuer != "env-issuer" || cfg.TOTP.Issuer != "env-issuer" {
		t.Fatalf("unexpected issuers %q / %q", cfg.Tokens.Issuer, cfg.TOTP.Issuer)
	}
	if cfg.Tokens.AccessTTL != 3*time.Minute {
		t.Fatalf("expected 3m access ttl, got %v", cfg.Tokens.AccessTTL)
	}
	if cfg.Tokens.RefreshTTL != DefaultConfig().Tokens.RefreshTTL {
		t.Fatalf("expected unparseable refresh ttl ignored, got %v", cfg.Tokens.RefreshTTL)
	}
	if cfg.Tokens.SigningMethod != "hs256" || cfg.Tokens.PublicKey != nil {
		t.Fatalf("expected hs256 switch, got %+v", cfg.Tokens)
	}
	if cfg.Redis.Addr != "redis:6379" || !cfg.Audit.Enabled || cfg.Metrics.Enabled {
		t.Fatalf("unexpected overrides %+v %+v %+v", cfg.Redis, cfg.Audit, cfg.Metrics)
	}
}
