package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "auth.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadConfigDefaultsWithoutFile(t *testing.T) {
	_, srv, err := loadConfig("")
	require.NoError(t, err)
	assert.Equal(t, ":8080", srv.Addr)
	assert.Equal(t, "memory", srv.Store)
	assert.Equal(t, 10*time.Second, srv.ShutdownTimeout)
}

func TestLoadConfigReadsServerTable(t *testing.T) {
	path := writeConfig(t, `
[tokens]
signing_method = "hs256"
secret = "`+strings.Repeat("x", 32)+`"
access_ttl = "10m"

[server]
addr = "127.0.0.1:9000"
store = "postgres"
dsn = "postgres://poa@localhost/poa"
migrate = true
request_every = "250ms"
request_burst = 5
shutdown_timeout = "3s"
`)

	cfg, srv, err := loadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 10*time.Minute, cfg.Tokens.AccessTTL)
	assert.Equal(t, "127.0.0.1:9000", srv.Addr)
	assert.Equal(t, "postgres", srv.Store)
	assert.True(t, srv.Migrate)
	assert.Equal(t, 250*time.Millisecond, srv.RequestEvery)
	assert.Equal(t, 5, srv.RequestBurst)
	assert.Equal(t, 3*time.Second, srv.ShutdownTimeout)
}

func TestLoadConfigEnvOverrides(t *testing.T) {
	t.Setenv("POA_AUTHD_ADDR", ":7000")
	t.Setenv("POA_AUTHD_DSN", "postgres://env@localhost/poa")
	t.Setenv("POA_AUTH_REDIS_ADDR", "redis:6379")

	cfg, srv, err := loadConfig("")
	require.NoError(t, err)
	assert.Equal(t, ":7000", srv.Addr)
	assert.Equal(t, "postgres", srv.Store)
	assert.Equal(t, "postgres://env@localhost/poa", srv.DSN)
	assert.Equal(t, "redis:6379", cfg.Redis.Addr)
}

func TestLoadConfigRejects(t *testing.T) {
	tests := map[string]string{
		"unknown store":   "[server]\nstore = \"sqlite\"\n",
		"postgres no dsn": "[server]\nstore = \"postgres\"\n",
		"bad duration":    "[server]\nrequest_every = \"soon\"\n",
	}
	for name, body := range tests {
		t.Run(name, func(t *testing.T) {
			_, _, err := loadConfig(writeConfig(t, body))
			assert.Error(t, err)
		})
	}
}
