package main

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"

	poaAuth "github.com/lucaaxano/poa-app-sub000"
)

// serverConfig is the daemon's own [server] table. The engine sections of
// the same file are read by poaAuth.LoadConfigFile.
type serverConfig struct {
	Addr              string        `toml:"addr"`
	Store             string        `toml:"store"`
	DSN               string        `toml:"dsn"`
	Migrate           bool          `toml:"migrate"`
	RequestEvery      time.Duration `toml:"-"`
	RequestBurst      int           `toml:"request_burst"`
	TrustForwardedFor bool          `toml:"trust_forwarded_for"`
	NotifyURL         string        `toml:"notify_url"`
	ShutdownTimeout   time.Duration `toml:"-"`

	RawRequestEvery    string `toml:"request_every"`
	RawShutdownTimeout string `toml:"shutdown_timeout"`
}

func defaultServerConfig() serverConfig {
	return serverConfig{
		Addr:            ":8080",
		Store:           "memory",
		RequestEvery:    100 * time.Millisecond,
		RequestBurst:    20,
		ShutdownTimeout: 10 * time.Second,
	}
}

// loadConfig reads path (when set), then applies POA_AUTH_* overrides.
func loadConfig(path string) (poaAuth.Config, serverConfig, error) {
	cfg := poaAuth.DefaultConfig()
	srv := defaultServerConfig()

	if path != "" {
		var err error
		cfg, err = poaAuth.LoadConfigFile(path)
		if err != nil {
			return cfg, srv, err
		}

		var file struct {
			Server serverConfig `toml:"server"`
		}
		file.Server = srv
		if _, err := toml.DecodeFile(path, &file); err != nil {
			return cfg, srv, fmt.Errorf("decode %s: %w", path, err)
		}
		srv = file.Server
		if err := srv.parseDurations(); err != nil {
			return cfg, srv, err
		}
	}

	cfg.ApplyEnvOverrides()
	srv.applyEnv()

	if err := srv.validate(); err != nil {
		return cfg, srv, err
	}
	return cfg, srv, nil
}

func (s *serverConfig) parseDurations() error {
	if s.RawRequestEvery != "" {
		d, err := time.ParseDuration(s.RawRequestEvery)
		if err != nil {
			return fmt.Errorf("server.request_every: %w", err)
		}
		s.RequestEvery = d
	}
	if s.RawShutdownTimeout != "" {
		d, err := time.ParseDuration(s.RawShutdownTimeout)
		if err != nil {
			return fmt.Errorf("server.shutdown_timeout: %w", err)
		}
		s.ShutdownTimeout = d
	}
	return nil
}

func (s *serverConfig) applyEnv() {
	if v := os.Getenv("POA_AUTHD_ADDR"); v != "" {
		s.Addr = v
	}
	if v := os.Getenv("POA_AUTHD_DSN"); v != "" {
		s.Store = "postgres"
		s.DSN = v
	}
	if v := os.Getenv("POA_AUTHD_REQUEST_BURST"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			s.RequestBurst = n
		}
	}
	if v := os.Getenv("POA_AUTHD_NOTIFY_URL"); v != "" {
		s.NotifyURL = v
	}
}

func (s serverConfig) validate() error {
	switch s.Store {
	case "memory":
	case "postgres":
		if s.DSN == "" {
			return fmt.Errorf("server.dsn is required for the postgres store")
		}
	default:
		return fmt.Errorf("server.store must be memory or postgres, got %q", s.Store)
	}
	if s.Addr == "" {
		return fmt.Errorf("server.addr is required")
	}
	return nil
}
