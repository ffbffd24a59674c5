// Command poa-authd serves the credential and session engine over HTTP.
//
// Usage:
//
//	poa-authd -config /etc/poa/auth.toml
//
// The TOML file carries the engine sections read by poaAuth.LoadConfigFile
// plus a [server] table for this daemon. POA_AUTH_* and POA_AUTHD_*
// environment variables override the file. Without a Redis address the daemon
// starts an embedded miniredis, which is only suitable for development.
package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	poaAuth "github.com/lucaaxano/poa-app-sub000"
	"github.com/lucaaxano/poa-app-sub000/internal/httpapi"
	"github.com/lucaaxano/poa-app-sub000/metrics/export/prometheus"
	"github.com/lucaaxano/poa-app-sub000/store"
	"github.com/lucaaxano/poa-app-sub000/store/memstore"
	"github.com/lucaaxano/poa-app-sub000/store/pgstore"
)

func main() {
	configPath := flag.String("config", os.Getenv("POA_AUTHD_CONFIG"), "path to the TOML config file")
	flag.Parse()

	logger := log.New(os.Stderr, "poa-authd ", log.LstdFlags|log.LUTC)
	if err := run(*configPath, logger); err != nil {
		logger.Fatalf("fatal: %v", err)
	}
}

func run(configPath string, logger *log.Logger) error {
	cfg, srv, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, closeStore, err := openStore(ctx, srv, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	rdb, closeRedis, err := openRedis(cfg, logger)
	if err != nil {
		return err
	}
	defer closeRedis()

	builder := poaAuth.New().
		WithConfig(cfg).
		WithStore(st).
		WithRedis(rdb).
		WithNotifier(newWebhookNotifier(srv.NotifyURL, logger))
	if cfg.Audit.Enabled {
		builder = builder.WithAuditSink(poaAuth.NewJSONWriterSink(os.Stdout))
	}
	engine, err := builder.Build()
	if err != nil {
		return err
	}
	defer engine.Close()

	opts := httpapi.Options{
		Logger:            logger,
		RequestEvery:      srv.RequestEvery,
		RequestBurst:      srv.RequestBurst,
		TrustForwardedFor: srv.TrustForwardedFor,
	}
	if cfg.Metrics.Enabled {
		opts.Metrics = prometheus.NewPrometheusExporter(engine).Handler()
	}

	server := &http.Server{
		Addr:              srv.Addr,
		Handler:           httpapi.NewRouter(engine, opts),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Printf("listening on %s (store=%s)", srv.Addr, srv.Store)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Printf("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), srv.ShutdownTimeout)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

func openStore(ctx context.Context, srv serverConfig, logger *log.Logger) (store.Store, func(), error) {
	if srv.Store != "postgres" {
		logger.Printf("using in-memory store; data is lost on exit")
		return memstore.New(), func() {}, nil
	}

	pg, err := pgstore.Open(srv.DSN)
	if err != nil {
		return nil, nil, err
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pg.DB().PingContext(pingCtx); err != nil {
		_ = pg.Close()
		return nil, nil, err
	}
	if srv.Migrate {
		if err := pg.Migrate(ctx); err != nil {
			_ = pg.Close()
			return nil, nil, err
		}
	}
	return pg, func() { _ = pg.Close() }, nil
}

func openRedis(cfg poaAuth.Config, logger *log.Logger) (redis.UniversalClient, func(), error) {
	if cfg.Redis.Addr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		return client, func() { _ = client.Close() }, nil
	}

	mr, err := miniredis.Run()
	if err != nil {
		return nil, nil, err
	}
	logger.Printf("no redis configured; using embedded miniredis at %s", mr.Addr())
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return client, func() {
		_ = client.Close()
		mr.Close()
	}, nil
}
