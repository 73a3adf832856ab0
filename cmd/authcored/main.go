// Command authcored serves the authcore HTTP API.
//
// Configuration is layered: built-in defaults, an optional JSON file
// (-config or AUTHCORE_CONFIG), environment variables, then flags. Users
// live in PostgreSQL when DATABASE_DSN is set and in SQLite otherwise.
// Sessions and one-time codes always live in Redis.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/MrEthical07/authcore"
	"github.com/MrEthical07/authcore/httpapi"
	"github.com/MrEthical07/authcore/identity"
	"github.com/MrEthical07/authcore/metrics/export/prometheus"
	"github.com/MrEthical07/authcore/userstore/gormstore"
	"github.com/MrEthical07/authcore/userstore/postgres"
	"github.com/redis/go-redis/v9"
)

const shutdownTimeout = 10 * time.Second

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Getenv, os.Stdout); err != nil {
		slog.Error("authcored stopped", "error", err)
		os.Exit(1)
	}
}

type userStore interface {
	identity.Store
	io.Closer
}

func run(ctx context.Context, args []string, getenv func(string) string, stdout io.Writer) error {
	cfg, err := loadConfig(args, getenv)
	if err != nil {
		return err
	}

	logger := slog.New(slog.NewJSONHandler(stdout, &slog.HandlerOptions{Level: cfg.LogLevel}))
	slog.SetDefault(logger)

	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return fmt.Errorf("parse redis url: %w", err)
	}
	rdb := redis.NewClient(redisOpts)
	defer rdb.Close()

	users, err := openUserStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer users.Close()

	engine, err := authcore.New().
		WithConfig(cfg.Auth).
		WithRedis(rdb).
		WithUserStore(users).
		WithLogger(logger).
		WithAuditSink(authcore.NewLoggerSink(logger.With("source", "audit"))).
		Build()
	if err != nil {
		return fmt.Errorf("build engine: %w", err)
	}
	defer engine.Close()

	opts := httpapi.OptionsFromConfig(cfg.Auth)
	opts.TrustProxy = cfg.TrustProxy
	opts.Logger = logger.With("source", "http")

	mux := http.NewServeMux()
	if cfg.MetricsPath != "" {
		mux.Handle(cfg.MetricsPath, prometheus.New(engine).Handler())
	}
	mux.Handle("/", httpapi.New(engine, opts))

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", cfg.Addr, "basePath", cfg.Auth.App.BasePath, "production", cfg.Auth.App.Production)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("listen: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

func openUserStore(ctx context.Context, cfg *serverConfig) (userStore, error) {
	if cfg.DatabaseDSN != "" {
		store, err := postgres.Open(ctx, cfg.DatabaseDSN)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		return store, nil
	}
	store, err := gormstore.OpenSQLite(cfg.SQLitePath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", cfg.SQLitePath, err)
	}
	return store, nil
}
