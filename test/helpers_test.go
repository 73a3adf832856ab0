//go:build integration

// Package test holds end-to-end checks of the engine against real
// backends. Sessions use REDIS_ADDR when set and miniredis otherwise; users
// use DATABASE_DSN (PostgreSQL) when set and a temporary SQLite file
// otherwise.
//
//	go test -tags integration ./test/...
package test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/MrEthical07/authcore"
	"github.com/MrEthical07/authcore/userstore/gormstore"
	"github.com/MrEthical07/authcore/userstore/postgres"
	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const integrationPassword = "integration-password-1"

type env struct {
	engine *authcore.Engine
	rdb    *redis.Client
	prefix string
}

func newEnv(t *testing.T, mutate func(*authcore.Config)) *env {
	t.Helper()

	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		addr = miniredis.RunT(t).Addr()
	}
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { _ = rdb.Close() })

	users := openUsers(t)

	// A per-test prefix keeps runs against a shared Redis apart.
	prefix := "it" + strings.ReplaceAll(uuid.NewString(), "-", "")[:8]

	cfg := authcore.DefaultConfig()
	cfg.Tokens.AccessSecret = "integration-access-secret-0123456789"
	cfg.Tokens.RefreshSecret = "integration-refresh-secret-0123456789"
	cfg.Password.Algorithm = "bcrypt"
	cfg.Password.BcryptCost = 4
	cfg.Session.RedisPrefix = prefix
	cfg.Codes.RedisPrefix = prefix + "c"
	cfg.Metrics.Enabled = true
	if mutate != nil {
		mutate(&cfg)
	}

	engine, err := authcore.New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithUserStore(users).
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	t.Cleanup(engine.Close)

	return &env{engine: engine, rdb: rdb, prefix: prefix}
}

func openUsers(t *testing.T) authcore.UserStore {
	t.Helper()

	if dsn := os.Getenv("DATABASE_DSN"); dsn != "" {
		store, err := postgres.Open(context.Background(), dsn)
		if err != nil {
			t.Fatalf("postgres.Open failed: %v", err)
		}
		t.Cleanup(func() { _ = store.Close() })
		return store
	}

	store, err := gormstore.OpenSQLite(filepath.Join(t.TempDir(), "users.db"))
	if err != nil {
		t.Fatalf("OpenSQLite failed: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func uniqueEmail() string {
	return "it-" + uuid.NewString() + "@example.com"
}

// registerAndLogin creates a fresh user and returns it with one session.
func (e *env) registerAndLogin(t *testing.T) (*authcore.User, *authcore.TokenPair) {
	t.Helper()
	ctx := context.Background()

	email := uniqueEmail()
	user, err := e.engine.Register(ctx, authcore.RegisterInput{Name: "Integration", Email: email, Password: integrationPassword})
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	res, err := e.engine.Login(ctx, email, integrationPassword, "integration-test")
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	if res.Tokens == nil {
		t.Fatal("expected tokens from Login")
	}
	return user, res.Tokens
}

// sessionKeys lists the session blobs under this env's prefix.
func (e *env) sessionKeys(t *testing.T) []string {
	t.Helper()
	keys, err := e.rdb.Keys(context.Background(), e.prefix+":*").Result()
	if err != nil {
		t.Fatalf("KEYS failed: %v", err)
	}
	return keys
}
