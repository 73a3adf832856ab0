package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/MrEthical07/authcore"
)

// serverConfig is the daemon configuration. Auth is passed to the engine
// as-is; the remaining fields wire the process around it.
type serverConfig struct {
	Addr        string
	RedisURL    string
	DatabaseDSN string
	SQLitePath  string
	TrustProxy  bool
	MetricsPath string
	LogLevel    slog.Level
	Auth        authcore.Config
}

func defaultServerConfig() serverConfig {
	auth := authcore.DefaultConfig()
	auth.Metrics.Enabled = true
	auth.Metrics.EnableLatencyHistograms = true
	auth.Audit.Enabled = true

	return serverConfig{
		Addr:        ":8000",
		RedisURL:    "redis://localhost:6379/0",
		SQLitePath:  "authcore.db",
		MetricsPath: "/metrics",
		LogLevel:    slog.LevelInfo,
		Auth:        auth,
	}
}

// fileConfig is the JSON file layout. Pointer fields distinguish "absent"
// from the zero value.
type fileConfig struct {
	Addr                  string  `json:"addr"`
	RedisURL              string  `json:"redis_url"`
	DatabaseDSN           string  `json:"database_dsn"`
	SQLitePath            string  `json:"sqlite_path"`
	MetricsPath           *string `json:"metrics_path"`
	LogLevel              string  `json:"log_level"`
	TrustProxy            *bool   `json:"trust_proxy"`
	JWTSecret             string  `json:"jwt_secret"`
	JWTExpiresIn          string  `json:"jwt_expires_in"`
	JWTRefreshSecret      string  `json:"jwt_refresh_secret"`
	JWTRefreshExpiresIn   string  `json:"jwt_refresh_expires_in"`
	JWTAudience           string  `json:"jwt_audience"`
	AppOrigin             string  `json:"app_origin"`
	BasePath              string  `json:"base_path"`
	Production            *bool   `json:"production"`
	StrictRefreshRotation *bool   `json:"strict_refresh_rotation"`
	RequireVerifiedEmail  *bool   `json:"require_verified_email"`
	RevealUnknownEmail    *bool   `json:"reveal_unknown_email"`
}

// loadConfig layers defaults, an optional JSON file, the environment and
// finally command-line flags. The JSON path comes from -config or
// AUTHCORE_CONFIG.
func loadConfig(args []string, getenv func(string) string) (*serverConfig, error) {
	cfg := defaultServerConfig()

	fs := flag.NewFlagSet("authcored", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	var (
		configPath  = fs.String("config", "", "path to a JSON config file")
		addr        = fs.String("addr", "", "listen address")
		redisURL    = fs.String("redis", "", "Redis URL")
		dsn         = fs.String("dsn", "", "PostgreSQL DSN; empty uses SQLite")
		sqlitePath  = fs.String("sqlite", "", "SQLite database path")
		origin      = fs.String("origin", "", "frontend origin used in links and CORS")
		basePath    = fs.String("base-path", "", "API base path")
		metricsPath = fs.String("metrics-path", "", "Prometheus endpoint path; \"off\" disables it")
		logLevel    = fs.String("log-level", "", "debug, info, warn or error")
		production  = fs.Bool("production", false, "production mode")
		trustProxy  = fs.Bool("trust-proxy", false, "take the client IP from X-Forwarded-For")
		strict      = fs.Bool("strict-refresh", false, "reject refresh tokens minted before the latest rotation")
	)
	if err := fs.Parse(args); err != nil {
		return nil, fmt.Errorf("parse flags: %w", err)
	}

	path := *configPath
	if path == "" {
		path = getenv("AUTHCORE_CONFIG")
	}
	if path != "" {
		if err := applyFile(&cfg, path); err != nil {
			return nil, err
		}
	}

	if err := applyEnv(&cfg, getenv); err != nil {
		return nil, err
	}

	var flagErr error
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "addr":
			cfg.Addr = *addr
		case "redis":
			cfg.RedisURL = *redisURL
		case "dsn":
			cfg.DatabaseDSN = *dsn
		case "sqlite":
			cfg.SQLitePath = *sqlitePath
		case "origin":
			cfg.Auth.App.Origin = *origin
		case "base-path":
			cfg.Auth.App.BasePath = *basePath
		case "metrics-path":
			cfg.MetricsPath = *metricsPath
		case "log-level":
			if err := cfg.LogLevel.UnmarshalText([]byte(*logLevel)); err != nil {
				flagErr = fmt.Errorf("-log-level: %w", err)
			}
		case "production":
			cfg.Auth.App.Production = *production
		case "trust-proxy":
			cfg.TrustProxy = *trustProxy
		case "strict-refresh":
			cfg.Auth.Security.StrictRefreshRotation = *strict
		}
	})
	if flagErr != nil {
		return nil, flagErr
	}

	if cfg.MetricsPath == "off" {
		cfg.MetricsPath = ""
	}
	return &cfg, nil
}

func applyFile(cfg *serverConfig, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	var fc fileConfig
	if err := json.Unmarshal(data, &fc); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}

	setString(&cfg.Addr, fc.Addr)
	setString(&cfg.RedisURL, fc.RedisURL)
	setString(&cfg.DatabaseDSN, fc.DatabaseDSN)
	setString(&cfg.SQLitePath, fc.SQLitePath)
	if fc.MetricsPath != nil {
		cfg.MetricsPath = *fc.MetricsPath
	}
	if fc.LogLevel != "" {
		if err := cfg.LogLevel.UnmarshalText([]byte(fc.LogLevel)); err != nil {
			return fmt.Errorf("config log_level: %w", err)
		}
	}
	setBool(&cfg.TrustProxy, fc.TrustProxy)

	a := &cfg.Auth
	setString(&a.Tokens.AccessSecret, fc.JWTSecret)
	setString(&a.Tokens.AccessLifetime, fc.JWTExpiresIn)
	setString(&a.Tokens.RefreshSecret, fc.JWTRefreshSecret)
	setString(&a.Tokens.RefreshLifetime, fc.JWTRefreshExpiresIn)
	setString(&a.Tokens.AccessAudience, fc.JWTAudience)
	setString(&a.Tokens.RefreshAudience, fc.JWTAudience)
	setString(&a.App.Origin, fc.AppOrigin)
	setString(&a.App.BasePath, fc.BasePath)
	setBool(&a.App.Production, fc.Production)
	setBool(&a.Security.StrictRefreshRotation, fc.StrictRefreshRotation)
	setBool(&a.Security.RequireVerifiedEmail, fc.RequireVerifiedEmail)
	setBool(&a.Security.RevealUnknownEmail, fc.RevealUnknownEmail)
	return nil
}

func applyEnv(cfg *serverConfig, getenv func(string) string) error {
	a := &cfg.Auth
	setString(&a.Tokens.AccessSecret, getenv("JWT_SECRET"))
	setString(&a.Tokens.AccessLifetime, getenv("JWT_EXPIRES_IN"))
	setString(&a.Tokens.RefreshSecret, getenv("JWT_REFRESH_SECRET"))
	setString(&a.Tokens.RefreshLifetime, getenv("JWT_REFRESH_EXPIRES_IN"))
	setString(&a.Tokens.AccessAudience, getenv("JWT_AUDIENCE"))
	setString(&a.Tokens.RefreshAudience, getenv("JWT_AUDIENCE"))
	setString(&a.App.Origin, getenv("APP_ORIGIN"))
	setString(&a.App.BasePath, getenv("BASE_PATH"))

	env := getenv("APP_ENV")
	if env == "" {
		env = getenv("NODE_ENV")
	}
	if env != "" {
		a.App.Production = strings.EqualFold(env, "production")
	}

	if port := getenv("PORT"); port != "" {
		cfg.Addr = ":" + port
	}
	setString(&cfg.RedisURL, getenv("REDIS_URL"))
	setString(&cfg.DatabaseDSN, getenv("DATABASE_DSN"))
	setString(&cfg.SQLitePath, getenv("SQLITE_PATH"))

	if lvl := getenv("LOG_LEVEL"); lvl != "" {
		if err := cfg.LogLevel.UnmarshalText([]byte(lvl)); err != nil {
			return fmt.Errorf("LOG_LEVEL: %w", err)
		}
	}
	return nil
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setBool(dst *bool, v *bool) {
	if v != nil {
		*dst = *v
	}
}
