package authcore

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/MrEthical07/authcore/jwt"
	"github.com/MrEthical07/authcore/password"
)

// Config is the complete engine configuration. Start from DefaultConfig and
// override what you need; Build validates the result.
type Config struct {
	Tokens   TokensConfig
	Session  SessionConfig
	Codes    CodesConfig
	MFA      MFAConfig
	Password PasswordConfig
	App      AppConfig
	Security SecurityConfig
	Audit    AuditConfig
	Metrics  MetricsConfig
}

/*
====================================
TOKENS CONFIG
====================================
*/

// TokensConfig configures the two token classes. Lifetimes use the
// "15m" / "12h" / "30d" format.
type TokensConfig struct {
	AccessSecret    string
	AccessLifetime  string
	AccessAudience  string
	RefreshSecret   string
	RefreshLifetime string
	RefreshAudience string
	Issuer          string
}

/*
====================================
SESSION CONFIG
====================================
*/

// SessionConfig configures the Redis session ledger. The session lifetime
// always equals the refresh token lifetime.
type SessionConfig struct {
	RedisPrefix      string
	RenewalThreshold time.Duration
}

/*
====================================
ONE-TIME CODE CONFIG
====================================
*/

// RateLimit caps issuance to Max per trailing Window. Max <= 0 disables it.
type RateLimit struct {
	Max    int
	Window time.Duration
}

type CodesConfig struct {
	RedisPrefix               string
	EmailVerificationLifetime time.Duration
	EmailVerificationLimit    RateLimit
	PasswordResetLifetime     time.Duration
	PasswordResetLimit        RateLimit
}

/*
====================================
MFA CONFIG
====================================
*/

type MFAConfig struct {
	Issuer           string
	QRSize           int
	LoginMaxAttempts int
	LoginWindow      time.Duration
}

/*
====================================
PASSWORD CONFIG
====================================
*/

// PasswordConfig selects the hashing scheme for new hashes and the length
// policy applied on register and reset. Lengths count bytes.
type PasswordConfig struct {
	Algorithm   string // "argon2id" (default) or "bcrypt"
	Memory      uint32
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
	BcryptCost  int

	MinLength      int
	MaxLength      int
	UpgradeOnLogin bool
}

/*
====================================
APP CONFIG
====================================
*/

// AppConfig describes the deployment. Origin prefixes the links embedded in
// notifications and BasePath scopes the refresh cookie.
type AppConfig struct {
	Origin     string
	BasePath   string
	Production bool
}

/*
====================================
SECURITY CONFIG
====================================
*/

type SecurityConfig struct {
	// StrictRefreshRotation rejects refresh tokens whose generation is behind
	// the session and revokes that session.
	StrictRefreshRotation bool
	// RevealUnknownEmail makes ForgotPassword return ErrUserNotFound for
	// unknown addresses instead of a silent success.
	RevealUnknownEmail   bool
	RequireVerifiedEmail bool

	// LoginMaxFailures <= 0 disables the failed-login throttle.
	LoginMaxFailures   int
	LoginFailureWindow time.Duration
	EnableIPThrottle   bool
}

/*
====================================
OBSERVABILITY CONFIG
====================================
*/

type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

/*
====================================
DEFAULT CONFIG
====================================
*/

// DefaultConfig returns the defaults. Token secrets are left empty and must
// be provided.
func DefaultConfig() Config {
	argon := password.DefaultConfig()
	return Config{
		Tokens: TokensConfig{
			AccessLifetime:  "15m",
			AccessAudience:  "user",
			RefreshLifetime: "30d",
			RefreshAudience: "user",
		},
		Session: SessionConfig{
			RedisPrefix:      "as",
			RenewalThreshold: 24 * time.Hour,
		},
		Codes: CodesConfig{
			RedisPrefix:               "aoc",
			EmailVerificationLifetime: 45 * time.Minute,
			PasswordResetLifetime:     time.Hour,
			PasswordResetLimit: RateLimit{
				Max:    3,
				Window: 10 * time.Minute,
			},
		},
		MFA: MFAConfig{
			Issuer:           "Secure-Auth",
			QRSize:           200,
			LoginMaxAttempts: 5,
			LoginWindow:      5 * time.Minute,
		},
		Password: PasswordConfig{
			Algorithm:      string(password.AlgorithmArgon2id),
			Memory:         argon.Memory,
			Time:           argon.Time,
			Parallelism:    argon.Parallelism,
			SaltLength:     argon.SaltLength,
			KeyLength:      argon.KeyLength,
			BcryptCost:     password.DefaultBcryptCost,
			MinLength:      6,
			MaxLength:      255,
			UpgradeOnLogin: true,
		},
		App: AppConfig{
			Origin:   "http://localhost:3000",
			BasePath: "/api/v1",
		},
		Security: SecurityConfig{
			LoginFailureWindow: 15 * time.Minute,
		},
		Audit: AuditConfig{
			BufferSize: 1024,
			DropIfFull: true,
		},
	}
}

const productionMinSecretBytes = 32

/*
====================================
VALIDATION
====================================
*/

// Validate rejects incomplete or unsafe configurations.
func (c *Config) Validate() error {
	// Tokens
	if c.Tokens.AccessSecret == "" || c.Tokens.RefreshSecret == "" {
		return errors.New("Tokens AccessSecret and RefreshSecret are required")
	}
	if c.Tokens.AccessSecret == c.Tokens.RefreshSecret {
		return errors.New("Tokens AccessSecret and RefreshSecret must differ")
	}
	if c.App.Production && (len(c.Tokens.AccessSecret) < productionMinSecretBytes || len(c.Tokens.RefreshSecret) < productionMinSecretBytes) {
		return fmt.Errorf("Tokens secrets must be at least %d bytes in production", productionMinSecretBytes)
	}
	if _, err := jwt.ParseLifetime(c.Tokens.AccessLifetime); err != nil {
		return fmt.Errorf("Tokens AccessLifetime: %w", err)
	}
	refreshLifetime, err := jwt.ParseLifetime(c.Tokens.RefreshLifetime)
	if err != nil {
		return fmt.Errorf("Tokens RefreshLifetime: %w", err)
	}
	if c.Tokens.AccessAudience == "" || c.Tokens.RefreshAudience == "" {
		return errors.New("Tokens audiences must not be empty")
	}

	// Session
	if c.Session.RenewalThreshold <= 0 {
		return errors.New("Session RenewalThreshold must be > 0")
	}
	if c.Session.RenewalThreshold >= refreshLifetime {
		return errors.New("Session RenewalThreshold must be shorter than the refresh lifetime")
	}

	// Codes
	if c.Codes.EmailVerificationLifetime <= 0 || c.Codes.PasswordResetLifetime <= 0 {
		return errors.New("Codes lifetimes must be > 0")
	}
	if err := c.Codes.EmailVerificationLimit.validate("Codes EmailVerificationLimit"); err != nil {
		return err
	}
	if err := c.Codes.PasswordResetLimit.validate("Codes PasswordResetLimit"); err != nil {
		return err
	}

	// MFA
	if c.MFA.LoginMaxAttempts <= 0 || c.MFA.LoginWindow <= 0 {
		return errors.New("MFA LoginMaxAttempts and LoginWindow must be > 0")
	}
	if c.MFA.QRSize < 0 {
		return errors.New("MFA QRSize must be >= 0")
	}

	// Password
	switch password.Algorithm(c.Password.Algorithm) {
	case password.AlgorithmArgon2id, password.AlgorithmBcrypt:
	default:
		return fmt.Errorf("unsupported password algorithm %q", c.Password.Algorithm)
	}
	if c.Password.MinLength < 1 {
		return errors.New("Password MinLength must be >= 1")
	}
	if c.Password.MaxLength < c.Password.MinLength {
		return errors.New("Password MaxLength must be >= MinLength")
	}
	if c.Password.MaxLength > password.DefaultMaxPasswordBytes {
		return fmt.Errorf("Password MaxLength must be <= %d", password.DefaultMaxPasswordBytes)
	}

	// App
	origin, err := url.Parse(c.App.Origin)
	if err != nil || origin.Scheme == "" || origin.Host == "" {
		return errors.New("App Origin must be an absolute URL")
	}
	if c.App.Production && origin.Scheme != "https" {
		return errors.New("App Origin must use https in production")
	}
	if !strings.HasPrefix(c.App.BasePath, "/") {
		return errors.New("App BasePath must start with /")
	}

	// Security
	if c.Security.LoginMaxFailures > 0 && c.Security.LoginFailureWindow <= 0 {
		return errors.New("Security LoginFailureWindow must be > 0 when LoginMaxFailures is set")
	}

	// Audit
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0 when enabled")
	}

	return nil
}

func (l RateLimit) validate(name string) error {
	if l.Max < 0 {
		return fmt.Errorf("%s Max must be >= 0", name)
	}
	if l.Max > 0 && l.Window <= 0 {
		return fmt.Errorf("%s Window must be > 0 when Max is set", name)
	}
	return nil
}

func (c *Config) hasherConfig() password.HasherConfig {
	return password.HasherConfig{
		Algorithm: password.Algorithm(c.Password.Algorithm),
		Argon2: password.Config{
			Memory:           c.Password.Memory,
			Time:             c.Password.Time,
			Parallelism:      c.Password.Parallelism,
			SaltLength:       c.Password.SaltLength,
			KeyLength:        c.Password.KeyLength,
			MaxPasswordBytes: password.DefaultMaxPasswordBytes,
		},
		BcryptCost: c.Password.BcryptCost,
	}
}

// RefreshCookiePath is the path the refresh cookie is scoped to.
func (c *Config) RefreshCookiePath() string {
	return strings.TrimSuffix(c.App.BasePath, "/") + "/auth/refresh"
}
