package jwt

import (
	"bytes"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrTokenInvalid is the only error Verify returns. Expired, forged,
// malformed and wrong-audience tokens are deliberately indistinguishable.
var ErrTokenInvalid = errors.New("invalid token")

const minSecretBytes = 16

// Class selects the key material and audience used for a token.
type Class uint8

const (
	// ClassAccess signs short-lived tokens that authorize individual requests.
	ClassAccess Class = iota + 1
	// ClassRefresh signs long-lived tokens that only identify a session.
	ClassRefresh
)

func (c Class) String() string {
	switch c {
	case ClassAccess:
		return "access"
	case ClassRefresh:
		return "refresh"
	default:
		return "unknown"
	}
}

// ClassConfig holds the per-class signing settings. Lifetime uses the
// ParseLifetime format.
type ClassConfig struct {
	Secret   []byte
	Audience string
	Lifetime string
}

// Config configures a Codec.
type Config struct {
	Access  ClassConfig
	Refresh ClassConfig
	Issuer  string

	// Now overrides the clock used for iat/exp and validation. Defaults to time.Now.
	Now func() time.Time
}

// Claims is the payload carried by both token classes. UserID is only set
// on access tokens; Generation is only meaningful on refresh tokens.
type Claims struct {
	UserID     string `json:"userId,omitempty"`
	SessionID  string `json:"sessionId"`
	Generation uint32 `json:"gen,omitempty"`
	jwt.RegisteredClaims
}

type classSettings struct {
	secret   []byte
	audience string
	lifetime time.Duration
}

// Codec signs and verifies access and refresh tokens with HS256.
type Codec struct {
	access  classSettings
	refresh classSettings
	issuer  string
	now     func() time.Time
}

// NewCodec validates cfg and returns a ready Codec.
//
// NewCodec may return an error when a secret is missing or too short, when
// both classes share a secret, or when a lifetime string cannot be parsed.
func NewCodec(cfg Config) (*Codec, error) {
	access, err := newClassSettings(ClassAccess, cfg.Access)
	if err != nil {
		return nil, err
	}
	refresh, err := newClassSettings(ClassRefresh, cfg.Refresh)
	if err != nil {
		return nil, err
	}
	if bytes.Equal(access.secret, refresh.secret) {
		return nil, errors.New("access and refresh secrets must differ")
	}

	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	return &Codec{
		access:  access,
		refresh: refresh,
		issuer:  cfg.Issuer,
		now:     now,
	}, nil
}

func newClassSettings(class Class, cfg ClassConfig) (classSettings, error) {
	if len(cfg.Secret) < minSecretBytes {
		return classSettings{}, fmt.Errorf("%s secret must be at least %d bytes", class, minSecretBytes)
	}
	if cfg.Audience == "" {
		return classSettings{}, fmt.Errorf("%s audience is required", class)
	}
	lifetime, err := ParseLifetime(cfg.Lifetime)
	if err != nil {
		return classSettings{}, fmt.Errorf("%s lifetime: %w", class, err)
	}

	secret := make([]byte, len(cfg.Secret))
	copy(secret, cfg.Secret)

	return classSettings{
		secret:   secret,
		audience: cfg.Audience,
		lifetime: lifetime,
	}, nil
}

// Lifetime returns the configured lifetime of a token class.
func (c *Codec) Lifetime(class Class) time.Duration {
	settings, err := c.settings(class)
	if err != nil {
		return 0
	}
	return settings.lifetime
}

// Sign issues a token of the given class. The registered claims of the
// input are ignored; audience, issued-at and expiry come from the class
// settings. The returned time is the embedded expiry.
func (c *Codec) Sign(claims Claims, class Class) (string, time.Time, error) {
	settings, err := c.settings(class)
	if err != nil {
		return "", time.Time{}, err
	}
	if claims.SessionID == "" {
		return "", time.Time{}, errors.New("session id is required")
	}
	if class == ClassAccess && claims.UserID == "" {
		return "", time.Time{}, errors.New("user id is required for access tokens")
	}
	if class == ClassRefresh {
		claims.UserID = ""
	}

	now := c.now()
	claims.RegisteredClaims = jwt.RegisteredClaims{
		Issuer:    c.issuer,
		Audience:  jwt.ClaimStrings{settings.audience},
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(settings.lifetime)),
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(settings.secret)
	if err != nil {
		return "", time.Time{}, err
	}

	return token, claims.ExpiresAt.Time, nil
}

// Verify parses and validates a token of the given class.
func (c *Codec) Verify(tokenStr string, class Class) (*Claims, error) {
	settings, err := c.settings(class)
	if err != nil {
		return nil, ErrTokenInvalid
	}

	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithAudience(settings.audience),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(c.now),
	}
	if c.issuer != "" {
		options = append(options, jwt.WithIssuer(c.issuer))
	}

	parser := jwt.NewParser(options...)
	token, err := parser.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if t.Method.Alg() != jwt.SigningMethodHS256.Alg() {
			return nil, fmt.Errorf("unexpected signing algorithm: %s", t.Method.Alg())
		}
		return settings.secret, nil
	})
	if err != nil {
		return nil, ErrTokenInvalid
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.SessionID == "" {
		return nil, ErrTokenInvalid
	}
	if class == ClassAccess && claims.UserID == "" {
		return nil, ErrTokenInvalid
	}

	return claims, nil
}

func (c *Codec) settings(class Class) (classSettings, error) {
	switch class {
	case ClassAccess:
		return c.access, nil
	case ClassRefresh:
		return c.refresh, nil
	default:
		return classSettings{}, errors.New("unknown token class")
	}
}
