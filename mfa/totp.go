package mfa

import (
	"bytes"
	"encoding/base32"
	"encoding/base64"
	"errors"
	"image/png"
	"strings"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

const (
	// DefaultIssuer is the issuer label shown by authenticator apps.
	DefaultIssuer = "Secure-Auth"

	defaultPeriod = 30
	defaultSkew   = 1
	defaultQRSize = 200
)

// ErrInvalidSecret is returned for secrets that are not valid base32.
var ErrInvalidSecret = errors.New("invalid totp secret")

// Config tunes the TOTP parameters. Zero values fall back to issuer
// "Secure-Auth", period 30s, 6 digits, skew 1 and a 200px QR code.
type Config struct {
	Issuer string
	Period uint
	Skew   uint
	Digits otp.Digits
	QRSize int
	Now    func() time.Time
}

// Provisioning is what a client needs to enroll an authenticator.
type Provisioning struct {
	Secret     string
	URI        string
	QRImageURL string
}

// TOTP generates and checks RFC 6238 codes with SHA1.
type TOTP struct {
	config Config
}

var secretEncoding = base32.StdEncoding.WithPadding(base32.NoPadding)

// New returns a [TOTP] with defaults applied.
func New(cfg Config) *TOTP {
	if cfg.Issuer == "" {
		cfg.Issuer = DefaultIssuer
	}
	if cfg.Period == 0 {
		cfg.Period = defaultPeriod
	}
	if cfg.Skew == 0 {
		cfg.Skew = defaultSkew
	}
	if cfg.Digits == 0 {
		cfg.Digits = otp.DigitsSix
	}
	if cfg.QRSize <= 0 {
		cfg.QRSize = defaultQRSize
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &TOTP{config: cfg}
}

// Issuer returns the configured issuer label.
func (t *TOTP) Issuer() string {
	return t.config.Issuer
}

// GenerateSecret returns a fresh base32 secret for account.
func (t *TOTP) GenerateSecret(account string) (string, error) {
	key, err := totp.Generate(t.generateOpts(account, nil))
	if err != nil {
		return "", err
	}
	return key.Secret(), nil
}

// Provision builds the otpauth URI and a PNG QR code data URL for an
// existing secret. The same secret and account always yield the same URI.
func (t *TOTP) Provision(secret, account string) (*Provisioning, error) {
	raw, err := decodeSecret(secret)
	if err != nil {
		return nil, err
	}

	key, err := totp.Generate(t.generateOpts(account, raw))
	if err != nil {
		return nil, err
	}

	img, err := key.Image(t.config.QRSize, t.config.QRSize)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, err
	}

	return &Provisioning{
		Secret:     key.Secret(),
		URI:        key.URL(),
		QRImageURL: "data:image/png;base64," + base64.StdEncoding.EncodeToString(buf.Bytes()),
	}, nil
}

// Verify reports whether code is valid for secret at the current time,
// accepting one period of drift either way.
func (t *TOTP) Verify(secret, code string) bool {
	code = strings.TrimSpace(code)
	if len(code) != t.config.Digits.Length() {
		return false
	}
	secret = normalizeSecret(secret)
	if _, err := decodeSecret(secret); err != nil {
		return false
	}

	ok, err := totp.ValidateCustom(code, secret, t.config.Now().UTC(), totp.ValidateOpts{
		Period:    t.config.Period,
		Skew:      t.config.Skew,
		Digits:    t.config.Digits,
		Algorithm: otp.AlgorithmSHA1,
	})
	return err == nil && ok
}

// CodeAt returns the code for secret at the given time.
func (t *TOTP) CodeAt(secret string, at time.Time) (string, error) {
	return totp.GenerateCodeCustom(normalizeSecret(secret), at.UTC(), totp.ValidateOpts{
		Period:    t.config.Period,
		Digits:    t.config.Digits,
		Algorithm: otp.AlgorithmSHA1,
	})
}

func (t *TOTP) generateOpts(account string, secret []byte) totp.GenerateOpts {
	return totp.GenerateOpts{
		Issuer:      t.config.Issuer,
		AccountName: account,
		Period:      t.config.Period,
		Digits:      t.config.Digits,
		Algorithm:   otp.AlgorithmSHA1,
		Secret:      secret,
	}
}

func normalizeSecret(secret string) string {
	return strings.ToUpper(strings.TrimSpace(secret))
}

func decodeSecret(secret string) ([]byte, error) {
	secret = normalizeSecret(secret)
	if secret == "" {
		return nil, ErrInvalidSecret
	}
	raw, err := secretEncoding.DecodeString(strings.TrimRight(secret, "="))
	if err != nil || len(raw) == 0 {
		return nil, ErrInvalidSecret
	}
	return raw, nil
}
