package flows

import (
	"context"
	"fmt"
	"time"

	"github.com/MrEthical07/authcore/identity"
	"github.com/MrEthical07/authcore/internal/logging"
	"github.com/MrEthical07/authcore/internal/stores"
	"github.com/MrEthical07/authcore/jwt"
	"github.com/MrEthical07/authcore/mfa"
	"github.com/MrEthical07/authcore/notify"
	"github.com/MrEthical07/authcore/session"
)

// SessionStore is the subset of the session ledger used by flows.
type SessionStore interface {
	Create(ctx context.Context, userID, userAgent string) (*session.Session, error)
	Get(ctx context.Context, sessionID string) (*session.Session, error)
	RenewIfNeeded(ctx context.Context, sess *session.Session) (bool, error)
	DeleteByID(ctx context.Context, sessionID string) error
	DeleteOwned(ctx context.Context, userID, sessionID string) error
	DeleteAllForUser(ctx context.Context, userID string) (int, error)
	ListActiveForUser(ctx context.Context, userID string) ([]*session.Session, error)
}

type CodeStore interface {
	Issue(ctx context.Context, userID string, purpose stores.Purpose, lifetime time.Duration, limit stores.Limit) (*stores.Code, error)
	Consume(ctx context.Context, value string, purpose stores.Purpose) (string, error)
}

type TokenCodec interface {
	Sign(claims jwt.Claims, class jwt.Class) (string, time.Time, error)
	Verify(token string, class jwt.Class) (*jwt.Claims, error)
}

type PasswordHasher interface {
	Hash(password string) (string, error)
	Verify(password, encodedHash string) (bool, error)
	NeedsUpgrade(encodedHash string) (bool, error)
}

type Authenticator interface {
	GenerateSecret(account string) (string, error)
	Provision(secret, account string) (*mfa.Provisioning, error)
	Verify(secret, code string) bool
}

// LoginThrottle counts failed password logins.
type LoginThrottle interface {
	Check(ctx context.Context, email, ip string) error
	RecordFailure(ctx context.Context, email, ip string) error
	Reset(ctx context.Context, email string) error
}

// MFAThrottle counts second-factor submissions per user.
type MFAThrottle interface {
	Attempt(ctx context.Context, userID string) error
	Reset(ctx context.Context, userID string) error
}

// Metrics carries the host metric IDs incremented by flows.
type Metrics struct {
	RegisterSuccess             int
	RegisterDuplicate           int
	LoginSuccess                int
	LoginFailure                int
	LoginRateLimited            int
	LoginMFARequired            int
	PasswordRehash              int
	RefreshSuccess              int
	RefreshRotated              int
	RefreshFailure              int
	RefreshReuseDetected        int
	EmailVerificationSuccess    int
	EmailVerificationFailure    int
	PasswordResetRequest        int
	PasswordResetRateLimited    int
	PasswordResetConfirmSuccess int
	PasswordResetConfirmFailure int
	MFASetupStarted             int
	MFAEnabled                  int
	MFASetupFailure             int
	MFALoginSuccess             int
	MFALoginFailure             int
	MFALoginRateLimited         int
	MFARevoked                  int
	SessionCreated              int
	SessionDeleted              int
	SessionsRevokedAll          int
	Logout                      int
	NotificationFailure         int
}

// Events carries the audit event names emitted by flows.
type Events struct {
	Register             string
	Login                string
	LoginRateLimited     string
	MFARequired          string
	Refresh              string
	RefreshReuse         string
	EmailVerification    string
	PasswordResetRequest string
	PasswordResetConfirm string
	MFASetup             string
	MFAEnabled           string
	MFALogin             string
	MFARevoked           string
	Logout               string
	SessionDeleted       string
	SessionsRevoked      string
}

// Errors carries the host sentinel errors returned by flows.
type Errors struct {
	EngineNotReady   error
	StoreUnavailable error

	EmailExists             error
	InvalidCredentials      error
	VerificationCodeInvalid error
	ResetCodeInvalid        error
	MFAInvalidCode          error
	MFASetupNotStarted      error
	EmailNotVerified        error
	PasswordUpdateFailed    error

	Unauthorized    error
	TokenInvalid    error
	SessionNotFound error
	SessionExpired  error
	RefreshReuse    error
	MFANotEnabled   error

	UserNotFound    error
	SessionNotOwned error

	PasswordResetRateLimited     error
	EmailVerificationRateLimited error
	LoginRateLimited             error
	MFARateLimited               error

	NotificationFailed error

	// Validation builds the host's per-field validation error.
	Validation func(field, message string) error
}

// PasswordPolicy bounds new passwords by byte length.
type PasswordPolicy struct {
	MinLength int
	MaxLength int
}

// CodePolicy is the lifetime and issuance cap of one code purpose.
type CodePolicy struct {
	Lifetime time.Duration
	Limit    stores.Limit
}

// AuditFunc records one audit event. metadata may be nil and is only
// invoked when auditing is enabled.
type AuditFunc func(ctx context.Context, event string, success bool, userID, sessionID string, err error, metadata func() map[string]string)

// Deps is the complete dependency set of every flow. The root engine builds
// it once.
type Deps struct {
	Users     identity.Store
	Sessions  SessionStore
	Codes     CodeStore
	Tokens    TokenCodec
	Passwords PasswordHasher
	TOTP      Authenticator
	Notifier  notify.Notifier

	LoginThrottle LoginThrottle
	MFAThrottle   MFAThrottle

	Policy            PasswordPolicy
	EmailVerification CodePolicy
	PasswordReset     CodePolicy
	Origin            string

	RequireVerifiedEmail  bool
	RevealUnknownEmail    bool
	StrictRefreshRotation bool
	UpgradeOnLogin        bool

	// DummyHash is verified against when the email is unknown so both
	// login failure paths pay the same hashing cost.
	DummyHash string

	Now                  func() time.Time
	ClientIPFromContext  func(context.Context) string
	UserAgentFromContext func(context.Context) string
	MetricInc            func(int)
	EmitAudit            AuditFunc
	Log                  logging.Logger

	Metrics Metrics
	Events  Events
	Errors  Errors
}

func (d *Deps) normalize() {
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.ClientIPFromContext == nil {
		d.ClientIPFromContext = func(context.Context) string { return "" }
	}
	if d.UserAgentFromContext == nil {
		d.UserAgentFromContext = func(context.Context) string { return "" }
	}
	if d.MetricInc == nil {
		d.MetricInc = func(int) {}
	}
	if d.EmitAudit == nil {
		d.EmitAudit = func(context.Context, string, bool, string, string, error, func() map[string]string) {}
	}
	if d.Log == nil {
		d.Log = logging.Discard()
	}
	if d.Errors.Validation == nil {
		d.Errors.Validation = func(field, message string) error {
			return fmt.Errorf("%s: %s", field, message)
		}
	}
}

func (d *Deps) ready() bool {
	return d.Users != nil &&
		d.Sessions != nil &&
		d.Codes != nil &&
		d.Tokens != nil &&
		d.Passwords != nil &&
		d.TOTP != nil &&
		d.Notifier != nil
}

func (d *Deps) storeErr(err error) error {
	return fmt.Errorf("%w: %v", d.Errors.StoreUnavailable, err)
}

func (d *Deps) checkPassword(field, value string) error {
	switch {
	case value == "":
		return d.Errors.Validation(field, "Password is required")
	case len(value) < d.Policy.MinLength:
		return d.Errors.Validation(field, fmt.Sprintf("Password must be at least %d characters long", d.Policy.MinLength))
	case d.Policy.MaxLength > 0 && len(value) > d.Policy.MaxLength:
		return d.Errors.Validation(field, fmt.Sprintf("Password must be at most %d characters long", d.Policy.MaxLength))
	}
	return nil
}
