package authcore

import (
	"context"
	"fmt"
	"time"

	"github.com/MrEthical07/authcore/identity"
	"github.com/MrEthical07/authcore/internal/audit"
	"github.com/MrEthical07/authcore/internal/flows"
	"github.com/MrEthical07/authcore/internal/limiters"
	"github.com/MrEthical07/authcore/internal/logging"
	"github.com/MrEthical07/authcore/internal/stores"
	"github.com/MrEthical07/authcore/jwt"
	"github.com/MrEthical07/authcore/mfa"
	"github.com/MrEthical07/authcore/notify"
	"github.com/MrEthical07/authcore/password"
	"github.com/MrEthical07/authcore/session"
)

// Engine is the authentication and session core. Build one with New().Build();
// it is safe for concurrent use.
type Engine struct {
	config Config
	now    func() time.Time
	log    logging.Logger

	users        identity.Store
	notifier     notify.Notifier
	tokens       *jwt.Codec
	hasher       *password.Hasher
	sessions     *session.Store
	codes        *stores.CodeStore
	totp         *mfa.TOTP
	loginLimiter *limiters.LoginLimiter
	mfaLimiter   *limiters.MFALoginLimiter

	audit   *audit.Dispatcher
	metrics *Metrics
	flow    flows.Service
}

// Close flushes buffered audit events. The Redis client and user store are
// owned by the caller and stay open.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	if e.audit != nil {
		e.audit.Close()
	}
}

// AuditDropped returns the number of audit events lost to a full buffer.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

// MetricsSnapshot returns a copy of the engine counters and histograms.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

// Config returns a copy of the configuration the engine was built with.
func (e *Engine) Config() Config {
	return e.config
}

// Ping checks that Redis answers and returns the round-trip time.
func (e *Engine) Ping(ctx context.Context) (time.Duration, error) {
	d, err := e.sessions.Ping(ctx)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return d, nil
}

// Register creates a user and sends the account confirmation link.
//
// Register may return a *ValidationError, ErrEmailExists, or
// ErrNotificationFailed together with the created user.
func (e *Engine) Register(ctx context.Context, in RegisterInput) (*User, error) {
	return e.flow.Register(ctx, in)
}

// Login verifies email and password. For users with MFA enabled it returns
// MFARequired and no tokens; finish with VerifyMFALogin.
//
// Login may return ErrInvalidCredentials for an unknown email or a wrong
// password alike, ErrLoginRateLimited, or ErrEmailNotVerified.
func (e *Engine) Login(ctx context.Context, email, password, userAgent string) (*LoginResult, error) {
	start := time.Now()
	res, err := e.flow.Login(ctx, email, password, userAgent)
	if e.metrics.LatencyEnabled() {
		e.metrics.Observe(MetricLoginLatency, time.Since(start))
	}
	return res, err
}

// Refresh exchanges a refresh token for a new access token. A new refresh
// token is issued only when the session was renewed.
func (e *Engine) Refresh(ctx context.Context, refreshToken string) (*RefreshResult, error) {
	return e.flow.Refresh(ctx, refreshToken)
}

// Logout deletes a session. Unknown ids succeed.
func (e *Engine) Logout(ctx context.Context, sessionID string) error {
	return e.flow.Logout(ctx, sessionID)
}

// LogoutAll deletes every session of a user and returns how many existed.
func (e *Engine) LogoutAll(ctx context.Context, userID string) (int, error) {
	return e.flow.LogoutAll(ctx, userID)
}
