package flows

import (
	"context"
	"errors"

	"github.com/MrEthical07/authcore/identity"
	"github.com/MrEthical07/authcore/internal/limiters"
)

// LoginResult is the outcome of a password or MFA login. When MFARequired is
// set, User and Tokens are nil and no session exists.
type LoginResult struct {
	User        *identity.User
	MFARequired bool
	Tokens      *TokenPair
}

// RunLogin verifies the password and, unless the user has MFA enabled,
// opens a session.
func RunLogin(ctx context.Context, email, password, userAgent string, deps Deps) (*LoginResult, error) {
	deps.normalize()
	if !deps.ready() {
		return nil, deps.Errors.EngineNotReady
	}

	email = identity.NormalizeEmail(email)
	ip := deps.ClientIPFromContext(ctx)

	if deps.LoginThrottle != nil {
		if err := deps.LoginThrottle.Check(ctx, email, ip); err != nil {
			if errors.Is(err, limiters.ErrLoginRateLimited) {
				deps.MetricInc(deps.Metrics.LoginRateLimited)
				deps.EmitAudit(ctx, deps.Events.LoginRateLimited, false, "", "", deps.Errors.LoginRateLimited, func() map[string]string {
					return map[string]string{"email": email}
				})
				return nil, deps.Errors.LoginRateLimited
			}
			return nil, deps.storeErr(err)
		}
	}

	user, err := deps.Users.ByEmail(ctx, email)
	if errors.Is(err, identity.ErrNotFound) {
		if deps.DummyHash != "" {
			_, _ = deps.Passwords.Verify(password, deps.DummyHash)
		}
		return nil, loginFailure(ctx, email, ip, "", "unknown_email", &deps)
	}
	if err != nil {
		return nil, deps.storeErr(err)
	}

	ok, err := deps.Passwords.Verify(password, user.PasswordHash)
	if err != nil {
		deps.Log.Warn(ctx, "stored password hash unusable", "user_id", user.ID, "error", err)
	}
	if !ok {
		return nil, loginFailure(ctx, email, ip, user.ID, "password_mismatch", &deps)
	}

	if deps.LoginThrottle != nil {
		if err := deps.LoginThrottle.Reset(ctx, email); err != nil {
			deps.Log.Warn(ctx, "reset login throttle", "user_id", user.ID, "error", err)
		}
	}

	if deps.RequireVerifiedEmail && !user.EmailVerified {
		deps.MetricInc(deps.Metrics.LoginFailure)
		deps.EmitAudit(ctx, deps.Events.Login, false, user.ID, "", deps.Errors.EmailNotVerified, nil)
		return nil, deps.Errors.EmailNotVerified
	}

	if deps.UpgradeOnLogin {
		upgradePasswordHash(ctx, user, password, &deps)
	}

	if user.Preferences.EnableMFA {
		deps.MetricInc(deps.Metrics.LoginMFARequired)
		deps.EmitAudit(ctx, deps.Events.MFARequired, true, user.ID, "", nil, nil)
		return &LoginResult{MFARequired: true}, nil
	}

	pair, err := issueSession(ctx, user.ID, userAgentOrEmpty(ctx, userAgent, &deps), &deps)
	if err != nil {
		return nil, err
	}

	deps.MetricInc(deps.Metrics.LoginSuccess)
	deps.EmitAudit(ctx, deps.Events.Login, true, user.ID, pair.SessionID, nil, nil)

	return &LoginResult{User: user, Tokens: pair}, nil
}

func loginFailure(ctx context.Context, email, ip, userID, reason string, deps *Deps) error {
	if deps.LoginThrottle != nil {
		if err := deps.LoginThrottle.RecordFailure(ctx, email, ip); err != nil {
			deps.Log.Warn(ctx, "record login failure", "error", err)
		}
	}
	deps.MetricInc(deps.Metrics.LoginFailure)
	deps.EmitAudit(ctx, deps.Events.Login, false, userID, "", deps.Errors.InvalidCredentials, func() map[string]string {
		return map[string]string{
			"email":  email,
			"reason": reason,
		}
	})
	return deps.Errors.InvalidCredentials
}

// upgradePasswordHash rehashes with the current scheme after a successful
// verification. Failures are logged; the login proceeds.
func upgradePasswordHash(ctx context.Context, user *identity.User, password string, deps *Deps) {
	needs, err := deps.Passwords.NeedsUpgrade(user.PasswordHash)
	if err != nil || !needs {
		return
	}
	hash, err := deps.Passwords.Hash(password)
	if err != nil {
		deps.Log.Warn(ctx, "rehash password", "user_id", user.ID, "error", err)
		return
	}
	if err := deps.Users.UpdatePasswordHash(ctx, user.ID, hash); err != nil {
		deps.Log.Warn(ctx, "persist rehashed password", "user_id", user.ID, "error", err)
		return
	}
	user.PasswordHash = hash
	deps.MetricInc(deps.Metrics.PasswordRehash)
}

func userAgentOrEmpty(ctx context.Context, explicit string, deps *Deps) string {
	if explicit != "" {
		return explicit
	}
	return deps.UserAgentFromContext(ctx)
}
