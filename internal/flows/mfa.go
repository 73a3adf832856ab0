package flows

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"github.com/MrEthical07/authcore/identity"
	"github.com/MrEthical07/authcore/internal/limiters"
	"github.com/MrEthical07/authcore/mfa"
)

// MFASetupResult is returned by RunBeginMFASetup. When AlreadyEnabled is
// set no provisioning data is included.
type MFASetupResult struct {
	AlreadyEnabled bool
	Secret         string
	URI            string
	QRImageURL     string
}

// RunBeginMFASetup moves the user from disabled to pending, reusing an
// existing pending secret, and returns the provisioning data.
func RunBeginMFASetup(ctx context.Context, userID string, deps Deps) (*MFASetupResult, error) {
	deps.normalize()
	if !deps.ready() {
		return nil, deps.Errors.EngineNotReady
	}

	user, err := loadUser(ctx, userID, &deps)
	if err != nil {
		return nil, err
	}

	state := mfa.StateOf(user.Preferences.EnableMFA, user.Preferences.TOTPSecret)
	if state == mfa.StateEnabled {
		return &MFASetupResult{AlreadyEnabled: true}, nil
	}

	secret := user.Preferences.TOTPSecret
	if state == mfa.StateDisabled {
		secret, err = deps.TOTP.GenerateSecret(user.Email)
		if err != nil {
			return nil, err
		}
		if err := deps.Users.SetTOTPSecret(ctx, user.ID, secret); err != nil {
			return nil, deps.storeErr(err)
		}
	}

	prov, err := deps.TOTP.Provision(secret, user.Email)
	if err != nil {
		return nil, err
	}

	deps.MetricInc(deps.Metrics.MFASetupStarted)
	deps.EmitAudit(ctx, deps.Events.MFASetup, true, user.ID, "", nil, func() map[string]string {
		return map[string]string{"state": state.String()}
	})

	return &MFASetupResult{
		Secret:     prov.Secret,
		URI:        prov.URI,
		QRImageURL: prov.QRImageURL,
	}, nil
}

// RunConfirmMFASetup enables MFA once the user proves possession of the
// pending secret. Failed attempts leave the secret in place. The bool is
// false when MFA was already enabled.
func RunConfirmMFASetup(ctx context.Context, userID, code, secretKey string, deps Deps) (*identity.User, bool, error) {
	deps.normalize()
	if !deps.ready() {
		return nil, false, deps.Errors.EngineNotReady
	}

	user, err := loadUser(ctx, userID, &deps)
	if err != nil {
		return nil, false, err
	}

	switch mfa.StateOf(user.Preferences.EnableMFA, user.Preferences.TOTPSecret) {
	case mfa.StateEnabled:
		return user, false, nil
	case mfa.StateDisabled:
		return nil, false, mfaSetupFailure(ctx, user.ID, "not_started", deps.Errors.MFASetupNotStarted, &deps)
	}

	secret := user.Preferences.TOTPSecret
	if secretKey != "" && !sameSecret(secretKey, secret) {
		return nil, false, mfaSetupFailure(ctx, user.ID, "secret_mismatch", deps.Errors.MFAInvalidCode, &deps)
	}
	if !deps.TOTP.Verify(secret, code) {
		return nil, false, mfaSetupFailure(ctx, user.ID, "code_mismatch", deps.Errors.MFAInvalidCode, &deps)
	}

	if err := deps.Users.EnableMFA(ctx, user.ID); err != nil {
		return nil, false, deps.storeErr(err)
	}
	user.Preferences.EnableMFA = true

	deps.MetricInc(deps.Metrics.MFAEnabled)
	deps.EmitAudit(ctx, deps.Events.MFAEnabled, true, user.ID, "", nil, nil)
	return user, true, nil
}

// RunVerifyMFALogin completes a login that stopped at the MFA step.
// Unknown users and users without a secret fail identically.
func RunVerifyMFALogin(ctx context.Context, email, code, userAgent string, deps Deps) (*LoginResult, error) {
	deps.normalize()
	if !deps.ready() {
		return nil, deps.Errors.EngineNotReady
	}

	email = identity.NormalizeEmail(email)
	user, err := deps.Users.ByEmail(ctx, email)
	if errors.Is(err, identity.ErrNotFound) {
		return nil, mfaLoginFailure(ctx, "", "unknown_email", deps.Errors.MFANotEnabled, &deps)
	}
	if err != nil {
		return nil, deps.storeErr(err)
	}
	if mfa.StateOf(user.Preferences.EnableMFA, user.Preferences.TOTPSecret) == mfa.StateDisabled {
		return nil, mfaLoginFailure(ctx, user.ID, "mfa_disabled", deps.Errors.MFANotEnabled, &deps)
	}

	if deps.MFAThrottle != nil {
		if err := deps.MFAThrottle.Attempt(ctx, user.ID); err != nil {
			if errors.Is(err, limiters.ErrMFALoginRateLimited) {
				deps.MetricInc(deps.Metrics.MFALoginRateLimited)
				deps.EmitAudit(ctx, deps.Events.MFALogin, false, user.ID, "", deps.Errors.MFARateLimited, nil)
				return nil, deps.Errors.MFARateLimited
			}
			return nil, deps.storeErr(err)
		}
	}

	if user.Preferences.TOTPSecret == "" || !deps.TOTP.Verify(user.Preferences.TOTPSecret, code) {
		return nil, mfaLoginFailure(ctx, user.ID, "code_mismatch", deps.Errors.MFAInvalidCode, &deps)
	}

	if deps.MFAThrottle != nil {
		if err := deps.MFAThrottle.Reset(ctx, user.ID); err != nil {
			deps.Log.Warn(ctx, "reset mfa throttle", "user_id", user.ID, "error", err)
		}
	}

	pair, err := issueSession(ctx, user.ID, userAgentOrEmpty(ctx, userAgent, &deps), &deps)
	if err != nil {
		return nil, err
	}

	deps.MetricInc(deps.Metrics.MFALoginSuccess)
	deps.EmitAudit(ctx, deps.Events.MFALogin, true, user.ID, pair.SessionID, nil, nil)

	return &LoginResult{User: user, Tokens: pair}, nil
}

// RunRevokeMFA disables MFA, clears the secret and logs the user out of
// every session. It reports whether anything was revoked.
func RunRevokeMFA(ctx context.Context, userID string, deps Deps) (*identity.User, bool, error) {
	deps.normalize()
	if !deps.ready() {
		return nil, false, deps.Errors.EngineNotReady
	}

	user, err := loadUser(ctx, userID, &deps)
	if err != nil {
		return nil, false, err
	}
	if !user.Preferences.EnableMFA {
		return user, false, nil
	}

	if err := deps.Users.DisableMFA(ctx, user.ID); err != nil {
		return nil, false, deps.storeErr(err)
	}
	user.Preferences.EnableMFA = false
	user.Preferences.TOTPSecret = ""

	revoked, err := deps.Sessions.DeleteAllForUser(ctx, user.ID)
	if err != nil {
		return nil, false, deps.storeErr(err)
	}

	deps.MetricInc(deps.Metrics.MFARevoked)
	deps.MetricInc(deps.Metrics.SessionsRevokedAll)
	deps.EmitAudit(ctx, deps.Events.MFARevoked, true, user.ID, "", nil, func() map[string]string {
		return map[string]string{"sessions_revoked": strconv.Itoa(revoked)}
	})
	return user, true, nil
}

func loadUser(ctx context.Context, userID string, deps *Deps) (*identity.User, error) {
	if userID == "" {
		return nil, deps.Errors.Unauthorized
	}
	user, err := deps.Users.ByID(ctx, userID)
	if errors.Is(err, identity.ErrNotFound) {
		return nil, deps.Errors.UserNotFound
	}
	if err != nil {
		return nil, deps.storeErr(err)
	}
	return user, nil
}

func mfaSetupFailure(ctx context.Context, userID, reason string, err error, deps *Deps) error {
	deps.MetricInc(deps.Metrics.MFASetupFailure)
	deps.EmitAudit(ctx, deps.Events.MFAEnabled, false, userID, "", err, func() map[string]string {
		return map[string]string{"reason": reason}
	})
	return err
}

func mfaLoginFailure(ctx context.Context, userID, reason string, err error, deps *Deps) error {
	deps.MetricInc(deps.Metrics.MFALoginFailure)
	deps.EmitAudit(ctx, deps.Events.MFALogin, false, userID, "", err, func() map[string]string {
		return map[string]string{"reason": reason}
	})
	return err
}

// sameSecret compares base32 secrets ignoring case, spaces and padding.
func sameSecret(a, b string) bool {
	clean := func(s string) string {
		s = strings.ToUpper(strings.ReplaceAll(s, " ", ""))
		return strings.TrimRight(s, "=")
	}
	return clean(a) == clean(b)
}
