package flows

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/MrEthical07/authcore/identity"
	"github.com/MrEthical07/authcore/internal/stores"
	"github.com/MrEthical07/authcore/notify"
)

// ForgotPasswordResult reports the outcome of a reset request. For unknown
// emails ResetLinkSent is still true unless RevealUnknownEmail is set.
type ForgotPasswordResult struct {
	ResetLinkSent bool
	ExpiresAt     time.Time
}

// RunForgotPassword issues a password-reset code and sends the reset link.
func RunForgotPassword(ctx context.Context, email string, deps Deps) (*ForgotPasswordResult, error) {
	deps.normalize()
	if !deps.ready() {
		return nil, deps.Errors.EngineNotReady
	}

	email = identity.NormalizeEmail(email)
	if email == "" {
		return nil, deps.Errors.Validation("email", "Email is required")
	}

	deps.MetricInc(deps.Metrics.PasswordResetRequest)

	user, err := deps.Users.ByEmail(ctx, email)
	if errors.Is(err, identity.ErrNotFound) {
		deps.EmitAudit(ctx, deps.Events.PasswordResetRequest, false, "", "", deps.Errors.UserNotFound, func() map[string]string {
			return map[string]string{"email": email}
		})
		if deps.RevealUnknownEmail {
			return nil, deps.Errors.UserNotFound
		}
		return &ForgotPasswordResult{ResetLinkSent: true}, nil
	}
	if err != nil {
		return nil, deps.storeErr(err)
	}

	code, err := deps.Codes.Issue(ctx, user.ID, stores.PurposePasswordReset, deps.PasswordReset.Lifetime, deps.PasswordReset.Limit)
	if errors.Is(err, stores.ErrRateLimited) {
		deps.MetricInc(deps.Metrics.PasswordResetRateLimited)
		deps.EmitAudit(ctx, deps.Events.PasswordResetRequest, false, user.ID, "", deps.Errors.PasswordResetRateLimited, nil)
		return nil, deps.Errors.PasswordResetRateLimited
	}
	if err != nil {
		return nil, deps.storeErr(err)
	}

	link := buildLink(deps.Origin, "/reset-password", url.Values{
		"code": {code.Value},
		"exp":  {strconv.FormatInt(code.ExpiresAt.UnixMilli(), 10)},
	})
	err = deliver(ctx, notify.Message{
		Kind:      notify.KindPasswordReset,
		To:        user.Email,
		Name:      user.Name,
		Subject:   notify.Subject(notify.KindPasswordReset),
		Link:      link,
		ExpiresAt: code.ExpiresAt,
	}, user.ID, &deps)

	deps.EmitAudit(ctx, deps.Events.PasswordResetRequest, err == nil, user.ID, "", err, nil)
	if err != nil {
		return nil, err
	}

	return &ForgotPasswordResult{
		ResetLinkSent: true,
		ExpiresAt:     code.ExpiresAt,
	}, nil
}

// RunResetPassword consumes a password-reset code, stores the new password
// hash and revokes every session of the user.
func RunResetPassword(ctx context.Context, newPassword, code string, deps Deps) error {
	deps.normalize()
	if !deps.ready() {
		return deps.Errors.EngineNotReady
	}

	if err := deps.checkPassword("password", newPassword); err != nil {
		return err
	}
	code = strings.TrimSpace(code)
	if code == "" {
		return passwordResetFailure(ctx, "", "empty_code", deps.Errors.ResetCodeInvalid, &deps)
	}

	userID, err := deps.Codes.Consume(ctx, code, stores.PurposePasswordReset)
	if errors.Is(err, stores.ErrCodeNotFound) {
		return passwordResetFailure(ctx, "", "code_not_found", deps.Errors.ResetCodeInvalid, &deps)
	}
	if err != nil {
		return deps.storeErr(err)
	}

	hash, err := deps.Passwords.Hash(newPassword)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	err = deps.Users.UpdatePasswordHash(ctx, userID, hash)
	if errors.Is(err, identity.ErrNotFound) {
		return passwordResetFailure(ctx, userID, "user_not_found", deps.Errors.PasswordUpdateFailed, &deps)
	}
	if err != nil {
		return deps.storeErr(err)
	}

	revoked, err := deps.Sessions.DeleteAllForUser(ctx, userID)
	if err != nil {
		return deps.storeErr(err)
	}

	deps.MetricInc(deps.Metrics.PasswordResetConfirmSuccess)
	deps.MetricInc(deps.Metrics.SessionsRevokedAll)
	deps.EmitAudit(ctx, deps.Events.PasswordResetConfirm, true, userID, "", nil, func() map[string]string {
		return map[string]string{"sessions_revoked": strconv.Itoa(revoked)}
	})
	return nil
}

func passwordResetFailure(ctx context.Context, userID, reason string, err error, deps *Deps) error {
	deps.MetricInc(deps.Metrics.PasswordResetConfirmFailure)
	deps.EmitAudit(ctx, deps.Events.PasswordResetConfirm, false, userID, "", err, func() map[string]string {
		return map[string]string{"reason": reason}
	})
	return err
}
