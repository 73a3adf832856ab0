package authcore

import "context"

// ForgotPassword sends a password reset link. Unknown emails report success
// without sending anything unless Security.RevealUnknownEmail is set.
//
// ForgotPassword may return ErrPasswordResetRateLimited once the issuance
// cap is reached, or ErrNotificationFailed after the code was stored.
func (e *Engine) ForgotPassword(ctx context.Context, email string) (*ForgotPasswordResult, error) {
	return e.flow.ForgotPassword(ctx, email)
}

// ResetPassword consumes a password-reset code, stores the new password and
// logs the user out of every session.
func (e *Engine) ResetPassword(ctx context.Context, newPassword, code string) error {
	return e.flow.ResetPassword(ctx, newPassword, code)
}
