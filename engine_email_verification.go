package authcore

import "context"

// VerifyEmail consumes an email-verification code and marks its owner
// verified.
//
// VerifyEmail returns ErrVerificationCodeInvalid for unknown, expired and
// already used codes.
func (e *Engine) VerifyEmail(ctx context.Context, code string) (*User, error) {
	return e.flow.VerifyEmail(ctx, code)
}
