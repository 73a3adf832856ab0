package authcore

import "context"

// BeginMFASetup generates or reuses the pending TOTP secret of the principal
// and returns its provisioning data. When MFA is already enabled the result
// only has AlreadyEnabled set.
func (e *Engine) BeginMFASetup(ctx context.Context, p Principal) (*MFASetupResult, error) {
	return e.flow.BeginMFASetup(ctx, p.UserID)
}

// ConfirmMFASetup enables MFA when code matches the pending secret. A
// non-empty secretKey must match the stored secret.
//
// ConfirmMFASetup may return ErrMFASetupNotStarted or ErrMFAInvalidCode.
// Confirming an already enabled setup succeeds with Changed false.
func (e *Engine) ConfirmMFASetup(ctx context.Context, p Principal, code, secretKey string) (*MFAStatus, error) {
	user, changed, err := e.flow.ConfirmMFASetup(ctx, p.UserID, code, secretKey)
	if err != nil {
		return nil, err
	}
	return &MFAStatus{User: user, Changed: changed}, nil
}

// VerifyMFALogin finishes a login that returned MFARequired.
//
// VerifyMFALogin returns ErrMFANotEnabled for unknown users and users
// without MFA alike, ErrMFARateLimited, or ErrMFAInvalidCode.
func (e *Engine) VerifyMFALogin(ctx context.Context, email, code, userAgent string) (*LoginResult, error) {
	return e.flow.VerifyMFALogin(ctx, email, code, userAgent)
}

// RevokeMFA disables MFA for the principal and deletes all of their
// sessions, including the current one.
func (e *Engine) RevokeMFA(ctx context.Context, p Principal) (*MFAStatus, error) {
	user, changed, err := e.flow.RevokeMFA(ctx, p.UserID)
	if err != nil {
		return nil, err
	}
	return &MFAStatus{User: user, Changed: changed}, nil
}
