package authcore

import (
	"context"
	"errors"
)

const (
	auditEventRegister             = "register"
	auditEventLogin                = "login"
	auditEventLoginRateLimited     = "login_rate_limited"
	auditEventMFARequired          = "mfa_required"
	auditEventRefresh              = "refresh"
	auditEventRefreshReuseDetected = "refresh_reuse_detected"
	auditEventEmailVerification    = "email_verification_confirm"
	auditEventPasswordResetRequest = "password_reset_request"
	auditEventPasswordResetConfirm = "password_reset_confirm"
	auditEventMFASetupRequested    = "mfa_setup_requested"
	auditEventMFAEnabled           = "mfa_enabled"
	auditEventMFALogin             = "mfa_login"
	auditEventMFARevoked           = "mfa_revoked"
	auditEventLogoutSession        = "logout_session"
	auditEventLogoutAll            = "logout_all"
	auditEventSessionDeleted       = "session_deleted"
)

// AuditErrorCode is the reason recorded on failed audit events.
type AuditErrorCode string

const (
	auditErrUnauthorized       AuditErrorCode = "unauthorized"
	auditErrInvalidCredentials AuditErrorCode = "invalid_credentials"
	auditErrRateLimited        AuditErrorCode = "rate_limited"
	auditErrRefreshReuse       AuditErrorCode = "refresh_reuse"
	auditErrInvalidToken       AuditErrorCode = "invalid_token"
	auditErrInvalidCode        AuditErrorCode = "invalid_code"
	auditErrSessionNotFound    AuditErrorCode = "session_not_found"
	auditErrSessionExpired     AuditErrorCode = "session_expired"
	auditErrUserNotFound       AuditErrorCode = "user_not_found"
	auditErrDuplicate          AuditErrorCode = "duplicate"
	auditErrUnverified         AuditErrorCode = "email_unverified"
	auditErrMFA                AuditErrorCode = "mfa_invalid"
	auditErrNotification       AuditErrorCode = "notification_failed"
	auditErrUnavailable        AuditErrorCode = "backend_unavailable"
	auditErrInternal           AuditErrorCode = "internal_error"
)

func (e *Engine) emitAudit(
	ctx context.Context,
	eventType string,
	success bool,
	userID string,
	sessionID string,
	err error,
	metadataBuilder func() map[string]string,
) {
	if e == nil || e.audit == nil {
		return
	}

	var metadata map[string]string
	if metadataBuilder != nil {
		metadata = metadataBuilder()
	}

	event := AuditEvent{
		Timestamp: e.now().UTC(),
		EventType: eventType,
		UserID:    userID,
		SessionID: sessionID,
		IP:        clientIPFromContext(ctx),
		UserAgent: userAgentFromContext(ctx),
		Success:   success,
		Metadata:  metadata,
	}
	if code := auditErrorCode(err); code != "" {
		event.Error = string(code)
	}

	e.audit.Emit(ctx, event)
}

func auditErrorCode(err error) AuditErrorCode {
	if err == nil {
		return ""
	}

	switch {
	case errors.Is(err, ErrInvalidCredentials):
		return auditErrInvalidCredentials
	case errors.Is(err, ErrLoginRateLimited),
		errors.Is(err, ErrPasswordResetRateLimited),
		errors.Is(err, ErrEmailVerificationRateLimited),
		errors.Is(err, ErrMFARateLimited):
		return auditErrRateLimited
	case errors.Is(err, ErrRefreshReuse):
		return auditErrRefreshReuse
	case errors.Is(err, ErrTokenInvalid):
		return auditErrInvalidToken
	case errors.Is(err, ErrVerificationCodeInvalid),
		errors.Is(err, ErrResetCodeInvalid):
		return auditErrInvalidCode
	case errors.Is(err, ErrSessionNotFound),
		errors.Is(err, ErrSessionNotOwned):
		return auditErrSessionNotFound
	case errors.Is(err, ErrSessionExpired):
		return auditErrSessionExpired
	case errors.Is(err, ErrUserNotFound),
		errors.Is(err, ErrPasswordUpdateFailed):
		return auditErrUserNotFound
	case errors.Is(err, ErrEmailExists):
		return auditErrDuplicate
	case errors.Is(err, ErrEmailNotVerified):
		return auditErrUnverified
	case errors.Is(err, ErrMFAInvalidCode),
		errors.Is(err, ErrMFANotEnabled),
		errors.Is(err, ErrMFASetupNotStarted):
		return auditErrMFA
	case errors.Is(err, ErrNotificationFailed):
		return auditErrNotification
	case errors.Is(err, ErrStoreUnavailable):
		return auditErrUnavailable
	case errors.Is(err, ErrUnauthorized):
		return auditErrUnauthorized
	default:
		return auditErrInternal
	}
}
