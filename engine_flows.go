package authcore

import (
	"github.com/MrEthical07/authcore/internal/flows"
	"github.com/MrEthical07/authcore/internal/stores"
)

func (e *Engine) newFlowService(dummyHash string) flows.Service {
	cfg := e.config

	deps := flows.Deps{
		Users:     e.users,
		Sessions:  e.sessions,
		Codes:     e.codes,
		Tokens:    e.tokens,
		Passwords: e.hasher,
		TOTP:      e.totp,
		Notifier:  e.notifier,

		Policy: flows.PasswordPolicy{
			MinLength: cfg.Password.MinLength,
			MaxLength: cfg.Password.MaxLength,
		},
		EmailVerification: flows.CodePolicy{
			Lifetime: cfg.Codes.EmailVerificationLifetime,
			Limit:    stores.Limit(cfg.Codes.EmailVerificationLimit),
		},
		PasswordReset: flows.CodePolicy{
			Lifetime: cfg.Codes.PasswordResetLifetime,
			Limit:    stores.Limit(cfg.Codes.PasswordResetLimit),
		},
		Origin: cfg.App.Origin,

		RequireVerifiedEmail:  cfg.Security.RequireVerifiedEmail,
		RevealUnknownEmail:    cfg.Security.RevealUnknownEmail,
		StrictRefreshRotation: cfg.Security.StrictRefreshRotation,
		UpgradeOnLogin:        cfg.Password.UpgradeOnLogin,
		DummyHash:             dummyHash,

		Now:                  e.now,
		ClientIPFromContext:  clientIPFromContext,
		UserAgentFromContext: userAgentFromContext,
		MetricInc:            func(id int) { e.metricInc(MetricID(id)) },
		EmitAudit:            e.emitAudit,
		Log:                  e.log,

		Metrics: flows.Metrics{
			RegisterSuccess:             int(MetricRegisterSuccess),
			RegisterDuplicate:           int(MetricRegisterDuplicate),
			LoginSuccess:                int(MetricLoginSuccess),
			LoginFailure:                int(MetricLoginFailure),
			LoginRateLimited:            int(MetricLoginRateLimited),
			LoginMFARequired:            int(MetricLoginMFARequired),
			PasswordRehash:              int(MetricPasswordRehash),
			RefreshSuccess:              int(MetricRefreshSuccess),
			RefreshRotated:              int(MetricRefreshRotated),
			RefreshFailure:              int(MetricRefreshFailure),
			RefreshReuseDetected:        int(MetricRefreshReuseDetected),
			EmailVerificationSuccess:    int(MetricEmailVerificationSuccess),
			EmailVerificationFailure:    int(MetricEmailVerificationFailure),
			PasswordResetRequest:        int(MetricPasswordResetRequest),
			PasswordResetRateLimited:    int(MetricPasswordResetRateLimited),
			PasswordResetConfirmSuccess: int(MetricPasswordResetConfirmSuccess),
			PasswordResetConfirmFailure: int(MetricPasswordResetConfirmFailure),
			MFASetupStarted:             int(MetricMFASetupStarted),
			MFAEnabled:                  int(MetricMFAEnabled),
			MFASetupFailure:             int(MetricMFASetupFailure),
			MFALoginSuccess:             int(MetricMFALoginSuccess),
			MFALoginFailure:             int(MetricMFALoginFailure),
			MFALoginRateLimited:         int(MetricMFALoginRateLimited),
			MFARevoked:                  int(MetricMFARevoked),
			SessionCreated:              int(MetricSessionCreated),
			SessionDeleted:              int(MetricSessionDeleted),
			SessionsRevokedAll:          int(MetricSessionsRevokedAll),
			Logout:                      int(MetricLogout),
			NotificationFailure:         int(MetricNotificationFailure),
		},
		Events: flows.Events{
			Register:             auditEventRegister,
			Login:                auditEventLogin,
			LoginRateLimited:     auditEventLoginRateLimited,
			MFARequired:          auditEventMFARequired,
			Refresh:              auditEventRefresh,
			RefreshReuse:         auditEventRefreshReuseDetected,
			EmailVerification:    auditEventEmailVerification,
			PasswordResetRequest: auditEventPasswordResetRequest,
			PasswordResetConfirm: auditEventPasswordResetConfirm,
			MFASetup:             auditEventMFASetupRequested,
			MFAEnabled:           auditEventMFAEnabled,
			MFALogin:             auditEventMFALogin,
			MFARevoked:           auditEventMFARevoked,
			Logout:               auditEventLogoutSession,
			SessionDeleted:       auditEventSessionDeleted,
			SessionsRevoked:      auditEventLogoutAll,
		},
		Errors: flows.Errors{
			EngineNotReady:   ErrEngineNotReady,
			StoreUnavailable: ErrStoreUnavailable,

			EmailExists:             ErrEmailExists,
			InvalidCredentials:      ErrInvalidCredentials,
			VerificationCodeInvalid: ErrVerificationCodeInvalid,
			ResetCodeInvalid:        ErrResetCodeInvalid,
			MFAInvalidCode:          ErrMFAInvalidCode,
			MFASetupNotStarted:      ErrMFASetupNotStarted,
			EmailNotVerified:        ErrEmailNotVerified,
			PasswordUpdateFailed:    ErrPasswordUpdateFailed,

			Unauthorized:    ErrUnauthorized,
			TokenInvalid:    ErrTokenInvalid,
			SessionNotFound: ErrSessionNotFound,
			SessionExpired:  ErrSessionExpired,
			RefreshReuse:    ErrRefreshReuse,
			MFANotEnabled:   ErrMFANotEnabled,

			UserNotFound:    ErrUserNotFound,
			SessionNotOwned: ErrSessionNotOwned,

			PasswordResetRateLimited:     ErrPasswordResetRateLimited,
			EmailVerificationRateLimited: ErrEmailVerificationRateLimited,
			LoginRateLimited:             ErrLoginRateLimited,
			MFARateLimited:               ErrMFARateLimited,

			NotificationFailed: ErrNotificationFailed,

			Validation: func(field, message string) error {
				return NewValidationError(field, message)
			},
		},
	}

	if e.loginLimiter != nil {
		deps.LoginThrottle = e.loginLimiter
	}
	if e.mfaLimiter != nil {
		deps.MFAThrottle = e.mfaLimiter
	}

	return flows.New(deps)
}
