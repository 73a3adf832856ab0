package authcore

import (
	"errors"
	"net/http"
	"sort"
	"strings"
)

// Kind classifies an engine error into the outcome a transport reports.
type Kind uint8

const (
	KindInternal Kind = iota
	KindValidation
	KindBadRequest
	KindUnauthorized
	KindNotFound
	KindRateLimited
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindBadRequest:
		return "bad_request"
	case KindUnauthorized:
		return "unauthorized"
	case KindNotFound:
		return "not_found"
	case KindRateLimited:
		return "rate_limited"
	default:
		return "internal"
	}
}

// HTTPStatus maps the kind to its HTTP status code.
func (k Kind) HTTPStatus() int {
	switch k {
	case KindValidation, KindBadRequest:
		return http.StatusBadRequest
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindNotFound:
		return http.StatusNotFound
	case KindRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

var (
	// ErrValidation is wrapped by every *ValidationError.
	ErrValidation = errors.New("validation failed")

	// ErrEmailExists is returned by Register when the normalized email is taken.
	ErrEmailExists = errors.New("email already exists")
	// ErrInvalidCredentials covers both an unknown email and a wrong password.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrVerificationCodeInvalid covers missing, expired and already used verification codes.
	ErrVerificationCodeInvalid = errors.New("invalid or expired verification code")
	// ErrResetCodeInvalid covers missing, expired and already used reset codes.
	ErrResetCodeInvalid = errors.New("invalid or expired reset code")
	ErrMFAInvalidCode   = errors.New("invalid mfa code")
	// ErrMFASetupNotStarted is returned when confirming setup without a stored secret.
	ErrMFASetupNotStarted   = errors.New("mfa setup not started")
	ErrEmailNotVerified     = errors.New("email not verified")
	ErrPasswordUpdateFailed = errors.New("password update failed")

	ErrUnauthorized = errors.New("unauthorized")
	// ErrTokenMissing is returned by transports when no token was presented.
	ErrTokenMissing = errors.New("token not found")
	// ErrTokenInvalid is returned for any token that fails verification.
	ErrTokenInvalid    = errors.New("invalid token")
	ErrSessionNotFound = errors.New("session not found")
	ErrSessionExpired  = errors.New("session expired")
	// ErrRefreshReuse is returned when strict rotation sees a rotated-away refresh token.
	ErrRefreshReuse  = errors.New("refresh token reuse detected")
	ErrMFANotEnabled = errors.New("mfa not enabled")

	ErrUserNotFound = errors.New("user not found")
	// ErrSessionNotOwned is returned by DeleteSession for sessions the principal does not own.
	ErrSessionNotOwned = errors.New("session not found for user")

	ErrPasswordResetRateLimited     = errors.New("password reset rate limited")
	ErrEmailVerificationRateLimited = errors.New("email verification rate limited")
	ErrLoginRateLimited             = errors.New("login rate limited")
	ErrMFARateLimited               = errors.New("mfa login rate limited")

	// ErrNotificationFailed is returned when the notifier rejects a message.
	// The write that triggered the notification is kept.
	ErrNotificationFailed = errors.New("notification delivery failed")
	ErrStoreUnavailable   = errors.New("backend unavailable")
	ErrEngineNotReady     = errors.New("engine not initialized")
)

type classification struct {
	err     error
	kind    Kind
	code    string
	message string
}

// classifications is ordered: the first match wins.
var classifications = []classification{
	{ErrValidation, KindValidation, "VALIDATION_ERROR", "Validation failed"},

	{ErrEmailExists, KindBadRequest, "AUTH_EMAIL_ALREADY_EXISTS", "Email already exists"},
	{ErrInvalidCredentials, KindBadRequest, "AUTH_INVALID_CREDENTIALS", "Invalid email or password"},
	{ErrVerificationCodeInvalid, KindBadRequest, "VERIFICATION_ERROR", "Invalid or expired verification code"},
	{ErrResetCodeInvalid, KindBadRequest, "VERIFICATION_ERROR", "Invalid or expired verification code"},
	{ErrMFAInvalidCode, KindBadRequest, "AUTH_INVALID_MFA_CODE", "Invalid MFA code"},
	{ErrMFASetupNotStarted, KindBadRequest, "AUTH_MFA_SETUP_NOT_STARTED", "MFA setup has not been started"},
	{ErrEmailNotVerified, KindBadRequest, "AUTH_EMAIL_NOT_VERIFIED", "Email is not verified"},
	{ErrPasswordUpdateFailed, KindBadRequest, "AUTH_PASSWORD_UPDATE_FAILED", "Failed to reset password"},

	{ErrUnauthorized, KindUnauthorized, "AUTH_UNAUTHORIZED", "Unauthorized"},
	{ErrTokenMissing, KindUnauthorized, "AUTH_TOKEN_NOT_FOUND", "Token not found"},
	{ErrTokenInvalid, KindUnauthorized, "AUTH_INVALID_TOKEN", "Invalid or expired token"},
	{ErrSessionNotFound, KindUnauthorized, "AUTH_SESSION_NOT_FOUND", "Session not found"},
	{ErrSessionExpired, KindUnauthorized, "AUTH_SESSION_EXPIRED", "Session expired"},
	{ErrRefreshReuse, KindUnauthorized, "AUTH_REFRESH_TOKEN_REUSED", "Refresh token has already been used"},
	{ErrMFANotEnabled, KindUnauthorized, "AUTH_MFA_NOT_ENABLED", "MFA is not enabled"},

	{ErrUserNotFound, KindNotFound, "AUTH_USER_NOT_FOUND", "User not found"},
	{ErrSessionNotOwned, KindNotFound, "AUTH_NOT_FOUND", "Session not found"},

	{ErrPasswordResetRateLimited, KindRateLimited, "AUTH_TOO_MANY_ATTEMPTS", "Too many password reset requests, please try again later"},
	{ErrEmailVerificationRateLimited, KindRateLimited, "AUTH_TOO_MANY_ATTEMPTS", "Too many verification requests, please try again later"},
	{ErrLoginRateLimited, KindRateLimited, "AUTH_TOO_MANY_ATTEMPTS", "Too many login attempts, please try again later"},
	{ErrMFARateLimited, KindRateLimited, "AUTH_TOO_MANY_ATTEMPTS", "Too many MFA attempts, please try again later"},

	{ErrNotificationFailed, KindInternal, "NOTIFICATION_FAILED", "Failed to send notification"},
}

const (
	internalCode    = "INTERNAL_SERVER_ERROR"
	internalMessage = "Internal Server Error"
)

func classify(err error) (classification, bool) {
	if err == nil {
		return classification{}, false
	}
	for _, c := range classifications {
		if errors.Is(err, c.err) {
			return c, true
		}
	}
	return classification{}, false
}

// KindOf returns the kind of err, looking through wrapping. Unclassified
// errors are KindInternal.
func KindOf(err error) Kind {
	c, ok := classify(err)
	if !ok {
		return KindInternal
	}
	return c.kind
}

// CodeOf returns the stable error code of err, or INTERNAL_SERVER_ERROR.
func CodeOf(err error) string {
	c, ok := classify(err)
	if !ok {
		return internalCode
	}
	return c.code
}

// MessageOf returns a message that is safe to show to clients. Internal
// errors never leak their detail.
func MessageOf(err error) string {
	c, ok := classify(err)
	if !ok {
		return internalMessage
	}
	return c.message
}

// ValidationError carries per-field messages for malformed input.
type ValidationError struct {
	Fields map[string]string
}

// NewValidationError returns a ValidationError with one field message.
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Fields: map[string]string{field: message}}
}

// Add records a message for field, keeping the first message per field.
func (e *ValidationError) Add(field, message string) {
	if e.Fields == nil {
		e.Fields = make(map[string]string)
	}
	if _, exists := e.Fields[field]; !exists {
		e.Fields[field] = message
	}
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return ErrValidation.Error()
	}
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(ErrValidation.Error())
	b.WriteString(": ")
	for i, k := range keys {
		if i > 0 {
			b.WriteString("; ")
		}
		b.WriteString(k)
		b.WriteString(": ")
		b.WriteString(e.Fields[k])
	}
	return b.String()
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

// FieldErrors returns the per-field messages of a validation error in err's
// chain, or nil.
func FieldErrors(err error) map[string]string {
	var verr *ValidationError
	if errors.As(err, &verr) {
		return verr.Fields
	}
	return nil
}
