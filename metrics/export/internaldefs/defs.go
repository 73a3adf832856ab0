package internaldefs

import (
	"github.com/MrEthical07/authcore"
)

// ResultLabel is the label key that splits a family into series.
const ResultLabel = "result"

// Series binds one engine counter to a label value of its family. An empty
// Result means the family has a single unlabeled series.
type Series struct {
	ID     authcore.MetricID
	Result string
}

// Family is one exported counter metric.
type Family struct {
	Name   string
	Help   string
	Series []Series
}

type HistogramDef struct {
	ID   authcore.MetricID
	Name string
	Help string
}

func single(id authcore.MetricID) []Series {
	return []Series{{ID: id}}
}

// Families lists every counter family in exposition order.
var Families = []Family{
	{Name: "authcore_register_total", Help: "Registration attempts by result.", Series: []Series{
		{authcore.MetricRegisterSuccess, "success"},
		{authcore.MetricRegisterDuplicate, "duplicate"},
	}},
	{Name: "authcore_login_total", Help: "Password login attempts by result.", Series: []Series{
		{authcore.MetricLoginSuccess, "success"},
		{authcore.MetricLoginFailure, "failure"},
		{authcore.MetricLoginRateLimited, "rate_limited"},
		{authcore.MetricLoginMFARequired, "mfa_required"},
	}},
	{Name: "authcore_password_rehash_total", Help: "Password hashes upgraded on login.", Series: single(authcore.MetricPasswordRehash)},
	{Name: "authcore_refresh_total", Help: "Refresh attempts by result.", Series: []Series{
		{authcore.MetricRefreshSuccess, "success"},
		{authcore.MetricRefreshFailure, "failure"},
		{authcore.MetricRefreshReuseDetected, "reuse_detected"},
	}},
	{Name: "authcore_refresh_rotated_total", Help: "Refreshes that renewed the session and rotated the refresh token.", Series: single(authcore.MetricRefreshRotated)},
	{Name: "authcore_email_verification_total", Help: "Email verification attempts by result.", Series: []Series{
		{authcore.MetricEmailVerificationSuccess, "success"},
		{authcore.MetricEmailVerificationFailure, "failure"},
	}},
	{Name: "authcore_password_reset_request_total", Help: "Password reset link requests by result.", Series: []Series{
		{authcore.MetricPasswordResetRequest, "accepted"},
		{authcore.MetricPasswordResetRateLimited, "rate_limited"},
	}},
	{Name: "authcore_password_reset_confirm_total", Help: "Password reset confirmations by result.", Series: []Series{
		{authcore.MetricPasswordResetConfirmSuccess, "success"},
		{authcore.MetricPasswordResetConfirmFailure, "failure"},
	}},
	{Name: "authcore_mfa_setup_total", Help: "MFA enrollment steps by result.", Series: []Series{
		{authcore.MetricMFASetupStarted, "started"},
		{authcore.MetricMFAEnabled, "enabled"},
		{authcore.MetricMFASetupFailure, "failure"},
	}},
	{Name: "authcore_mfa_login_total", Help: "MFA login confirmations by result.", Series: []Series{
		{authcore.MetricMFALoginSuccess, "success"},
		{authcore.MetricMFALoginFailure, "failure"},
		{authcore.MetricMFALoginRateLimited, "rate_limited"},
	}},
	{Name: "authcore_mfa_revoked_total", Help: "MFA revocations.", Series: single(authcore.MetricMFARevoked)},
	{Name: "authcore_session_created_total", Help: "Sessions created.", Series: single(authcore.MetricSessionCreated)},
	{Name: "authcore_session_deleted_total", Help: "Sessions deleted by their owner.", Series: single(authcore.MetricSessionDeleted)},
	{Name: "authcore_sessions_revoked_all_total", Help: "Global logouts after a password reset or MFA revoke.", Series: single(authcore.MetricSessionsRevokedAll)},
	{Name: "authcore_logout_total", Help: "Single-session logouts.", Series: single(authcore.MetricLogout)},
	{Name: "authcore_notification_failure_total", Help: "Notifications the notifier rejected.", Series: single(authcore.MetricNotificationFailure)},
	{Name: "authcore_authenticate_failure_total", Help: "Rejected access tokens.", Series: single(authcore.MetricAuthenticateFailure)},
}

var Histograms = []HistogramDef{
	{ID: authcore.MetricAuthenticateLatency, Name: "authcore_authenticate_latency_seconds", Help: "Authenticate latency."},
	{ID: authcore.MetricLoginLatency, Name: "authcore_login_latency_seconds", Help: "Password login latency."},
}

const AuditDroppedName = "authcore_audit_dropped_total"
const AuditDroppedHelp = "Audit events dropped because the dispatcher queue was full."

// Bounds are the upper bounds of the engine's latency buckets in seconds,
// as Prometheus "le" values. The last bucket is unbounded.
var Bounds = [...]string{"0.005", "0.01", "0.025", "0.05", "0.1", "0.25", "0.5", "+Inf"}

// Cumulative turns the engine's per-bucket counts into cumulative counts.
// Missing buckets count as zero.
func Cumulative(raw []uint64) [len(Bounds)]uint64 {
	var out [len(Bounds)]uint64
	var running uint64
	for i := range out {
		if i < len(raw) {
			running += raw[i]
		}
		out[i] = running
	}
	return out
}
