// Package authcore is an authentication and session engine for account-based
// web applications: registration with email confirmation, password login,
// JWT access tokens, Redis-backed refresh sessions, password reset and TOTP
// second-factor authentication.
//
// Engine methods are safe to call from multiple goroutines once the engine
// is built through [Builder.Build].
//
// # Architecture boundaries
//
// authcore is the public surface. It exposes [Engine], [Builder], [Config],
// the sentinel errors and the result types. Flow orchestration, one-time
// code storage, throttling and audit dispatch live under internal/. User
// records are persisted through the [UserStore] the host supplies; the
// userstore sub-packages provide PostgreSQL and GORM implementations.
//
// # Sessions
//
// Every successful login creates a session record in Redis keyed by a random
// id. Access tokens name the session they were issued for, and [Engine.Authenticate]
// rejects tokens whose session is gone, so [Engine.Logout], [Engine.LogoutAll]
// and [Engine.ResetPassword] take effect immediately rather than at token
// expiry.
//
// # Errors
//
// Every operation returns one of the exported sentinels, possibly wrapped.
// [KindOf], [CodeOf] and [MessageOf] map them to a transport-independent
// classification; the httpapi package renders that as JSON.
//
// # What this package must NOT do
//
//   - Expose Redis keys, encodings or store internals in its public API.
//   - Send email itself. Messages go through the configured notify.Notifier.
//   - Import httpapi, middleware or a userstore implementation.
package authcore
