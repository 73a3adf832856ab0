// Package httpapi exposes an authcore engine as a JSON HTTP API.
//
// Routes are mounted under Options.BasePath (default "/api/v1"):
//
//	POST   /auth/register          create an account and send the confirmation link
//	POST   /auth/login             password login; sets cookies unless MFA is required
//	GET    /auth/refresh           exchange the refreshToken cookie for a new access token
//	POST   /auth/verify/email      confirm an email address
//	POST   /auth/password/forgot   send a password reset link
//	POST   /auth/password/reset    set a new password and log out everywhere
//	POST   /auth/logout            end the current session
//	GET    /mfa/setup              start or resume TOTP enrollment
//	POST   /mfa/verify             confirm TOTP enrollment
//	PUT    /mfa/revoke             disable TOTP and log out everywhere
//	POST   /mfa/verify-login       finish a login that required MFA
//	GET    /session/all            list the caller's sessions
//	GET    /session                the calling user
//	DELETE /session/{id}           delete one of the caller's sessions
//	GET    /healthz                backend liveness
//
// Tokens travel in HttpOnly cookies. The access token is also accepted as an
// Authorization Bearer header. Errors are written as
// {"message", "errorCode", "errors"} with the status taken from
// authcore.KindOf.
package httpapi
