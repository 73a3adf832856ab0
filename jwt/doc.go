// Package jwt signs and verifies the two token classes used by the auth
// engine: short-lived access tokens and long-lived refresh tokens. Each class
// has its own HMAC secret, audience and lifetime, and every verification
// failure collapses into ErrTokenInvalid.
package jwt
