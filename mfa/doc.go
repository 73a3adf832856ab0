// Package mfa implements the time-based one-time password second factor:
// secret generation, provisioning (otpauth URI + QR code) and verification.
//
// The enrollment lifecycle is Disabled -> Pending (secret stored, not yet
// confirmed) -> Enabled. Revocation returns to Disabled. The transitions are
// driven by the authcore engine; this package only derives the state.
package mfa
