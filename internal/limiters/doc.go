// Package limiters provides the domain throttles built on top of the
// internal/rate sliding window.
//
// # Limiters
//
//   - [MFALoginLimiter]: per-user budget for second-factor login attempts.
//   - [LoginLimiter]: per-email + per-IP failure budget for password login.
//
// All limiters are nil-safe: calling any method on a nil receiver returns nil.
//
// # What this package must NOT do
//
//   - Import authcore or any sibling internal package except internal/rate.
//   - Make policy decisions beyond counting. Flow functions decide consequences.
package limiters
