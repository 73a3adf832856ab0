// Package rate provides the Redis-backed sliding window used by the
// authentication throttles.
//
// # Window semantics
//
// Each key is a sorted set of hit timestamps (unix ms). A single Lua script
// prunes entries older than the window, compares the remaining count with
// the limit and records the new hit, so concurrent callers can never
// overshoot the limit.
//
// # What this package must NOT do
//
//   - Implement domain-specific policies (those live in internal/limiters).
//   - Be imported outside the authcore module.
package rate
