// Package stores provides the Redis-backed one-time code store used by the
// email-verification and password-reset flows.
//
// # Design
//
// Each code is a versioned, binary-encoded record keyed by its value with a
// TTL equal to its lifetime. Issuance runs the per-user rate check and the
// insert in one Lua script; the code value is inserted with SET NX and
// regenerated on collision. Consume uses WATCH/MULTI optimistic transactions
// with automatic retry on contention, so a code can be consumed at most once.
//
// # Architecture boundaries
//
// This package owns persistence and concurrency control for one-time codes.
// It does NOT send notifications or make authentication decisions. Those
// belong to the flow functions in internal/flows.
//
// # What this package must NOT do
//
//   - Import authcore or any sibling internal package other than internal itself.
//   - Log code values.
package stores
