// Package internal contains helpers private to authcore, chiefly secure
// random identifiers.
//
// # Sub-packages
//
//   - audit: async event dispatch (Dispatcher + Sink implementations)
//   - flows: pure-function flows behind every Engine operation
//   - limiters: attempt throttles built on rate windows
//   - logging: context-aware structured logger over log/slog
//   - rate: Redis sorted-set sliding windows
//   - stores: one-time code store
package internal
