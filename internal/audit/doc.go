// Package audit implements async event dispatching for security-relevant
// operations.
//
// # Components
//
//   - [Sink]: interface for event consumers (channel, JSON writer, slog, no-op).
//   - [Dispatcher]: buffered async relay that either drops or blocks when full.
//   - [Event]: structured audit record with timestamp, type, user, session, IP and metadata.
//
// This package owns event buffering and sink delivery. Deciding which events
// to emit belongs to the engine and the flows.
package audit
