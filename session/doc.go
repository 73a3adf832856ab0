// Package session is the session ledger: Redis-backed persistence of login
// sessions with a compact binary encoding, lazy expiry and Lua-atomic
// renewal and deletion.
//
// # Key layout
//
//	<prefix>:<sessionID>   binary session blob, PX TTL = remaining lifetime
//	<prefix>u:<userID>     ZSET of session IDs scored by creation time (ms)
//
// # Architecture boundaries
//
// This package owns the [Store] and the [Session] model. It does not
// interpret tokens or decide whether a caller is authorized; the engine does.
// Expiry is enforced at read time by comparing ExpiresAt with the store
// clock; Redis TTLs only reclaim storage.
package session
