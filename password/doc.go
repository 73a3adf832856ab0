// Package password hashes and verifies passwords. New hashes use Argon2id by
// default; bcrypt hashes are verified and can be selected for new hashes.
//
// # Output format
//
// Argon2id hashes are encoded in PHC string format:
//
//	$argon2id$v=19$m=<memory>,t=<time>,p=<threads>$<salt>$<hash>
//
// bcrypt hashes use the standard $2a$/$2b$/$2y$ modular crypt format.
//
// [Hasher.NeedsUpgrade] reports hashes produced by the other scheme or with
// weaker parameters so the caller can re-hash on the next successful login.
//
// # Architecture boundaries
//
// This package owns hashing and verification only. Password policy (minimum
// and maximum length) is enforced by the engine.
package password
