// Package flows contains the orchestration logic behind every Engine
// operation.
//
// Each Run function (RunRegister, RunLogin, RunRefresh, ...) takes a [Deps]
// value and returns either a result or one host sentinel error from
// [Errors]. The engine owns every collaborator; flows only coordinate them.
//
// # What this package must NOT do
//
//   - Hold mutable state between calls.
//   - Import authcore (to avoid import cycles).
//   - Swallow a collaborator error and retry silently.
package flows
