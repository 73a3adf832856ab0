// Package middleware adapts authcore to net/http.
//
// # Middleware
//
//   - [Guard]: reads the access token from the accessToken cookie or a
//     Bearer header, calls Authenticate and stores the [authcore.Principal]
//     in the request context.
//   - [RequestContext]: attaches the client IP and User-Agent the engine
//     records on sessions and audit events.
//
// # What this package must NOT do
//
//   - Parse or sign JWTs. Every decision is delegated to the Authenticator.
//   - Access Redis or the user store.
package middleware
