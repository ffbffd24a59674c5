// Package middleware adapts [poaAuth.Engine.Authenticate] to net/http.
//
// # Guards
//
//   - [Guard] verifies the bearer access token and injects the principal.
//   - [RequireCapability] checks a capability on the injected principal.
//
// # Architecture boundaries
//
// This package translates HTTP semantics into Engine calls. Every
// authentication decision is delegated to Engine.Authenticate and
// [poaAuth.Principal.Can].
//
// # What this package must NOT do
//
//   - Parse or create JWTs directly.
//   - Access Redis or the identity store.
package middleware
