// Package poaAuth is the credential and session lifecycle core of the POA
// platform: company registration, password login with an optional TOTP second
// factor, stateless JWT access/refresh pairs, password reset and company
// invitations.
//
// Engine methods are safe to call from multiple goroutines after
// initialization through [Builder.Build].
//
// # Architecture boundaries
//
// poaAuth is the public surface. It exposes [Engine], [Builder], [Config] and
// value types (Profile, TokenPair, Principal, MetricsSnapshot). Persistent state
// lives behind [store.Store]; Redis holds only attempt counters and pending
// second-factor handles. Flow orchestration, rate windows and audit dispatch
// live under internal/ and are never exported.
//
// # What this package must NOT do
//
//   - Store or log a plaintext secret: passwords, one-time tokens, TOTP
//     secrets and backup codes are hashed or handed to the [Notifier] once.
//   - Revoke issued JWTs. Logout only drops the identity cache entry; tokens
//     stay valid until they expire.
//   - Import any sub-package that re-imports poaAuth (no import cycles).
//
// # Performance contract
//
// Authenticate is the hot path. On a cache hit it verifies the signature and
// makes no store or Redis round-trip. Login, Refresh and account operations
// perform at most one hash verification each, bounded by the hasher pool.
package poaAuth
