// Package rate provides the fixed-window Redis counter that every poaAuth
// attempt limiter is built on.
//
// # Window semantics
//
// INCR + EXPIRE on the first hit of a window. The window therefore starts at
// the first failure and is not extended by later ones. Keys are namespaced by a
// per-limiter prefix.
//
// # What this package must NOT do
//
//   - Implement domain-specific policies (those live in internal/limiters).
//   - Be imported outside the poaAuth module.
package rate
