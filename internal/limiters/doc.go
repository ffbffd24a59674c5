// Package limiters provides the attempt limiters the engine consults, built on
// the internal/rate fixed-window counter.
//
// # Limiters
//
//   - [LoginLimiter]: failed password attempts per email, optionally per IP.
//   - [TOTPLimiter]: failed second-factor attempts per identity, shared by
//     TOTP codes and backup codes.
//
// All limiters are nil-safe: calling any method on a nil receiver returns nil.
//
// # What this package must NOT do
//
//   - Import poaAuth or any sibling internal package except internal/rate.
//   - Make policy decisions beyond counting. The engine decides consequences.
package limiters
