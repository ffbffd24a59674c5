// Package totp manages time-based one-time passwords and backup codes for an
// identity.
//
// Each identity moves through three phases:
//
//	PhaseNoSecret -> PhaseSecretIssued -> PhaseEnabled
//
// [Engine.GenerateSetup] issues a secret and ten backup codes without turning
// the second factor on. [Engine.Enable] confirms the secret with a live code.
// [Engine.Disable] returns the identity to PhaseNoSecret after re-checking the
// password.
//
// Codes are RFC 6238 (SHA-1, six digits, 30 second step) and are accepted one
// step either side of the current time. Backup codes are stored only as hashes
// produced by a [password.Pool]; matching scans the stored set.
package totp
