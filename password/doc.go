// Package password implements the secret hasher used for passwords, one-time
// invitation and reset tokens, and TOTP backup codes.
//
// # Algorithms
//
// [Argon2] encodes hashes in PHC string format:
//
//	$argon2id$v=19$m=<memory>,t=<time>,p=<threads>$<salt>$<hash>
//
// [Bcrypt] produces standard $2a$ strings with a configurable cost factor.
// Both salt every call, so two hashes of one secret never match byte-for-byte,
// and both compare in constant time.
//
// [Pool] bounds how many hash or verify calls run at once and exposes
// [Pool.VerifyAny] for scanning a list of stored hashes.
//
// # What this package must NOT do
//
//   - Store or retrieve secrets. Callers supply plaintext and receive hashes.
//   - Hash session tokens. Those are signed, not stored.
//   - Log plaintext or hash parameters at runtime.
package password
