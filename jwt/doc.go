// Package jwt issues and verifies the signed, expiring tokens handed to callers:
// access tokens, refresh tokens and pending-second-factor handles. Tokens carry
// the subject id, role and kind; verification is pure and performs no I/O.
package jwt
