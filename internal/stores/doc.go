// Package stores provides Redis-backed, short-lived records for
// security-sensitive authentication flows. Today that is the ledger of pending
// second-factor handles.
//
// # Design
//
// Each record is a versioned, binary-encoded value stored with a TTL equal to
// the lifetime of the token it shadows. Consumption is a single GETDEL, so two
// concurrent consumers of one record can never both succeed.
//
// # What this package must NOT do
//
//   - Import poaAuth or any sibling internal package.
//   - Log or expose token material.
//   - Make authentication decisions. The engine owns those.
package stores
