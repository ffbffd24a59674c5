// Package permission provides the 64-bit capability mask attached to every role
// and the registry that assigns capability names to bit positions.
//
// # Architecture boundaries
//
// This package is a pure in-memory data structure with no I/O. The role table in
// package role composes masks from registered names once, at init time.
//
// # What this package must NOT do
//
//   - Access Redis, databases, or the network.
//   - Decide whether a request is allowed. Callers receive the mask with the
//     authenticated principal and enforce their own policy.
package permission
