// Package internal contains helper utilities that are intentionally private to
// poaAuth, such as one-time token generation.
//
// # Sub-packages
//
//   - audit: async event dispatch (Dispatcher + Sink implementations)
//   - flows: function-style orchestrators for login and password reset
//   - ids: sortable record identifiers
//   - limiters: Redis-backed attempt limiters for login and second factors
//   - rate: fixed-window Redis counter primitive
//   - stores: short-lived Redis records (pending second-factor handles)
//   - throttle: in-process per-key token buckets
//
// # What this package must NOT do
//
//   - Export types that appear in the public poaAuth API.
//   - Be imported by any package outside the poaAuth module.
package internal
