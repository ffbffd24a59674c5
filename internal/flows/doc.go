// Package flows contains pure-function orchestrators for the Engine operations
// with the most branches: login, second-factor completion, forgot password and
// password reset.
//
// Each flow function (RunLogin, RunCompleteSecondFactor, RunForgotPassword,
// RunResetPassword) accepts a typed dependency struct and returns results
// without side effects beyond those dependencies, so every branch can be
// driven from tests with plain closures.
//
// # Architecture boundaries
//
// Flow functions coordinate calls to the identity store, token signer, hash
// pool, limiters, audit dispatcher and metrics. They do NOT own any of these
// resources. Ownership stays with the Engine.
//
// # What this package must NOT do
//
//   - Hold mutable state between calls.
//   - Import poaAuth (to avoid import cycles).
//   - Perform I/O directly. All I/O is mediated through dependency functions.
package flows
