// Package store defines the persistence contracts the credential engine consumes:
// identity, company, invitation, reset-token and broker-link repositories, plus
// the atomic unit used for multi-record mutations.
//
// Implementations must give read-after-write consistency within one call, return
// [ErrNotFound] and [ErrConflict] for missing rows and unique violations, and run
// the function passed to [Store.WithinTx] so that either every write it made is
// visible afterwards or none is.
//
// Two implementations ship with the module: memstore (in-process, used by tests
// and the load generator) and pgstore (PostgreSQL through the pgx driver).
package store
