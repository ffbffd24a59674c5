// Package cache holds the validated-identity cache: a bounded map from subject id
// to the last identity snapshot read from the store.
//
// # Staleness
//
// An entry older than the configured TTL is treated as absent on read, whether or
// not the background sweep has removed it yet. Mutation paths that change role,
// active status or company must call [Cache.Invalidate] so a change is never
// hidden for longer than one TTL.
//
// # Lifecycle
//
// A Cache is an owned value, not a process global. [Cache.Start] launches the
// sweeper; [Cache.Stop] halts it and waits for it to exit. Reads and writes work
// whether or not the sweeper runs.
package cache
