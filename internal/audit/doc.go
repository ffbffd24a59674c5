// Package audit implements async event dispatching for security-relevant operations.
//
// # Components
//
//   - [Sink]: event consumer (channel, JSON lines, fan-out, func adapter, no-op).
//   - [Dispatcher]: single-goroutine relay that either drops or waits when its queue is full.
//   - [Event]: structured audit record with timestamp, type, identity, company, IP, metadata.
//
// # Architecture boundaries
//
// This package owns event buffering and sink delivery. It does NOT decide which
// events to emit. That belongs to the Engine.
//
// # What this package must NOT do
//
//   - Filter or suppress events based on business logic.
//   - Import poaAuth or any sibling internal package.
//   - Carry plaintext passwords, one-time tokens or backup codes.
package audit
