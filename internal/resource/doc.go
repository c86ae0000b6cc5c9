// Package resource persists revisioned key/value resources and serves
// them to the single-threaded runtime.
//
// A Store is a SQLite database holding, per resource, the current
// elements and an append-only change log. Every write bumps the
// resource's revision by one, so revisions are a per-resource logical
// clock.
//
// A Manager sits between the runtime and the store. Loads run
// asynchronously; requests for a resource that is still loading wait in
// that resource's ready queue and are drained in FIFO order once the
// load completes. Results come back as Futures. Subscribers are told
// about every applied write; a subscriber may issue further requests,
// which join the end of the queue being drained.
//
// # Database Configuration
//
//   - WAL mode: concurrent reads during writes
//   - synchronous=NORMAL: balance durability and performance
//   - busy_timeout=5000: wait for locks up to 5 seconds
//   - foreign_keys=ON: enforce referential integrity
package resource
