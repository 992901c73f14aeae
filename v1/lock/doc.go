// Package lock implements lease-based distributed mutual exclusion on top of
// a store with atomic conditional operations. Acquire is a single
// set-if-absent round trip and never waits; callers decide whether to retry.
// Leases enrolled for renewal are extended in the background by a scheduler
// running on a single dedicated worker, and a lease whose renewal fails its
// ownership check is dropped and reported through the notify bus. The store
// is always the source of truth: a crashed holder's lease expires there
// regardless of local state.
package lock
