// Package store defines the capability boundary between the lock manager and
// the backing key-value store. A conforming Store must provide four atomic
// operations: create-if-absent with expiry, plain read, compare-and-extend
// and compare-and-delete. The conditional operations act on a key only if its
// current value matches the expected owner token; this is what makes renewal
// and release safe against a concurrent takeover after expiry.
package store

import (
	"context"
	"time"
)

// Store is the minimal contract required of a lock backend.
type Store interface {
	// SetIfAbsent atomically creates key=value with the given TTL only if the
	// key does not exist. It reports whether the creation happened. This is
	// the sole operation that may transition a resource from free to held.
	SetIfAbsent(ctx context.Context, key, value string, ttl time.Duration) (bool, error)
	// Get returns the current value for key. The boolean reports presence.
	Get(ctx context.Context, key string) (string, bool, error)
	// CompareAndExtend atomically resets the TTL of key to ttl if its current
	// value equals expected. It reports whether the extension happened.
	CompareAndExtend(ctx context.Context, key, expected string, ttl time.Duration) (bool, error)
	// CompareAndDelete atomically removes key if its current value equals
	// expected. It reports whether the deletion happened.
	CompareAndDelete(ctx context.Context, key, expected string) (bool, error)
	// Delete unconditionally removes key, reporting whether it existed.
	Delete(ctx context.Context, key string) (bool, error)
}
