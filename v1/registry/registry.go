// Package registry tracks the leases held by this process. The registry is a
// local scheduling aid for the renewal loop; the store remains the sole
// source of truth for exclusivity.
package registry

import (
	"sync/atomic"
	"time"

	"github.com/puzpuzpuz/xsync/v3"

	rlerrors "github.com/mirkobrombin/go-redlease/v1/errors"
)

// Lease describes a held lock: the protected resource key, the opaque owner
// token proving ownership, and the TTL the store applies on every renewal.
type Lease struct {
	Key   string
	Token string
	TTL   time.Duration

	renewedAt atomic.Int64 // unix nanoseconds of the last successful renewal
}

// NewLease returns a Lease whose renewal clock starts now.
func NewLease(key, token string, ttl time.Duration) *Lease {
	l := &Lease{Key: key, Token: token, TTL: ttl}
	l.renewedAt.Store(time.Now().UnixNano())
	return l
}

// RenewalInterval is how long a lease may go unrenewed before the scheduler
// must extend it: two thirds of the TTL, leaving a margin for scheduling
// jitter and store latency before the store-side expiry fires.
func (l *Lease) RenewalInterval() time.Duration {
	return l.TTL * 2 / 3
}

// RenewedAt returns the time of the last successful renewal or acquisition.
func (l *Lease) RenewedAt() time.Time {
	return time.Unix(0, l.renewedAt.Load())
}

// MarkRenewed records a successful renewal at t.
func (l *Lease) MarkRenewed(t time.Time) {
	l.renewedAt.Store(t.UnixNano())
}

// Due reports whether the lease needs renewing at time now.
func (l *Lease) Due(now time.Time) bool {
	return now.Sub(l.RenewedAt()) >= l.RenewalInterval()
}

// Registry is a concurrency-safe table of held leases keyed by resource key.
// Insert, remove and iterate may run concurrently from acquiring callers,
// releasing callers and the renewal scheduler.
type Registry struct {
	leases *xsync.MapOf[string, *Lease]
}

// New returns an empty Registry.
func New() *Registry {
	return &Registry{leases: xsync.NewMapOf[string, *Lease]()}
}

// Add enrolls a lease, failing with ErrAlreadyEnrolled if the resource key is
// already tracked. Enrolling the same key twice is a programmer error.
func (r *Registry) Add(l *Lease) error {
	if _, loaded := r.leases.LoadOrStore(l.Key, l); loaded {
		return rlerrors.ErrAlreadyEnrolled
	}
	return nil
}

// Put enrolls a lease, replacing any existing entry for the same key. Used
// on acquisition: a successful SetIfAbsent proves the store-side key was
// absent, so a surviving local entry is stale by definition.
func (r *Registry) Put(l *Lease) {
	r.leases.Store(l.Key, l)
}

// Get returns the lease for key, if tracked.
func (r *Registry) Get(key string) (*Lease, bool) {
	return r.leases.Load(key)
}

// Remove drops the lease for key.
func (r *Registry) Remove(key string) {
	r.leases.Delete(key)
}

// Range calls fn for every tracked lease until fn returns false.
func (r *Registry) Range(fn func(l *Lease) bool) {
	r.leases.Range(func(_ string, l *Lease) bool {
		return fn(l)
	})
}

// Len returns the number of tracked leases.
func (r *Registry) Len() int {
	return r.leases.Size()
}
