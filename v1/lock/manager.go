package lock

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	rlerrors "github.com/mirkobrombin/go-redlease/v1/errors"
	"github.com/mirkobrombin/go-redlease/v1/metrics"
	"github.com/mirkobrombin/go-redlease/v1/notify"
	"github.com/mirkobrombin/go-redlease/v1/registry"
	"github.com/mirkobrombin/go-redlease/v1/store"
)

var tracer = otel.Tracer("github.com/mirkobrombin/go-redlease/v1/lock")

const (
	defaultTickInterval = 5 * time.Second
	defaultRenewLimit   = 4
)

// Manager is the public locking API. Each Manager owns its lease registry, so
// independent Managers never share renewal state.
type Manager struct {
	store store.Store
	reg   *registry.Registry
	bus   notify.Bus

	tickInterval time.Duration
	renewLimit   int
	traceEnabled bool

	mu      sync.Mutex
	started bool
	ticks   chan time.Time
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

// Option configures a Manager.
type Option func(*Manager)

// WithBus sets the bus on which lost-lease events are published. Without a
// bus, lost leases are only observable through metrics.
func WithBus(bus notify.Bus) Option {
	return func(m *Manager) {
		m.bus = bus
	}
}

// WithTickInterval sets the period of the renewal scheduler.
func WithTickInterval(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.tickInterval = d
		}
	}
}

// WithRenewLimit caps how many renewal calls a single sweep issues
// concurrently.
func WithRenewLimit(n int) Option {
	return func(m *Manager) {
		if n > 0 {
			m.renewLimit = n
		}
	}
}

// WithTracing enables OpenTelemetry spans on lock operations.
func WithTracing() Option {
	return func(m *Manager) {
		m.traceEnabled = true
	}
}

// NewManager returns a Manager backed by the given store.
func NewManager(s store.Store, opts ...Option) *Manager {
	m := &Manager{
		store:        s,
		reg:          registry.New(),
		tickInterval: defaultTickInterval,
		renewLimit:   defaultRenewLimit,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// NewToken returns a fresh owner token. Tokens must be unique across
// concurrent callers of the same resource; a UUID satisfies that.
func NewToken() string {
	return uuid.NewString()
}

// Acquire attempts to take the lock for key with the given owner token and
// TTL. It is a single store round trip: false means the resource is held by
// someone else and the caller decides whether to retry. With autoRenew the
// lease is enrolled so the background scheduler keeps extending it until
// Release; without it the lock simply expires at the store after ttl.
func (m *Manager) Acquire(ctx context.Context, key, token string, ttl time.Duration, autoRenew bool) (bool, error) {
	if ttl <= 0 {
		return false, rlerrors.ErrInvalidTTL
	}
	if m.traceEnabled {
		var span trace.Span
		ctx, span = tracer.Start(ctx, "lock.Acquire", trace.WithAttributes(
			attribute.String("key", key),
			attribute.Bool("auto_renew", autoRenew),
		))
		defer span.End()
	}
	ok, err := m.store.SetIfAbsent(ctx, key, token, ttl)
	if err != nil {
		return false, err
	}
	if !ok {
		metrics.ContendedCounter.Inc()
		return false, nil
	}
	metrics.AcquiredCounter.Inc()
	if autoRenew {
		// SetIfAbsent succeeded, so any surviving local entry for this key is
		// stale and gets replaced.
		m.reg.Put(registry.NewLease(key, token, ttl))
		metrics.HeldGauge.Set(float64(m.reg.Len()))
	}
	return true, nil
}

// Release frees the lock for key if the store still maps it to token, as a
// single atomic compare-and-delete. False covers "never held", "already
// expired" and "held by someone else" alike; the store cannot tell them
// apart and neither can the caller.
func (m *Manager) Release(ctx context.Context, key, token string) (bool, error) {
	if m.traceEnabled {
		var span trace.Span
		ctx, span = tracer.Start(ctx, "lock.Release", trace.WithAttributes(
			attribute.String("key", key),
		))
		defer span.End()
	}
	ok, err := m.store.CompareAndDelete(ctx, key, token)
	if err != nil {
		return false, err
	}
	if ok {
		m.reg.Remove(key)
		metrics.ReleasedCounter.Inc()
	} else if l, found := m.reg.Get(key); found && l.Token == token {
		// The store no longer maps key to this token, so the enrolled lease
		// is stale; stop renewing it.
		m.reg.Remove(key)
	}
	metrics.HeldGauge.Set(float64(m.reg.Len()))
	return ok, nil
}

// Enroll places an already-held lease under automatic renewal. Use it for
// locks acquired out of band; Acquire with autoRenew covers the common case.
// Enrolling a key that is already enrolled is a programmer error and returns
// ErrAlreadyEnrolled.
func (m *Manager) Enroll(key, token string, ttl time.Duration) error {
	if ttl <= 0 {
		return rlerrors.ErrInvalidTTL
	}
	if err := m.reg.Add(registry.NewLease(key, token, ttl)); err != nil {
		return err
	}
	metrics.HeldGauge.Set(float64(m.reg.Len()))
	return nil
}

// Watch subscribes to lost-lease events for key. The channel receives an
// event when the scheduler discovers the lease expired at the store; the
// holder may still be inside its critical section and should treat it as no
// longer protected.
func (m *Manager) Watch(ctx context.Context, key string) (<-chan notify.Event, error) {
	if m.bus == nil {
		return nil, rlerrors.ErrNoBus
	}
	return m.bus.Subscribe(ctx, key)
}
