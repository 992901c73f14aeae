package lock

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/mirkobrombin/go-redlease/v1/metrics"
	"github.com/mirkobrombin/go-redlease/v1/notify"
	"github.com/mirkobrombin/go-redlease/v1/registry"
)

// Start launches the renewal scheduler. Ticks are produced at the configured
// interval and consumed by a single dedicated worker; at most one tick is
// ever pending, and under overload the pending tick is discarded in favour of
// the newest. Renewal therefore never queues up behind itself and never runs
// on a caller's goroutine. Start is idempotent.
func (m *Manager) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.started {
		return
	}
	m.started = true
	m.stopCh = make(chan struct{})
	m.ticks = make(chan time.Time, 1)
	m.wg.Add(2)
	go m.tickLoop()
	go m.workLoop()
}

// Stop halts the scheduler and waits for an in-flight sweep to finish within
// the context deadline. Leases still enrolled simply expire at the store once
// their TTL elapses unrenewed.
func (m *Manager) Stop(ctx context.Context) error {
	m.mu.Lock()
	if !m.started {
		m.mu.Unlock()
		return nil
	}
	m.started = false
	close(m.stopCh)
	m.mu.Unlock()

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *Manager) tickLoop() {
	defer m.wg.Done()
	ticker := time.NewTicker(m.tickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-m.stopCh:
			return
		case t := <-ticker.C:
			select {
			case m.ticks <- t:
			default:
				// Backlog of one: drop the pending tick, keep the newest.
				select {
				case <-m.ticks:
				default:
				}
				select {
				case m.ticks <- t:
				default:
				}
			}
		}
	}
}

func (m *Manager) workLoop() {
	defer m.wg.Done()
	for {
		select {
		case <-m.stopCh:
			return
		case t := <-m.ticks:
			m.sweep(context.Background(), t)
		}
	}
}

// sweep extends every enrolled lease that has passed its renewal interval. An
// ownership mismatch means the lease already expired at the store and was
// possibly reclaimed: the entry is dropped and the loss published. Store
// errors leave the entry in place for the next tick.
func (m *Manager) sweep(ctx context.Context, now time.Time) {
	var due []*registry.Lease
	m.reg.Range(func(l *registry.Lease) bool {
		if l.Due(now) {
			due = append(due, l)
		}
		return true
	})
	if len(due) == 0 {
		return
	}
	if m.traceEnabled {
		var span trace.Span
		ctx, span = tracer.Start(ctx, "lock.sweep", trace.WithAttributes(
			attribute.Int("due", len(due)),
		))
		defer span.End()
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.renewLimit)
	for _, l := range due {
		l := l
		g.Go(func() error {
			ok, err := m.store.CompareAndExtend(gctx, l.Key, l.Token, l.TTL)
			if err != nil {
				// Transient store failure; retry on the next tick.
				return nil
			}
			if !ok {
				m.reg.Remove(l.Key)
				metrics.LostCounter.Inc()
				if m.bus != nil {
					_ = m.bus.Publish(gctx, notify.Event{
						Key:    l.Key,
						Token:  l.Token,
						Reason: notify.ReasonExpired,
					})
				}
				return nil
			}
			l.MarkRenewed(now)
			metrics.RenewedCounter.Inc()
			return nil
		})
	}
	_ = g.Wait()
	metrics.HeldGauge.Set(float64(m.reg.Len()))
}
