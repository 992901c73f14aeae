package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	// AcquiredCounter tracks successful lock acquisitions.
	AcquiredCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "redlease_acquired_total",
		Help: "Total number of successful lock acquisitions",
	})
	// ContendedCounter tracks acquisitions refused because the lock was held.
	ContendedCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "redlease_acquire_contended_total",
		Help: "Total number of acquisitions refused due to contention",
	})
	// ReleasedCounter tracks successful releases.
	ReleasedCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "redlease_released_total",
		Help: "Total number of successful releases",
	})
	// RenewedCounter tracks successful background renewals.
	RenewedCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "redlease_renewed_total",
		Help: "Total number of successful lease renewals",
	})
	// LostCounter tracks leases dropped after a failed ownership check.
	LostCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "redlease_lost_total",
		Help: "Total number of leases lost to store-side expiry",
	})
	// HeldGauge reports the number of leases enrolled for renewal.
	HeldGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "redlease_held_leases",
		Help: "Current number of leases enrolled for automatic renewal",
	})
	// TasksProcessedCounter tracks delayed tasks handled successfully.
	TasksProcessedCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "redlease_delay_tasks_processed_total",
		Help: "Total number of delayed tasks processed",
	})
	// TasksFailedCounter tracks delayed task handler failures.
	TasksFailedCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "redlease_delay_tasks_failed_total",
		Help: "Total number of delayed task handler failures",
	})
)

// NewRegistry creates a new Prometheus registry.
func NewRegistry() *prometheus.Registry {
	return prometheus.NewRegistry()
}

// RegisterLockMetrics registers lock manager metrics on the provided registry.
func RegisterLockMetrics(reg prometheus.Registerer) {
	reg.MustRegister(AcquiredCounter, ContendedCounter, ReleasedCounter, RenewedCounter, LostCounter, HeldGauge)
}

// RegisterDelayQueueMetrics registers delay queue metrics on the provided registry.
func RegisterDelayQueueMetrics(reg prometheus.Registerer) {
	reg.MustRegister(TasksProcessedCounter, TasksFailedCounter)
}
