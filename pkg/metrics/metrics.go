// Package metrics exposes prometheus/client_golang instrumentation for the
// daemon: session, commit, lock, and notification counters/gauges.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Registry bundles every metric the daemon exports, constructed once at
// startup and passed around read-only except for the Inc/Dec/Observe calls
// the instrumented packages make on it.
type Registry struct {
	Registerer prometheus.Registerer

	SessionsTotal      prometheus.Counter
	SessionsActive     prometheus.Gauge
	CommitsTotal       prometheus.Counter
	CommitsFailedTotal prometheus.Counter
	CommitDuration     prometheus.Histogram
	LocksHeld          prometheus.Gauge
	LockDeniedTotal    prometheus.Counter
	NotificationsTotal prometheus.Counter
}

// New constructs a Registry and registers every metric against reg. Passing
// a fresh prometheus.NewRegistry() keeps tests isolated from the global
// default registry.
func New(reg prometheus.Registerer) *Registry {
	m := &Registry{
		Registerer: reg,
		SessionsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "confd", Name: "sessions_total",
			Help: "Total client sessions accepted.",
		}),
		SessionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "confd", Name: "sessions_active",
			Help: "Currently connected client sessions.",
		}),
		CommitsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "confd", Name: "commits_total",
			Help: "Total commit attempts.",
		}),
		CommitsFailedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "confd", Name: "commits_failed_total",
			Help: "Commit attempts that aborted.",
		}),
		CommitDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "confd", Name: "commit_duration_seconds",
			Help:    "Commit protocol wall-clock duration.",
			Buckets: prometheus.DefBuckets,
		}),
		LocksHeld: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "confd", Name: "locks_held",
			Help: "Datastore locks currently held.",
		}),
		LockDeniedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "confd", Name: "lock_denied_total",
			Help: "Lock requests denied because another session held the lock.",
		}),
		NotificationsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "confd", Name: "notifications_total",
			Help: "Notification frames published across all streams.",
		}),
	}
	reg.MustRegister(
		m.SessionsTotal, m.SessionsActive, m.CommitsTotal, m.CommitsFailedTotal,
		m.CommitDuration, m.LocksHeld, m.LockDeniedTotal, m.NotificationsTotal,
	)
	return m
}
