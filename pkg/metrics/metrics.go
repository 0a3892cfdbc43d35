// Package metrics exposes Prometheus collectors for transaction health
// monitoring. The collectors mirror the transaction manager's statistics;
// they support dashboards and alerting and are not part of the correctness
// contract.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// TransactionMetrics counts commits and rollbacks and tracks commit latency.
type TransactionMetrics struct {
	Commits   prometheus.Counter
	Rollbacks prometheus.Counter
	Duration  prometheus.Histogram
}

// NewTransactionMetrics creates the collectors and registers them with reg.
func NewTransactionMetrics(reg prometheus.Registerer) *TransactionMetrics {
	m := &TransactionMetrics{
		Commits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "ledger",
			Subsystem: "txn",
			Name:      "commits_total",
			Help:      "Number of successfully committed units of work.",
		}),
		Rollbacks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "ledger",
			Subsystem: "txn",
			Name:      "rollbacks_total",
			Help:      "Number of rolled back units of work.",
		}),
		Duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "ledger",
			Subsystem: "txn",
			Name:      "commit_duration_seconds",
			Help:      "Time spent validating and applying a commit.",
			Buckets:   prometheus.DefBuckets,
		}),
	}
	if reg != nil {
		reg.MustRegister(m.Commits, m.Rollbacks, m.Duration)
	}
	return m
}
