package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewTransactionMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewTransactionMetrics(reg)

	m.Commits.Inc()
	m.Commits.Inc()
	m.Rollbacks.Inc()
	m.Duration.Observe(0.02)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.Commits))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Rollbacks))

	families, err := reg.Gather()
	require.NoError(t, err)
	names := make([]string, 0, len(families))
	for _, f := range families {
		names = append(names, f.GetName())
	}
	assert.Contains(t, names, "ledger_txn_commits_total")
	assert.Contains(t, names, "ledger_txn_rollbacks_total")
	assert.Contains(t, names, "ledger_txn_commit_duration_seconds")
}

func TestNilRegistererIsAllowed(t *testing.T) {
	m := NewTransactionMetrics(nil)
	m.Commits.Inc()
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Commits))
}
