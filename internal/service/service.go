// Package service is the engine's command surface. Each inbound command maps
// 1:1 onto one transaction manager unit of work: inside it the reference
// validator checks preconditions, the calculator computes derived deltas,
// the debt graph analyzer checks the resulting graph, and only if all checks
// pass does the unit commit to the record store.
package service

import (
	"log/slog"

	"github.com/tallyward/ledgercore/internal/graph"
	"github.com/tallyward/ledgercore/internal/storage"
	"github.com/tallyward/ledgercore/internal/txn"
	"github.com/tallyward/ledgercore/pkg/metrics"
)

// Config assembles the engine.
type Config struct {
	// Txn configures the transaction manager.
	Txn txn.Config

	// Graph configures the debt graph analyzer.
	Graph graph.Config

	// Metrics, when set, mirrors transaction statistics to Prometheus.
	Metrics *metrics.TransactionMetrics

	// Logger defaults to slog.Default.
	Logger *slog.Logger
}

// Engine is the ledger consistency engine: the only mutation gateway to the
// record store.
type Engine struct {
	store    storage.Store
	mgr      *txn.Manager
	graphCfg graph.Config
	log      *slog.Logger
}

// New creates an engine over the store, wiring the integrity checks into
// every commit.
func New(store storage.Store, cfg Config) *Engine {
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	e := &Engine{store: store, graphCfg: cfg.Graph, log: log}

	opts := []txn.Option{
		txn.WithLogger(log),
		txn.WithCheck(e.referenceCheck),
		txn.WithCheck(e.graphCheck),
		txn.WithCheck(e.consistencyCheck),
	}
	if cfg.Metrics != nil {
		opts = append(opts, txn.WithMetrics(cfg.Metrics))
	}
	e.mgr = txn.NewManager(store, cfg.Txn, opts...)
	return e
}

// Manager exposes the transaction manager for callers composing their own
// units of work.
func (e *Engine) Manager() *txn.Manager { return e.mgr }

// Stats returns the transaction manager's health statistics.
func (e *Engine) Stats() txn.Stats { return e.mgr.Stats() }
