package txn

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/tallyward/ledgercore/internal/errs"
	"github.com/tallyward/ledgercore/internal/models"
	"github.com/tallyward/ledgercore/internal/storage"
	"github.com/tallyward/ledgercore/pkg/metrics"
)

// Defaults for Config zero values.
const (
	DefaultMaxNestingDepth = 8
	DefaultCommitTimeout   = 30 * time.Second
)

// Config holds the manager's knobs.
type Config struct {
	// MaxNestingDepth bounds nested transactions; DefaultMaxNestingDepth
	// when zero.
	MaxNestingDepth int

	// CommitTimeout bounds how long a commit may wait for the commit lock
	// and run its checks before it is rolled back automatically;
	// DefaultCommitTimeout when zero.
	CommitTimeout time.Duration
}

func (c Config) maxNestingDepth() int {
	if c.MaxNestingDepth <= 0 {
		return DefaultMaxNestingDepth
	}
	return c.MaxNestingDepth
}

func (c Config) commitTimeout() time.Duration {
	if c.CommitTimeout <= 0 {
		return DefaultCommitTimeout
	}
	return c.CommitTimeout
}

// CommitCheck inspects the net effect of a transaction before it becomes
// visible. before is the last-committed state, after is before with the net
// mutations projected on top. Any error aborts the commit and rolls back.
type CommitCheck func(ctx context.Context, before, after *storage.Snapshot, muts []storage.Mutation) error

// Stats summarizes the manager's history for health monitoring.
type Stats struct {
	Commits           uint64        `json:"commits"`
	Rollbacks         uint64        `json:"rollbacks"`
	AvgCommitDuration time.Duration `json:"avg_commit_duration"`
}

// Manager coordinates units of work over one record store. Commits are
// serialized: two concurrent units cannot both read-modify-write the same
// balance without one waiting. Correctness of money balances takes priority
// over throughput.
type Manager struct {
	store  storage.Store
	cfg    Config
	checks []CommitCheck
	m      *metrics.TransactionMetrics
	log    *slog.Logger

	commitCh chan struct{} // size-1 semaphore; ctx-aware commit lock

	statsMu         sync.Mutex
	commits         uint64
	rollbacks       uint64
	totalCommitTime time.Duration
}

// Option customizes a Manager.
type Option func(*Manager)

// WithCheck appends a commit-time check; checks run in registration order.
func WithCheck(c CommitCheck) Option {
	return func(m *Manager) { m.checks = append(m.checks, c) }
}

// WithMetrics mirrors the manager's statistics to Prometheus collectors.
func WithMetrics(tm *metrics.TransactionMetrics) Option {
	return func(m *Manager) { m.m = tm }
}

// WithLogger sets the manager's logger; slog.Default otherwise.
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) { m.log = l }
}

// NewManager creates a transaction manager over the store.
func NewManager(store storage.Store, cfg Config, opts ...Option) *Manager {
	m := &Manager{
		store:    store,
		cfg:      cfg,
		log:      slog.Default(),
		commitCh: make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Begin opens a unit of work against the current committed state.
func (m *Manager) Begin(ctx context.Context) (*Tx, error) {
	snap, err := storage.TakeSnapshot(ctx, m.store)
	if err != nil {
		return nil, errs.Storage(err)
	}
	return &Tx{
		mgr:       m,
		state:     StateActive,
		depth:     1,
		base:      snap,
		work:      snap.Clone(),
		startedAt: time.Now(),
	}, nil
}

// Commit validates the transaction's net effect and makes it visible. On
// any validation, storage or timeout failure the transaction is rolled back
// and the store is left exactly as it was before Begin.
func (m *Manager) Commit(ctx context.Context, tx *Tx) error {
	if err := tx.active(); err != nil {
		return err
	}
	if tx.depth > 1 {
		return errs.TransactionState("nested transaction still open; commit or roll it back first")
	}

	timeout := tx.timeout
	if timeout <= 0 {
		timeout = m.cfg.commitTimeout()
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	// Commits are applied in the order they acquire this lock.
	select {
	case m.commitCh <- struct{}{}:
	case <-ctx.Done():
		m.finishRollback(tx)
		return errs.Timeout(timeout)
	}
	defer func() { <-m.commitCh }()

	start := time.Now()
	net := netEffect(tx.log)

	before, err := storage.TakeSnapshot(ctx, m.store)
	if err != nil {
		m.finishRollback(tx)
		return errs.Storage(err)
	}
	if err := conflicts(tx.base, before, net); err != nil {
		m.finishRollback(tx)
		return err
	}
	after := before.Project(net)

	for _, check := range m.checks {
		if err := check(ctx, before, after, net); err != nil {
			m.finishRollback(tx)
			return err
		}
	}
	if ctx.Err() != nil {
		m.finishRollback(tx)
		return errs.Timeout(timeout)
	}

	if err := m.apply(ctx, before, net); err != nil {
		m.finishRollback(tx)
		if ctx.Err() != nil {
			return errs.Timeout(timeout)
		}
		return err
	}

	tx.state = StateCommitted
	elapsed := time.Since(start)
	m.recordCommit(elapsed)
	m.log.Debug("transaction committed",
		"mutations", len(net),
		"duration_ms", elapsed.Milliseconds(),
	)
	return nil
}

// conflicts detects write-write races: every record this transaction writes
// must be unchanged between its begin-time snapshot and the commit-time one.
// The first committer wins; the loser rolls back with a WriteConflict and may
// retry against fresh state. Without this, two units begun from the same
// snapshot could both read-modify-write one record and the later commit would
// silently overwrite the earlier one.
func conflicts(base, before *storage.Snapshot, net []storage.Mutation) error {
	for _, mu := range net {
		was, hadBase := base.Get(mu.Type, mu.ID)
		now, hasNow := before.Get(mu.Type, mu.ID)
		switch mu.Op {
		case storage.OpInsert:
			if hasNow {
				return errs.WriteConflict(mu.Type, mu.ID)
			}
		default:
			if hadBase != hasNow || (hadBase && !recordsEqual(was, now)) {
				return errs.WriteConflict(mu.Type, mu.ID)
			}
		}
	}
	return nil
}

// recordsEqual compares two records by their canonical JSON form, the same
// representation the sqlite store persists.
func recordsEqual(a, b models.Record) bool {
	ab, err := json.Marshal(a)
	if err != nil {
		return false
	}
	bb, err := json.Marshal(b)
	if err != nil {
		return false
	}
	return bytes.Equal(ab, bb)
}

// apply writes the net mutations to the store one by one, undoing the
// already-applied prefix if any write fails so no partial state is left
// behind.
func (m *Manager) apply(ctx context.Context, before *storage.Snapshot, net []storage.Mutation) error {
	var undo []storage.Mutation
	for _, mu := range net {
		var err error
		switch mu.Op {
		case storage.OpInsert:
			err = m.store.Insert(ctx, mu.Record)
			if err == nil {
				undo = append(undo, storage.Delete(mu.Type, mu.ID))
			}
		case storage.OpUpdate:
			old, ok := before.Get(mu.Type, mu.ID)
			if !ok {
				err = storage.ErrNotFound
				break
			}
			err = m.store.Update(ctx, mu.Record)
			if err == nil {
				undo = append(undo, storage.Update(old))
			}
		case storage.OpDelete:
			old, ok := before.Get(mu.Type, mu.ID)
			if !ok {
				err = storage.ErrNotFound
				break
			}
			err = m.store.Delete(ctx, mu.Type, mu.ID)
			if err == nil {
				undo = append(undo, storage.Insert(old))
			}
		}
		if err != nil {
			m.reverse(undo)
			return errs.Storage(err)
		}
	}
	return nil
}

// reverse best-effort undoes applied mutations in LIFO order.
func (m *Manager) reverse(undo []storage.Mutation) {
	ctx := context.Background()
	for i := len(undo) - 1; i >= 0; i-- {
		mu := undo[i]
		var err error
		switch mu.Op {
		case storage.OpInsert:
			err = m.store.Insert(ctx, mu.Record)
		case storage.OpUpdate:
			err = m.store.Update(ctx, mu.Record)
		case storage.OpDelete:
			err = m.store.Delete(ctx, mu.Type, mu.ID)
		}
		if err != nil {
			m.log.Error("failed to undo applied mutation during rollback",
				"op", string(mu.Op), "type", string(mu.Type), "id", mu.ID, "error", err,
			)
		}
	}
}

// Rollback discards all buffered mutations. Rolling back an already
// rolled-back transaction is a no-op; rolling back a committed one is an
// error.
func (m *Manager) Rollback(tx *Tx) error {
	switch tx.state {
	case StateRolledBack:
		return nil
	case StateCommitted:
		return errs.TransactionState("transaction already committed; issue a compensating transaction instead")
	}
	m.finishRollback(tx)
	return nil
}

func (m *Manager) finishRollback(tx *Tx) {
	tx.state = StateRolledBack
	tx.log = nil
	tx.work = nil
	tx.savepoints = nil
	m.recordRollback()
}

// Run executes fn inside a unit of work, committing on success and rolling
// back on error.
func (m *Manager) Run(ctx context.Context, fn func(tx *Tx) error) error {
	tx, err := m.Begin(ctx)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = m.Rollback(tx)
		return err
	}
	return m.Commit(ctx, tx)
}

// AtomicInsert inserts all records in one unit of work.
func (m *Manager) AtomicInsert(ctx context.Context, recs ...models.Record) error {
	return m.Run(ctx, func(tx *Tx) error {
		for _, rec := range recs {
			if err := tx.Insert(rec); err != nil {
				return err
			}
		}
		return nil
	})
}

// AtomicUpdate updates all records in one unit of work.
func (m *Manager) AtomicUpdate(ctx context.Context, recs ...models.Record) error {
	return m.Run(ctx, func(tx *Tx) error {
		for _, rec := range recs {
			if err := tx.Update(rec); err != nil {
				return err
			}
		}
		return nil
	})
}

// AtomicDelete deletes all records in one unit of work.
func (m *Manager) AtomicDelete(ctx context.Context, recs ...models.Record) error {
	return m.Run(ctx, func(tx *Tx) error {
		for _, rec := range recs {
			if err := tx.Delete(rec.RecordType(), rec.RecordID()); err != nil {
				return err
			}
		}
		return nil
	})
}

// Snapshot returns the last-committed state, waiting out any in-flight
// commit so partially applied mutations are never observed.
func (m *Manager) Snapshot(ctx context.Context) (*storage.Snapshot, error) {
	select {
	case m.commitCh <- struct{}{}:
	case <-ctx.Done():
		return nil, errs.Timeout(0)
	}
	defer func() { <-m.commitCh }()
	snap, err := storage.TakeSnapshot(ctx, m.store)
	if err != nil {
		return nil, errs.Storage(err)
	}
	return snap, nil
}

// Stats returns commit/rollback counts and the average commit duration.
func (m *Manager) Stats() Stats {
	m.statsMu.Lock()
	defer m.statsMu.Unlock()
	s := Stats{Commits: m.commits, Rollbacks: m.rollbacks}
	if m.commits > 0 {
		s.AvgCommitDuration = m.totalCommitTime / time.Duration(m.commits)
	}
	return s
}

func (m *Manager) recordCommit(d time.Duration) {
	m.statsMu.Lock()
	m.commits++
	m.totalCommitTime += d
	m.statsMu.Unlock()
	if m.m != nil {
		m.m.Commits.Inc()
		m.m.Duration.Observe(d.Seconds())
	}
}

func (m *Manager) recordRollback() {
	m.statsMu.Lock()
	m.rollbacks++
	m.statsMu.Unlock()
	if m.m != nil {
		m.m.Rollbacks.Inc()
	}
}

// netEffect folds the ordered mutation log into one mutation per record:
// insert+update = insert, insert+delete = nothing, update+delete = delete,
// delete+insert = update.
func netEffect(log []storage.Mutation) []storage.Mutation {
	type key struct {
		t  models.EntityType
		id string
	}
	type slot struct {
		mut     storage.Mutation
		dropped bool
	}
	var order []key
	byKey := make(map[key]*slot)

	for _, mu := range log {
		k := key{mu.Type, mu.ID}
		prev, seen := byKey[k]
		if !seen || prev.dropped {
			if !seen {
				order = append(order, k)
				byKey[k] = &slot{mut: mu}
			} else {
				prev.mut = mu
				prev.dropped = false
			}
			continue
		}
		switch {
		case prev.mut.Op == storage.OpInsert && mu.Op == storage.OpUpdate:
			prev.mut = storage.Mutation{Op: storage.OpInsert, Type: mu.Type, ID: mu.ID, Record: mu.Record}
		case prev.mut.Op == storage.OpInsert && mu.Op == storage.OpDelete:
			prev.dropped = true
		case prev.mut.Op == storage.OpUpdate && mu.Op == storage.OpUpdate:
			prev.mut = mu
		case prev.mut.Op == storage.OpUpdate && mu.Op == storage.OpDelete:
			prev.mut = mu
		case prev.mut.Op == storage.OpDelete && mu.Op == storage.OpInsert:
			prev.mut = storage.Mutation{Op: storage.OpUpdate, Type: mu.Type, ID: mu.ID, Record: mu.Record}
		default:
			prev.mut = mu
		}
	}

	out := make([]storage.Mutation, 0, len(order))
	for _, k := range order {
		s := byKey[k]
		if !s.dropped {
			out = append(out, s.mut)
		}
	}
	return out
}
