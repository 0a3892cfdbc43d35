// Package txn provides atomic units of work spanning multiple records.
//
// A transaction buffers mutations against a begin-time snapshot; nothing is
// visible to other readers until commit. Commit serializes on a manager-wide
// lock, validates the net effect, then applies the buffered mutations to the
// record store with an undo log — either all mutations apply or none do.
package txn

import (
	"fmt"
	"time"

	"github.com/tallyward/ledgercore/internal/errs"
	"github.com/tallyward/ledgercore/internal/models"
	"github.com/tallyward/ledgercore/internal/storage"
)

// State is the lifecycle state of a transaction.
type State int

const (
	StateActive State = iota
	StateCommitted
	StateRolledBack
)

func (s State) String() string {
	switch s {
	case StateActive:
		return "active"
	case StateCommitted:
		return "committed"
	case StateRolledBack:
		return "rolled back"
	default:
		return "unknown"
	}
}

// savepoint marks a position in the mutation log. Unnamed savepoints are the
// implicit markers of nested transactions.
type savepoint struct {
	name   string
	logLen int
	depth  int
}

// Tx is one unit of work. Not safe for concurrent use by multiple
// goroutines.
type Tx struct {
	mgr   *Manager
	state State
	depth int

	base *storage.Snapshot // store state at Begin
	work *storage.Snapshot // base plus buffered mutations

	log        []storage.Mutation
	savepoints []savepoint

	timeout   time.Duration
	startedAt time.Time
}

// State returns the transaction's lifecycle state.
func (tx *Tx) State() State { return tx.state }

// Depth returns the current nesting depth, starting at 1.
func (tx *Tx) Depth() int { return tx.depth }

// WithTimeout overrides the manager's commit timeout for this transaction.
func (tx *Tx) WithTimeout(d time.Duration) *Tx {
	tx.timeout = d
	return tx
}

func (tx *Tx) active() error {
	if tx.state != StateActive {
		return errs.TransactionState("transaction is " + tx.state.String())
	}
	return nil
}

// Get reads a record as the transaction sees it: the begin-time snapshot
// overlaid with this transaction's own buffered mutations.
func (tx *Tx) Get(t models.EntityType, id string) (models.Record, error) {
	if err := tx.active(); err != nil {
		return nil, err
	}
	rec, ok := tx.work.Get(t, id)
	if !ok {
		return nil, storage.ErrNotFound
	}
	return rec.CloneRecord(), nil
}

// GetAll reads every record of a type as the transaction sees it.
func (tx *Tx) GetAll(t models.EntityType) ([]models.Record, error) {
	if err := tx.active(); err != nil {
		return nil, err
	}
	var out []models.Record
	switch t {
	case models.EntityPerson:
		for _, r := range tx.work.Persons {
			out = append(out, r.CloneRecord())
		}
	case models.EntityGroup:
		for _, r := range tx.work.Groups {
			out = append(out, r.CloneRecord())
		}
	case models.EntityGroupExpense:
		for _, r := range tx.work.Expenses {
			out = append(out, r.CloneRecord())
		}
	case models.EntitySplitBill:
		for _, r := range tx.work.SplitBills {
			out = append(out, r.CloneRecord())
		}
	case models.EntitySubscription:
		for _, r := range tx.work.Subscriptions {
			out = append(out, r.CloneRecord())
		}
	case models.EntityTransaction:
		for _, r := range tx.work.Transactions {
			out = append(out, r.CloneRecord())
		}
	}
	return out, nil
}

// Snapshot returns a copy of the transaction's current view, for read-only
// planners (validator, calculator, graph).
func (tx *Tx) Snapshot() *storage.Snapshot {
	return tx.work.Clone()
}

// Insert buffers an insert.
func (tx *Tx) Insert(rec models.Record) error {
	if err := tx.active(); err != nil {
		return err
	}
	if tx.work.Has(rec.RecordType(), rec.RecordID()) {
		return errs.InvalidArgument(fmt.Sprintf("%s %s already exists", rec.RecordType(), rec.RecordID()))
	}
	tx.buffer(storage.Insert(rec))
	return nil
}

// Update buffers an update of an existing record.
func (tx *Tx) Update(rec models.Record) error {
	if err := tx.active(); err != nil {
		return err
	}
	if !tx.work.Has(rec.RecordType(), rec.RecordID()) {
		return errs.ReferenceMissing(rec.RecordType(), rec.RecordID())
	}
	tx.buffer(storage.Update(rec))
	return nil
}

// Delete buffers a delete of an existing record.
func (tx *Tx) Delete(t models.EntityType, id string) error {
	if err := tx.active(); err != nil {
		return err
	}
	if !tx.work.Has(t, id) {
		return errs.ReferenceMissing(t, id)
	}
	tx.buffer(storage.Delete(t, id))
	return nil
}

// Apply buffers a pre-built mutation list, e.g. a delete plan or settlement
// plan, validating each step against the transaction's view.
func (tx *Tx) Apply(muts []storage.Mutation) error {
	for _, m := range muts {
		var err error
		switch m.Op {
		case storage.OpInsert:
			err = tx.Insert(m.Record)
		case storage.OpUpdate:
			err = tx.Update(m.Record)
		case storage.OpDelete:
			err = tx.Delete(m.Type, m.ID)
		default:
			err = errs.InvalidArgument("unknown mutation op " + string(m.Op))
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func (tx *Tx) buffer(m storage.Mutation) {
	tx.log = append(tx.log, m)
	tx.work.Apply([]storage.Mutation{m})
}

// Savepoint places a named marker at the current position in the mutation
// log. A later savepoint with the same name shadows an earlier one.
func (tx *Tx) Savepoint(name string) error {
	if err := tx.active(); err != nil {
		return err
	}
	tx.savepoints = append(tx.savepoints, savepoint{name: name, logLen: len(tx.log), depth: tx.depth})
	return nil
}

// RollbackToSavepoint undoes every mutation buffered after the topmost
// savepoint with the given name and returns to Active. The savepoint itself
// survives, so it can be rolled back to again; savepoints placed after it
// are dropped.
func (tx *Tx) RollbackToSavepoint(name string) error {
	if err := tx.active(); err != nil {
		return err
	}
	idx := tx.findSavepoint(name)
	if idx < 0 {
		return errs.TransactionState("no savepoint named " + name)
	}
	tx.truncateLog(tx.savepoints[idx].logLen)
	tx.savepoints = tx.savepoints[:idx+1]
	return nil
}

// ReleaseSavepoint discards the topmost savepoint with the given name (and
// any placed after it) without undoing mutations.
func (tx *Tx) ReleaseSavepoint(name string) error {
	if err := tx.active(); err != nil {
		return err
	}
	idx := tx.findSavepoint(name)
	if idx < 0 {
		return errs.TransactionState("no savepoint named " + name)
	}
	tx.savepoints = tx.savepoints[:idx]
	return nil
}

func (tx *Tx) findSavepoint(name string) int {
	for i := len(tx.savepoints) - 1; i >= 0; i-- {
		if tx.savepoints[i].name == name && tx.savepoints[i].name != "" {
			return i
		}
	}
	return -1
}

// truncateLog rewinds the mutation log to length n and rebuilds the working
// view from the begin-time snapshot.
func (tx *Tx) truncateLog(n int) {
	tx.log = tx.log[:n]
	tx.work = tx.base.Project(tx.log)
}

// BeginNested opens a nested transaction: an implicit savepoint plus a depth
// counter bounded by the configured maximum. Exceeding the bound fails fast
// rather than silently flattening.
func (tx *Tx) BeginNested() error {
	if err := tx.active(); err != nil {
		return err
	}
	if tx.depth+1 > tx.mgr.cfg.maxNestingDepth() {
		return errs.NestingLimit(tx.depth+1, tx.mgr.cfg.maxNestingDepth())
	}
	tx.depth++
	tx.savepoints = append(tx.savepoints, savepoint{logLen: len(tx.log), depth: tx.depth})
	return nil
}

// CommitNested keeps the nested transaction's mutations in the parent and
// pops one nesting level. The outermost level commits through the manager.
func (tx *Tx) CommitNested() error {
	idx, err := tx.nestedMarker()
	if err != nil {
		return err
	}
	tx.savepoints = append(tx.savepoints[:idx], tx.savepoints[idx+1:]...)
	tx.depth--
	return nil
}

// RollbackNested undoes the nested transaction's mutations and pops one
// nesting level; the parent stays Active.
func (tx *Tx) RollbackNested() error {
	idx, err := tx.nestedMarker()
	if err != nil {
		return err
	}
	tx.truncateLog(tx.savepoints[idx].logLen)
	tx.savepoints = tx.savepoints[:idx]
	tx.depth--
	return nil
}

func (tx *Tx) nestedMarker() (int, error) {
	if err := tx.active(); err != nil {
		return 0, err
	}
	if tx.depth <= 1 {
		return 0, errs.TransactionState("no nested transaction to finish")
	}
	for i := len(tx.savepoints) - 1; i >= 0; i-- {
		if tx.savepoints[i].name == "" && tx.savepoints[i].depth == tx.depth {
			return i, nil
		}
	}
	return 0, errs.TransactionState("nested transaction marker missing")
}
