package storage

import (
	"context"
	"fmt"

	"github.com/tallyward/ledgercore/internal/models"
)

// Snapshot is a typed, read-only view of the whole store at one point in
// time. The validator, graph analyzer and calculator all operate on
// snapshots and never touch the store directly.
type Snapshot struct {
	Persons       map[string]*models.Person
	Groups        map[string]*models.Group
	Expenses      map[string]*models.GroupExpense
	SplitBills    map[string]*models.SplitBill
	Subscriptions map[string]*models.Subscription
	Transactions  map[string]*models.Transaction
}

// NewSnapshot returns an empty snapshot with all maps allocated.
func NewSnapshot() *Snapshot {
	return &Snapshot{
		Persons:       map[string]*models.Person{},
		Groups:        map[string]*models.Group{},
		Expenses:      map[string]*models.GroupExpense{},
		SplitBills:    map[string]*models.SplitBill{},
		Subscriptions: map[string]*models.Subscription{},
		Transactions:  map[string]*models.Transaction{},
	}
}

// TakeSnapshot reads every record out of the store into a snapshot.
func TakeSnapshot(ctx context.Context, s Store) (*Snapshot, error) {
	snap := NewSnapshot()
	for _, t := range models.EntityTypes() {
		recs, err := s.GetAll(ctx, t)
		if err != nil {
			return nil, fmt.Errorf("snapshot %s: %w", t, err)
		}
		for _, rec := range recs {
			snap.Put(rec)
		}
	}
	return snap, nil
}

// Clone deep-copies the snapshot.
func (s *Snapshot) Clone() *Snapshot {
	cp := NewSnapshot()
	for id, p := range s.Persons {
		cp.Persons[id] = p.CloneRecord().(*models.Person)
	}
	for id, g := range s.Groups {
		cp.Groups[id] = g.CloneRecord().(*models.Group)
	}
	for id, e := range s.Expenses {
		cp.Expenses[id] = e.CloneRecord().(*models.GroupExpense)
	}
	for id, b := range s.SplitBills {
		cp.SplitBills[id] = b.CloneRecord().(*models.SplitBill)
	}
	for id, sub := range s.Subscriptions {
		cp.Subscriptions[id] = sub.CloneRecord().(*models.Subscription)
	}
	for id, t := range s.Transactions {
		cp.Transactions[id] = t.CloneRecord().(*models.Transaction)
	}
	return cp
}

// Get returns the record with the given type and id, if present. The
// returned record is the snapshot's own copy; callers must not mutate it.
func (s *Snapshot) Get(t models.EntityType, id string) (models.Record, bool) {
	switch t {
	case models.EntityPerson:
		r, ok := s.Persons[id]
		return r, ok
	case models.EntityGroup:
		r, ok := s.Groups[id]
		return r, ok
	case models.EntityGroupExpense:
		r, ok := s.Expenses[id]
		return r, ok
	case models.EntitySplitBill:
		r, ok := s.SplitBills[id]
		return r, ok
	case models.EntitySubscription:
		r, ok := s.Subscriptions[id]
		return r, ok
	case models.EntityTransaction:
		r, ok := s.Transactions[id]
		return r, ok
	default:
		return nil, false
	}
}

// Has reports whether a record with the given type and id exists.
func (s *Snapshot) Has(t models.EntityType, id string) bool {
	_, ok := s.Get(t, id)
	return ok
}

// Put stores a clone of rec in the snapshot, replacing any previous record
// with the same type and id.
func (s *Snapshot) Put(rec models.Record) {
	switch r := rec.CloneRecord().(type) {
	case *models.Person:
		s.Persons[r.ID] = r
	case *models.Group:
		s.Groups[r.ID] = r
	case *models.GroupExpense:
		s.Expenses[r.ID] = r
	case *models.SplitBill:
		s.SplitBills[r.ID] = r
	case *models.Subscription:
		s.Subscriptions[r.ID] = r
	case *models.Transaction:
		s.Transactions[r.ID] = r
	}
}

// Remove drops the record with the given type and id, if present.
func (s *Snapshot) Remove(t models.EntityType, id string) {
	switch t {
	case models.EntityPerson:
		delete(s.Persons, id)
	case models.EntityGroup:
		delete(s.Groups, id)
	case models.EntityGroupExpense:
		delete(s.Expenses, id)
	case models.EntitySplitBill:
		delete(s.SplitBills, id)
	case models.EntitySubscription:
		delete(s.Subscriptions, id)
	case models.EntityTransaction:
		delete(s.Transactions, id)
	}
}

// Apply replays mutations onto the snapshot in order.
func (s *Snapshot) Apply(muts []Mutation) {
	for _, m := range muts {
		switch m.Op {
		case OpInsert, OpUpdate:
			s.Put(m.Record)
		case OpDelete:
			s.Remove(m.Type, m.ID)
		}
	}
}

// Project clones the snapshot and applies mutations to the clone, leaving
// the receiver untouched. Used for pre-commit checks over the net effect of
// a transaction.
func (s *Snapshot) Project(muts []Mutation) *Snapshot {
	cp := s.Clone()
	cp.Apply(muts)
	return cp
}
