// Package validator enforces referential integrity between records.
//
// The validator works on read-only snapshots taken at commit time. It never
// mutates anything itself: delete policies produce mutation plans that the
// transaction manager applies.
package validator

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/tallyward/ledgercore/internal/calculator"
	"github.com/tallyward/ledgercore/internal/errs"
	"github.com/tallyward/ledgercore/internal/models"
	"github.com/tallyward/ledgercore/internal/storage"
)

// Validator checks referential integrity over one snapshot.
type Validator struct {
	snap *storage.Snapshot
}

// New creates a validator over the snapshot.
func New(snap *storage.Snapshot) *Validator {
	return &Validator{snap: snap}
}

// Exists reports whether a record with the given type and id exists.
func (v *Validator) Exists(t models.EntityType, id string) bool {
	return v.snap.Has(t, id)
}

// ValidateReferences verifies every id the record references. It returns one
// error per problem — missing references, empty participant sets, stale
// cached totals — not just the first, so the caller can present all problems
// at once.
func (v *Validator) ValidateReferences(rec models.Record) errs.Violations {
	var out errs.Violations
	missing := func(t models.EntityType, id string) {
		out = append(out, errs.ReferenceMissing(t, id))
	}

	switch r := rec.(type) {
	case *models.GroupExpense:
		if r.GroupID != "" && !v.Exists(models.EntityGroup, r.GroupID) {
			missing(models.EntityGroup, r.GroupID)
		}
		if !v.Exists(models.EntityPerson, r.PaidBy) {
			missing(models.EntityPerson, r.PaidBy)
		}
		if len(r.SplitBetween) == 0 {
			out = append(out, errs.InvalidArgument(fmt.Sprintf("expense %s has no participants", r.ID)))
		}
		for _, p := range r.SplitBetween {
			if !v.Exists(models.EntityPerson, p) {
				missing(models.EntityPerson, p)
			}
		}

	case *models.SplitBill:
		if !v.Exists(models.EntityPerson, r.PaidByID) {
			missing(models.EntityPerson, r.PaidByID)
		}
		for _, p := range r.Participants {
			if !v.Exists(models.EntityPerson, p.PersonID) {
				missing(models.EntityPerson, p.PersonID)
			}
		}
		if err := calculator.ValidateSplitBill(r); err != nil {
			var e *errs.Error
			if errors.As(err, &e) {
				out = append(out, e)
			}
		}

	case *models.Group:
		for _, m := range r.Members {
			if !v.Exists(models.EntityPerson, m) {
				missing(models.EntityPerson, m)
			}
		}
		total := calcGroupTotal(v.snap, r)
		for _, eid := range r.ExpenseIDs {
			if !v.Exists(models.EntityGroupExpense, eid) {
				missing(models.EntityGroupExpense, eid)
			}
		}
		if !total.Equal(r.TotalAmount) {
			out = append(out, errs.RoundingInvariant(models.EntityGroup, r.ID, total, r.TotalAmount))
		}

	case *models.Subscription:
		for _, p := range r.SharedWith {
			if !v.Exists(models.EntityPerson, p) {
				missing(models.EntityPerson, p)
			}
		}

	case *models.Transaction:
		if r.RelatedPersonID != "" && !v.Exists(models.EntityPerson, r.RelatedPersonID) {
			missing(models.EntityPerson, r.RelatedPersonID)
		}
		if r.Kind == models.KindTransfer {
			if !v.Exists(models.EntityPerson, r.FromPersonID) {
				missing(models.EntityPerson, r.FromPersonID)
			}
			if !v.Exists(models.EntityPerson, r.ToPersonID) {
				missing(models.EntityPerson, r.ToPersonID)
			}
		}
	}
	return out
}

// RefCounts holds the inbound reference counts for one person, used to
// decide whether deletion is safe. Transactions are not counted: their
// person link is optional and cleared rather than blocking deletes.
type RefCounts struct {
	Groups        int `json:"groups"`
	Expenses      int `json:"expenses"`
	SplitBills    int `json:"split_bills"`
	Subscriptions int `json:"subscriptions"`
}

// Total returns the sum of all counts.
func (c RefCounts) Total() int {
	return c.Groups + c.Expenses + c.SplitBills + c.Subscriptions
}

func (c RefCounts) String() string {
	parts := []string{}
	appendPart := func(n int, singular string) {
		if n == 0 {
			return
		}
		label := singular
		if n != 1 {
			label += "s"
		}
		parts = append(parts, fmt.Sprintf("%d %s", n, label))
	}
	appendPart(c.Groups, "group")
	appendPart(c.Expenses, "expense")
	appendPart(c.SplitBills, "split bill")
	appendPart(c.Subscriptions, "subscription")
	if len(parts) == 0 {
		return "nothing"
	}
	return strings.Join(parts, ", ")
}

// CountReferences counts every record referencing the person.
func (v *Validator) CountReferences(personID string) RefCounts {
	var c RefCounts
	for _, g := range v.snap.Groups {
		if g.HasMember(personID) {
			c.Groups++
		}
	}
	for _, e := range v.snap.Expenses {
		if e.PaidBy == personID || e.Splits(personID) {
			c.Expenses++
		}
	}
	for _, b := range v.snap.SplitBills {
		_, isParticipant := b.Participant(personID)
		if b.PaidByID == personID || isParticipant {
			c.SplitBills++
		}
	}
	for _, s := range v.snap.Subscriptions {
		for _, p := range s.SharedWith {
			if p == personID {
				c.Subscriptions++
				break
			}
		}
	}
	return c
}

// OrphanedRecord describes a record whose required foreign-key target no
// longer exists in the store.
type OrphanedRecord struct {
	Type        models.EntityType `json:"type"`
	ID          string            `json:"id"`
	Field       string            `json:"field"`
	MissingType models.EntityType `json:"missing_type"`
	MissingID   string            `json:"missing_id"`
}

// DetectOrphans scans GroupExpense, SplitBill and Subscription records for
// references to nonexistent Person or Group ids. Results come back in
// deterministic (type, id) order.
func (v *Validator) DetectOrphans() []OrphanedRecord {
	var out []OrphanedRecord
	report := func(t models.EntityType, id, field string, mt models.EntityType, mid string) {
		out = append(out, OrphanedRecord{Type: t, ID: id, Field: field, MissingType: mt, MissingID: mid})
	}

	for _, id := range sortedIDs(v.snap.Expenses) {
		e := v.snap.Expenses[id]
		if e.GroupID != "" && !v.Exists(models.EntityGroup, e.GroupID) {
			report(models.EntityGroupExpense, e.ID, "group_id", models.EntityGroup, e.GroupID)
		}
		if !v.Exists(models.EntityPerson, e.PaidBy) {
			report(models.EntityGroupExpense, e.ID, "paid_by", models.EntityPerson, e.PaidBy)
		}
		for _, p := range e.SplitBetween {
			if !v.Exists(models.EntityPerson, p) {
				report(models.EntityGroupExpense, e.ID, "split_between", models.EntityPerson, p)
			}
		}
	}
	for _, id := range sortedIDs(v.snap.SplitBills) {
		b := v.snap.SplitBills[id]
		if !v.Exists(models.EntityPerson, b.PaidByID) {
			report(models.EntitySplitBill, b.ID, "paid_by_id", models.EntityPerson, b.PaidByID)
		}
		for _, p := range b.Participants {
			if !v.Exists(models.EntityPerson, p.PersonID) {
				report(models.EntitySplitBill, b.ID, "participants", models.EntityPerson, p.PersonID)
			}
		}
	}
	for _, id := range sortedIDs(v.snap.Subscriptions) {
		s := v.snap.Subscriptions[id]
		for _, p := range s.SharedWith {
			if !v.Exists(models.EntityPerson, p) {
				report(models.EntitySubscription, s.ID, "shared_with", models.EntityPerson, p)
			}
		}
	}
	return out
}

// calcGroupTotal sums the live expense amounts behind the group's cache.
func calcGroupTotal(snap *storage.Snapshot, g *models.Group) decimal.Decimal {
	total := decimal.Zero
	for _, eid := range g.ExpenseIDs {
		if e, ok := snap.Expenses[eid]; ok {
			total = total.Add(e.Amount)
		}
	}
	return total
}

func sortedIDs[T any](m map[string]T) []string {
	ids := make([]string, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
