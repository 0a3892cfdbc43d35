package validator

import (
	"github.com/shopspring/decimal"

	"github.com/tallyward/ledgercore/internal/calculator"
	"github.com/tallyward/ledgercore/internal/errs"
	"github.com/tallyward/ledgercore/internal/models"
	"github.com/tallyward/ledgercore/internal/storage"
)

// DeletePolicy governs what happens to dependent records when a person is
// deleted.
type DeletePolicy string

const (
	// Restrict fails the delete while any required reference exists.
	Restrict DeletePolicy = "restrict"

	// Cascade deletes rows where the person is the sole required party,
	// removes the person from shared rows and rebalances.
	Cascade DeletePolicy = "cascade"

	// SetNull clears optional links (Transaction person references) and
	// otherwise behaves like Restrict: required references still block.
	SetNull DeletePolicy = "set_null"

	// Ignore deletes the person record only, leaving dangling references.
	// For explicit data-repair tooling, never a default path.
	Ignore DeletePolicy = "ignore"
)

// ParseDeletePolicy maps a string onto a policy, defaulting to Restrict.
func ParseDeletePolicy(s string) DeletePolicy {
	switch DeletePolicy(s) {
	case Cascade, SetNull, Ignore:
		return DeletePolicy(s)
	default:
		return Restrict
	}
}

// DeleteReport describes what a delete plan touches, entity by entity. It
// doubles as the progress summary for bulk cascades.
type DeleteReport struct {
	PersonID             string       `json:"person_id,omitempty"`
	Policy               DeletePolicy `json:"policy,omitempty"`
	GroupsUpdated        int          `json:"groups_updated"`
	GroupsDeleted        int          `json:"groups_deleted"`
	ExpensesUpdated      int          `json:"expenses_updated"`
	ExpensesDeleted      int          `json:"expenses_deleted"`
	SplitBillsUpdated    int          `json:"split_bills_updated"`
	SplitBillsDeleted    int          `json:"split_bills_deleted"`
	SubscriptionsUpdated int          `json:"subscriptions_updated"`
	SubscriptionsDeleted int          `json:"subscriptions_deleted"`
	TransactionsCleared  int          `json:"transactions_cleared"`
	TransactionsDeleted  int          `json:"transactions_deleted"`
}

// DeletePlan is the mutation list a delete policy produced, applied
// atomically by the transaction manager.
type DeletePlan struct {
	Mutations []storage.Mutation
	Report    DeleteReport
}

// PlanDeletePerson produces the mutations that delete a person under the
// given policy. Deleting a person that does not exist returns
// ReferenceMissing, so a repeated cascade is an error, not a crash.
func (v *Validator) PlanDeletePerson(personID string, policy DeletePolicy) (*DeletePlan, error) {
	if !v.Exists(models.EntityPerson, personID) {
		return nil, errs.ReferenceMissing(models.EntityPerson, personID)
	}

	plan := &DeletePlan{Report: DeleteReport{PersonID: personID, Policy: policy}}
	counts := v.CountReferences(personID)

	switch policy {
	case Restrict, SetNull:
		if counts.Total() > 0 {
			return nil, errs.Referenced(models.EntityPerson, personID, counts.String())
		}
	case Cascade:
		if err := v.planCascade(personID, plan); err != nil {
			return nil, err
		}
	case Ignore:
		// Person record only; dangling references are the caller's problem.
		plan.Mutations = append(plan.Mutations, storage.Delete(models.EntityPerson, personID))
		return plan, nil
	default:
		return nil, errs.InvalidArgument("unknown delete policy " + string(policy))
	}

	v.planClearTransactions(personID, plan)
	plan.Mutations = append(plan.Mutations, storage.Delete(models.EntityPerson, personID))
	return plan, nil
}

// planCascade walks every record referencing the person, working on a
// scratch clone so later steps observe earlier ones, and accumulates the
// balance deltas the removals cause for everyone else.
func (v *Validator) planCascade(personID string, plan *DeletePlan) error {
	work := v.snap.Clone()
	deltas := map[string]decimal.Decimal{}
	addDeltas := func(eff map[string]decimal.Decimal, sign decimal.Decimal) {
		for p, d := range eff {
			deltas[p] = deltas[p].Add(d.Mul(sign))
		}
	}
	minusOne := decimal.NewFromInt(-1)
	plusOne := decimal.NewFromInt(1)

	// Group expenses first: deleting them also fixes up the owning groups.
	for _, id := range sortedIDs(work.Expenses) {
		e := work.Expenses[id]
		if e.PaidBy != personID && !e.Splits(personID) {
			continue
		}
		if !e.IsSettled {
			eff, err := calculator.ExpenseBalanceEffects(e)
			if err != nil {
				return err
			}
			addDeltas(eff, minusOne)
		}

		remaining := removeString(e.SplitBetween, personID)
		if e.PaidBy == personID || len(remaining) == 0 {
			// Sole required party: the row cannot stand without them.
			work.Remove(models.EntityGroupExpense, e.ID)
			plan.Mutations = append(plan.Mutations, storage.Delete(models.EntityGroupExpense, e.ID))
			plan.Report.ExpensesDeleted++
			if g, ok := work.Groups[e.GroupID]; ok {
				updated := g.CloneRecord().(*models.Group)
				updated.ExpenseIDs = removeString(updated.ExpenseIDs, e.ID)
				updated.TotalAmount = updated.TotalAmount.Sub(e.Amount)
				work.Put(updated)
				plan.Mutations = append(plan.Mutations, storage.Update(updated))
			}
			continue
		}

		updated := e.CloneRecord().(*models.GroupExpense)
		updated.SplitBetween = remaining
		if !updated.IsSettled {
			eff, err := calculator.ExpenseBalanceEffects(updated)
			if err != nil {
				return err
			}
			addDeltas(eff, plusOne)
		}
		work.Put(updated)
		plan.Mutations = append(plan.Mutations, storage.Update(updated))
		plan.Report.ExpensesUpdated++
	}

	for _, id := range sortedIDs(work.SplitBills) {
		b := work.SplitBills[id]
		_, isParticipant := b.Participant(personID)
		if b.PaidByID != personID && !isParticipant {
			continue
		}
		addDeltas(calculator.SplitBillBalanceEffects(b), minusOne)

		remaining := make([]models.SplitParticipant, 0, len(b.Participants))
		for _, p := range b.Participants {
			if p.PersonID != personID {
				remaining = append(remaining, p)
			}
		}
		if b.PaidByID == personID || len(remaining) == 0 {
			work.Remove(models.EntitySplitBill, b.ID)
			plan.Mutations = append(plan.Mutations, storage.Delete(models.EntitySplitBill, b.ID))
			plan.Report.SplitBillsDeleted++
			continue
		}

		updated := b.CloneRecord().(*models.SplitBill)
		updated.Participants = remaining
		if row, ok := b.Participant(personID); ok {
			updated.TotalAmount = updated.TotalAmount.Sub(row.Amount)
		}
		addDeltas(calculator.SplitBillBalanceEffects(updated), plusOne)
		work.Put(updated)
		plan.Mutations = append(plan.Mutations, storage.Update(updated))
		plan.Report.SplitBillsUpdated++
	}

	for _, id := range sortedIDs(work.Groups) {
		g := work.Groups[id]
		if !g.HasMember(personID) {
			continue
		}
		updated := g.CloneRecord().(*models.Group)
		updated.Members = removeString(updated.Members, personID)
		work.Put(updated)
		plan.Mutations = append(plan.Mutations, storage.Update(updated))
		plan.Report.GroupsUpdated++
	}

	for _, id := range sortedIDs(work.Subscriptions) {
		s := work.Subscriptions[id]
		if !containsString(s.SharedWith, personID) {
			continue
		}
		remaining := removeString(s.SharedWith, personID)
		if len(remaining) == 0 {
			work.Remove(models.EntitySubscription, s.ID)
			plan.Mutations = append(plan.Mutations, storage.Delete(models.EntitySubscription, s.ID))
			plan.Report.SubscriptionsDeleted++
			continue
		}
		updated := s.CloneRecord().(*models.Subscription)
		updated.SharedWith = remaining
		work.Put(updated)
		plan.Mutations = append(plan.Mutations, storage.Update(updated))
		plan.Report.SubscriptionsUpdated++
	}

	// Transfer rows name the person as a required party; they go with them.
	for _, id := range sortedIDs(work.Transactions) {
		t := work.Transactions[id]
		if t.Kind != models.KindTransfer {
			continue
		}
		if t.FromPersonID != personID && t.ToPersonID != personID {
			continue
		}
		addDeltas(calculator.TransferBalanceEffects(t), minusOne)
		work.Remove(models.EntityTransaction, t.ID)
		plan.Mutations = append(plan.Mutations, storage.Delete(models.EntityTransaction, t.ID))
		plan.Report.TransactionsDeleted++
	}

	// One balance update per surviving person.
	delete(deltas, personID)
	for _, pid := range sortedDeltaKeys(deltas) {
		d := deltas[pid]
		if d.IsZero() {
			continue
		}
		p, ok := work.Persons[pid]
		if !ok {
			return errs.ReferenceMissing(models.EntityPerson, pid)
		}
		updated := p.CloneRecord().(*models.Person)
		updated.Balance = updated.Balance.Add(d)
		work.Put(updated)
		plan.Mutations = append(plan.Mutations, storage.Update(updated))
	}
	return nil
}

// planClearTransactions nulls the optional person link on audit rows.
func (v *Validator) planClearTransactions(personID string, plan *DeletePlan) {
	for _, id := range sortedIDs(v.snap.Transactions) {
		t := v.snap.Transactions[id]
		if t.RelatedPersonID != personID {
			continue
		}
		updated := t.CloneRecord().(*models.Transaction)
		updated.RelatedPersonID = ""
		plan.Mutations = append(plan.Mutations, storage.Update(updated))
		plan.Report.TransactionsCleared++
	}
}

// PlanDeleteGroup produces the mutations that delete a group and its
// expenses, reversing the balance effects of any still unsettled.
func (v *Validator) PlanDeleteGroup(groupID string) (*DeletePlan, error) {
	g, ok := v.snap.Groups[groupID]
	if !ok {
		return nil, errs.ReferenceMissing(models.EntityGroup, groupID)
	}

	plan := &DeletePlan{Report: DeleteReport{Policy: Cascade}}
	deltas := map[string]decimal.Decimal{}
	for _, eid := range g.ExpenseIDs {
		e, ok := v.snap.Expenses[eid]
		if !ok {
			continue
		}
		if !e.IsSettled {
			eff, err := calculator.ExpenseBalanceEffects(e)
			if err != nil {
				return nil, err
			}
			for p, d := range eff {
				deltas[p] = deltas[p].Sub(d)
			}
		}
		plan.Mutations = append(plan.Mutations, storage.Delete(models.EntityGroupExpense, e.ID))
		plan.Report.ExpensesDeleted++
	}

	for _, pid := range sortedDeltaKeys(deltas) {
		d := deltas[pid]
		if d.IsZero() {
			continue
		}
		p, ok := v.snap.Persons[pid]
		if !ok {
			return nil, errs.ReferenceMissing(models.EntityPerson, pid)
		}
		updated := p.CloneRecord().(*models.Person)
		updated.Balance = updated.Balance.Add(d)
		plan.Mutations = append(plan.Mutations, storage.Update(updated))
	}

	plan.Mutations = append(plan.Mutations, storage.Delete(models.EntityGroup, groupID))
	plan.Report.GroupsDeleted++
	return plan, nil
}

func removeString(list []string, s string) []string {
	out := make([]string, 0, len(list))
	for _, v := range list {
		if v != s {
			out = append(out, v)
		}
	}
	return out
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func sortedDeltaKeys(m map[string]decimal.Decimal) []string {
	return sortedIDs(m)
}
