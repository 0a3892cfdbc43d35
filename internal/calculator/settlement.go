package calculator

import (
	"fmt"
	"sort"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/tallyward/ledgercore/internal/errs"
	"github.com/tallyward/ledgercore/internal/models"
	"github.com/tallyward/ledgercore/internal/storage"
)

// SettleExpensePlan returns the mutations that settle an expense: the
// settled flag flips, every affected balance is adjusted back, and one
// settlement transaction per debtor is emitted as the audit trail. The
// whole plan is applied inside one unit of work; settlement is never
// half-applied.
func SettleExpensePlan(snap *storage.Snapshot, expenseID string, now int64) ([]storage.Mutation, error) {
	e, ok := snap.Expenses[expenseID]
	if !ok {
		return nil, errs.ReferenceMissing(models.EntityGroupExpense, expenseID)
	}
	if e.IsSettled {
		return nil, errs.InvalidArgument(fmt.Sprintf("expense %s is already settled", expenseID))
	}

	eff, err := ExpenseBalanceEffects(e)
	if err != nil {
		return nil, err
	}

	var muts []storage.Mutation
	settled := e.CloneRecord().(*models.GroupExpense)
	settled.IsSettled = true
	muts = append(muts, storage.Update(settled))

	balanceMuts, err := reverseEffects(snap, eff)
	if err != nil {
		return nil, err
	}
	muts = append(muts, balanceMuts...)

	shares, err := ExpenseShares(e)
	if err != nil {
		return nil, err
	}
	for _, debtor := range sortedKeys(shares) {
		if debtor == e.PaidBy {
			continue
		}
		muts = append(muts, storage.Insert(&models.Transaction{
			ID:              uuid.New().String(),
			Amount:          shares[debtor],
			RelatedPersonID: debtor,
			Date:            now,
			Kind:            models.KindSettlement,
			Note:            fmt.Sprintf("settled expense %s", e.ID),
		}))
	}
	return muts, nil
}

// SettleParticipantPlan returns the mutations that mark one split-bill
// participant as paid: the HasPaid flag flips, both balances adjust, and a
// payment transaction records the audit trail.
func SettleParticipantPlan(snap *storage.Snapshot, billID, personID string, now int64) ([]storage.Mutation, error) {
	b, ok := snap.SplitBills[billID]
	if !ok {
		return nil, errs.ReferenceMissing(models.EntitySplitBill, billID)
	}
	row, ok := b.Participant(personID)
	if !ok {
		return nil, errs.ReferenceMissing(models.EntityPerson, personID)
	}
	if row.HasPaid {
		return nil, errs.InvalidArgument(fmt.Sprintf("participant %s already paid bill %s", personID, billID))
	}

	updated := b.CloneRecord().(*models.SplitBill)
	for i := range updated.Participants {
		if updated.Participants[i].PersonID == personID {
			updated.Participants[i].HasPaid = true
			updated.Participants[i].PaymentDate = now
		}
	}
	muts := []storage.Mutation{storage.Update(updated)}

	// The payer's own row carries no debt, so paying it moves no balance.
	if personID != b.PaidByID {
		eff := map[string]decimal.Decimal{
			personID:   decimal.Zero.Sub(row.Amount),
			b.PaidByID: row.Amount,
		}
		balanceMuts, err := reverseEffects(snap, eff)
		if err != nil {
			return nil, err
		}
		muts = append(muts, balanceMuts...)
		muts = append(muts, storage.Insert(&models.Transaction{
			ID:              uuid.New().String(),
			Amount:          row.Amount,
			RelatedPersonID: personID,
			Date:            now,
			Kind:            models.KindPayment,
			Note:            fmt.Sprintf("paid share of bill %s", b.ID),
		}))
	}
	return muts, nil
}

// reverseEffects produces person updates that subtract previously applied
// balance deltas.
func reverseEffects(snap *storage.Snapshot, eff map[string]decimal.Decimal) ([]storage.Mutation, error) {
	var muts []storage.Mutation
	for _, personID := range sortedKeys(eff) {
		d := eff[personID]
		if d.IsZero() {
			continue
		}
		p, ok := snap.Persons[personID]
		if !ok {
			return nil, errs.ReferenceMissing(models.EntityPerson, personID)
		}
		updated := p.CloneRecord().(*models.Person)
		updated.Balance = updated.Balance.Sub(d)
		muts = append(muts, storage.Update(updated))
	}
	return muts, nil
}

// ApplyEffects produces person updates that add balance deltas.
func ApplyEffects(snap *storage.Snapshot, eff map[string]decimal.Decimal) ([]storage.Mutation, error) {
	neg := make(map[string]decimal.Decimal, len(eff))
	for p, d := range eff {
		neg[p] = decimal.Zero.Sub(d)
	}
	return reverseEffects(snap, neg)
}

func sortedKeys(m map[string]decimal.Decimal) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
