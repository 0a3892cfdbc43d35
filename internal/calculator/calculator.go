// Package calculator derives balances, shares and settlement plans from
// record snapshots. Everything here is a pure function over a snapshot; the
// transaction manager applies the outputs.
package calculator

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/tallyward/ledgercore/internal/errs"
	"github.com/tallyward/ledgercore/internal/models"
	"github.com/tallyward/ledgercore/internal/storage"
)

// two decimal places = one minor currency unit
const minorUnitPlaces = 2

var minorUnit = decimal.New(1, -minorUnitPlaces) // 0.01

// ExpenseShares computes each participant's exact share of an expense.
//
// share = amount / |splitBetween|, floored to the minor unit. The remainder
// (amount - share * n) is assigned to the payer's share when the payer
// participates, otherwise to the first participant in ID order, so that the
// shares always sum to the amount exactly.
func ExpenseShares(e *models.GroupExpense) (map[string]decimal.Decimal, error) {
	if !e.Amount.IsPositive() {
		return nil, errs.InvalidArgument(fmt.Sprintf("expense amount must be positive, got %s", e.Amount))
	}
	if len(e.SplitBetween) == 0 {
		return nil, errs.InvalidArgument("expense must have at least one participant")
	}

	n := decimal.NewFromInt(int64(len(e.SplitBetween)))
	base := e.Amount.Div(n).Truncate(minorUnitPlaces)
	remainder := e.Amount.Sub(base.Mul(n))

	shares := make(map[string]decimal.Decimal, len(e.SplitBetween))
	for _, p := range e.SplitBetween {
		shares[p] = base
	}

	if !remainder.IsZero() {
		carrier := e.PaidBy
		if _, ok := shares[carrier]; !ok {
			ids := append([]string(nil), e.SplitBetween...)
			sort.Strings(ids)
			carrier = ids[0]
		}
		shares[carrier] = shares[carrier].Add(remainder)
	}

	sum := decimal.Zero
	for _, s := range shares {
		sum = sum.Add(s)
	}
	if !sum.Equal(e.Amount) {
		return nil, errs.RoundingInvariant(models.EntityGroupExpense, e.ID, e.Amount, sum)
	}
	return shares, nil
}

// ExpenseBalanceEffects returns the per-person balance deltas an unsettled
// expense contributes: each non-payer participant owes their share to the
// payer. The payer's own share nets out and contributes nothing.
//
// The deltas are applied when the expense is created and subtracted again
// when it is settled or deleted, so effects are the single source of truth
// for how an expense moves balances.
func ExpenseBalanceEffects(e *models.GroupExpense) (map[string]decimal.Decimal, error) {
	shares, err := ExpenseShares(e)
	if err != nil {
		return nil, err
	}
	eff := make(map[string]decimal.Decimal)
	for p, s := range shares {
		if p == e.PaidBy {
			continue
		}
		eff[p] = eff[p].Sub(s)
		eff[e.PaidBy] = eff[e.PaidBy].Add(s)
	}
	return eff, nil
}

// SplitBillBalanceEffects returns the balance deltas of the bill's unpaid
// participant rows: each unpaid non-payer participant owes their amount to
// the payer.
func SplitBillBalanceEffects(b *models.SplitBill) map[string]decimal.Decimal {
	eff := make(map[string]decimal.Decimal)
	for _, p := range b.Participants {
		if p.HasPaid || p.PersonID == b.PaidByID {
			continue
		}
		eff[p.PersonID] = eff[p.PersonID].Sub(p.Amount)
		eff[b.PaidByID] = eff[b.PaidByID].Add(p.Amount)
	}
	return eff
}

// TransferBalanceEffects returns the balance deltas of an unreconciled
// transfer transaction: the sender owes the receiver the amount.
func TransferBalanceEffects(t *models.Transaction) map[string]decimal.Decimal {
	eff := make(map[string]decimal.Decimal)
	if t.Kind != models.KindTransfer || t.Reconciled {
		return eff
	}
	if t.FromPersonID == "" || t.ToPersonID == "" || t.FromPersonID == t.ToPersonID {
		return eff
	}
	eff[t.FromPersonID] = eff[t.FromPersonID].Sub(t.Amount)
	eff[t.ToPersonID] = eff[t.ToPersonID].Add(t.Amount)
	return eff
}

// ValidateSplitBill checks the bill's rounding invariant: participant
// amounts must sum to the total within one minor unit per participant.
func ValidateSplitBill(b *models.SplitBill) error {
	sum := decimal.Zero
	for _, p := range b.Participants {
		sum = sum.Add(p.Amount)
	}
	tolerance := minorUnit.Mul(decimal.NewFromInt(int64(len(b.Participants))))
	if sum.Sub(b.TotalAmount).Abs().GreaterThan(tolerance) {
		return errs.RoundingInvariant(models.EntitySplitBill, b.ID, b.TotalAmount, sum)
	}
	return nil
}

// NetBalance derives a person's net balance from the unsettled rows in the
// snapshot. After every commit this must equal the cached Person.Balance.
func NetBalance(snap *storage.Snapshot, personID string) (decimal.Decimal, error) {
	balances, err := NetBalances(snap)
	if err != nil {
		return decimal.Zero, err
	}
	return balances[personID], nil
}

// NetBalances derives every person's net balance in one pass. The returned
// map has an entry for every person in the snapshot, zero included.
func NetBalances(snap *storage.Snapshot) (map[string]decimal.Decimal, error) {
	balances := make(map[string]decimal.Decimal, len(snap.Persons))
	for id := range snap.Persons {
		balances[id] = decimal.Zero
	}
	add := func(eff map[string]decimal.Decimal) {
		for p, d := range eff {
			balances[p] = balances[p].Add(d)
		}
	}

	for _, e := range snap.Expenses {
		if e.IsSettled {
			continue
		}
		eff, err := ExpenseBalanceEffects(e)
		if err != nil {
			return nil, err
		}
		add(eff)
	}
	for _, b := range snap.SplitBills {
		add(SplitBillBalanceEffects(b))
	}
	for _, t := range snap.Transactions {
		add(TransferBalanceEffects(t))
	}
	return balances, nil
}

// SettlementProgress returns settled amount / total, clamped to [0, 1].
func SettlementProgress(b *models.SplitBill) decimal.Decimal {
	if !b.TotalAmount.IsPositive() {
		return decimal.Zero
	}
	settled := decimal.Zero
	for _, p := range b.Participants {
		if p.HasPaid {
			settled = settled.Add(p.Amount)
		}
	}
	progress := settled.Div(b.TotalAmount)
	if progress.IsNegative() {
		return decimal.Zero
	}
	if progress.GreaterThan(decimal.NewFromInt(1)) {
		return decimal.NewFromInt(1)
	}
	return progress
}
