package calculator

import (
	"sort"

	"github.com/shopspring/decimal"
)

// SuggestedTransfer is one payment that helps zero out net balances.
type SuggestedTransfer struct {
	From   string
	To     string
	Amount decimal.Decimal
}

// SuggestSettlements greedily matches debtors with creditors to produce a
// short list of transfers that zeroes every net balance. Largest debts pair
// with largest credits first; ties break by person ID so the output is
// deterministic.
func SuggestSettlements(balances map[string]decimal.Decimal) []SuggestedTransfer {
	type entry struct {
		id     string
		amount decimal.Decimal
	}
	var debtors, creditors []entry
	for id, b := range balances {
		switch {
		case b.IsNegative():
			debtors = append(debtors, entry{id, b.Neg()})
		case b.IsPositive():
			creditors = append(creditors, entry{id, b})
		}
	}
	byAmountDesc := func(list []entry) func(i, j int) bool {
		return func(i, j int) bool {
			if !list[i].amount.Equal(list[j].amount) {
				return list[i].amount.GreaterThan(list[j].amount)
			}
			return list[i].id < list[j].id
		}
	}
	sort.Slice(debtors, byAmountDesc(debtors))
	sort.Slice(creditors, byAmountDesc(creditors))

	var out []SuggestedTransfer
	i, j := 0, 0
	for i < len(debtors) && j < len(creditors) {
		amount := debtors[i].amount
		if creditors[j].amount.LessThan(amount) {
			amount = creditors[j].amount
		}
		if amount.IsPositive() {
			out = append(out, SuggestedTransfer{
				From:   debtors[i].id,
				To:     creditors[j].id,
				Amount: amount,
			})
		}
		debtors[i].amount = debtors[i].amount.Sub(amount)
		creditors[j].amount = creditors[j].amount.Sub(amount)
		if !debtors[i].amount.IsPositive() {
			i++
		}
		if !creditors[j].amount.IsPositive() {
			j++
		}
	}
	return out
}
