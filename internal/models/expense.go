package models

import "github.com/shopspring/decimal"

// GroupExpense represents one shared expense inside a group.
//
// The expense is split equally between SplitBetween. Per-person shares are
// derived by the calculator, with the rounding remainder assigned to the
// payer so shares always sum to Amount exactly.
//
// Expenses are never edited in place after creation; corrections are
// delete + recreate, and settling only flips IsSettled.
type GroupExpense struct {
	// ID is the unique identifier for the expense (UUID format).
	ID string `json:"id"`

	// GroupID is the group this expense belongs to.
	GroupID string `json:"group_id"`

	// Amount is the full expense amount. Always > 0.
	Amount decimal.Decimal `json:"amount"`

	// PaidBy is the person who paid the full amount.
	PaidBy string `json:"paid_by"`

	// SplitBetween is the non-empty set of person IDs owing a share.
	// The payer may or may not be included; when included their share
	// simply nets out against what they are owed.
	SplitBetween []string `json:"split_between"`

	// IsSettled reports whether every share has been paid back.
	IsSettled bool `json:"is_settled"`

	// Date is the Unix timestamp of the expense.
	Date int64 `json:"date"`
}

func (e *GroupExpense) RecordID() string       { return e.ID }
func (e *GroupExpense) RecordType() EntityType { return EntityGroupExpense }

func (e *GroupExpense) CloneRecord() Record {
	cp := *e
	cp.SplitBetween = append([]string(nil), e.SplitBetween...)
	return &cp
}

// Splits reports whether the person owes a share of this expense.
func (e *GroupExpense) Splits(personID string) bool {
	for _, p := range e.SplitBetween {
		if p == personID {
			return true
		}
	}
	return false
}
