package models

import "github.com/shopspring/decimal"

// Group represents a set of people who share expenses.
type Group struct {
	// ID is the unique identifier for the group (UUID format).
	ID string `json:"id"`

	// Name is the display name of the group (e.g., "Roommates", "Ski Trip").
	Name string `json:"name"`

	// Members is the set of member person IDs. Unique, order irrelevant.
	Members []string `json:"members"`

	// ExpenseIDs is the ordered sequence of GroupExpense IDs owned by this
	// group, in creation order.
	ExpenseIDs []string `json:"expense_ids"`

	// TotalAmount caches the sum of live expense amounts for the group.
	// Invariant: equals the sum of GroupExpense.Amount over ExpenseIDs.
	TotalAmount decimal.Decimal `json:"total_amount"`

	// CreatedAt is the Unix timestamp when the group was created.
	CreatedAt int64 `json:"created_at"`
}

func (g *Group) RecordID() string       { return g.ID }
func (g *Group) RecordType() EntityType { return EntityGroup }

func (g *Group) CloneRecord() Record {
	cp := *g
	cp.Members = append([]string(nil), g.Members...)
	cp.ExpenseIDs = append([]string(nil), g.ExpenseIDs...)
	return &cp
}

// HasMember reports whether the person is in the group's member set.
func (g *Group) HasMember(personID string) bool {
	for _, m := range g.Members {
		if m == personID {
			return true
		}
	}
	return false
}
