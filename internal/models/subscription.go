package models

import "github.com/shopspring/decimal"

// Subscription represents a recurring cost shared between people.
//
// Subscriptions contribute to reference counts and orphan detection but not
// to the debt graph: the per-period amount only becomes debt once a billing
// run emits a GroupExpense or SplitBill for it.
type Subscription struct {
	// ID is the unique identifier for the subscription (UUID format).
	ID string `json:"id"`

	// Name is the display name (e.g., "Netflix", "Gym").
	Name string `json:"name"`

	// Amount is the per-period cost.
	Amount decimal.Decimal `json:"amount"`

	// SharedWith is the set of person IDs sharing the subscription.
	SharedWith []string `json:"shared_with"`

	// CreatedAt is the Unix timestamp when the subscription was created.
	CreatedAt int64 `json:"created_at"`
}

func (s *Subscription) RecordID() string       { return s.ID }
func (s *Subscription) RecordType() EntityType { return EntitySubscription }

func (s *Subscription) CloneRecord() Record {
	cp := *s
	cp.SharedWith = append([]string(nil), s.SharedWith...)
	return &cp
}
