package models

import "github.com/shopspring/decimal"

// Person represents one participant in the ledger.
//
// Person is referenced by ID from Group.Members, GroupExpense.PaidBy and
// SplitBetween, SplitBill participants, and Subscription.SharedWith — never
// the reverse.
type Person struct {
	// ID is the unique identifier for the person (UUID format).
	ID string `json:"id"`

	// Name is the display name of the person.
	Name string `json:"name"`

	// Balance is the cached signed net amount for this person.
	// Positive = owed to this person, negative = this person owes.
	// Maintained exclusively by committed transactions; it must always
	// equal the net balance derived from unsettled records.
	Balance decimal.Decimal `json:"balance"`

	// CreatedAt is the Unix timestamp when the person was created.
	CreatedAt int64 `json:"created_at"`
}

func (p *Person) RecordID() string       { return p.ID }
func (p *Person) RecordType() EntityType { return EntityPerson }

func (p *Person) CloneRecord() Record {
	cp := *p
	return &cp
}
