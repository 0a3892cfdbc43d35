package models

import "github.com/shopspring/decimal"

// SplitParticipant is one person's slice of a split bill.
type SplitParticipant struct {
	// PersonID references the participant.
	PersonID string `json:"person_id"`

	// Amount is this participant's share of the bill total.
	Amount decimal.Decimal `json:"amount"`

	// HasPaid reports whether the participant has paid the payer back.
	HasPaid bool `json:"has_paid"`

	// PaymentDate is the Unix timestamp of the payment, zero until paid.
	PaymentDate int64 `json:"payment_date,omitempty"`
}

// SplitBill represents a one-off bill split between people with explicit
// per-participant amounts (unlike GroupExpense, which splits equally).
//
// Invariant: the participant amounts sum to TotalAmount within one minor
// currency unit per participant.
type SplitBill struct {
	// ID is the unique identifier for the bill (UUID format).
	ID string `json:"id"`

	// Title is the human-readable name for the bill.
	Title string `json:"title"`

	// TotalAmount is the full bill amount paid up front by PaidByID.
	TotalAmount decimal.Decimal `json:"total_amount"`

	// PaidByID is the person who paid the bill.
	PaidByID string `json:"paid_by_id"`

	// Participants lists each person's share and payment state.
	Participants []SplitParticipant `json:"participants"`

	// CreatedAt is the Unix timestamp when the bill was created.
	CreatedAt int64 `json:"created_at"`
}

func (b *SplitBill) RecordID() string       { return b.ID }
func (b *SplitBill) RecordType() EntityType { return EntitySplitBill }

func (b *SplitBill) CloneRecord() Record {
	cp := *b
	cp.Participants = append([]SplitParticipant(nil), b.Participants...)
	return &cp
}

// Participant returns the participant row for the person, if any.
func (b *SplitBill) Participant(personID string) (SplitParticipant, bool) {
	for _, p := range b.Participants {
		if p.PersonID == personID {
			return p, true
		}
	}
	return SplitParticipant{}, false
}
