package models

import "github.com/shopspring/decimal"

// TransactionKind classifies a ledger transaction.
type TransactionKind string

const (
	KindSettlement TransactionKind = "settlement"
	KindPayment    TransactionKind = "payment"
	KindExpense    TransactionKind = "expense"
	KindTransfer   TransactionKind = "transfer"
)

// Transaction is the audit trail for balance mutations. Settlement and
// payment rows are emitted by the engine itself when debts are settled;
// transfer rows record money moving directly between two people and carry
// a debt edge until reconciled.
type Transaction struct {
	// ID is the unique identifier for the transaction (UUID format).
	ID string `json:"id"`

	// Amount is the signed transaction amount.
	Amount decimal.Decimal `json:"amount"`

	// RelatedPersonID optionally references the person this row is about
	// (e.g., the debtor a settlement row was emitted for). Optional link:
	// cleared, not deleted, under the SetNull delete policy.
	RelatedPersonID string `json:"related_person_id,omitempty"`

	// FromPersonID and ToPersonID are set for transfer rows: FromPersonID
	// owes ToPersonID the amount until the row is reconciled.
	FromPersonID string `json:"from_person_id,omitempty"`
	ToPersonID   string `json:"to_person_id,omitempty"`

	// Date is the Unix timestamp of the transaction.
	Date int64 `json:"date"`

	// Kind classifies the row.
	Kind TransactionKind `json:"kind"`

	// Reconciled reports whether a transfer row has been folded into
	// balances; reconciled transfers no longer contribute debt edges.
	Reconciled bool `json:"reconciled,omitempty"`

	// Note is an optional free-form description.
	Note string `json:"note,omitempty"`
}

func (t *Transaction) RecordID() string       { return t.ID }
func (t *Transaction) RecordType() EntityType { return EntityTransaction }

func (t *Transaction) CloneRecord() Record {
	cp := *t
	return &cp
}
