package models

// EntityType identifies the kind of a record in the record store.
type EntityType string

const (
	EntityPerson       EntityType = "person"
	EntityGroup        EntityType = "group"
	EntityGroupExpense EntityType = "group_expense"
	EntitySplitBill    EntityType = "split_bill"
	EntitySubscription EntityType = "subscription"
	EntityTransaction  EntityType = "transaction"
)

// EntityTypes lists every known entity type in a stable order.
func EntityTypes() []EntityType {
	return []EntityType{
		EntityPerson,
		EntityGroup,
		EntityGroupExpense,
		EntitySplitBill,
		EntitySubscription,
		EntityTransaction,
	}
}

// Record is implemented by every entity persisted in the record store.
type Record interface {
	// RecordID returns the record's immutable identifier.
	RecordID() string

	// RecordType returns the entity type the record belongs to.
	RecordType() EntityType

	// CloneRecord returns a deep copy. Stores hand out clones so callers
	// can never mutate committed state in place.
	CloneRecord() Record
}

// New returns a zero value of the record type t, suitable as an unmarshal
// target. Returns nil for an unknown type.
func New(t EntityType) Record {
	switch t {
	case EntityPerson:
		return &Person{}
	case EntityGroup:
		return &Group{}
	case EntityGroupExpense:
		return &GroupExpense{}
	case EntitySplitBill:
		return &SplitBill{}
	case EntitySubscription:
		return &Subscription{}
	case EntityTransaction:
		return &Transaction{}
	default:
		return nil
	}
}
