// Package errs defines the structured error taxonomy for the ledger engine.
//
// Every failure the engine reports is an *Error carrying a Kind plus enough
// structured detail (entity type, id, cycle path, amounts) for a caller to
// build a specific message. Errors are returned as values, never panicked.
package errs

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/tallyward/ledgercore/internal/models"
)

// Kind classifies an engine error.
type Kind string

const (
	KindReferenceMissing  Kind = "REFERENCE_MISSING"
	KindReferenced        Kind = "REFERENCED"
	KindRoundingInvariant Kind = "ROUNDING_INVARIANT_VIOLATION"
	KindCycleDetected     Kind = "CYCLE_DETECTED"
	KindSelfReference     Kind = "SELF_REFERENCE_DETECTED"
	KindNestingLimit      Kind = "NESTING_LIMIT_EXCEEDED"
	KindRecursionLimit    Kind = "RECURSION_LIMIT_EXCEEDED"
	KindWriteConflict     Kind = "WRITE_CONFLICT"
	KindTimeout           Kind = "TIMEOUT"
	KindStorage           Kind = "STORAGE_FAILURE"
	KindInvalidArgument   Kind = "INVALID_ARGUMENT"
	KindTransactionState  Kind = "TRANSACTION_STATE"
)

// Error is a structured engine error.
type Error struct {
	Kind    Kind
	Message string

	// Entity and ID identify the record the error is about, when there is one.
	Entity models.EntityType
	ID     string

	// Path holds the person IDs along a detected cycle, in order, for
	// KindCycleDetected errors.
	Path []string

	// Amount carries the money value involved, when meaningful.
	Amount decimal.Decimal

	// Err is the wrapped cause, set for KindStorage.
	Err error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Kind))
	b.WriteString(": ")
	b.WriteString(e.Message)
	if e.Entity != "" || e.ID != "" {
		fmt.Fprintf(&b, " (%s %s)", e.Entity, e.ID)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches errors by Kind, so callers can write
// errors.Is(err, &errs.Error{Kind: errs.KindTimeout}).
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind
}

// KindOf returns the Kind of err, or "" if err is not an engine error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	var v Violations
	if errors.As(err, &v) && len(v) > 0 {
		return v[0].Kind
	}
	return ""
}

// IsKind reports whether err carries the given kind, looking through wraps
// and through Violations lists.
func IsKind(err error, k Kind) bool {
	var e *Error
	if errors.As(err, &e) && e.Kind == k {
		return true
	}
	var v Violations
	if errors.As(err, &v) {
		for _, each := range v {
			if each.Kind == k {
				return true
			}
		}
	}
	return false
}

// Violations aggregates every integrity error found in one validation pass,
// so a caller can present all problems at once rather than one at a time.
type Violations []*Error

func (v Violations) Error() string {
	if len(v) == 1 {
		return v[0].Error()
	}
	msgs := make([]string, len(v))
	for i, e := range v {
		msgs[i] = e.Error()
	}
	return fmt.Sprintf("%d integrity violations: %s", len(v), strings.Join(msgs, "; "))
}

// Unwrap exposes the individual violations to errors.Is / errors.As.
func (v Violations) Unwrap() []error {
	out := make([]error, len(v))
	for i, e := range v {
		out[i] = e
	}
	return out
}

// ReferenceMissing reports a foreign key pointing at a record that does not
// exist in the store.
func ReferenceMissing(entity models.EntityType, id string) *Error {
	return &Error{
		Kind:    KindReferenceMissing,
		Message: "referenced record does not exist",
		Entity:  entity,
		ID:      id,
	}
}

// Referenced reports a delete blocked by the restrict policy. refs describes
// the inbound reference counts, e.g. "2 groups, 1 expense".
func Referenced(entity models.EntityType, id, refs string) *Error {
	return &Error{
		Kind:    KindReferenced,
		Message: fmt.Sprintf("record is still referenced by %s", refs),
		Entity:  entity,
		ID:      id,
	}
}

// RoundingInvariant reports shares or cached totals that do not sum exactly.
func RoundingInvariant(entity models.EntityType, id string, want, got decimal.Decimal) *Error {
	return &Error{
		Kind:    KindRoundingInvariant,
		Message: fmt.Sprintf("amounts must sum to %s, got %s", want, got),
		Entity:  entity,
		ID:      id,
		Amount:  want.Sub(got),
	}
}

// CycleDetected reports a circular debt chain. path lists the person IDs in
// order, with the first repeated last; total is the combined edge weight.
func CycleDetected(path []string, total decimal.Decimal) *Error {
	return &Error{
		Kind:    KindCycleDetected,
		Message: "circular debt chain detected",
		Path:    path,
		Amount:  total,
	}
}

// SelfReference reports a record whose payer also appears as a participant.
func SelfReference(entity models.EntityType, id, personID string) *Error {
	return &Error{
		Kind:    KindSelfReference,
		Message: fmt.Sprintf("person %s is both payer and participant", personID),
		Entity:  entity,
		ID:      id,
	}
}

// NestingLimit reports a nested transaction exceeding the configured depth.
func NestingLimit(depth, max int) *Error {
	return &Error{
		Kind:    KindNestingLimit,
		Message: fmt.Sprintf("nesting depth %d exceeds limit %d", depth, max),
	}
}

// RecursionLimit reports graph traversal exceeding the configured depth.
func RecursionLimit(limit int) *Error {
	return &Error{
		Kind:    KindRecursionLimit,
		Message: fmt.Sprintf("traversal exceeded recursion limit %d", limit),
	}
}

// WriteConflict reports a record written by two concurrent units of work.
// The first commit wins; the loser is rolled back and may retry on fresh
// state.
func WriteConflict(entity models.EntityType, id string) *Error {
	return &Error{
		Kind:    KindWriteConflict,
		Message: "record was changed by a concurrent commit",
		Entity:  entity,
		ID:      id,
	}
}

// Timeout reports a commit that did not complete within its deadline.
func Timeout(d time.Duration) *Error {
	return &Error{
		Kind:    KindTimeout,
		Message: fmt.Sprintf("commit did not complete within %s; rolled back", d),
	}
}

// Storage wraps an opaque record store failure. The only kind that may be
// retried transparently.
func Storage(err error) *Error {
	return &Error{
		Kind:    KindStorage,
		Message: "record store operation failed",
		Err:     err,
	}
}

// InvalidArgument reports a malformed command rejected before any
// transaction is opened.
func InvalidArgument(msg string) *Error {
	return &Error{Kind: KindInvalidArgument, Message: msg}
}

// TransactionState reports an operation on a finished or misused transaction.
func TransactionState(msg string) *Error {
	return &Error{Kind: KindTransactionState, Message: msg}
}
