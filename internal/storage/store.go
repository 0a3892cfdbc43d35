// Package storage provides abstractions for persistent record storage.
package storage

import (
	"context"
	"errors"

	"github.com/tallyward/ledgercore/internal/models"
)

// ErrNotFound is returned by Get, Update and Delete when no record with the
// given type and id exists.
var ErrNotFound = errors.New("record not found")

// ErrDuplicateID is returned by Insert when a record with the same type and
// id already exists.
var ErrDuplicateID = errors.New("record id already exists")

// Store defines the record store the engine depends on: durable storage of
// records keyed by (type, id). Each call is individually atomic at the
// storage layer; multi-record atomicity is the transaction manager's job.
//
// This abstraction allows swapping storage backends (in-memory, SQLite, ...)
// without changing the engine.
type Store interface {
	// Get retrieves one record. Returns ErrNotFound if it does not exist.
	Get(ctx context.Context, t models.EntityType, id string) (models.Record, error)

	// GetAll retrieves every record of the given type, in unspecified order.
	GetAll(ctx context.Context, t models.EntityType) ([]models.Record, error)

	// Insert persists a new record. Returns ErrDuplicateID if the id is taken.
	Insert(ctx context.Context, rec models.Record) error

	// Update replaces an existing record. Returns ErrNotFound if missing.
	Update(ctx context.Context, rec models.Record) error

	// Delete removes a record. Returns ErrNotFound if missing.
	Delete(ctx context.Context, t models.EntityType, id string) error

	// Close releases any resources held by the store.
	Close() error
}

// MutationOp is the kind of a buffered mutation.
type MutationOp string

const (
	OpInsert MutationOp = "insert"
	OpUpdate MutationOp = "update"
	OpDelete MutationOp = "delete"
)

// Mutation is one buffered write against the store. Record is nil for
// deletes.
type Mutation struct {
	Op     MutationOp
	Type   models.EntityType
	ID     string
	Record models.Record
}

// Insert builds an insert mutation for rec.
func Insert(rec models.Record) Mutation {
	return Mutation{Op: OpInsert, Type: rec.RecordType(), ID: rec.RecordID(), Record: rec.CloneRecord()}
}

// Update builds an update mutation for rec.
func Update(rec models.Record) Mutation {
	return Mutation{Op: OpUpdate, Type: rec.RecordType(), ID: rec.RecordID(), Record: rec.CloneRecord()}
}

// Delete builds a delete mutation for the record with the given type and id.
func Delete(t models.EntityType, id string) Mutation {
	return Mutation{Op: OpDelete, Type: t, ID: id}
}
