// Package memory provides an in-memory implementation of storage.Store,
// used in tests and for embedded, non-durable deployments.
package memory

import (
	"context"
	"sync"

	"github.com/tallyward/ledgercore/internal/models"
	"github.com/tallyward/ledgercore/internal/storage"
)

// Ensure Store implements storage.Store.
var _ storage.Store = (*Store)(nil)

// Store keeps all records in maps guarded by a RWMutex. Reads hand out
// clones so callers can never mutate committed state in place.
type Store struct {
	mu    sync.RWMutex
	state map[models.EntityType]map[string]models.Record
}

// New creates an empty in-memory store.
func New() *Store {
	state := make(map[models.EntityType]map[string]models.Record)
	for _, t := range models.EntityTypes() {
		state[t] = make(map[string]models.Record)
	}
	return &Store{state: state}
}

// Get retrieves one record by type and id.
func (s *Store) Get(_ context.Context, t models.EntityType, id string) (models.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.state[t][id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return rec.CloneRecord(), nil
}

// GetAll retrieves every record of the given type.
func (s *Store) GetAll(_ context.Context, t models.EntityType) ([]models.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Record, 0, len(s.state[t]))
	for _, rec := range s.state[t] {
		out = append(out, rec.CloneRecord())
	}
	return out, nil
}

// Insert persists a new record.
func (s *Store) Insert(_ context.Context, rec models.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	byID := s.state[rec.RecordType()]
	if _, exists := byID[rec.RecordID()]; exists {
		return storage.ErrDuplicateID
	}
	byID[rec.RecordID()] = rec.CloneRecord()
	return nil
}

// Update replaces an existing record.
func (s *Store) Update(_ context.Context, rec models.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	byID := s.state[rec.RecordType()]
	if _, exists := byID[rec.RecordID()]; !exists {
		return storage.ErrNotFound
	}
	byID[rec.RecordID()] = rec.CloneRecord()
	return nil
}

// Delete removes a record.
func (s *Store) Delete(_ context.Context, t models.EntityType, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.state[t][id]; !exists {
		return storage.ErrNotFound
	}
	delete(s.state[t], id)
	return nil
}

// Close is a no-op for the in-memory store.
func (s *Store) Close() error { return nil }
