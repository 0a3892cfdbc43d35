// Package sqlite provides a SQLite-backed implementation of storage.Store.
//
// Records are stored generically in a single table keyed by (type, id) with
// a JSON payload, so adding an entity type never needs a schema change.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite" // Pure Go SQLite driver (no CGO)

	"github.com/tallyward/ledgercore/internal/models"
	"github.com/tallyward/ledgercore/internal/storage"
)

// Ensure Store implements storage.Store.
var _ storage.Store = (*Store)(nil)

// Store implements storage.Store using SQLite.
type Store struct {
	db *sql.DB
}

// New creates a Store with the given database path. It creates the parent
// directories and runs migrations automatically.
func New(dbPath string) (*Store, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Single writer keeps the store's per-call atomicity simple.
	db.SetMaxOpenConns(1)

	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Get retrieves one record by type and id.
func (s *Store) Get(ctx context.Context, t models.EntityType, id string) (models.Record, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx,
		"SELECT data FROM records WHERE type = ? AND id = ?", string(t), id,
	).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get record: %w", err)
	}
	return decodeRecord(t, data)
}

// GetAll retrieves every record of the given type.
func (s *Store) GetAll(ctx context.Context, t models.EntityType) ([]models.Record, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT data FROM records WHERE type = ? ORDER BY id", string(t),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query records: %w", err)
	}
	defer rows.Close()

	var out []models.Record
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("failed to scan record: %w", err)
		}
		rec, err := decodeRecord(t, data)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Insert persists a new record.
func (s *Store) Insert(ctx context.Context, rec models.Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to encode record: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		"INSERT INTO records (type, id, data) VALUES (?, ?, ?)",
		string(rec.RecordType()), rec.RecordID(), data,
	)
	if err != nil {
		if exists, checkErr := s.exists(ctx, rec.RecordType(), rec.RecordID()); checkErr == nil && exists {
			return storage.ErrDuplicateID
		}
		return fmt.Errorf("failed to insert record: %w", err)
	}
	return nil
}

// Update replaces an existing record.
func (s *Store) Update(ctx context.Context, rec models.Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to encode record: %w", err)
	}
	res, err := s.db.ExecContext(ctx,
		"UPDATE records SET data = ? WHERE type = ? AND id = ?",
		data, string(rec.RecordType()), rec.RecordID(),
	)
	if err != nil {
		return fmt.Errorf("failed to update record: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check update result: %w", err)
	}
	if n == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// Delete removes a record.
func (s *Store) Delete(ctx context.Context, t models.EntityType, id string) error {
	res, err := s.db.ExecContext(ctx,
		"DELETE FROM records WHERE type = ? AND id = ?", string(t), id,
	)
	if err != nil {
		return fmt.Errorf("failed to delete record: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check delete result: %w", err)
	}
	if n == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func (s *Store) exists(ctx context.Context, t models.EntityType, id string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx,
		"SELECT 1 FROM records WHERE type = ? AND id = ?", string(t), id,
	).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	return err == nil, err
}

func decodeRecord(t models.EntityType, data []byte) (models.Record, error) {
	rec := models.New(t)
	if rec == nil {
		return nil, fmt.Errorf("unknown entity type %q", t)
	}
	if err := json.Unmarshal(data, rec); err != nil {
		return nil, fmt.Errorf("failed to decode %s record: %w", t, err)
	}
	return rec, nil
}
