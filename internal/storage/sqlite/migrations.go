package sqlite

import "database/sql"

// schema contains the SQL statements to set up the database.
// These run on startup to ensure the table exists.
const schema = `
CREATE TABLE IF NOT EXISTS records (
    type TEXT NOT NULL,
    id   TEXT NOT NULL,
    data TEXT NOT NULL,
    PRIMARY KEY (type, id)
);

CREATE INDEX IF NOT EXISTS idx_records_type ON records(type);
`

func runMigrations(db *sql.DB) error {
	_, err := db.Exec(schema)
	return err
}
