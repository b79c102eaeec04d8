// Package journal records which changeset files were applied to a ledger, in
// a SQLite database, so the same file is not applied twice by accident.
package journal

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS applied_changesets (
	checksum   TEXT NOT NULL,
	run_id     TEXT NOT NULL DEFAULT '',
	name       TEXT NOT NULL DEFAULT '',
	data_file  TEXT NOT NULL DEFAULT '',
	applied_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	adds       INTEGER NOT NULL DEFAULT 0,
	updates    INTEGER NOT NULL DEFAULT 0,
	deletes    INTEGER NOT NULL DEFAULT 0,
	splits     INTEGER NOT NULL DEFAULT 0,
	skipped    INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (checksum, data_file)
);

CREATE INDEX IF NOT EXISTS idx_applied_at ON applied_changesets(applied_at);
CREATE INDEX IF NOT EXISTS idx_run_id ON applied_changesets(run_id);
`

// DB wraps a sql.DB holding the journal.
type DB struct {
	conn *sql.DB
}

// Open opens (or creates) the journal database and applies the schema.
func Open(dsn string) (*DB, error) {
	conn, err := sql.Open("sqlite3", dsn+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("journal: open db: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("journal: ping: %w", err)
	}
	if _, err := conn.Exec(schemaSQL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("journal: apply schema: %w", err)
	}
	return &DB{conn: conn}, nil
}

// Close closes the underlying database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}
