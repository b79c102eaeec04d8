package journal

import (
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Recorder is the journal interface the ledger depends on.
type Recorder interface {
	Record(e Entry) error
	Lookup(checksum, dataFile string) (*Entry, error)
	List() ([]Entry, error)
	Run(runID string) ([]Entry, error)
	Close() error
}

var _ Recorder = (*DB)(nil)

// Entry is one changeset applied to one data file.
type Entry struct {
	Checksum string
	// RunID groups the changesets committed by one apply.
	RunID     string
	Name      string
	DataFile  string
	AppliedAt time.Time
	Adds      int
	Updates   int
	Deletes   int
	Splits    int
	Skipped   int
}

// Record stores e, replacing an earlier entry with the same checksum and
// data file.
func (db *DB) Record(e Entry) error {
	if e.AppliedAt.IsZero() {
		e.AppliedAt = time.Now()
	}
	_, err := db.conn.Exec(`
		INSERT INTO applied_changesets (checksum, run_id, name, data_file, applied_at, adds, updates, deletes, splits, skipped)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(checksum, data_file) DO UPDATE SET
			run_id     = excluded.run_id,
			name       = excluded.name,
			applied_at = excluded.applied_at,
			adds       = excluded.adds,
			updates    = excluded.updates,
			deletes    = excluded.deletes,
			splits     = excluded.splits,
			skipped    = excluded.skipped
	`, e.Checksum, e.RunID, e.Name, e.DataFile, e.AppliedAt.UTC(), e.Adds, e.Updates, e.Deletes, e.Splits, e.Skipped)
	if err != nil {
		return fmt.Errorf("journal: record: %w", err)
	}
	return nil
}

// Lookup returns the entry for checksum applied to dataFile, or nil when
// there is none.
func (db *DB) Lookup(checksum, dataFile string) (*Entry, error) {
	row := db.conn.QueryRow(`
		SELECT checksum, run_id, name, data_file, applied_at, adds, updates, deletes, splits, skipped
		FROM applied_changesets WHERE checksum = ? AND data_file = ?
	`, checksum, dataFile)
	e, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("journal: lookup: %w", err)
	}
	return &e, nil
}

// List returns every entry, oldest first.
func (db *DB) List() ([]Entry, error) {
	return db.query("list", `
		SELECT checksum, run_id, name, data_file, applied_at, adds, updates, deletes, splits, skipped
		FROM applied_changesets ORDER BY applied_at, rowid
	`)
}

// Run returns the entries committed by one apply, in application order.
func (db *DB) Run(runID string) ([]Entry, error) {
	return db.query("run", `
		SELECT checksum, run_id, name, data_file, applied_at, adds, updates, deletes, splits, skipped
		FROM applied_changesets WHERE run_id = ? ORDER BY applied_at, rowid
	`, runID)
}

func (db *DB) query(op, q string, args ...any) ([]Entry, error) {
	rows, err := db.conn.Query(q, args...)
	if err != nil {
		return nil, fmt.Errorf("journal: %s: %w", op, err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("journal: scan: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(s scanner) (Entry, error) {
	var e Entry
	err := s.Scan(&e.Checksum, &e.RunID, &e.Name, &e.DataFile, &e.AppliedAt,
		&e.Adds, &e.Updates, &e.Deletes, &e.Splits, &e.Skipped)
	return e, err
}
