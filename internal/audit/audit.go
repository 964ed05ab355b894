// Package audit keeps a local sqlite trail of everything a synchronization
// cycle did to the shared calendar, sufficient to reconstruct after the fact
// which events were created or deleted, when, and why something failed.
package audit

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/beekhof/vacation-calendar-sync/internal/dispatch"
)

const schema = `
CREATE TABLE IF NOT EXISTS audit_log (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	cycle_start TEXT NOT NULL,
	action      TEXT NOT NULL,
	source_key  TEXT NOT NULL,
	detail      TEXT NOT NULL DEFAULT '',
	recorded_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_audit_cycle ON audit_log (cycle_start);
`

// Store wraps the audit database.
type Store struct {
	db *sql.DB
}

// Entry is one recorded action.
type Entry struct {
	CycleStart string
	Action     string
	SourceKey  string
	Detail     string
	RecordedAt string
}

// Open opens (creating if needed) the audit database at path. ":memory:" is
// accepted for tests.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open audit database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize audit schema: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Record appends one action to the trail.
func (s *Store) Record(cycleStart time.Time, action, sourceKey, detail string) error {
	_, err := s.db.Exec(
		`INSERT INTO audit_log (cycle_start, action, source_key, detail, recorded_at) VALUES (?, ?, ?, ?, ?)`,
		cycleStart.UTC().Format(time.RFC3339), action, sourceKey, detail,
		time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("failed to record audit entry: %w", err)
	}
	return nil
}

// RecordOutcomes writes every dispatch outcome of a cycle in one transaction.
func (s *Store) RecordOutcomes(cycleStart time.Time, outcomes []dispatch.Outcome) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin audit transaction: %w", err)
	}

	stmt, err := tx.Prepare(
		`INSERT INTO audit_log (cycle_start, action, source_key, detail, recorded_at) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("failed to prepare audit insert: %w", err)
	}
	defer stmt.Close()

	cycle := cycleStart.UTC().Format(time.RFC3339)
	now := time.Now().UTC().Format(time.RFC3339)
	for _, o := range outcomes {
		if _, err := stmt.Exec(cycle, o.Result.String(), o.Event.SourceKey(), o.Reason, now); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to record outcome for %s: %w", o.Event.SourceKey(), err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit audit transaction: %w", err)
	}
	return nil
}

// CycleEntries returns every entry of one cycle in insertion order.
func (s *Store) CycleEntries(cycleStart time.Time) ([]Entry, error) {
	rows, err := s.db.Query(
		`SELECT cycle_start, action, source_key, detail, recorded_at FROM audit_log WHERE cycle_start = ? ORDER BY id`,
		cycleStart.UTC().Format(time.RFC3339))
	if err != nil {
		return nil, fmt.Errorf("failed to query audit entries: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.CycleStart, &e.Action, &e.SourceKey, &e.Detail, &e.RecordedAt); err != nil {
			return nil, fmt.Errorf("failed to scan audit entry: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
