// internal/state/db.go
// SQLite storage for anonymized names and refresh history.
package state

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/colebrumley/supportanon/internal/mapping"
)

// RefreshRecord represents a single refresh of the mapping table.
type RefreshRecord struct {
	ID             int64
	TriggerType    string // startup, scheduled, filesystem, manual
	State          string // success, failure
	StartedAt      time.Time
	FinishedAt     time.Time
	DurationMs     int64
	MappingsBefore int
	MappingsAfter  int
	Error          string
}

// DB wraps the SQLite database connection. It implements mapping.Persister.
type DB struct {
	db *sql.DB
}

var _ mapping.Persister = (*DB)(nil)

const stateSchema = `
CREATE TABLE IF NOT EXISTS schema_version (
    version INTEGER NOT NULL,
    applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS mappings (
    original TEXT PRIMARY KEY,
    replacement TEXT NOT NULL UNIQUE,
    category TEXT NOT NULL,
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS refresh_history (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    trigger_type TEXT NOT NULL,
    state TEXT NOT NULL,
    started_at DATETIME NOT NULL,
    finished_at DATETIME NOT NULL,
    duration_ms INTEGER NOT NULL,
    mappings_before INTEGER NOT NULL DEFAULT 0,
    mappings_after INTEGER NOT NULL DEFAULT 0,
    error TEXT,
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_mappings_category ON mappings(category);
CREATE INDEX IF NOT EXISTS idx_refresh_history_state ON refresh_history(state);
CREATE INDEX IF NOT EXISTS idx_refresh_history_started ON refresh_history(started_at);
`

// Open opens or creates a state database at the given path.
func Open(path string) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	// one writer at a time; the store already serializes saves
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	if _, err := db.Exec(stateSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing schema: %w", err)
	}

	// Insert schema version if not present
	var count int
	db.QueryRow("SELECT COUNT(*) FROM schema_version").Scan(&count)
	if count == 0 {
		db.Exec("INSERT INTO schema_version (version) VALUES (1)")
	}

	if err := os.Chmod(path, 0600); err != nil {
		db.Close()
		return nil, fmt.Errorf("restricting database permissions: %w", err)
	}

	return &DB{db: db}, nil
}

// Close closes the database connection.
func (d *DB) Close() error {
	return d.db.Close()
}

// Load returns every stored mapping.
func (d *DB) Load() ([]mapping.Mapping, error) {
	rows, err := d.db.Query("SELECT original, replacement, category FROM mappings")
	if err != nil {
		return nil, fmt.Errorf("querying mappings: %w", err)
	}
	defer rows.Close()

	var out []mapping.Mapping
	for rows.Next() {
		var m mapping.Mapping
		var category string
		if err := rows.Scan(&m.Original, &m.Replacement, &category); err != nil {
			return nil, fmt.Errorf("scanning mapping: %w", err)
		}
		m.Category = mapping.Category(category)
		if !m.Category.Valid() {
			return nil, fmt.Errorf("mapping %q has unknown category %q", m.Original, category)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// Save replaces the stored mappings with ms in one transaction.
func (d *DB) Save(ms []mapping.Mapping) error {
	tx, err := d.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM mappings"); err != nil {
		return fmt.Errorf("clearing mappings: %w", err)
	}
	stmt, err := tx.Prepare("INSERT INTO mappings (original, replacement, category) VALUES (?, ?, ?)")
	if err != nil {
		return fmt.Errorf("preparing insert: %w", err)
	}
	defer stmt.Close()
	for _, m := range ms {
		if _, err := stmt.Exec(m.Original, m.Replacement, string(m.Category)); err != nil {
			return fmt.Errorf("storing mapping %q: %w", m.Original, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing mappings: %w", err)
	}
	return nil
}

// CountByCategory returns how many mappings each category holds.
func (d *DB) CountByCategory() (map[mapping.Category]int, error) {
	rows, err := d.db.Query("SELECT category, COUNT(*) FROM mappings GROUP BY category")
	if err != nil {
		return nil, fmt.Errorf("counting mappings: %w", err)
	}
	defer rows.Close()

	counts := make(map[mapping.Category]int)
	for rows.Next() {
		var c string
		var n int
		if err := rows.Scan(&c, &n); err != nil {
			return nil, fmt.Errorf("scanning count: %w", err)
		}
		counts[mapping.Category(c)] = n
	}
	return counts, rows.Err()
}

// RecordRefresh stores a refresh record and returns its ID.
func (d *DB) RecordRefresh(rec RefreshRecord) (int64, error) {
	result, err := d.db.Exec(`
		INSERT INTO refresh_history
		(trigger_type, state, started_at, finished_at, duration_ms,
		 mappings_before, mappings_after, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.TriggerType, rec.State, rec.StartedAt, rec.FinishedAt, rec.DurationMs,
		rec.MappingsBefore, rec.MappingsAfter, rec.Error,
	)
	if err != nil {
		return 0, fmt.Errorf("recording refresh: %w", err)
	}
	return result.LastInsertId()
}

// GetHistory retrieves refresh history filtered by trigger type and/or state.
func (d *DB) GetHistory(triggerType, state string, limit int) ([]RefreshRecord, error) {
	query := "SELECT id, trigger_type, state, started_at, finished_at, duration_ms, mappings_before, mappings_after, error FROM refresh_history WHERE 1=1"
	var args []any

	if triggerType != "" {
		query += " AND trigger_type = ?"
		args = append(args, triggerType)
	}
	if state != "" {
		query += " AND state = ?"
		args = append(args, state)
	}

	query += " ORDER BY started_at DESC, id DESC"
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := d.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying history: %w", err)
	}
	defer rows.Close()

	var records []RefreshRecord
	for rows.Next() {
		var r RefreshRecord
		var errStr sql.NullString
		if err := rows.Scan(&r.ID, &r.TriggerType, &r.State, &r.StartedAt, &r.FinishedAt,
			&r.DurationMs, &r.MappingsBefore, &r.MappingsAfter, &errStr); err != nil {
			return nil, fmt.Errorf("scanning record: %w", err)
		}
		r.Error = errStr.String
		records = append(records, r)
	}
	return records, rows.Err()
}

// LastRefresh returns when the most recent refresh in the given state
// finished, or the zero time if there is none.
func (d *DB) LastRefresh(state string) (time.Time, error) {
	var finished time.Time
	err := d.db.QueryRow(
		"SELECT finished_at FROM refresh_history WHERE state = ? ORDER BY finished_at DESC LIMIT 1",
		state,
	).Scan(&finished)
	if err == sql.ErrNoRows {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("getting last refresh: %w", err)
	}
	return finished, nil
}

// Cleanup removes refresh records older than the specified number of days.
func (d *DB) Cleanup(retentionDays int) (int64, error) {
	cutoff := time.Now().AddDate(0, 0, -retentionDays)
	result, err := d.db.Exec(
		"DELETE FROM refresh_history WHERE started_at < ?", cutoff,
	)
	if err != nil {
		return 0, fmt.Errorf("cleaning up history: %w", err)
	}
	return result.RowsAffected()
}
