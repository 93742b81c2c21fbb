// Package index maintains the durable metadata index: a compact,
// fast-to-load summary of every persisted session, kept most-recent-first
// so list views never touch full record files.
//
// The index lives in a single SQLite file next to the session records. If
// it is missing or unreadable at startup the store begins with an empty
// index; orphaned record files are not rescanned into it.
package index

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/mhaglund/fieldmeter/internal/errors"
	"github.com/mhaglund/fieldmeter/internal/session"
)

// CurrentSchemaVersion is the latest schema version.
// Bump this when adding migrations.
const CurrentSchemaVersion = 1

// FileName is the index file under the store's base directory.
const FileName = "index.db"

// Init opens the metadata index at baseDir/index.db, creating and
// migrating it as needed. An unreadable index file is replaced with a
// fresh empty one rather than failing startup.
func Init(baseDir string) (*sql.DB, error) {
	if err := os.MkdirAll(baseDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create base directory: %w", err)
	}

	dbPath := filepath.Join(baseDir, FileName)
	db, err := open(dbPath)
	if err == nil {
		return db, nil
	}

	// Corrupt index: start with an empty one. Never fatal, by the same
	// rule that a missing index means an empty library.
	if rmErr := os.Remove(dbPath); rmErr != nil && !os.IsNotExist(rmErr) {
		return nil, err
	}
	return open(dbPath)
}

func open(dbPath string) (*sql.DB, error) {
	dsn := dbPath + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open index: %w", err)
	}

	if err := migrate(db); err != nil {
		db.Close()
		return nil, err
	}

	_ = os.Chmod(dbPath, 0600)
	return db, nil
}

// migrate applies schema migrations based on user_version.
func migrate(db *sql.DB) error {
	version, err := userVersion(db)
	if err != nil {
		return err
	}

	if version < 1 {
		schema := `
		CREATE TABLE IF NOT EXISTS sessions (
		  id             TEXT PRIMARY KEY,
		  name           TEXT NOT NULL DEFAULT '',
		  start_time     TEXT NOT NULL,
		  end_time       TEXT NOT NULL DEFAULT '',
		  duration_sec   REAL NOT NULL,
		  reading_count  INTEGER NOT NULL,
		  min_magnitude  REAL NOT NULL,
		  max_magnitude  REAL NOT NULL,
		  avg_magnitude  REAL NOT NULL,
		  saved_at       INTEGER NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_sessions_saved_at
		ON sessions(saved_at DESC);
		`
		if _, err := db.Exec(schema); err != nil {
			return fmt.Errorf("failed to apply schema v1: %w", err)
		}
		if err := setUserVersion(db, 1); err != nil {
			return err
		}
	}

	return nil
}

func userVersion(db *sql.DB) (int, error) {
	var version int
	if err := db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return 0, fmt.Errorf("failed to read user_version: %w", err)
	}
	return version, nil
}

func setUserVersion(db *sql.DB, version int) error {
	if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", version)); err != nil {
		return fmt.Errorf("failed to set user_version: %w", err)
	}
	return nil
}

// Put inserts or replaces the metadata entry for a session, moving it to
// the head of the most-recent-first ordering.
func Put(db *sql.DB, m session.Metadata) error {
	tx, err := db.Begin()
	if err != nil {
		return errors.NewInternal(err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM sessions WHERE id = ?", m.ID); err != nil {
		return errors.NewInternal(err)
	}

	_, err = tx.Exec(`
		INSERT INTO sessions (
			id, name, start_time, end_time, duration_sec,
			reading_count, min_magnitude, max_magnitude, avg_magnitude, saved_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.ID, m.Name, formatTime(m.StartTime), formatTime(m.EndTime), m.DurationSec,
		m.ReadingCount, m.MinMagnitude, m.MaxMagnitude, m.AvgMagnitude,
		time.Now().UnixNano(),
	)
	if err != nil {
		return errors.NewInternal(err)
	}

	if err := tx.Commit(); err != nil {
		return errors.NewInternal(err)
	}
	return nil
}

// All returns every metadata entry, most-recent-first.
func All(db *sql.DB) ([]session.Metadata, error) {
	rows, err := db.Query(`
		SELECT id, name, start_time, end_time, duration_sec,
			reading_count, min_magnitude, max_magnitude, avg_magnitude
		FROM sessions
		ORDER BY saved_at DESC`)
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	defer rows.Close()

	entries := []session.Metadata{}
	for rows.Next() {
		var m session.Metadata
		var start, end string
		if err := rows.Scan(&m.ID, &m.Name, &start, &end, &m.DurationSec,
			&m.ReadingCount, &m.MinMagnitude, &m.MaxMagnitude, &m.AvgMagnitude); err != nil {
			return nil, errors.NewInternal(err)
		}
		if m.StartTime, err = parseTime(start); err != nil {
			return nil, errors.NewInternal(err)
		}
		if m.EndTime, err = parseTime(end); err != nil {
			return nil, errors.NewInternal(err)
		}
		entries = append(entries, m)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewInternal(err)
	}
	return entries, nil
}

// Remove deletes the entry for id. Removing an absent id is a no-op.
func Remove(db *sql.DB, id string) error {
	if _, err := db.Exec("DELETE FROM sessions WHERE id = ?", id); err != nil {
		return errors.NewInternal(err)
	}
	return nil
}

// Clear deletes every entry.
func Clear(db *sql.DB) error {
	if _, err := db.Exec("DELETE FROM sessions"); err != nil {
		return errors.NewInternal(err)
	}
	return nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339Nano, s)
}
