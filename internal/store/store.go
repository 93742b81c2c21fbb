// Package store persists finalized recording sessions: one JSON record
// file per session written atomically, plus the metadata index for fast
// listing. A session is loaded, mutated, and rewritten whole; there are
// no partial updates.
package store

import (
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/mhaglund/fieldmeter/internal/errors"
	"github.com/mhaglund/fieldmeter/internal/index"
	"github.com/mhaglund/fieldmeter/internal/session"
)

const recordsDir = "sessions"

// Store is a durable session store rooted at a base directory. All writes
// are serialized by a single mutex, so a save and a delete for the same id
// cannot race.
type Store struct {
	mu   sync.Mutex
	root string
	db   *sql.DB
}

// Open initializes the store at baseDir, creating the records directory
// and loading the metadata index. A missing or unreadable index starts
// empty; that is the one persistence failure deliberately not surfaced.
func Open(baseDir string) (*Store, error) {
	if err := os.MkdirAll(filepath.Join(baseDir, recordsDir), 0700); err != nil {
		return nil, errors.NewInternal(fmt.Errorf("failed to create records directory: %w", err))
	}

	db, err := index.Init(baseDir)
	if err != nil {
		return nil, errors.NewInternal(err)
	}

	return &Store{root: baseDir, db: db}, nil
}

// Close releases the metadata index.
func (s *Store) Close() error {
	return s.db.Close()
}

// recordPath returns the record file for a session id.
func (s *Store) recordPath(id string) string {
	return filepath.Join(s.root, recordsDir, id+".json")
}

// Save serializes the full session to its record file with a
// write-then-rename so a half-written record is never observable, then
// moves its metadata entry to the head of the index.
func (s *Store) Save(rec *session.Recording) error {
	if rec == nil || rec.ID == "" {
		return errors.NewInvalidRequest("session id is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return errors.NewInternal(err)
	}

	if err := writeAtomic(s.recordPath(rec.ID), data); err != nil {
		return errors.NewInternal(err)
	}

	return index.Put(s.db, rec.ToMetadata())
}

// writeAtomic writes data to path via a uniquely named temp file and an
// atomic rename, preserving any existing file on failure.
func writeAtomic(path string, data []byte) error {
	randBytes := make([]byte, 8)
	if _, err := rand.Read(randBytes); err != nil {
		return fmt.Errorf("failed to generate temp file name: %w", err)
	}
	tempPath := path + "." + hex.EncodeToString(randBytes) + ".tmp"

	file, err := os.OpenFile(tempPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}

	success := false
	defer func() {
		if file != nil {
			file.Close()
		}
		if !success {
			os.Remove(tempPath)
		}
	}()

	if _, err := file.Write(data); err != nil {
		return err
	}
	if err := file.Sync(); err != nil {
		return err
	}
	if err := file.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	file = nil

	if err := os.Rename(tempPath, path); err != nil {
		return fmt.Errorf("failed to finalize record: %w", err)
	}
	success = true
	return nil
}

// Load reads and decodes the full record for id. A missing record is
// ErrNotFound; an undecodable one is ErrMalformedRecord. Neither is ever
// silently defaulted.
func (s *Store) Load(id string) (*session.Recording, error) {
	data, err := os.ReadFile(s.recordPath(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.NewNotFound(id)
		}
		return nil, errors.NewInternal(err)
	}

	rec := &session.Recording{}
	if err := json.Unmarshal(data, rec); err != nil {
		return nil, errors.NewMalformedRecord(id, err)
	}
	return rec, nil
}

// Delete removes the record file and its index entry. Deleting an absent
// session is a no-op.
func (s *Store) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.recordPath(id)); err != nil && !os.IsNotExist(err) {
		return errors.NewInternal(err)
	}
	return index.Remove(s.db, id)
}

// DeleteAll removes all record files best-effort, continuing past
// individual failures, then clears the index.
func (s *Store) DeleteAll() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := os.ReadDir(filepath.Join(s.root, recordsDir))
	if err != nil && !os.IsNotExist(err) {
		return errors.NewInternal(err)
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		_ = os.Remove(filepath.Join(s.root, recordsDir, entry.Name()))
	}

	return index.Clear(s.db)
}

// Sessions returns the metadata index, most-recent-first, without
// touching full records.
func (s *Store) Sessions() ([]session.Metadata, error) {
	return index.All(s.db)
}

// Rename sets the session's name via read-full, mutate, write-full.
func (s *Store) Rename(id, name string) error {
	return s.update(id, func(rec *session.Recording) {
		rec.Name = name
	})
}

// Annotate sets the session's notes via read-full, mutate, write-full.
func (s *Store) Annotate(id, notes string) error {
	return s.update(id, func(rec *session.Recording) {
		rec.Notes = notes
	})
}

func (s *Store) update(id string, mutate func(*session.Recording)) error {
	rec, err := s.Load(id)
	if err != nil {
		return err
	}
	mutate(rec)
	return s.Save(rec)
}

// Size sums the byte sizes of all record files under the store's root.
func (s *Store) Size() (int64, error) {
	var total int64
	dir := filepath.Join(s.root, recordsDir)
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		total += info.Size()
		return nil
	})
	if err != nil {
		return 0, errors.NewInternal(err)
	}
	return total, nil
}
