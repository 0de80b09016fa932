// Package localstore is the durable Local Fallback Store: a SQLite table of
// form snapshots that could not reach the remote store, keyed by
// "autosave:<owner>:<record>".
package localstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	// Pure-Go SQLite driver (no CGO).
	_ "modernc.org/sqlite"

	"github.com/DbyProsper/Fort-Hare-Tutors-Hub-sub000/internal/autosave"
)

const (
	sqlGetRecord = `SELECT snapshot, saved_at FROM fallback_records WHERE key = ?`

	sqlUpsertRecord = `INSERT INTO fallback_records (key, snapshot, saved_at)
		VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
		 snapshot = excluded.snapshot,
		 saved_at = excluded.saved_at`

	sqlDeleteRecord = `DELETE FROM fallback_records WHERE key = ?`

	sqlListRecords = `SELECT key, snapshot, saved_at FROM fallback_records
		WHERE key LIKE 'autosave:%' ORDER BY saved_at, key`
)

// Store is a SQLite-backed autosave.FallbackStore. Safe for concurrent use;
// a single connection serializes writers.
type Store struct {
	db     *sql.DB
	path   string
	logger *slog.Logger
}

var _ autosave.FallbackStore = (*Store)(nil)

// Entry is one stored fallback record with its parsed key.
type Entry struct {
	Key    autosave.PersistenceKey
	Record autosave.FallbackRecord
}

// Open opens (creating if needed) the database at path and applies
// migrations. The parent directory is created with 0700 permissions.
func Open(ctx context.Context, path string, logger *slog.Logger) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("localstore: creating directory for %s: %w", path, err)
	}

	dsn := fmt.Sprintf(
		"file:%s?_pragma=journal_mode(WAL)&_pragma=synchronous(FULL)"+
			"&_pragma=busy_timeout(5000)&_pragma=journal_size_limit(67108864)",
		path,
	)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("localstore: opening database %s: %w", path, err)
	}

	db.SetMaxOpenConns(1)

	if err := runMigrations(ctx, db, logger); err != nil {
		db.Close()
		return nil, err
	}

	logger.Debug("fallback store opened", slog.String("path", path))

	return &Store{db: db, path: path, logger: logger}, nil
}

// Path returns the database file location.
func (s *Store) Path() string {
	return s.path
}

// Close releases the database.
func (s *Store) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("localstore: closing database: %w", err)
	}

	return nil
}

// Get returns the record stored under key. found is false when no record
// exists.
func (s *Store) Get(ctx context.Context, key string) (autosave.FallbackRecord, bool, error) {
	var (
		raw     string
		savedAt int64
	)

	err := s.db.QueryRowContext(ctx, sqlGetRecord, key).Scan(&raw, &savedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return autosave.FallbackRecord{}, false, nil
	}

	if err != nil {
		return autosave.FallbackRecord{}, false, fmt.Errorf("localstore: reading %s: %w", key, err)
	}

	rec, err := decodeRecord(raw, savedAt)
	if err != nil {
		return autosave.FallbackRecord{}, false, fmt.Errorf("localstore: decoding %s: %w", key, err)
	}

	return rec, true, nil
}

// Set stores rec under key, replacing any existing record.
func (s *Store) Set(ctx context.Context, key string, rec autosave.FallbackRecord) error {
	data, err := json.Marshal(rec.Snapshot)
	if err != nil {
		return fmt.Errorf("localstore: encoding %s: %w", key, err)
	}

	if _, err := s.db.ExecContext(ctx, sqlUpsertRecord, key, string(data), rec.Timestamp); err != nil {
		return fmt.Errorf("localstore: writing %s: %w", key, err)
	}

	return nil
}

// Delete removes the record under key. Deleting a missing key is a no-op.
func (s *Store) Delete(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, sqlDeleteRecord, key); err != nil {
		return fmt.Errorf("localstore: deleting %s: %w", key, err)
	}

	return nil
}

// List returns every autosave record, oldest first. Rows whose key or
// snapshot cannot be parsed are skipped with a warning.
func (s *Store) List(ctx context.Context) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx, sqlListRecords)
	if err != nil {
		return nil, fmt.Errorf("localstore: listing records: %w", err)
	}
	defer rows.Close()

	var entries []Entry

	for rows.Next() {
		var (
			key     string
			raw     string
			savedAt int64
		)

		if err := rows.Scan(&key, &raw, &savedAt); err != nil {
			return nil, fmt.Errorf("localstore: scanning record: %w", err)
		}

		pk, err := autosave.ParseFallbackKey(key)
		if err != nil {
			s.logger.Warn("skipping fallback record with foreign key", slog.String("key", key))
			continue
		}

		rec, err := decodeRecord(raw, savedAt)
		if err != nil {
			s.logger.Warn("skipping unreadable fallback record",
				slog.String("key", key),
				slog.String("error", err.Error()),
			)

			continue
		}

		entries = append(entries, Entry{Key: pk, Record: rec})
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("localstore: iterating records: %w", err)
	}

	return entries, nil
}

func decodeRecord(raw string, savedAt int64) (autosave.FallbackRecord, error) {
	var snap autosave.FormSnapshot
	if err := json.Unmarshal([]byte(raw), &snap); err != nil {
		return autosave.FallbackRecord{}, err
	}

	return autosave.FallbackRecord{Snapshot: snap, Timestamp: savedAt}, nil
}
