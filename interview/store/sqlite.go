package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore persists checkpoints in a single-file SQLite database.
// Suited to single-node deployments and development: zero setup, WAL
// mode for concurrent reads, and a UNIQUE(interview_id, version)
// constraint carrying the never-overwrite guarantee.
type SQLiteStore struct {
	db     *sql.DB
	mu     sync.RWMutex
	closed bool
}

// NewSQLiteStore opens (and if needed creates) the database at path.
// ":memory:" gives an in-memory database that vanishes on Close.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// SQLite supports one writer; a single pooled connection avoids
	// SQLITE_BUSY churn.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	ctx := context.Background()
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("sqlite %s: %w", pragma, err)
		}
	}

	schema := `
		CREATE TABLE IF NOT EXISTS interview_checkpoints (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			interview_id TEXT NOT NULL,
			version INTEGER NOT NULL,
			state_blob TEXT NOT NULL,
			created_at TIMESTAMP NOT NULL,
			UNIQUE(interview_id, version)
		)`
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create checkpoint table: %w", err)
	}
	if _, err := db.ExecContext(ctx,
		"CREATE INDEX IF NOT EXISTS idx_checkpoints_interview ON interview_checkpoints(interview_id)"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create checkpoint index: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Save implements Store. The version is max(existing)+1; a concurrent
// writer landing on the same version trips the uniqueness constraint and
// the write retries with the next one.
func (s *SQLiteStore) Save(ctx context.Context, interviewID string, blob []byte) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return 0, ErrClosed
	}

	for attempt := 0; attempt < saveAttempts; attempt++ {
		var version int
		err := s.db.QueryRowContext(ctx,
			"SELECT COALESCE(MAX(version), 0) + 1 FROM interview_checkpoints WHERE interview_id = ?",
			interviewID).Scan(&version)
		if err != nil {
			return 0, fmt.Errorf("%w: next version: %v", ErrUnavailable, err)
		}

		_, err = s.db.ExecContext(ctx,
			"INSERT INTO interview_checkpoints (interview_id, version, state_blob, created_at) VALUES (?, ?, ?, ?)",
			interviewID, version, string(blob), time.Now().UTC())
		if err == nil {
			return version, nil
		}
		if !isUniqueViolation(err) {
			return 0, fmt.Errorf("%w: insert checkpoint: %v", ErrUnavailable, err)
		}
	}
	return 0, fmt.Errorf("%w: version collisions persisted through %d attempts", ErrUnavailable, saveAttempts)
}

// LoadLatest implements Store.
func (s *SQLiteStore) LoadLatest(ctx context.Context, interviewID string) (Checkpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return Checkpoint{}, ErrClosed
	}
	return s.scanOne(s.db.QueryRowContext(ctx,
		"SELECT interview_id, version, state_blob, created_at FROM interview_checkpoints WHERE interview_id = ? ORDER BY version DESC LIMIT 1",
		interviewID))
}

// LoadVersion implements Store.
func (s *SQLiteStore) LoadVersion(ctx context.Context, interviewID string, version int) (Checkpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return Checkpoint{}, ErrClosed
	}
	return s.scanOne(s.db.QueryRowContext(ctx,
		"SELECT interview_id, version, state_blob, created_at FROM interview_checkpoints WHERE interview_id = ? AND version = ?",
		interviewID, version))
}

// Purge implements Store.
func (s *SQLiteStore) Purge(ctx context.Context, interviewID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return 0, ErrClosed
	}

	res, err := s.db.ExecContext(ctx,
		"DELETE FROM interview_checkpoints WHERE interview_id = ?", interviewID)
	if err != nil {
		return 0, fmt.Errorf("%w: purge: %v", ErrUnavailable, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%w: purge count: %v", ErrUnavailable, err)
	}
	return int(n), nil
}

// Close shuts the database. Further calls return ErrClosed.
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}

func (s *SQLiteStore) scanOne(row *sql.Row) (Checkpoint, error) {
	var cp Checkpoint
	var blob string
	err := row.Scan(&cp.InterviewID, &cp.Version, &blob, &cp.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Checkpoint{}, ErrNotFound
	}
	if err != nil {
		return Checkpoint{}, fmt.Errorf("%w: scan checkpoint: %v", ErrUnavailable, err)
	}
	cp.Blob = []byte(blob)
	return cp, nil
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(strings.ToLower(err.Error()), "unique")
}
