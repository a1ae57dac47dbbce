package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-sql-driver/mysql"
)

// MySQLStore persists checkpoints in MySQL for shared deployments where
// several engine processes checkpoint into one database. The
// UNIQUE(interview_id, version) key is what serializes concurrent
// writers: both compute max+1, one insert wins, the loser retries with
// the next version.
type MySQLStore struct {
	db     *sql.DB
	mu     sync.RWMutex
	closed bool
}

// NewMySQLStore opens a pool against the DSN, pings it, and migrates the
// checkpoint table. DSN must include parseTime=true so created_at scans
// into time.Time.
func NewMySQLStore(dsn string) (*MySQLStore, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("open mysql: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%w: ping mysql: %v", ErrUnavailable, err)
	}

	schema := `
		CREATE TABLE IF NOT EXISTS interview_checkpoints (
			id BIGINT AUTO_INCREMENT PRIMARY KEY,
			interview_id VARCHAR(255) NOT NULL,
			version INT NOT NULL,
			state_blob MEDIUMTEXT NOT NULL,
			created_at TIMESTAMP(6) NOT NULL,
			UNIQUE KEY uq_interview_version (interview_id, version),
			KEY idx_interview (interview_id)
		) ENGINE=InnoDB`
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create checkpoint table: %w", err)
	}

	return &MySQLStore{db: db}, nil
}

// Save implements Store.
func (s *MySQLStore) Save(ctx context.Context, interviewID string, blob []byte) (int, error) {
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
		if !isMySQLDuplicate(err) {
			return 0, fmt.Errorf("%w: insert checkpoint: %v", ErrUnavailable, err)
		}
	}
	return 0, fmt.Errorf("%w: version collisions persisted through %d attempts", ErrUnavailable, saveAttempts)
}

// LoadLatest implements Store.
func (s *MySQLStore) LoadLatest(ctx context.Context, interviewID string) (Checkpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return Checkpoint{}, ErrClosed
	}
	return scanMySQLRow(s.db.QueryRowContext(ctx,
		"SELECT interview_id, version, state_blob, created_at FROM interview_checkpoints WHERE interview_id = ? ORDER BY version DESC LIMIT 1",
		interviewID))
}

// LoadVersion implements Store.
func (s *MySQLStore) LoadVersion(ctx context.Context, interviewID string, version int) (Checkpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return Checkpoint{}, ErrClosed
	}
	return scanMySQLRow(s.db.QueryRowContext(ctx,
		"SELECT interview_id, version, state_blob, created_at FROM interview_checkpoints WHERE interview_id = ? AND version = ?",
		interviewID, version))
}

// Purge implements Store.
func (s *MySQLStore) Purge(ctx context.Context, interviewID string) (int, error) {
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

// Close shuts the pool. Further calls return ErrClosed.
func (s *MySQLStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}

func scanMySQLRow(row *sql.Row) (Checkpoint, error) {
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

// isMySQLDuplicate detects error 1062 (ER_DUP_ENTRY).
func isMySQLDuplicate(err error) bool {
	var mysqlErr *mysql.MySQLError
	return errors.As(err, &mysqlErr) && mysqlErr.Number == 1062
}
