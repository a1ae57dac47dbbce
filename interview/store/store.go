// Package store persists interview checkpoints.
//
// A checkpoint is an opaque serialized state blob keyed by
// (interview_id, version). Versions are assigned by the store itself,
// start at 1, and increase strictly; a version is never overwritten.
// Implementations: MemStore (tests, single process), SQLiteStore (single
// node), MySQLStore and RedisStore (shared deployments).
package store

import (
	"context"
	"errors"
	"time"
)

// Checkpoint is one durable snapshot of an interview's state.
type Checkpoint struct {
	InterviewID string
	Version     int
	Blob        []byte
	CreatedAt   time.Time
}

// Store is the checkpoint persistence contract.
//
// Save assigns max(existing)+1 and never overwrites; on a concurrent
// version collision the writer retries with the next version. LoadLatest
// and LoadVersion return ErrNotFound when nothing matches. Purge removes
// every checkpoint for the interview, reports how many, and is
// idempotent. Blobs are opaque; the store never inspects them.
type Store interface {
	Save(ctx context.Context, interviewID string, blob []byte) (int, error)
	LoadLatest(ctx context.Context, interviewID string) (Checkpoint, error)
	LoadVersion(ctx context.Context, interviewID string, version int) (Checkpoint, error)
	Purge(ctx context.Context, interviewID string) (int, error)
}

// Sentinel errors shared by every implementation.
var (
	// ErrNotFound reports that no checkpoint matches the request.
	ErrNotFound = errors.New("checkpoint not found")

	// ErrUnavailable wraps backend failures (connection refused, timeout,
	// exhausted version-collision retries). Callers may continue without
	// the checkpoint and flag the interview unchecked.
	ErrUnavailable = errors.New("checkpoint store unavailable")

	// ErrClosed reports use of a store after Close.
	ErrClosed = errors.New("checkpoint store closed")
)

// saveAttempts bounds the version-collision retry loop in Save.
const saveAttempts = 5
