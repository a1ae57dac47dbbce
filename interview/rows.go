package interview

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// Status is the lifecycle state of an interview row. The HTTP control
// plane owns transitions; the engine only reads them.
type Status string

// Interview statuses.
const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusCancelled  Status = "cancelled"
)

// Row is the read view of one interview's persistent record. The engine
// consults it when reconstructing minimal state and when polling for
// sessions to release; it never writes it.
type Row struct {
	ID             string
	UserID         string
	ResumeID       string
	JobDescription string
	Status         Status

	// History is the authoritative historical conversation view kept by
	// the control plane, used only for reconstruction after checkpoint
	// loss.
	History   []TurnRecord
	TurnCount int
}

// ErrRowNotFound reports a missing interview or resume row.
var ErrRowNotFound = errors.New("interview row not found")

// RowStore reads interview rows.
type RowStore interface {
	Get(ctx context.Context, interviewID string) (Row, error)
}

// ResumeStore reads structured resumes.
type ResumeStore interface {
	Get(ctx context.Context, resumeID string) (ResumeContext, error)
}

// reconstructState builds the minimal state the engine can continue from
// when no usable checkpoint exists.
func reconstructState(row Row, resume *ResumeContext) State {
	s := State{
		InterviewID:         row.ID,
		UserID:              row.UserID,
		JobDescription:      row.JobDescription,
		ConversationHistory: append([]TurnRecord(nil), row.History...),
		Resume:              resume,
	}
	// The row's turn count may trail its history; the history wins so
	// the decode invariant holds.
	s.TurnCount = s.UserTurns()
	return s
}

// MemRows is an in-memory RowStore for tests and demos.
type MemRows struct {
	mu   sync.RWMutex
	rows map[string]Row
}

// NewMemRows returns a store seeded with the given rows.
func NewMemRows(rows ...Row) *MemRows {
	m := &MemRows{rows: make(map[string]Row, len(rows))}
	for _, r := range rows {
		m.rows[r.ID] = r
	}
	return m
}

// Get implements RowStore.
func (m *MemRows) Get(_ context.Context, interviewID string) (Row, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	row, ok := m.rows[interviewID]
	if !ok {
		return Row{}, fmt.Errorf("%w: %s", ErrRowNotFound, interviewID)
	}
	return row, nil
}

// Put inserts or replaces a row. Demos use it to simulate the control
// plane flipping status to completed.
func (m *MemRows) Put(row Row) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows[row.ID] = row
}

// SetStatus updates one row's status, reporting whether it existed.
func (m *MemRows) SetStatus(interviewID string, status Status) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.rows[interviewID]
	if !ok {
		return false
	}
	row.Status = status
	m.rows[interviewID] = row
	return true
}

// MemResumes is an in-memory ResumeStore for tests and demos.
type MemResumes struct {
	mu      sync.RWMutex
	resumes map[string]ResumeContext
}

// NewMemResumes returns an empty store.
func NewMemResumes() *MemResumes {
	return &MemResumes{resumes: make(map[string]ResumeContext)}
}

// Put inserts or replaces a resume.
func (m *MemResumes) Put(resumeID string, rc ResumeContext) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resumes[resumeID] = rc
}

// Get implements ResumeStore.
func (m *MemResumes) Get(_ context.Context, resumeID string) (ResumeContext, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rc, ok := m.resumes[resumeID]
	if !ok {
		return ResumeContext{}, fmt.Errorf("%w: resume %s", ErrRowNotFound, resumeID)
	}
	return rc, nil
}
