package interview

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/StephaneWamba/interviewlab/interview/emit"
	"github.com/StephaneWamba/interviewlab/interview/model"
	"github.com/StephaneWamba/interviewlab/interview/sandbox"
	"github.com/StephaneWamba/interviewlab/interview/store"
)

// Deps are the external collaborators every interview shares. All of
// them are required; clients are pooled here rather than per interview.
type Deps struct {
	Store   store.Store
	Model   *model.Client
	Sandbox *sandbox.Client
	Rows    RowStore
	Resumes ResumeStore
}

func (d Deps) validate() error {
	var errs []error
	if d.Store == nil {
		errs = append(errs, errors.New("deps: Store is required"))
	}
	if d.Model == nil {
		errs = append(errs, errors.New("deps: Model is required"))
	}
	if d.Sandbox == nil {
		errs = append(errs, errors.New("deps: Sandbox is required"))
	}
	if d.Rows == nil {
		errs = append(errs, errors.New("deps: Rows is required"))
	}
	if d.Resumes == nil {
		errs = append(errs, errors.New("deps: Resumes is required"))
	}
	return errors.Join(errs...)
}

// Manager is the engine's public surface: it owns the shared
// dependencies, one Coordinator per active interview, and the cleanup
// poller that releases sessions whose row status has moved to completed
// or cancelled. Safe for concurrent use.
type Manager struct {
	deps    Deps
	cfg     Config
	emitter emit.Emitter
	metrics *Metrics
	logger  *slog.Logger

	graph    *Graph
	versions *versionIndex
	attach   singleflight.Group

	mu       sync.RWMutex
	sessions map[string]*Coordinator
	closed   bool

	pollStop chan struct{}
	pollDone chan struct{}
}

// NewManager builds the engine over its dependencies. The configuration
// is defaulted and validated; an invalid one fails construction rather
// than a later step.
func NewManager(deps Deps, opts ...Option) (*Manager, error) {
	if err := deps.validate(); err != nil {
		return nil, err
	}

	m := &Manager{
		deps:     deps,
		cfg:      DefaultConfig(),
		emitter:  emit.NewNullEmitter(),
		logger:   slog.New(slog.DiscardHandler),
		versions: newVersionIndex(),
		sessions: make(map[string]*Coordinator),
		pollStop: make(chan struct{}),
		pollDone: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.cfg = m.cfg.withDefaults()
	if err := m.cfg.Validate(); err != nil {
		return nil, fmt.Errorf("manager config: %w", err)
	}
	if m.metrics != nil {
		deps.Model.SetCallObserver(m.metrics.RecordLMCall)
		deps.Sandbox.SetObserver(m.metrics.RecordSandbox)
	}

	nodes := NewNodes(deps.Model, deps.Sandbox, m.cfg)
	graph, err := NewGraph(nodes, m.cfg, m.emitter, m.metrics)
	if err != nil {
		return nil, err
	}
	m.graph = graph

	go m.pollStatuses()
	return m, nil
}

// ExecuteStep delivers one input event to an interview and returns the
// assistant's message. The interview's Coordinator is created on first
// use; concurrent first calls collapse into one attach.
func (m *Manager) ExecuteStep(ctx context.Context, interviewID string, input Input) (string, error) {
	if interviewID == "" {
		return "", errors.New("interview id is required")
	}
	c, err := m.coordinator(interviewID)
	if err != nil {
		return "", err
	}
	return c.ExecuteStep(ctx, input)
}

// Cleanup releases an interview's in-memory Coordinator. Checkpoints are
// never deleted; a later ExecuteStep resumes from the latest one.
func (m *Manager) Cleanup(interviewID string) {
	m.mu.Lock()
	c, ok := m.sessions[interviewID]
	if ok {
		delete(m.sessions, interviewID)
	}
	m.mu.Unlock()
	if !ok {
		return
	}

	c.close()
	m.versions.drop(interviewID)
	m.metrics.SessionDelta(-1)
	m.logger.Info("session released", "interview_id", interviewID)
	m.emitter.Emit(emit.Event{InterviewID: interviewID, Msg: "session_released"})
}

// Close stops the poller and releases every session. The Manager cannot
// be used afterwards.
func (m *Manager) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	m.mu.Unlock()

	close(m.pollStop)
	<-m.pollDone
	for _, id := range ids {
		m.Cleanup(id)
	}
}

// ActiveSessions reports how many Coordinators are held in memory.
func (m *Manager) ActiveSessions() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// coordinator returns the interview's Coordinator, creating it on first
// use. Creation runs in a singleflight group so concurrent first inputs
// share one attach instead of racing.
func (m *Manager) coordinator(interviewID string) (*Coordinator, error) {
	m.mu.RLock()
	c, ok := m.sessions[interviewID]
	closed := m.closed
	m.mu.RUnlock()
	if closed {
		return nil, ErrSessionClosed
	}
	if ok {
		return c, nil
	}

	v, err, _ := m.attach.Do(interviewID, func() (any, error) {
		m.mu.Lock()
		defer m.mu.Unlock()
		if m.closed {
			return nil, ErrSessionClosed
		}
		if c, ok := m.sessions[interviewID]; ok {
			return c, nil
		}
		c := &Coordinator{
			id:       interviewID,
			graph:    m.graph,
			store:    m.deps.Store,
			rows:     m.deps.Rows,
			resumes:  m.deps.Resumes,
			versions: m.versions,
			cfg:      m.cfg,
			emitter:  m.emitter,
			metrics:  m.metrics,
			logger:   m.logger,
		}
		m.sessions[interviewID] = c
		m.metrics.SessionDelta(1)
		m.logger.Info("session attached", "interview_id", interviewID)
		m.emitter.Emit(emit.Event{InterviewID: interviewID, Msg: "session_attached"})
		return c, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Coordinator), nil
}

// pollStatuses releases sessions whose interview row has reached a
// terminal status. Poll failures are logged and retried next tick.
func (m *Manager) pollStatuses() {
	defer close(m.pollDone)
	ticker := time.NewTicker(m.cfg.StatusPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.pollStop:
			return
		case <-ticker.C:
		}

		m.mu.RLock()
		ids := make([]string, 0, len(m.sessions))
		for id := range m.sessions {
			ids = append(ids, id)
		}
		m.mu.RUnlock()

		for _, id := range ids {
			ctx, cancel := context.WithTimeout(context.Background(), m.cfg.StatusPollInterval)
			row, err := m.deps.Rows.Get(ctx, id)
			cancel()
			if err != nil {
				m.logger.Warn("status poll failed", "interview_id", id, "error", err)
				continue
			}
			if row.Status == StatusCompleted || row.Status == StatusCancelled {
				m.logger.Info("releasing terminal session",
					"interview_id", id, "status", string(row.Status))
				m.Cleanup(id)
			}
		}
	}
}
