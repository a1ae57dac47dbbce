package interview

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/StephaneWamba/interviewlab/interview/emit"
	"github.com/StephaneWamba/interviewlab/interview/store"
)

// Input is one external event delivered to an interview: a transcribed
// utterance, a code submission, or neither (a timer tick).
type Input struct {
	Utterance string
	Code      string
	Language  string
}

// Coordinator owns one interview: its lock, its in-memory state, and the
// checkpoint version it last observed. Concurrent inputs to the same
// interview serialize behind the lock in arrival order; distinct
// interviews never share a Coordinator, which is what makes their states
// unobservable to each other.
type Coordinator struct {
	id       string
	graph    *Graph
	store    store.Store
	rows     RowStore
	resumes  ResumeStore
	versions *versionIndex
	cfg      Config
	emitter  emit.Emitter
	metrics  *Metrics
	logger   *slog.Logger

	mu      sync.Mutex
	state   *State
	version int
	// unchecked marks an interview whose latest run completed but whose
	// checkpoint write failed; the in-memory state is ahead of storage.
	unchecked bool
	closed    bool
}

// ExecuteStep runs one full graph run for one input and returns the
// assistant's message.
//
// On success the resulting state is checkpointed and kept in memory. On
// failure nothing is merged or saved: two consecutive failed steps leave
// state byte-identical to the pre-call checkpoint. Caller cancellation
// before finalize_turn discards the partial run; once the run completes,
// the save proceeds under a cancellation-proof context so finalize and
// checkpoint cannot be split.
func (c *Coordinator) ExecuteStep(ctx context.Context, input Input) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return "", ErrSessionClosed
	}

	if err := c.validateInput(input); err != nil {
		return "", err
	}

	stepCtx, cancel := context.WithTimeout(ctx, c.cfg.StepTimeout)
	defer cancel()

	if err := c.ensureState(stepCtx); err != nil {
		return "", err
	}

	working := *c.state
	working.LastResponse = input.Utterance
	working.CurrentCode = input.Code
	working.CurrentLanguage = input.Language

	next, report, err := c.graph.Run(stepCtx, working)
	if err != nil {
		c.metrics.RecordRun("error")
		// The step deadline may surface as the model client's own timeout
		// kind when it expires mid-call; the step context says which
		// deadline actually ran out.
		stepExpired := errors.Is(stepCtx.Err(), context.DeadlineExceeded) ||
			errors.Is(err, context.DeadlineExceeded)
		if stepExpired && ctx.Err() == nil {
			return "", fmt.Errorf("%w: %v", ErrStepTimeout, err)
		}
		return "", err
	}
	c.metrics.RecordRun("ok")

	c.save(ctx, next)
	c.state = &next

	return report.Message, nil
}

// validateInput rejects oversized or unsupported code before anything
// else runs, so a bad submission never reaches the sandbox.
func (c *Coordinator) validateInput(input Input) error {
	if input.Code == "" {
		return nil
	}
	if len(input.Code) > c.cfg.CodeMaxBytes {
		return fmt.Errorf("%w: %d bytes, limit %d", ErrCodeTooLarge, len(input.Code), c.cfg.CodeMaxBytes)
	}
	switch input.Language {
	case "python", "javascript":
		return nil
	default:
		return fmt.Errorf("%w: %q", ErrUnsupportedLanguage, input.Language)
	}
}

// ensureState makes sure c.state holds a usable value: the in-memory
// copy when it is current per the shared version index, otherwise the
// latest checkpoint, otherwise a reconstruction from the interview row.
func (c *Coordinator) ensureState(ctx context.Context) error {
	if c.state != nil {
		latest, known := c.versions.get(c.id)
		if !known || latest == c.version || c.unchecked {
			return nil
		}
		// Another writer advanced the checkpoint; fall through to reload.
	}

	cp, err := c.store.LoadLatest(ctx, c.id)
	switch {
	case err == nil:
		st, decodeErr := Decode(cp.Blob)
		if decodeErr == nil {
			c.state = &st
			c.version = cp.Version
			c.versions.set(c.id, cp.Version)
			return nil
		}
		// Corrupt blob: treated as absent, rebuilt from the row.
		c.logger.Warn("checkpoint corrupt, reconstructing",
			"interview_id", c.id, "version", cp.Version, "error", decodeErr)
		return c.reconstruct(ctx)
	case errors.Is(err, store.ErrNotFound):
		return c.reconstruct(ctx)
	default:
		if c.state != nil {
			// Keep serving from memory through a storage outage.
			c.logger.Warn("checkpoint load failed, using in-memory state",
				"interview_id", c.id, "error", err)
			return nil
		}
		return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
}

func (c *Coordinator) reconstruct(ctx context.Context) error {
	row, err := c.rows.Get(ctx, c.id)
	if err != nil {
		return fmt.Errorf("reconstruct interview %s: %w", c.id, err)
	}
	var resume *ResumeContext
	if row.ResumeID != "" {
		if rc, err := c.resumes.Get(ctx, row.ResumeID); err == nil {
			resume = &rc
		} else {
			c.logger.Warn("resume unavailable during reconstruction",
				"interview_id", c.id, "resume_id", row.ResumeID, "error", err)
		}
	}
	st := reconstructState(row, resume)
	c.state = &st
	c.version = 0
	return nil
}

// save checkpoints a completed run. It runs under a context immune to the
// caller's cancellation: a run that reached finalize_turn either
// checkpoints or is flagged unchecked, never half-cancelled. A storage
// failure does not fail the step.
func (c *Coordinator) save(ctx context.Context, next State) {
	blob, err := Encode(next)
	if err != nil {
		// Encode failing on a freshly reduced state is a programming
		// error; flag and continue rather than losing the turn.
		c.flagUnchecked(next, err)
		return
	}

	version, err := c.store.Save(context.WithoutCancel(ctx), c.id, blob)
	if err != nil {
		c.flagUnchecked(next, err)
		return
	}

	c.version = version
	c.unchecked = false
	c.versions.set(c.id, version)
	c.metrics.RecordCheckpoint(true)
	c.emitter.Emit(emit.Event{
		InterviewID: c.id,
		Turn:        next.TurnCount,
		Msg:         "checkpoint_saved",
		Meta:        map[string]any{"version": version},
	})
}

func (c *Coordinator) flagUnchecked(next State, err error) {
	c.unchecked = true
	c.metrics.RecordCheckpoint(false)
	c.logger.Warn("checkpoint skipped, interview unchecked",
		"interview_id", c.id, "error", err)
	c.emitter.Emit(emit.Event{
		InterviewID: c.id,
		Turn:        next.TurnCount,
		Msg:         "checkpoint_skipped",
		Meta:        map[string]any{"error": err.Error()},
	})
}

// Unchecked reports whether the latest completed run is ahead of durable
// storage.
func (c *Coordinator) Unchecked() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.unchecked
}

// close releases in-memory state. Checkpoints are never deleted here.
func (c *Coordinator) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	c.state = nil
}

// versionIndex is the shared map of last-saved checkpoint versions,
// letting coordinators skip redundant LoadLatest calls. Reads take the
// reader lock; Save invalidates by writing the new version.
type versionIndex struct {
	mu       sync.RWMutex
	versions map[string]int
}

func newVersionIndex() *versionIndex {
	return &versionIndex{versions: make(map[string]int)}
}

func (v *versionIndex) get(id string) (int, bool) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	version, ok := v.versions[id]
	return version, ok
}

func (v *versionIndex) set(id string, version int) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.versions[id] = version
}

func (v *versionIndex) drop(id string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	delete(v.versions, id)
}
