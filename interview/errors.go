package interview

import (
	"errors"
	"fmt"

	"github.com/StephaneWamba/interviewlab/interview/model"
	"github.com/StephaneWamba/interviewlab/interview/sandbox"
)

// Sentinel errors for the failure kinds the engine distinguishes. Match
// with errors.Is; most are wrapped with additional context on the way up.
var (
	// ErrCorruptState reports a checkpoint blob that fails decoding or
	// violates the state schema. Recoverable: the coordinator rebuilds
	// minimal state from the interview row.
	ErrCorruptState = errors.New("corrupt interview state")

	// ErrStorageUnavailable reports a checkpoint backend failure. The run
	// still completes; the checkpoint is skipped and the interview is
	// flagged unchecked.
	ErrStorageUnavailable = errors.New("checkpoint storage unavailable")

	// ErrLMTimeout reports that every language-model attempt ran out of
	// time. Fatal for the current run. Aliases the model package sentinel
	// so errors.Is works without importing it.
	ErrLMTimeout = model.ErrTimeout

	// ErrLMSchemaFailure reports that every language-model attempt
	// produced output failing schema validation. Fatal for the current run.
	ErrLMSchemaFailure = model.ErrSchema

	// ErrSandboxUnavailable reports that the code executor could not be
	// reached. Surfaced only by Runner implementations; the sandbox client
	// absorbs it into a degraded result, as does a code-execution timeout.
	ErrSandboxUnavailable = sandbox.ErrUnavailable

	// ErrStepTimeout reports that a whole ExecuteStep exceeded its budget.
	ErrStepTimeout = errors.New("interview step timed out")

	// ErrUnknownRoute reports a routing target outside the declared node
	// set. The runtime falls back to the question node and logs it.
	ErrUnknownRoute = errors.New("unknown route target")

	// ErrCodeTooLarge rejects a code submission above the size cap before
	// any sandbox call.
	ErrCodeTooLarge = sandbox.ErrCodeTooLarge

	// ErrUnsupportedLanguage rejects a code submission in a language the
	// sandbox does not run.
	ErrUnsupportedLanguage = sandbox.ErrUnsupportedLanguage

	// ErrSessionClosed reports use of a Manager or Coordinator after Close.
	ErrSessionClosed = errors.New("interview session closed")
)

// RunError wraps a failure inside a graph run with the interview and node
// where it happened. The wrapped error carries the failure kind.
type RunError struct {
	InterviewID string
	Node        string
	Err         error
}

// Error implements the error interface.
func (e *RunError) Error() string {
	if e.Node == "" {
		return fmt.Sprintf("interview %s: run failed: %v", e.InterviewID, e.Err)
	}
	return fmt.Sprintf("interview %s: node %s: %v", e.InterviewID, e.Node, e.Err)
}

// Unwrap exposes the underlying failure for errors.Is / errors.As.
func (e *RunError) Unwrap() error {
	return e.Err
}
