package interview

import (
	"context"

	"github.com/google/uuid"

	"github.com/StephaneWamba/interviewlab/interview/model"
	"github.com/StephaneWamba/interviewlab/interview/sandbox"
)

// NodeFunc is one graph node: an async function of state producing a
// delta. Nodes never mutate their input; the runtime merges the delta
// with Reduce and records which node ran.
type NodeFunc func(ctx context.Context, s State) (Delta, error)

// nodeSpec pairs a handler with the state keys it is allowed to write.
// The runtime rejects deltas touching anything else.
type nodeSpec struct {
	fn       NodeFunc
	writable map[string]bool
}

// Nodes is the node library: every handler closes over the same shared
// dependencies. One Nodes value serves all interviews; per-interview data
// lives exclusively in the state passed through.
type Nodes struct {
	lm      *model.Client
	sandbox *sandbox.Client
	cfg     Config

	// newID mints question and submission identifiers. Replaceable in
	// tests for stable output.
	newID func() string
}

// NewNodes builds the node library over its shared dependencies.
func NewNodes(lm *model.Client, sb *sandbox.Client, cfg Config) *Nodes {
	return &Nodes{
		lm:      lm,
		sandbox: sb,
		cfg:     cfg,
		newID:   uuid.NewString,
	}
}

// registry declares every node with its writable key set. The graph is
// data: this map plus the edges in graph.go fully describe the machine.
func (n *Nodes) registry() map[NodeName]nodeSpec {
	return map[NodeName]nodeSpec{
		NodeInitialize: {
			fn:       n.Initialize,
			writable: keys("phase", "turn_count", "sandbox"),
		},
		NodeIngestInput: {
			fn:       n.IngestInput,
			writable: keys("conversation_history", "turn_count"),
		},
		NodeDetectIntent: {
			fn:       n.DetectIntent,
			writable: keys("detected_intents", "active_request"),
		},
		NodeDecideNext: {
			fn:       n.DecideNextAction,
			writable: keys("next_node", "answer_quality"),
		},
		NodeFinalizeTurn: {
			fn:       n.FinalizeTurn,
			writable: keys("conversation_history"),
		},
		NodeGreeting: {
			fn:       n.Greeting,
			writable: keys("next_message", "phase", "questions_asked"),
		},
		NodeQuestion: {
			fn:       n.Question,
			writable: keys("next_message", "phase", "questions_asked", "topics_covered"),
		},
		NodeFollowup: {
			fn:       n.Followup,
			writable: keys("next_message", "questions_asked"),
		},
		NodeSandboxGuidance: {
			fn:       n.SandboxGuidance,
			writable: keys("next_message", "phase", "sandbox"),
		},
		NodeCodeReview: {
			fn:       n.CodeReview,
			writable: keys("next_message", "phase", "code_submissions", "questions_asked", "sandbox"),
		},
		NodeEvaluation: {
			fn:       n.Evaluation,
			writable: keys("next_message", "phase"),
		},
		NodeClosing: {
			fn:       n.Closing,
			writable: keys("next_message", "phase"),
		},
	}
}

func keys(names ...string) map[string]bool {
	out := make(map[string]bool, len(names))
	for _, k := range names {
		out[k] = true
	}
	return out
}

func strPtr(s string) *string     { return &s }
func intPtr(i int) *int           { return &i }
func floatPtr(f float64) *float64 { return &f }
func phasePtr(p Phase) *Phase     { return &p }
