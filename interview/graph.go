package interview

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/StephaneWamba/interviewlab/interview/emit"
)

// errRunaway aborts a run that keeps routing past the visit limit. It
// should never fire with the declared edge set; the guard exists so a
// future routing bug cannot spin forever.
var errRunaway = errors.New("graph exceeded node visit limit")

// Report describes one completed graph run.
type Report struct {
	// Nodes lists the executed nodes in order.
	Nodes []NodeName

	// Message is the assistant message the run produced. Empty for a
	// timer tick.
	Message string

	// Durations holds per-node wall clock.
	Durations map[NodeName]time.Duration

	// Warnings carries tolerated defects: duplicate writers, undeclared
	// writes, unknown routes.
	Warnings []string
}

// Graph executes the interview state machine: entry initialize, terminal
// finalize_turn, unconditional edges between control nodes, and the two
// conditional routers. One Graph value serves all interviews; runs are
// single-threaded and the per-interview lock upstream ensures one run per
// interview at a time.
type Graph struct {
	nodes   map[NodeName]nodeSpec
	cfg     Config
	emitter emit.Emitter
	metrics *Metrics
}

// NewGraph assembles the graph over a node library and validates the
// declared topology: both routers' target sets and every unconditional
// edge must name registered nodes.
func NewGraph(nodes *Nodes, cfg Config, emitter emit.Emitter, metrics *Metrics) (*Graph, error) {
	if emitter == nil {
		emitter = emit.NewNullEmitter()
	}
	g := &Graph{nodes: nodes.registry(), cfg: cfg, emitter: emitter, metrics: metrics}
	if err := g.validate(); err != nil {
		return nil, err
	}
	return g, nil
}

func (g *Graph) validate() error {
	required := []NodeName{
		NodeInitialize, NodeIngestInput, NodeDetectIntent, NodeDecideNext,
		NodeFinalizeTurn, NodeGreeting, NodeQuestion, NodeFollowup,
		NodeSandboxGuidance, NodeCodeReview, NodeEvaluation, NodeClosing,
	}
	for _, name := range required {
		spec, ok := g.nodes[name]
		if !ok {
			return fmt.Errorf("graph: node %s not registered", name)
		}
		if spec.fn == nil {
			return fmt.Errorf("graph: node %s has no handler", name)
		}
	}
	return nil
}

// Run executes one full graph run over a private copy of the state and
// returns the resulting state with a report. On any node failure nothing
// is returned but the error: the caller's state and last checkpoint stay
// intact.
func (g *Graph) Run(ctx context.Context, s State) (State, Report, error) {
	working, err := Clone(s)
	if err != nil {
		return State{}, Report{}, &RunError{InterviewID: s.InterviewID, Err: err}
	}

	report := Report{Durations: make(map[NodeName]time.Duration)}
	writers := make(map[string]NodeName)
	current := NodeInitialize

	for visits := 0; ; visits++ {
		if visits >= g.cfg.MaxNodeVisits {
			return State{}, report, &RunError{InterviewID: s.InterviewID, Node: string(current), Err: errRunaway}
		}
		if err := ctx.Err(); err != nil {
			return State{}, report, &RunError{InterviewID: s.InterviewID, Node: string(current), Err: err}
		}

		spec := g.nodes[current]
		start := time.Now()
		delta, err := spec.fn(ctx, working)
		elapsed := time.Since(start)
		if err != nil {
			return State{}, report, &RunError{InterviewID: s.InterviewID, Node: string(current), Err: err}
		}

		g.checkDelta(&report, working, current, spec, delta, writers)
		working = Reduce(working, delta)
		working.LastNode = string(current)

		report.Nodes = append(report.Nodes, current)
		report.Durations[current] = elapsed
		g.metrics.RecordNode(current, elapsed)
		g.emitter.Emit(emit.Event{
			InterviewID: working.InterviewID,
			Turn:        working.TurnCount,
			Node:        string(current),
			Msg:         "node_complete",
			Meta:        map[string]any{"duration_ms": elapsed.Milliseconds()},
		})

		if current == NodeFinalizeTurn {
			break
		}
		next := g.route(&report, working, current)
		g.emitter.Emit(emit.Event{
			InterviewID: working.InterviewID,
			Turn:        working.TurnCount,
			Node:        string(current),
			Msg:         "route",
			Meta:        map[string]any{"to": string(next)},
		})
		current = next
	}

	// finalize_turn already cleared NextMessage on the state; the spoken
	// message survives in the report and the appended assistant turn.
	if len(working.ConversationHistory) > 0 {
		if last := working.ConversationHistory[len(working.ConversationHistory)-1]; last.Role == RoleAssistant {
			report.Message = last.Content
		}
	}
	return working, report, nil
}

// checkDelta enforces the per-node write discipline: every written key
// must be declared, and no single-writer key may be written twice in one
// run. Both violations are tolerated (last write wins) but flagged.
func (g *Graph) checkDelta(report *Report, working State, node NodeName, spec nodeSpec, delta Delta, writers map[string]NodeName) {
	for _, key := range delta.Writes() {
		if !spec.writable[key] {
			warning := fmt.Sprintf("node %s wrote undeclared key %s", node, key)
			report.Warnings = append(report.Warnings, warning)
			g.emitter.Emit(emit.Event{
				InterviewID: working.InterviewID,
				Turn:        working.TurnCount,
				Node:        string(node),
				Msg:         "undeclared_write",
				Meta:        map[string]any{"key": key},
			})
		}
	}
	for _, key := range delta.SingleWrites() {
		if first, ok := writers[key]; ok {
			warning := fmt.Sprintf("duplicate writer for %s: %s then %s", key, first, node)
			report.Warnings = append(report.Warnings, warning)
			g.emitter.Emit(emit.Event{
				InterviewID: working.InterviewID,
				Turn:        working.TurnCount,
				Node:        string(node),
				Msg:         "duplicate_writer",
				Meta:        map[string]any{"key": key, "first": string(first)},
			})
			g.metrics.RecordDuplicateWriter()
		}
		writers[key] = node
	}
}

// route picks the successor of a completed node.
func (g *Graph) route(report *Report, s State, from NodeName) NodeName {
	switch from {
	case NodeInitialize:
		return NodeIngestInput
	case NodeIngestInput:
		return g.routeFromIngest(s)
	case NodeDetectIntent:
		return NodeDecideNext
	case NodeDecideNext:
		return g.routeFromDecide(report, s)
	default:
		// Every action node terminates the turn.
		return NodeFinalizeTurn
	}
}

// routeFromIngest dispatches on what the input event carried. An empty
// conversation always greets first, code submissions bypass intent
// detection, and a bare timer tick finalizes without speaking.
func (g *Graph) routeFromIngest(s State) NodeName {
	switch {
	case len(s.ConversationHistory) == 0:
		return NodeGreeting
	case s.CurrentCode != "":
		return NodeCodeReview
	case s.LastResponse != "":
		return NodeDetectIntent
	default:
		return NodeFinalizeTurn
	}
}

// routeFromDecide reads the decision node's output. Anything outside the
// declared action set falls back to question and is logged as an unknown
// route.
func (g *Graph) routeFromDecide(report *Report, s State) NodeName {
	next := NodeName(s.NextNode)
	if next.IsAction() {
		return next
	}
	warning := fmt.Sprintf("unknown route %q, defaulting to question", s.NextNode)
	report.Warnings = append(report.Warnings, warning)
	g.emitter.Emit(emit.Event{
		InterviewID: s.InterviewID,
		Turn:        s.TurnCount,
		Node:        string(NodeDecideNext),
		Msg:         "unknown_route",
		Meta:        map[string]any{"target": s.NextNode, "error": ErrUnknownRoute.Error()},
	})
	g.metrics.RecordUnknownRoute()
	return NodeQuestion
}
