// Package emit carries structured observability events out of graph runs.
//
// Every run of the interview graph produces a stream of events: node
// start/finish, routing decisions, reducer warnings, checkpoint saves,
// degradations. Events flow through an Emitter, which may log them, turn
// them into OpenTelemetry spans, capture them for tests, or drop them.
package emit

// Event is one observability record from an interview graph run.
type Event struct {
	// InterviewID identifies the interview whose run emitted this event.
	InterviewID string

	// Turn is the interview turn count at emission time. Zero during the
	// first contact and for session-level events.
	Turn int

	// Node names the graph node the event concerns. Empty for run-level
	// and coordinator-level events.
	Node string

	// Msg is a short machine-stable event name, e.g. "node_complete",
	// "route", "duplicate_writer", "checkpoint_saved".
	Msg string

	// Meta holds event-specific structured data. Common keys:
	// "duration_ms", "error", "from", "to", "rule", "version", "keys".
	Meta map[string]any
}
