package interview

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"time"
)

// stateSchemaID names the envelope layout. Bump it when a field changes
// meaning; Decode rejects blobs from other schemas as corrupt rather than
// guessing.
const stateSchemaID = "interview.state.v1"

// envelope is the self-describing wrapper every checkpoint blob carries.
type envelope struct {
	Schema string `json:"schema"`
	State  State  `json:"state"`
}

// Encode serializes a state into its checkpoint blob: a UTF-8 JSON
// envelope with fixed key order (struct order), TopicsCovered sorted, and
// timestamps in RFC3339 UTC. Encode(Decode(blob)) is byte-stable and
// Decode(Encode(s)) == s by value for every valid state.
func Encode(s State) ([]byte, error) {
	s.TopicsCovered = sortedCopy(s.TopicsCovered)
	normalizeTimes(&s)

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(envelope{Schema: stateSchemaID, State: s}); err != nil {
		return nil, fmt.Errorf("encode state: %w", err)
	}
	// Encoder appends a trailing newline; the blob is a single line.
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// Decode parses a checkpoint blob back into a state. Any structural or
// semantic violation wraps ErrCorruptState so callers can fall back to
// reconstruction with a single errors.Is check.
func Decode(blob []byte) (State, error) {
	dec := json.NewDecoder(bytes.NewReader(blob))
	dec.DisallowUnknownFields()

	var env envelope
	if err := dec.Decode(&env); err != nil {
		return State{}, fmt.Errorf("%w: %v", ErrCorruptState, err)
	}
	if env.Schema != stateSchemaID {
		return State{}, fmt.Errorf("%w: unknown schema %q", ErrCorruptState, env.Schema)
	}
	if err := validateState(env.State); err != nil {
		return State{}, fmt.Errorf("%w: %v", ErrCorruptState, err)
	}
	return env.State, nil
}

// validateState enforces the semantic invariants a well-formed state
// satisfies. Phase may be empty: the initialize node has not run yet on a
// freshly reconstructed state.
func validateState(s State) error {
	if s.InterviewID == "" {
		return fmt.Errorf("missing interview id")
	}
	if s.Phase != "" && !s.Phase.IsValid() {
		return fmt.Errorf("invalid phase %q", s.Phase)
	}
	if s.TurnCount < 0 {
		return fmt.Errorf("negative turn count %d", s.TurnCount)
	}
	for i, tr := range s.ConversationHistory {
		if !tr.Role.IsValid() {
			return fmt.Errorf("turn %d: invalid role %q", i, tr.Role)
		}
	}
	for i, q := range s.QuestionsAsked {
		if q.Text == "" {
			return fmt.Errorf("question %d: empty text", i)
		}
	}
	for i, in := range s.DetectedIntents {
		if in.Confidence < 0 || in.Confidence > 1 {
			return fmt.Errorf("intent %d: confidence %v out of range", i, in.Confidence)
		}
	}
	if got := s.UserTurns(); got != s.TurnCount {
		return fmt.Errorf("turn count %d does not match %d user turns", s.TurnCount, got)
	}
	if s.Sandbox != nil && s.Sandbox.Active && s.Sandbox.Exercise == "" {
		return fmt.Errorf("active sandbox with empty exercise description")
	}
	return nil
}

// normalizeTimes pins every timestamp to UTC and strips monotonic clock
// readings, so encode → decode yields values comparable with ==. The
// slices are copied first: Encode takes its state by value and must not
// write through shared backing arrays into the caller's copy.
func normalizeTimes(s *State) {
	if len(s.ConversationHistory) > 0 {
		s.ConversationHistory = append([]TurnRecord(nil), s.ConversationHistory...)
		for i := range s.ConversationHistory {
			s.ConversationHistory[i].Timestamp = s.ConversationHistory[i].Timestamp.Round(0).UTC()
		}
	}
	if len(s.CodeSubmissions) > 0 {
		s.CodeSubmissions = append([]CodeSubmission(nil), s.CodeSubmissions...)
		for i := range s.CodeSubmissions {
			s.CodeSubmissions[i].Timestamp = s.CodeSubmissions[i].Timestamp.Round(0).UTC()
		}
	}
	if s.Sandbox != nil {
		sb := *s.Sandbox
		sb.LastActivity = sb.LastActivity.Round(0).UTC()
		s.Sandbox = &sb
	}
}

func sortedCopy(in []string) []string {
	if len(in) == 0 {
		return in
	}
	out := make([]string, len(in))
	copy(out, in)
	sort.Strings(out)
	return out
}

// timestamp returns the current UTC time without a monotonic reading,
// the only form node code stores in state.
func timestamp() time.Time {
	return time.Now().Round(0).UTC()
}
