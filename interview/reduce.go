package interview

// Delta is the partial update a node returns. Append-only fields are
// slices concatenated onto the base; single-writer and sub-object fields
// are pointers whose presence means "write". Clear flags remove transient
// data and are not counted as single-writer writes.
type Delta struct {
	// Append-only.
	ConversationHistory []TurnRecord
	QuestionsAsked      []QuestionRecord
	DetectedIntents     []IntentRecord
	CodeSubmissions     []CodeSubmission
	TopicsCovered       []string

	// Single-writer.
	NextMessage   *string
	Phase         *Phase
	NextNode      *string
	TurnCount     *int
	AnswerQuality *float64
	ActiveRequest *IntentRecord

	// Structured sub-objects, replaced wholesale.
	Sandbox *SandboxInfo
	Resume  *ResumeContext

	// ClearTransients removes LastResponse, CurrentCode, CurrentLanguage,
	// and NextMessage after the assistant turn has been recorded. Only
	// finalize_turn sets it.
	ClearTransients bool

	// ClearActiveRequest drops the acted-upon user request so it cannot
	// leak into the next turn's policy decision.
	ClearActiveRequest bool
}

// IsZero reports whether the delta carries no update at all.
func (d Delta) IsZero() bool {
	return len(d.Writes()) == 0 && !d.ClearTransients && !d.ClearActiveRequest
}

// Writes lists every state key this delta sets, append-only keys
// included. The runtime checks it against the node's declared writable
// set.
func (d Delta) Writes() []string {
	var keys []string
	if len(d.ConversationHistory) > 0 {
		keys = append(keys, "conversation_history")
	}
	if len(d.QuestionsAsked) > 0 {
		keys = append(keys, "questions_asked")
	}
	if len(d.DetectedIntents) > 0 {
		keys = append(keys, "detected_intents")
	}
	if len(d.CodeSubmissions) > 0 {
		keys = append(keys, "code_submissions")
	}
	if len(d.TopicsCovered) > 0 {
		keys = append(keys, "topics_covered")
	}
	return append(keys, d.SingleWrites()...)
}

// SingleWrites lists the single-writer and sub-object keys this delta
// sets. Two nodes writing the same key in one run is a
// duplicate-writer defect: tolerated (last write wins) but logged.
func (d Delta) SingleWrites() []string {
	var keys []string
	if d.NextMessage != nil {
		keys = append(keys, "next_message")
	}
	if d.Phase != nil {
		keys = append(keys, "phase")
	}
	if d.NextNode != nil {
		keys = append(keys, "next_node")
	}
	if d.TurnCount != nil {
		keys = append(keys, "turn_count")
	}
	if d.AnswerQuality != nil {
		keys = append(keys, "answer_quality")
	}
	if d.ActiveRequest != nil {
		keys = append(keys, "active_request")
	}
	if d.Sandbox != nil {
		keys = append(keys, "sandbox")
	}
	if d.Resume != nil {
		keys = append(keys, "resume")
	}
	return keys
}

// Reduce merges a delta into a base state and returns the result. The
// base is not mutated. Per field class:
//
//   - append-only: new = base ++ delta, preserving delta order; the
//     concatenation is associative, so merging deltas in sequence equals
//     merging their concatenation
//   - single-writer: new = delta value when present, else base
//   - sub-objects: wholesale replace when present
//
// Clear flags apply after writes, so finalize_turn may in principle both
// read and clear in one delta.
func Reduce(base State, d Delta) State {
	out := base

	out.ConversationHistory = appendCopy(base.ConversationHistory, d.ConversationHistory)
	out.QuestionsAsked = appendCopy(base.QuestionsAsked, d.QuestionsAsked)
	out.DetectedIntents = appendCopy(base.DetectedIntents, d.DetectedIntents)
	out.CodeSubmissions = appendCopy(base.CodeSubmissions, d.CodeSubmissions)
	out.TopicsCovered = appendCopy(base.TopicsCovered, d.TopicsCovered)

	if d.NextMessage != nil {
		out.NextMessage = *d.NextMessage
	}
	if d.Phase != nil {
		out.Phase = *d.Phase
	}
	if d.NextNode != nil {
		out.NextNode = *d.NextNode
	}
	if d.TurnCount != nil {
		out.TurnCount = *d.TurnCount
	}
	if d.AnswerQuality != nil {
		out.AnswerQuality = *d.AnswerQuality
	}
	if d.ActiveRequest != nil {
		req := *d.ActiveRequest
		out.ActiveRequest = &req
	}
	if d.Sandbox != nil {
		sb := *d.Sandbox
		out.Sandbox = &sb
	}
	if d.Resume != nil {
		rc := *d.Resume
		out.Resume = &rc
	}

	if d.ClearActiveRequest {
		out.ActiveRequest = nil
	}
	if d.ClearTransients {
		out.LastResponse = ""
		out.CurrentCode = ""
		out.CurrentLanguage = ""
		out.NextMessage = ""
	}

	return out
}

// appendCopy concatenates without aliasing either input's backing array,
// so reducing never lets two states share mutable storage.
func appendCopy[T any](base, delta []T) []T {
	if len(delta) == 0 {
		return base
	}
	out := make([]T, 0, len(base)+len(delta))
	out = append(out, base...)
	return append(out, delta...)
}
