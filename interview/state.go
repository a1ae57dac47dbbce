// Package interview implements the interview orchestration engine: a
// checkpointed state machine that turns one input event (an utterance, a
// code submission, or a timer tick) into the interviewer's next action.
//
// The engine is a library. Callers construct a Manager with a checkpoint
// store, a language-model client, and a sandbox client, then drive it
// through ExecuteStep. Voice transport, HTTP control plane, and the
// container runtime live elsewhere and are reached only through the
// narrow interfaces in this package and its subpackages.
package interview

import (
	"fmt"
	"strings"
	"time"

	"github.com/StephaneWamba/interviewlab/interview/sandbox"
)

// Phase is the coarse stage an interview is in.
type Phase string

// Interview phases, in their usual order.
const (
	PhaseIntro       Phase = "intro"
	PhaseExploration Phase = "exploration"
	PhaseTechnical   Phase = "technical"
	PhaseClosing     Phase = "closing"
)

// IsValid reports whether p is one of the declared phases.
func (p Phase) IsValid() bool {
	switch p {
	case PhaseIntro, PhaseExploration, PhaseTechnical, PhaseClosing:
		return true
	}
	return false
}

// Role identifies the speaker of a conversation turn.
type Role string

// Turn roles.
const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// IsValid reports whether r is one of the declared roles.
func (r Role) IsValid() bool {
	switch r {
	case RoleUser, RoleAssistant, RoleSystem:
		return true
	}
	return false
}

// QuestionSource classifies where a question came from.
type QuestionSource string

// Question sources.
const (
	SourceGreeting QuestionSource = "greeting"
	SourceQuestion QuestionSource = "question"
	SourceFollowup QuestionSource = "followup"
)

// TurnRecord is one utterance in the conversation. Records are append-only:
// once created they are never mutated or deleted within an interview.
type TurnRecord struct {
	Role      Role              `json:"role"`
	Content   string            `json:"content"`
	Timestamp time.Time         `json:"timestamp"`
	Meta      map[string]string `json:"meta,omitempty"`
}

// QuestionRecord is one question the interviewer asked, kept for
// deduplication and decision context.
type QuestionRecord struct {
	ID          string         `json:"id"`
	Text        string         `json:"text"`
	Source      QuestionSource `json:"source"`
	AskedAtTurn int            `json:"asked_at_turn"`
	// Anchor names the resume feature the question was sourced from.
	// Empty for greetings and followups.
	Anchor string `json:"anchor,omitempty"`
}

// IntentRecord is one detected candidate intent. Records below the
// confidence threshold are still appended for the audit trail but never
// acted upon.
type IntentRecord struct {
	Type              Intent  `json:"type"`
	Confidence        float64 `json:"confidence"`
	ExtractedFromTurn int     `json:"extracted_from_turn"`
	Payload           string  `json:"payload,omitempty"`
}

// QualityAnalysis is the language model's structured read of a code
// submission.
type QualityAnalysis struct {
	Score     float64  `json:"score"`
	Strengths []string `json:"strengths,omitempty"`
	Issues    []string `json:"issues,omitempty"`
	Summary   string   `json:"summary"`
}

// CodeSubmission is one executed and reviewed piece of candidate code.
// Immutable once appended.
type CodeSubmission struct {
	ID        string          `json:"id"`
	Code      string          `json:"code"`
	Language  string          `json:"language"`
	Result    sandbox.Result  `json:"result"`
	Quality   QualityAnalysis `json:"quality"`
	Timestamp time.Time       `json:"timestamp"`
}

// SandboxInfo tracks the coding-exercise side channel. Replaced wholesale
// when written; never merged field by field.
type SandboxInfo struct {
	Active       bool      `json:"active"`
	LastActivity time.Time `json:"last_activity"`
	LastCode     string    `json:"last_code,omitempty"`
	Exercise     string    `json:"exercise,omitempty"`
	StarterCode  string    `json:"starter_code,omitempty"`
	Hints        []string  `json:"hints,omitempty"`
	// Submissions holds CodeSubmission IDs in submission order.
	Submissions []string `json:"submissions,omitempty"`
}

// ResumeContext is the read-only structured view of the candidate's resume
// carried in state for prompt construction.
type ResumeContext struct {
	Profile    string   `json:"profile,omitempty"`
	Experience []string `json:"experience,omitempty"`
	Education  []string `json:"education,omitempty"`
	Projects   []string `json:"projects,omitempty"`
	Skills     []string `json:"skills,omitempty"`
}

// State is the sole mutable object threaded through a graph run. Fields
// fall into four mutation classes, enforced by Reduce:
//
//   - append-only slices, merged by concatenation
//   - single-writer scalars, replaced when a delta carries them
//   - structured sub-objects, replaced wholesale
//   - transient inputs, set by the coordinator before a run and cleared
//     by finalize_turn
//
// State is a value: runs operate on a clone and the checkpoint store only
// ever sees serialized blobs.
type State struct {
	// Identity, fixed at reconstruction.
	InterviewID    string `json:"interview_id"`
	UserID         string `json:"user_id"`
	JobDescription string `json:"job_description,omitempty"`

	// Append-only.
	ConversationHistory []TurnRecord     `json:"conversation_history"`
	QuestionsAsked      []QuestionRecord `json:"questions_asked"`
	DetectedIntents     []IntentRecord   `json:"detected_intents"`
	CodeSubmissions     []CodeSubmission `json:"code_submissions"`
	TopicsCovered       []string         `json:"topics_covered"`

	// Single-writer.
	NextMessage   string        `json:"next_message,omitempty"`
	Phase         Phase         `json:"phase"`
	LastNode      string        `json:"last_node,omitempty"`
	NextNode      string        `json:"next_node,omitempty"`
	TurnCount     int           `json:"turn_count"`
	AnswerQuality float64       `json:"answer_quality,omitempty"`
	ActiveRequest *IntentRecord `json:"active_request,omitempty"`

	// Structured sub-objects.
	Sandbox *SandboxInfo   `json:"sandbox,omitempty"`
	Resume  *ResumeContext `json:"resume,omitempty"`

	// Transient inputs for the current run.
	LastResponse    string `json:"last_response,omitempty"`
	CurrentCode     string `json:"current_code,omitempty"`
	CurrentLanguage string `json:"current_language,omitempty"`
}

// UserTurns counts the user-role records in the conversation history.
// Invariant: equals TurnCount after every successful run.
func (s State) UserTurns() int {
	n := 0
	for _, tr := range s.ConversationHistory {
		if tr.Role == RoleUser {
			n++
		}
	}
	return n
}

// LastUserTurn returns the most recent user-role record and true, or a
// zero record and false when the candidate has not spoken yet.
func (s State) LastUserTurn() (TurnRecord, bool) {
	for i := len(s.ConversationHistory) - 1; i >= 0; i-- {
		if s.ConversationHistory[i].Role == RoleUser {
			return s.ConversationHistory[i], true
		}
	}
	return TurnRecord{}, false
}

// Transcript renders the last n turns as "role: content" lines for prompt
// context. n <= 0 renders everything.
func (s State) Transcript(n int) string {
	turns := s.ConversationHistory
	if n > 0 && len(turns) > n {
		turns = turns[len(turns)-n:]
	}
	var sb strings.Builder
	for i, tr := range turns {
		if i > 0 {
			sb.WriteByte('\n')
		}
		fmt.Fprintf(&sb, "%s: %s", tr.Role, tr.Content)
	}
	return sb.String()
}

// RecentQuestionSources returns the sources of the last n questions asked,
// oldest first. Decision context only.
func (s State) RecentQuestionSources(n int) []string {
	qs := s.QuestionsAsked
	if n > 0 && len(qs) > n {
		qs = qs[len(qs)-n:]
	}
	out := make([]string, len(qs))
	for i, q := range qs {
		out[i] = string(q.Source)
	}
	return out
}

// Clone deep-copies the state through the codec so a run can mutate its
// working copy without touching the caller's value.
func Clone(s State) (State, error) {
	blob, err := Encode(s)
	if err != nil {
		return State{}, fmt.Errorf("clone: %w", err)
	}
	out, err := Decode(blob)
	if err != nil {
		return State{}, fmt.Errorf("clone: %w", err)
	}
	return out, nil
}
