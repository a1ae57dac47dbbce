package interview

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/StephaneWamba/interviewlab/interview/model"
)

// Control nodes. They route and account; none of them produces
// user-visible text.

// Initialize populates missing fields with defaults. Idempotent and
// strictly non-overwriting: a field already present is left alone, so
// Initialize(Initialize(s)) == Initialize(s).
func (n *Nodes) Initialize(_ context.Context, s State) (Delta, error) {
	var d Delta
	if s.Phase == "" {
		d.Phase = phasePtr(PhaseIntro)
	}
	if s.Sandbox == nil {
		d.Sandbox = &SandboxInfo{}
	}
	return d, nil
}

// IngestInput is the sole entry point for external data. It reads the
// transient inputs the coordinator placed on the state: a user utterance,
// submitted code, or neither (a timer tick). A present utterance becomes
// a user TurnRecord and bumps the turn count. Never calls the language
// model.
func (n *Nodes) IngestInput(_ context.Context, s State) (Delta, error) {
	var d Delta
	if s.LastResponse != "" {
		d.ConversationHistory = []TurnRecord{{
			Role:      RoleUser,
			Content:   s.LastResponse,
			Timestamp: timestamp(),
		}}
		d.TurnCount = intPtr(s.TurnCount + 1)
	}
	return d, nil
}

// DetectIntent classifies the candidate's last utterance. The record is
// always appended, below-threshold confidence included; only a confident,
// non-trivial intent becomes the active user request.
func (n *Nodes) DetectIntent(ctx context.Context, s State) (Delta, error) {
	utterance := s.LastResponse
	if utterance == "" {
		if tr, ok := s.LastUserTurn(); ok {
			utterance = tr.Content
		}
	}

	raw, err := n.lm.Call(ctx, model.Request{
		System: interviewerSystem,
		User:   intentPrompt(s, utterance),
		Schema: intentSchema,
		Mode:   model.Deterministic,
	})
	if err != nil {
		return Delta{}, err
	}

	var out struct {
		Type       string  `json:"type"`
		Confidence float64 `json:"confidence"`
		Payload    string  `json:"payload"`
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return Delta{}, fmt.Errorf("%w: decode intent: %v", model.ErrSchema, err)
	}

	record := IntentRecord{
		Type:              ParseIntent(out.Type),
		Confidence:        out.Confidence,
		ExtractedFromTurn: s.TurnCount,
		Payload:           out.Payload,
	}
	d := Delta{DetectedIntents: []IntentRecord{record}}
	if record.Confidence >= n.cfg.IntentConfidenceThreshold && record.Type != IntentNone {
		winner := record
		if s.ActiveRequest != nil {
			winner = PreferIntent(*s.ActiveRequest, record)
		}
		d.ActiveRequest = &winner
	}
	return d, nil
}

// DecideNextAction asks the model for the next action over a compact
// decision context, then layers the ordered policy rules on top. The
// model's answer-quality rating of the last answer rides along for the
// evaluation cutover.
func (n *Nodes) DecideNextAction(ctx context.Context, s State) (Delta, error) {
	raw, err := n.lm.Call(ctx, model.Request{
		System: interviewerSystem,
		User:   decisionPrompt(s),
		Schema: decisionSchema,
		Mode:   model.Deterministic,
	})
	if err != nil {
		return Delta{}, err
	}

	var out struct {
		NextNode      string   `json:"next_node"`
		AnswerQuality *float64 `json:"answer_quality"`
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return Delta{}, fmt.Errorf("%w: decode decision: %v", model.ErrSchema, err)
	}

	var d Delta
	if out.AnswerQuality != nil {
		d.AnswerQuality = out.AnswerQuality
	}
	next, _ := ApplyPolicy(s, out.NextNode, n.cfg)
	d.NextNode = strPtr(string(next))
	return d, nil
}

// FinalizeTurn records the assistant's message as a TurnRecord and clears
// every transient field, the active request included. It terminates every
// successful run; a timer tick that produced no message appends nothing,
// which is what makes a zero-input re-run idempotent.
func (n *Nodes) FinalizeTurn(_ context.Context, s State) (Delta, error) {
	d := Delta{
		ClearTransients:    true,
		ClearActiveRequest: true,
	}
	if s.NextMessage != "" {
		d.ConversationHistory = []TurnRecord{{
			Role:      RoleAssistant,
			Content:   s.NextMessage,
			Timestamp: timestamp(),
		}}
	}
	return d, nil
}
