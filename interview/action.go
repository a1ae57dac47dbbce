package interview

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/StephaneWamba/interviewlab/interview/model"
	"github.com/StephaneWamba/interviewlab/interview/sandbox"
)

// Action nodes. Each one writes next_message; finalize_turn renders it
// into the conversation.

// Greeting produces a personalized opener from the resume. It refuses to
// run once the candidate has spoken: a reconnect replays the entry route,
// and a second greeting mid-interview would be a defect.
func (n *Nodes) Greeting(ctx context.Context, s State) (Delta, error) {
	if s.UserTurns() > 0 {
		return Delta{}, nil
	}

	message, err := n.generateMessage(ctx, greetingPrompt(s))
	if err != nil {
		return Delta{}, err
	}
	return Delta{
		NextMessage: strPtr(message),
		Phase:       phasePtr(PhaseIntro),
		QuestionsAsked: []QuestionRecord{{
			ID:          n.newID(),
			Text:        message,
			Source:      SourceGreeting,
			AskedAtTurn: s.TurnCount,
		}},
	}, nil
}

// Question picks an unexplored resume anchor and asks about it. A
// generated question colliding with one already asked is rejected and the
// node retries with a different anchor, up to three; with anchors or
// attempts exhausted it falls through to followup behavior.
func (n *Nodes) Question(ctx context.Context, s State) (Delta, error) {
	const maxAnchorAttempts = 3

	anchors := unexploredAnchors(s)
	for attempt := 0; attempt < maxAnchorAttempts && attempt < len(anchors); attempt++ {
		anchor := anchors[attempt]
		question, err := n.generateQuestion(ctx, questionPrompt(s, anchor))
		if err != nil {
			return Delta{}, err
		}
		if isDuplicateQuestion(question, s.QuestionsAsked, n.cfg.DupQuestionOverlapThreshold) {
			continue
		}
		d := Delta{
			NextMessage:   strPtr(question),
			TopicsCovered: []string{anchor},
			QuestionsAsked: []QuestionRecord{{
				ID:          n.newID(),
				Text:        question,
				Source:      SourceQuestion,
				AskedAtTurn: s.TurnCount,
				Anchor:      anchor,
			}},
		}
		if s.Phase == PhaseIntro {
			d.Phase = phasePtr(PhaseExploration)
		}
		return d, nil
	}
	return n.followupDelta(ctx, s)
}

// Followup asks a deeper question tied to the candidate's most recent
// answer.
func (n *Nodes) Followup(ctx context.Context, s State) (Delta, error) {
	return n.followupDelta(ctx, s)
}

// followupDelta generates a follow-up, retrying on duplicates. When every
// attempt collides with an earlier question the node still speaks, but as
// an open invitation carrying no QuestionRecord, preserving the
// no-duplicate bound on questions_asked.
func (n *Nodes) followupDelta(ctx context.Context, s State) (Delta, error) {
	const maxAttempts = 3

	for attempt := 0; attempt < maxAttempts; attempt++ {
		question, err := n.generateQuestion(ctx, followupPrompt(s))
		if err != nil {
			return Delta{}, err
		}
		if isDuplicateQuestion(question, s.QuestionsAsked, n.cfg.DupQuestionOverlapThreshold) {
			continue
		}
		return Delta{
			NextMessage: strPtr(question),
			QuestionsAsked: []QuestionRecord{{
				ID:          n.newID(),
				Text:        question,
				Source:      SourceFollowup,
				AskedAtTurn: s.TurnCount,
			}},
		}, nil
	}
	return Delta{
		NextMessage: strPtr("That's helpful context. Is there anything about that work you'd like to expand on, or shall we move to the next area?"),
	}, nil
}

// SandboxGuidance activates the coding exercise: it generates an exercise
// description with starter code and hints, writes it into the sandbox
// record, and speaks a prompt directing the candidate to the editor.
func (n *Nodes) SandboxGuidance(ctx context.Context, s State) (Delta, error) {
	raw, err := n.lm.Call(ctx, model.Request{
		System: interviewerSystem,
		User:   exercisePrompt(s),
		Schema: exerciseSchema,
		Mode:   model.Creative,
	})
	if err != nil {
		return Delta{}, err
	}

	var out struct {
		Message     string   `json:"message"`
		Description string   `json:"description"`
		StarterCode string   `json:"starter_code"`
		Hints       []string `json:"hints"`
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return Delta{}, fmt.Errorf("%w: decode exercise: %v", model.ErrSchema, err)
	}

	sb := SandboxInfo{
		Active:       true,
		LastActivity: timestamp(),
		Exercise:     out.Description,
		StarterCode:  out.StarterCode,
		Hints:        out.Hints,
	}
	if s.Sandbox != nil {
		// Submissions and last code survive re-activation.
		sb.Submissions = s.Sandbox.Submissions
		sb.LastCode = s.Sandbox.LastCode
	}
	return Delta{
		NextMessage: strPtr(out.Message),
		Phase:       phasePtr(PhaseTechnical),
		Sandbox:     &sb,
	}, nil
}

// CodeReview executes the submitted code, has the model assess its
// quality, and composes spoken feedback plus an adaptive follow-up. The
// follow-up is recorded as a question; the whole exchange is recorded as
// an immutable CodeSubmission.
func (n *Nodes) CodeReview(ctx context.Context, s State) (Delta, error) {
	if s.CurrentCode == "" {
		// Defensive: routing should not reach here without code.
		return Delta{
			NextMessage: strPtr("I don't see any code from you yet. Take a moment in the editor and submit when you're ready."),
		}, nil
	}

	result, err := n.sandbox.Execute(ctx, sandbox.Request{
		Code:     s.CurrentCode,
		Language: s.CurrentLanguage,
	})
	if err != nil {
		return Delta{}, err
	}

	sub := CodeSubmission{
		ID:        n.newID(),
		Code:      s.CurrentCode,
		Language:  s.CurrentLanguage,
		Result:    result,
		Timestamp: timestamp(),
	}

	quality, err := n.analyzeQuality(ctx, sub)
	if err != nil {
		return Delta{}, err
	}
	sub.Quality = quality

	feedback, followup, err := n.composeFeedback(ctx, s, sub)
	if err != nil {
		return Delta{}, err
	}

	sb := SandboxInfo{Active: true}
	if s.Sandbox != nil {
		sb = *s.Sandbox
	}
	if sb.Exercise == "" {
		// Unsolicited submission: the candidate coded without a set
		// exercise. Record what they worked on so the active flag stays
		// coherent.
		sb.Active = true
		sb.Exercise = "candidate-initiated code discussion"
	}
	sb.LastActivity = timestamp()
	sb.LastCode = s.CurrentCode
	sb.Submissions = append(append([]string(nil), sb.Submissions...), sub.ID)

	message := strings.TrimSpace(feedback) + " " + strings.TrimSpace(followup)
	d := Delta{
		NextMessage:     strPtr(message),
		Phase:           phasePtr(PhaseTechnical),
		CodeSubmissions: []CodeSubmission{sub},
		Sandbox:         &sb,
	}
	// The adaptive follow-up enters the question log only when it is
	// genuinely new; the spoken feedback goes out either way.
	if !isDuplicateQuestion(followup, s.QuestionsAsked, n.cfg.DupQuestionOverlapThreshold) {
		d.QuestionsAsked = []QuestionRecord{{
			ID:          n.newID(),
			Text:        strings.TrimSpace(followup),
			Source:      SourceFollowup,
			AskedAtTurn: s.TurnCount,
		}}
	}
	return d, nil
}

// Evaluation delivers the comprehensive per-skill assessment and moves
// the interview into its closing phase.
func (n *Nodes) Evaluation(ctx context.Context, s State) (Delta, error) {
	message, err := n.generateMessage(ctx, evaluationPrompt(s))
	if err != nil {
		return Delta{}, err
	}
	return Delta{
		NextMessage: strPtr(message),
		Phase:       phasePtr(PhaseClosing),
	}, nil
}

// Closing produces the goodbye message.
func (n *Nodes) Closing(ctx context.Context, s State) (Delta, error) {
	message, err := n.generateMessage(ctx, closingPrompt(s))
	if err != nil {
		return Delta{}, err
	}
	return Delta{
		NextMessage: strPtr(message),
		Phase:       phasePtr(PhaseClosing),
	}, nil
}

// generateMessage runs one creative call returning a {"message": ...}
// object.
func (n *Nodes) generateMessage(ctx context.Context, prompt string) (string, error) {
	raw, err := n.lm.Call(ctx, model.Request{
		System: interviewerSystem,
		User:   prompt,
		Schema: messageSchema,
		Mode:   model.Creative,
	})
	if err != nil {
		return "", err
	}
	var out struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", fmt.Errorf("%w: decode message: %v", model.ErrSchema, err)
	}
	return out.Message, nil
}

// generateQuestion runs one creative call returning a {"question": ...}
// object.
func (n *Nodes) generateQuestion(ctx context.Context, prompt string) (string, error) {
	raw, err := n.lm.Call(ctx, model.Request{
		System: interviewerSystem,
		User:   prompt,
		Schema: questionSchema,
		Mode:   model.Creative,
	})
	if err != nil {
		return "", err
	}
	var out struct {
		Question string `json:"question"`
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", fmt.Errorf("%w: decode question: %v", model.ErrSchema, err)
	}
	return out.Question, nil
}

// analyzeQuality runs the deterministic code-quality call.
func (n *Nodes) analyzeQuality(ctx context.Context, sub CodeSubmission) (QualityAnalysis, error) {
	raw, err := n.lm.Call(ctx, model.Request{
		System: interviewerSystem,
		User:   qualityPrompt(sub),
		Schema: qualitySchema,
		Mode:   model.Deterministic,
	})
	if err != nil {
		return QualityAnalysis{}, err
	}
	var out QualityAnalysis
	if err := json.Unmarshal(raw, &out); err != nil {
		return QualityAnalysis{}, fmt.Errorf("%w: decode quality: %v", model.ErrSchema, err)
	}
	return out, nil
}

// composeFeedback runs the creative feedback call.
func (n *Nodes) composeFeedback(ctx context.Context, s State, sub CodeSubmission) (feedback, followup string, err error) {
	raw, err := n.lm.Call(ctx, model.Request{
		System: interviewerSystem,
		User:   feedbackPrompt(s, sub),
		Schema: feedbackSchema,
		Mode:   model.Creative,
	})
	if err != nil {
		return "", "", err
	}
	var out struct {
		Feedback string `json:"feedback"`
		Followup string `json:"followup"`
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", "", fmt.Errorf("%w: decode feedback: %v", model.ErrSchema, err)
	}
	return out.Feedback, out.Followup, nil
}

// unexploredAnchors lists resume features not yet covered, projects
// first, then experience, then skills.
func unexploredAnchors(s State) []string {
	covered := make(map[string]bool, len(s.TopicsCovered))
	for _, t := range s.TopicsCovered {
		covered[t] = true
	}
	var out []string
	if s.Resume != nil {
		for _, group := range [][]string{s.Resume.Projects, s.Resume.Experience, s.Resume.Skills} {
			for _, a := range group {
				if a != "" && !covered[a] {
					out = append(out, a)
				}
			}
		}
	}
	if len(out) == 0 {
		out = append(out, "the candidate's overall background")
	}
	return out
}
