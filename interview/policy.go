package interview

// Intent is one of the closed set of candidate intents the detector may
// report.
type Intent string

// Detected intent types.
const (
	IntentTechnicalAssessment Intent = "technical_assessment"
	IntentChangeTopic         Intent = "change_topic"
	IntentClarify             Intent = "clarify"
	IntentStop                Intent = "stop"
	IntentContinue            Intent = "continue"
	IntentWriteCode           Intent = "write_code"
	IntentUseSandbox          Intent = "use_sandbox"
	IntentReviewCode          Intent = "review_code"
	IntentCodeWalkthrough     Intent = "code_walkthrough"
	IntentShowCode            Intent = "show_code"
	IntentNone                Intent = "no_intent"
)

// IsValid reports whether i belongs to the closed intent set.
func (i Intent) IsValid() bool {
	switch i {
	case IntentTechnicalAssessment, IntentChangeTopic, IntentClarify,
		IntentStop, IntentContinue, IntentWriteCode, IntentUseSandbox,
		IntentReviewCode, IntentCodeWalkthrough, IntentShowCode, IntentNone:
		return true
	}
	return false
}

// ParseIntent maps free text onto the closed set, falling back to
// no_intent for anything unrecognized.
func ParseIntent(s string) Intent {
	if in := Intent(s); in.IsValid() {
		return in
	}
	return IntentNone
}

// NodeName identifies a graph node.
type NodeName string

// Control nodes.
const (
	NodeInitialize   NodeName = "initialize"
	NodeIngestInput  NodeName = "ingest_input"
	NodeDetectIntent NodeName = "detect_intent"
	NodeDecideNext   NodeName = "decide_next_action"
	NodeFinalizeTurn NodeName = "finalize_turn"
)

// Action nodes, the closed set of decision outputs.
const (
	NodeGreeting        NodeName = "greeting"
	NodeQuestion        NodeName = "question"
	NodeFollowup        NodeName = "followup"
	NodeSandboxGuidance NodeName = "sandbox_guidance"
	NodeCodeReview      NodeName = "code_review"
	NodeEvaluation      NodeName = "evaluation"
	NodeClosing         NodeName = "closing"
)

// IsAction reports whether n is a valid decision output.
func (n NodeName) IsAction() bool {
	switch n {
	case NodeGreeting, NodeQuestion, NodeFollowup, NodeSandboxGuidance,
		NodeCodeReview, NodeEvaluation, NodeClosing:
		return true
	}
	return false
}

// PolicyRule names which layered rule picked the next node, for event
// metadata and tests.
type PolicyRule string

// Policy rules, in evaluation order.
const (
	RuleSandboxRequest  PolicyRule = "sandbox_request"
	RuleReviewWithCode  PolicyRule = "review_with_code"
	RuleReviewNoCode    PolicyRule = "review_no_code"
	RuleStopRequest     PolicyRule = "stop_request"
	RuleEvaluationDue   PolicyRule = "evaluation_due"
	RuleModelSuggestion PolicyRule = "model_suggestion"
	RuleFallback        PolicyRule = "fallback"
)

// answerQualityCoverage is the minimum recent answer quality at which the
// evaluation cutover fires once the turn threshold is reached.
const answerQualityCoverage = 0.5

// ApplyPolicy layers the ordered policy rules over the language model's
// suggestion and returns the node to run plus the rule that decided it.
// First match wins:
//
//  1. active write_code / use_sandbox request → sandbox_guidance
//  2. active review request with code present → code_review
//  3. active review request without code → sandbox_guidance
//  4. active stop request → closing
//  5. turn count at threshold with sufficient coverage → evaluation
//  6. the model's suggestion, validated against the closed action set
//
// An unrecognized suggestion falls back to question.
func ApplyPolicy(s State, suggestion string, cfg Config) (NodeName, PolicyRule) {
	if req := s.ActiveRequest; req != nil {
		switch req.Type {
		case IntentWriteCode, IntentUseSandbox:
			return NodeSandboxGuidance, RuleSandboxRequest
		case IntentReviewCode, IntentCodeWalkthrough, IntentShowCode:
			if s.CurrentCode != "" {
				return NodeCodeReview, RuleReviewWithCode
			}
			return NodeSandboxGuidance, RuleReviewNoCode
		case IntentStop:
			return NodeClosing, RuleStopRequest
		}
	}
	if s.TurnCount >= cfg.EvaluationTurnThreshold && s.AnswerQuality >= answerQualityCoverage {
		return NodeEvaluation, RuleEvaluationDue
	}
	if n := NodeName(suggestion); n.IsAction() {
		return n, RuleModelSuggestion
	}
	return NodeQuestion, RuleFallback
}

// intentRank orders intent types for tie-breaking between equally
// confident requests detected in the same turn. Higher wins.
func intentRank(t Intent) int {
	switch t {
	case IntentStop:
		return 6
	case IntentChangeTopic:
		return 5
	case IntentWriteCode, IntentUseSandbox, IntentReviewCode,
		IntentCodeWalkthrough, IntentShowCode:
		return 4
	case IntentClarify:
		return 3
	case IntentTechnicalAssessment:
		return 2
	case IntentContinue:
		return 1
	default:
		return 0
	}
}

// PreferIntent picks the winner between two candidate requests: higher
// confidence first, then the later extracting turn, then the intent-type
// rank. A total order, so folding a slice with it is order-independent.
func PreferIntent(a, b IntentRecord) IntentRecord {
	if a.Confidence != b.Confidence {
		if a.Confidence > b.Confidence {
			return a
		}
		return b
	}
	if a.ExtractedFromTurn != b.ExtractedFromTurn {
		if a.ExtractedFromTurn > b.ExtractedFromTurn {
			return a
		}
		return b
	}
	if intentRank(a.Type) >= intentRank(b.Type) {
		return a
	}
	return b
}
