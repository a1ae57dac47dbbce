package interview

import (
	"fmt"
	"strings"

	"github.com/StephaneWamba/interviewlab/interview/model"
)

// transcriptTail is how many turns of conversation LM prompts carry.
const transcriptTail = 10

// Output schemas for every structured call the nodes make. Compiled once
// at init; a malformed schema literal is a programming error.
var (
	intentSchema = model.MustCompileSchema("intent", `{
		"type": "object",
		"properties": {
			"type": {"type": "string", "enum": [
				"technical_assessment", "change_topic", "clarify", "stop",
				"continue", "write_code", "use_sandbox", "review_code",
				"code_walkthrough", "show_code", "no_intent"
			]},
			"confidence": {"type": "number", "minimum": 0, "maximum": 1},
			"payload": {"type": "string"}
		},
		"required": ["type", "confidence"],
		"additionalProperties": false
	}`)

	decisionSchema = model.MustCompileSchema("decision", `{
		"type": "object",
		"properties": {
			"next_node": {"type": "string", "enum": [
				"greeting", "question", "followup", "sandbox_guidance",
				"code_review", "evaluation", "closing"
			]},
			"answer_quality": {"type": "number", "minimum": 0, "maximum": 1}
		},
		"required": ["next_node"],
		"additionalProperties": false
	}`)

	messageSchema = model.MustCompileSchema("message", `{
		"type": "object",
		"properties": {
			"message": {"type": "string", "minLength": 1}
		},
		"required": ["message"],
		"additionalProperties": false
	}`)

	questionSchema = model.MustCompileSchema("question", `{
		"type": "object",
		"properties": {
			"question": {"type": "string", "minLength": 1}
		},
		"required": ["question"],
		"additionalProperties": false
	}`)

	exerciseSchema = model.MustCompileSchema("exercise", `{
		"type": "object",
		"properties": {
			"message": {"type": "string", "minLength": 1},
			"description": {"type": "string", "minLength": 1},
			"starter_code": {"type": "string"},
			"hints": {"type": "array", "items": {"type": "string"}}
		},
		"required": ["message", "description"],
		"additionalProperties": false
	}`)

	qualitySchema = model.MustCompileSchema("quality", `{
		"type": "object",
		"properties": {
			"score": {"type": "number", "minimum": 0, "maximum": 1},
			"strengths": {"type": "array", "items": {"type": "string"}},
			"issues": {"type": "array", "items": {"type": "string"}},
			"summary": {"type": "string", "minLength": 1}
		},
		"required": ["score", "summary"],
		"additionalProperties": false
	}`)

	feedbackSchema = model.MustCompileSchema("feedback", `{
		"type": "object",
		"properties": {
			"feedback": {"type": "string", "minLength": 1},
			"followup": {"type": "string", "minLength": 1}
		},
		"required": ["feedback", "followup"],
		"additionalProperties": false
	}`)
)

// interviewerSystem is the shared persona preamble of every speaking call.
const interviewerSystem = "You are a senior technical interviewer conducting a live, spoken " +
	"interview. Your words are synthesized to speech, so keep them natural, " +
	"concise, and free of markdown or lists. Respond ONLY with the requested " +
	"JSON object."

func resumeSummary(r *ResumeContext) string {
	if r == nil {
		return "(no resume on file)"
	}
	var sb strings.Builder
	if r.Profile != "" {
		sb.WriteString("Profile: ")
		sb.WriteString(r.Profile)
		sb.WriteString("\n")
	}
	writeSection := func(label string, items []string) {
		if len(items) == 0 {
			return
		}
		sb.WriteString(label)
		sb.WriteString(": ")
		sb.WriteString(strings.Join(items, "; "))
		sb.WriteString("\n")
	}
	writeSection("Experience", r.Experience)
	writeSection("Education", r.Education)
	writeSection("Projects", r.Projects)
	writeSection("Skills", r.Skills)
	return strings.TrimRight(sb.String(), "\n")
}

func intentPrompt(s State, utterance string) string {
	var sb strings.Builder
	sb.WriteString("Classify the candidate's latest utterance into exactly one intent.\n\n")
	sb.WriteString("Recent conversation:\n")
	sb.WriteString(s.Transcript(transcriptTail))
	sb.WriteString("\n\nLatest utterance: ")
	sb.WriteString(utterance)
	sb.WriteString("\n\nIntents: technical_assessment (asks to be tested), change_topic, ")
	sb.WriteString("clarify (asks you to clarify), stop (wants to end), continue, ")
	sb.WriteString("write_code / use_sandbox (wants to code), review_code / code_walkthrough / ")
	sb.WriteString("show_code (wants their code discussed), no_intent (plain answer).\n")
	sb.WriteString(`Respond with JSON: {"type": "...", "confidence": 0.0-1.0, "payload": "optional detail"}`)
	return sb.String()
}

func decisionPrompt(s State) string {
	var sb strings.Builder
	sb.WriteString("Choose the interviewer's next action.\n\n")
	fmt.Fprintf(&sb, "Phase: %s\nUser turns so far: %d\n", s.Phase, s.TurnCount)
	if sources := s.RecentQuestionSources(5); len(sources) > 0 {
		fmt.Fprintf(&sb, "Recent question kinds: %s\n", strings.Join(sources, ", "))
	}
	if s.Sandbox != nil && s.Sandbox.Active {
		sb.WriteString("A coding exercise is active in the editor.\n")
	}
	if s.ActiveRequest != nil {
		fmt.Fprintf(&sb, "The candidate asked for: %s\n", s.ActiveRequest.Type)
	}
	sb.WriteString("\nRecent conversation:\n")
	sb.WriteString(s.Transcript(transcriptTail))
	sb.WriteString("\n\nActions: question (new resume-based question), followup (dig ")
	sb.WriteString("into the last answer), sandbox_guidance (move to a coding exercise), ")
	sb.WriteString("code_review (discuss submitted code), evaluation (final per-skill ")
	sb.WriteString("assessment), closing (wrap up).\n")
	sb.WriteString(`Respond with JSON: {"next_node": "...", "answer_quality": 0.0-1.0 rating of the last answer}`)
	return sb.String()
}

func greetingPrompt(s State) string {
	var sb strings.Builder
	sb.WriteString("Open the interview with a short personalized greeting. ")
	sb.WriteString("Reference something concrete from the resume, introduce the flow, ")
	sb.WriteString("and invite the candidate to introduce themselves.\n\n")
	sb.WriteString("Resume:\n")
	sb.WriteString(resumeSummary(s.Resume))
	if s.JobDescription != "" {
		sb.WriteString("\n\nRole under discussion:\n")
		sb.WriteString(s.JobDescription)
	}
	sb.WriteString("\n\nRespond with JSON: {\"message\": \"...\"}")
	return sb.String()
}

func questionPrompt(s State, anchor string) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Ask one interview question about this item from the candidate's resume: %s.\n", anchor)
	sb.WriteString("It must be answerable out loud, specific to the item, and not repeat ")
	sb.WriteString("anything already asked.\n\n")
	if len(s.QuestionsAsked) > 0 {
		sb.WriteString("Already asked:\n")
		for _, q := range s.QuestionsAsked {
			sb.WriteString("- ")
			sb.WriteString(q.Text)
			sb.WriteString("\n")
		}
		sb.WriteString("\n")
	}
	sb.WriteString("Recent conversation:\n")
	sb.WriteString(s.Transcript(transcriptTail))
	sb.WriteString("\n\nRespond with JSON: {\"question\": \"...\"}")
	return sb.String()
}

func followupPrompt(s State) string {
	var sb strings.Builder
	sb.WriteString("Ask one deeper follow-up question tied directly to the candidate's ")
	sb.WriteString("most recent answer. Probe for specifics: decisions, trade-offs, numbers.\n\n")
	sb.WriteString("Recent conversation:\n")
	sb.WriteString(s.Transcript(transcriptTail))
	sb.WriteString("\n\nRespond with JSON: {\"question\": \"...\"}")
	return sb.String()
}

func exercisePrompt(s State) string {
	var sb strings.Builder
	sb.WriteString("Create a small coding exercise for the candidate, matched to their ")
	sb.WriteString("background, solvable in about ten minutes in Python or JavaScript.\n\n")
	sb.WriteString("Resume:\n")
	sb.WriteString(resumeSummary(s.Resume))
	sb.WriteString("\n\nRecent conversation:\n")
	sb.WriteString(s.Transcript(transcriptTail))
	sb.WriteString("\n\nThe \"message\" is spoken aloud and should direct the candidate to ")
	sb.WriteString("the editor. Respond with JSON: {\"message\": \"...\", ")
	sb.WriteString("\"description\": \"...\", \"starter_code\": \"...\", \"hints\": [\"...\"]}")
	return sb.String()
}

func qualityPrompt(sub CodeSubmission) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Assess this %s submission from a live interview.\n\nCode:\n```%s\n%s\n```\n\n", sub.Language, sub.Language, sub.Code)
	fmt.Fprintf(&sb, "Execution: exit code %d", sub.Result.ExitCode)
	if sub.Result.TimedOut {
		sb.WriteString(" (timed out)")
	}
	if sub.Result.Unavailable {
		sb.WriteString(" (executor unavailable, static review only)")
	}
	sb.WriteString("\n")
	if sub.Result.Stdout != "" {
		fmt.Fprintf(&sb, "Stdout:\n%s\n", sub.Result.Stdout)
	}
	if sub.Result.Stderr != "" {
		fmt.Fprintf(&sb, "Stderr:\n%s\n", sub.Result.Stderr)
	}
	sb.WriteString("\nRespond with JSON: {\"score\": 0.0-1.0, \"strengths\": [...], ")
	sb.WriteString("\"issues\": [...], \"summary\": \"one paragraph\"}")
	return sb.String()
}

func feedbackPrompt(s State, sub CodeSubmission) string {
	var sb strings.Builder
	sb.WriteString("Give the candidate spoken feedback on their code, then ask one ")
	sb.WriteString("follow-up question about it.\n\n")
	fmt.Fprintf(&sb, "Assessment summary: %s\n", sub.Quality.Summary)
	if len(sub.Quality.Issues) > 0 {
		fmt.Fprintf(&sb, "Issues: %s\n", strings.Join(sub.Quality.Issues, "; "))
	}
	if len(sub.Quality.Strengths) > 0 {
		fmt.Fprintf(&sb, "Strengths: %s\n", strings.Join(sub.Quality.Strengths, "; "))
	}
	fmt.Fprintf(&sb, "Execution: exit code %d", sub.Result.ExitCode)
	if sub.Result.TimedOut {
		sb.WriteString(", timed out")
	}
	if sub.Result.Unavailable {
		sb.WriteString(", executor unavailable — say so and review the code as written")
	}
	sb.WriteString("\n\nThe feedback must mention how the execution went. ")
	sb.WriteString("Respond with JSON: {\"feedback\": \"...\", \"followup\": \"...\"}")
	return sb.String()
}

func evaluationPrompt(s State) string {
	var sb strings.Builder
	sb.WriteString("Deliver a comprehensive spoken assessment of the interview: ")
	sb.WriteString("per-skill strengths and gaps, communication, and code if any was ")
	sb.WriteString("written. Balanced and specific, two or three short paragraphs.\n\n")
	sb.WriteString("Resume:\n")
	sb.WriteString(resumeSummary(s.Resume))
	if len(s.CodeSubmissions) > 0 {
		fmt.Fprintf(&sb, "\n\nCode submissions: %d, latest score %.2f",
			len(s.CodeSubmissions), s.CodeSubmissions[len(s.CodeSubmissions)-1].Quality.Score)
	}
	sb.WriteString("\n\nFull conversation:\n")
	sb.WriteString(s.Transcript(0))
	sb.WriteString("\n\nRespond with JSON: {\"message\": \"...\"}")
	return sb.String()
}

func closingPrompt(s State) string {
	var sb strings.Builder
	sb.WriteString("Close the interview warmly in two or three sentences: thank the ")
	sb.WriteString("candidate, name one thing that stood out, and explain next steps.\n\n")
	sb.WriteString("Recent conversation:\n")
	sb.WriteString(s.Transcript(transcriptTail))
	sb.WriteString("\n\nRespond with JSON: {\"message\": \"...\"}")
	return sb.String()
}
