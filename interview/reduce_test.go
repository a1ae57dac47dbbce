package interview

import (
	"reflect"
	"testing"
)

func TestReduce_AppendOnly(t *testing.T) {
	t.Run("concatenates in delta order", func(t *testing.T) {
		base := State{
			InterviewID: "iv-1",
			ConversationHistory: []TurnRecord{
				{Role: RoleUser, Content: "hello"},
			},
		}
		d := Delta{
			ConversationHistory: []TurnRecord{
				{Role: RoleAssistant, Content: "hi"},
				{Role: RoleUser, Content: "tell me more"},
			},
		}

		out := Reduce(base, d)
		if len(out.ConversationHistory) != 3 {
			t.Fatalf("expected 3 turns, got %d", len(out.ConversationHistory))
		}
		if out.ConversationHistory[1].Content != "hi" || out.ConversationHistory[2].Content != "tell me more" {
			t.Errorf("delta order not preserved: %+v", out.ConversationHistory)
		}
		if len(base.ConversationHistory) != 1 {
			t.Errorf("base mutated: %d turns", len(base.ConversationHistory))
		}
	})

	t.Run("empty delta keeps base slices", func(t *testing.T) {
		base := State{
			InterviewID:   "iv-1",
			TopicsCovered: []string{"databases"},
		}
		out := Reduce(base, Delta{})
		if !reflect.DeepEqual(out.TopicsCovered, base.TopicsCovered) {
			t.Errorf("topics changed: %v", out.TopicsCovered)
		}
	})

	t.Run("sequencing equals concatenation", func(t *testing.T) {
		base := State{InterviewID: "iv-1"}
		d1 := Delta{TopicsCovered: []string{"a"}}
		d2 := Delta{TopicsCovered: []string{"b", "c"}}

		sequenced := Reduce(Reduce(base, d1), d2)
		combined := Reduce(base, Delta{TopicsCovered: []string{"a", "b", "c"}})
		if !reflect.DeepEqual(sequenced.TopicsCovered, combined.TopicsCovered) {
			t.Errorf("sequenced %v != combined %v", sequenced.TopicsCovered, combined.TopicsCovered)
		}
	})

	t.Run("result does not alias delta backing array", func(t *testing.T) {
		base := State{InterviewID: "iv-1"}
		topics := []string{"a", "b"}
		out := Reduce(base, Delta{TopicsCovered: topics})
		topics[0] = "mutated"
		if out.TopicsCovered[0] != "a" {
			t.Error("reduced state shares storage with the delta")
		}
	})
}

func TestReduce_SingleWriter(t *testing.T) {
	base := State{
		InterviewID: "iv-1",
		NextMessage: "old",
		Phase:       PhaseIntro,
		TurnCount:   3,
	}

	t.Run("present pointer replaces", func(t *testing.T) {
		out := Reduce(base, Delta{
			NextMessage: strPtr("new"),
			Phase:       phasePtr(PhaseTechnical),
			TurnCount:   intPtr(4),
		})
		if out.NextMessage != "new" || out.Phase != PhaseTechnical || out.TurnCount != 4 {
			t.Errorf("writes not applied: %q %q %d", out.NextMessage, out.Phase, out.TurnCount)
		}
	})

	t.Run("nil pointer keeps base", func(t *testing.T) {
		out := Reduce(base, Delta{})
		if out.NextMessage != "old" || out.Phase != PhaseIntro || out.TurnCount != 3 {
			t.Errorf("base values lost: %q %q %d", out.NextMessage, out.Phase, out.TurnCount)
		}
	})

	t.Run("empty string write is still a write", func(t *testing.T) {
		out := Reduce(base, Delta{NextMessage: strPtr("")})
		if out.NextMessage != "" {
			t.Errorf("explicit empty write ignored: %q", out.NextMessage)
		}
	})
}

func TestReduce_SubObjects(t *testing.T) {
	base := State{
		InterviewID: "iv-1",
		Sandbox: &SandboxInfo{
			Active:      true,
			Exercise:    "reverse a list",
			Submissions: []string{"sub-1"},
		},
	}

	t.Run("replaced wholesale", func(t *testing.T) {
		out := Reduce(base, Delta{Sandbox: &SandboxInfo{Active: false}})
		if out.Sandbox.Active || out.Sandbox.Exercise != "" || len(out.Sandbox.Submissions) != 0 {
			t.Errorf("sandbox merged instead of replaced: %+v", out.Sandbox)
		}
	})

	t.Run("result does not alias the delta pointer", func(t *testing.T) {
		sb := &SandboxInfo{Active: true, Exercise: "x"}
		out := Reduce(base, Delta{Sandbox: sb})
		sb.Exercise = "mutated"
		if out.Sandbox.Exercise != "x" {
			t.Error("reduced state shares the delta's sandbox")
		}
	})
}

func TestReduce_ClearFlags(t *testing.T) {
	base := State{
		InterviewID:     "iv-1",
		NextMessage:     "pending",
		LastResponse:    "utterance",
		CurrentCode:     "print(1)",
		CurrentLanguage: "python",
		ActiveRequest:   &IntentRecord{Type: IntentStop, Confidence: 0.9},
	}

	t.Run("clear transients wipes inputs and message", func(t *testing.T) {
		out := Reduce(base, Delta{ClearTransients: true})
		if out.LastResponse != "" || out.CurrentCode != "" || out.CurrentLanguage != "" || out.NextMessage != "" {
			t.Errorf("transients survived: %+v", out)
		}
		if out.ActiveRequest == nil {
			t.Error("active request cleared without its flag")
		}
	})

	t.Run("clear active request drops it", func(t *testing.T) {
		out := Reduce(base, Delta{ClearActiveRequest: true})
		if out.ActiveRequest != nil {
			t.Errorf("active request survived: %+v", out.ActiveRequest)
		}
	})

	t.Run("clears apply after writes", func(t *testing.T) {
		out := Reduce(base, Delta{
			NextMessage:     strPtr("spoken"),
			ClearTransients: true,
		})
		if out.NextMessage != "" {
			t.Errorf("clear did not win over the write: %q", out.NextMessage)
		}
	})
}

func TestDelta_Writes(t *testing.T) {
	t.Run("zero delta writes nothing", func(t *testing.T) {
		var d Delta
		if !d.IsZero() {
			t.Error("zero delta not reported zero")
		}
		if got := d.Writes(); len(got) != 0 {
			t.Errorf("unexpected writes: %v", got)
		}
	})

	t.Run("clear flags are not writes but not zero", func(t *testing.T) {
		d := Delta{ClearTransients: true}
		if d.IsZero() {
			t.Error("clearing delta reported zero")
		}
		if got := d.Writes(); len(got) != 0 {
			t.Errorf("clear flag counted as write: %v", got)
		}
	})

	t.Run("lists every touched key", func(t *testing.T) {
		d := Delta{
			ConversationHistory: []TurnRecord{{Role: RoleUser, Content: "x"}},
			NextMessage:         strPtr("y"),
			Sandbox:             &SandboxInfo{},
		}
		want := map[string]bool{"conversation_history": true, "next_message": true, "sandbox": true}
		got := d.Writes()
		if len(got) != len(want) {
			t.Fatalf("keys %v, want %d entries", got, len(want))
		}
		for _, k := range got {
			if !want[k] {
				t.Errorf("unexpected key %q", k)
			}
		}
	})

	t.Run("single writes excludes append-only keys", func(t *testing.T) {
		d := Delta{
			TopicsCovered: []string{"a"},
			Phase:         phasePtr(PhaseClosing),
		}
		got := d.SingleWrites()
		if len(got) != 1 || got[0] != "phase" {
			t.Errorf("single writes %v, want [phase]", got)
		}
	})
}
