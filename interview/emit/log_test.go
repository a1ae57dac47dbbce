package emit

import (
	"bytes"
	"encoding/json"
	"strings"
	"sync"
	"testing"
)

func TestLogEmitter_TextOutput(t *testing.T) {
	t.Run("emits event with all fields", func(t *testing.T) {
		var buf bytes.Buffer
		emitter := NewLogEmitter(&buf, false)

		emitter.Emit(Event{
			InterviewID: "iv-001",
			Turn:        3,
			Node:        "detect_intent",
			Msg:         "node_complete",
			Meta:        map[string]any{"duration_ms": int64(12)},
		})

		output := buf.String()
		if !strings.Contains(output, "iv-001") {
			t.Errorf("output missing interview id: %s", output)
		}
		if !strings.Contains(output, "detect_intent") {
			t.Errorf("output missing node: %s", output)
		}
		if !strings.Contains(output, "[node_complete]") {
			t.Errorf("output missing msg prefix: %s", output)
		}
		if !strings.Contains(output, "turn=3") {
			t.Errorf("output missing turn: %s", output)
		}
		if !strings.Contains(output, "duration_ms") {
			t.Errorf("output missing meta: %s", output)
		}
	})

	t.Run("omits meta when empty", func(t *testing.T) {
		var buf bytes.Buffer
		emitter := NewLogEmitter(&buf, false)

		emitter.Emit(Event{InterviewID: "iv-001", Msg: "route"})

		if strings.Contains(buf.String(), "meta=") {
			t.Errorf("expected no meta section, got: %s", buf.String())
		}
	})
}

func TestLogEmitter_JSONOutput(t *testing.T) {
	var buf bytes.Buffer
	emitter := NewLogEmitter(&buf, true)

	emitter.Emit(Event{
		InterviewID: "iv-002",
		Turn:        1,
		Node:        "question",
		Msg:         "node_complete",
		Meta:        map[string]any{"anchor": "distributed cache"},
	})

	line := strings.TrimSpace(buf.String())
	var decoded struct {
		InterviewID string         `json:"interview_id"`
		Turn        int            `json:"turn"`
		Node        string         `json:"node"`
		Msg         string         `json:"msg"`
		Meta        map[string]any `json:"meta"`
	}
	if err := json.Unmarshal([]byte(line), &decoded); err != nil {
		t.Fatalf("output is not valid JSON: %v\n%s", err, line)
	}
	if decoded.InterviewID != "iv-002" {
		t.Errorf("interview_id = %q, want %q", decoded.InterviewID, "iv-002")
	}
	if decoded.Turn != 1 {
		t.Errorf("turn = %d, want 1", decoded.Turn)
	}
	if decoded.Meta["anchor"] != "distributed cache" {
		t.Errorf("meta.anchor = %v, want %q", decoded.Meta["anchor"], "distributed cache")
	}
}

func TestLogEmitter_ConcurrentEmit(t *testing.T) {
	var buf bytes.Buffer
	emitter := NewLogEmitter(&buf, true)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			emitter.Emit(Event{InterviewID: "iv-c", Msg: "node_complete"})
		}()
	}
	wg.Wait()

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 20 {
		t.Fatalf("expected 20 lines, got %d", len(lines))
	}
	for _, line := range lines {
		var v map[string]any
		if err := json.Unmarshal([]byte(line), &v); err != nil {
			t.Errorf("interleaved write produced invalid JSON: %v", err)
		}
	}
}

func TestMemoryEmitter_CaptureAndFilter(t *testing.T) {
	m := NewMemoryEmitter()
	m.Emit(Event{InterviewID: "iv-1", Msg: "route"})
	m.Emit(Event{InterviewID: "iv-1", Msg: "node_complete"})
	m.Emit(Event{InterviewID: "iv-1", Msg: "route"})

	if got := len(m.Events()); got != 3 {
		t.Fatalf("Events() = %d events, want 3", got)
	}
	routes := m.ByMsg("route")
	if len(routes) != 2 {
		t.Fatalf("ByMsg(route) = %d events, want 2", len(routes))
	}

	m.Reset()
	if got := len(m.Events()); got != 0 {
		t.Errorf("after Reset, Events() = %d events, want 0", got)
	}
}

func TestNullEmitter_Discards(t *testing.T) {
	// Must not panic and must accept arbitrary events.
	n := NewNullEmitter()
	n.Emit(Event{})
	n.Emit(Event{InterviewID: "iv", Meta: map[string]any{"error": "x"}})
}
