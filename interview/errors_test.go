package interview

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/StephaneWamba/interviewlab/interview/emit"
	"github.com/StephaneWamba/interviewlab/interview/model"
	"github.com/StephaneWamba/interviewlab/interview/sandbox"
	"github.com/StephaneWamba/interviewlab/interview/store"
)

// stalledProvider parks every Generate call until its context expires.
type stalledProvider struct{}

func (stalledProvider) Name() string { return "stalled" }

func (stalledProvider) Generate(ctx context.Context, _, _ string, _ float64) (string, model.Usage, error) {
	<-ctx.Done()
	return "", model.Usage{}, ctx.Err()
}

// TestRunErrors_MatchPublicSentinels drives graph runs into the two LM
// failure kinds and checks that the surfaced errors match the sentinels
// this package exports, not just the model package's own.
func TestRunErrors_MatchPublicSentinels(t *testing.T) {
	turnState := func() State {
		return State{
			InterviewID: "iv-1",
			Phase:       PhaseTechnical,
			ConversationHistory: []TurnRecord{
				{Role: RoleAssistant, Content: "Tell me about your last project."},
			},
			LastResponse: "I led the storage migration.",
		}
	}

	t.Run("model timeout", func(t *testing.T) {
		nodes := NewNodes(
			model.NewClient(stalledProvider{}, model.WithAttemptTimeout(10*time.Millisecond)),
			sandbox.NewClient(sandbox.NewMock(), sandbox.ClientConfig{}),
			DefaultConfig(),
		)
		g, err := NewGraph(nodes, DefaultConfig(), nil, nil)
		if err != nil {
			t.Fatalf("new graph: %v", err)
		}

		_, _, err = g.Run(context.Background(), turnState())
		if !errors.Is(err, ErrLMTimeout) {
			t.Fatalf("want ErrLMTimeout, got %v", err)
		}
		var re *RunError
		if !errors.As(err, &re) || re.Node != string(NodeDetectIntent) {
			t.Errorf("failing node not identified: %v", err)
		}
	})

	t.Run("model schema failure", func(t *testing.T) {
		mock := model.NewMockProvider(model.MockResponse{Text: "no json here"})
		g := testGraph(t, mock, nil, nil)

		_, _, err := g.Run(context.Background(), turnState())
		if !errors.Is(err, ErrLMSchemaFailure) {
			t.Fatalf("want ErrLMSchemaFailure, got %v", err)
		}
	})

	t.Run("sandbox unavailability matches through either name", func(t *testing.T) {
		if !errors.Is(sandbox.ErrUnavailable, ErrSandboxUnavailable) {
			t.Error("ErrSandboxUnavailable does not match the runner sentinel")
		}
	})
}

// TestCoordinator_StepDeadlineWinsClassification expires the step
// deadline inside an in-flight model call. The model client reports its
// own timeout kind for that; the coordinator must still classify the
// failure by the deadline that actually ran out.
func TestCoordinator_StepDeadlineWinsClassification(t *testing.T) {
	cfg := DefaultConfig()
	cfg.StepTimeout = 30 * time.Millisecond

	nodes := NewNodes(
		model.NewClient(stalledProvider{}),
		sandbox.NewClient(sandbox.NewMock(), sandbox.ClientConfig{}),
		cfg,
	)
	g, err := NewGraph(nodes, cfg, nil, nil)
	if err != nil {
		t.Fatalf("new graph: %v", err)
	}
	coord := &Coordinator{
		id:       "iv-1",
		graph:    g,
		store:    store.NewMemStore(),
		rows:     NewMemRows(Row{ID: "iv-1", UserID: "u-1", Status: StatusInProgress}),
		resumes:  NewMemResumes(),
		versions: newVersionIndex(),
		cfg:      cfg,
		emitter:  emit.NewNullEmitter(),
		logger:   slog.New(slog.DiscardHandler),
	}

	_, err = coord.ExecuteStep(context.Background(), Input{})
	if !errors.Is(err, ErrStepTimeout) {
		t.Fatalf("want ErrStepTimeout, got %v", err)
	}
	if errors.Is(err, ErrLMTimeout) {
		t.Errorf("step timeout still wrapped as a model timeout: %v", err)
	}
}
