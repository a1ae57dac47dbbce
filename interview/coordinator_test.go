package interview

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"

	"github.com/StephaneWamba/interviewlab/interview/emit"
	"github.com/StephaneWamba/interviewlab/interview/model"
	"github.com/StephaneWamba/interviewlab/interview/store"
)

// faultStore wraps a Store with switchable failures.
type faultStore struct {
	inner    store.Store
	mu       sync.Mutex
	failSave bool
	failLoad bool
}

func (f *faultStore) setFailures(save, load bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failSave, f.failLoad = save, load
}

func (f *faultStore) Save(ctx context.Context, id string, blob []byte) (int, error) {
	f.mu.Lock()
	fail := f.failSave
	f.mu.Unlock()
	if fail {
		return 0, store.ErrUnavailable
	}
	return f.inner.Save(ctx, id, blob)
}

func (f *faultStore) LoadLatest(ctx context.Context, id string) (store.Checkpoint, error) {
	f.mu.Lock()
	fail := f.failLoad
	f.mu.Unlock()
	if fail {
		return store.Checkpoint{}, store.ErrUnavailable
	}
	return f.inner.LoadLatest(ctx, id)
}

func (f *faultStore) LoadVersion(ctx context.Context, id string, version int) (store.Checkpoint, error) {
	return f.inner.LoadVersion(ctx, id, version)
}

func (f *faultStore) Purge(ctx context.Context, id string) (int, error) {
	return f.inner.Purge(ctx, id)
}

type coordFixture struct {
	coord *Coordinator
	store store.Store
	rows  *MemRows
	mock  *model.MockProvider
	emit  *emit.MemoryEmitter
}

func newCoordFixture(t *testing.T, st store.Store, mock *model.MockProvider) *coordFixture {
	t.Helper()
	if st == nil {
		st = store.NewMemStore()
	}
	if mock == nil {
		mock = model.NewMockProvider()
	}
	rows := NewMemRows(Row{ID: "iv-1", UserID: "u-1", ResumeID: "r-1", Status: StatusInProgress})
	resumes := NewMemResumes()
	resumes.Put("r-1", ResumeContext{
		Profile:  "Backend engineer, 8 years",
		Projects: []string{"payments service"},
	})

	captured := emit.NewMemoryEmitter()
	cfg := DefaultConfig()
	g, err := NewGraph(testNodes(mock, nil), cfg, captured, nil)
	if err != nil {
		t.Fatalf("new graph: %v", err)
	}
	return &coordFixture{
		coord: &Coordinator{
			id:       "iv-1",
			graph:    g,
			store:    st,
			rows:     rows,
			resumes:  resumes,
			versions: newVersionIndex(),
			cfg:      cfg,
			emitter:  captured,
			logger:   slog.New(slog.DiscardHandler),
		},
		store: st,
		rows:  rows,
		mock:  mock,
		emit:  captured,
	}
}

func TestCoordinator_FirstStepGreetsAndCheckpoints(t *testing.T) {
	mock := model.NewMockProvider(model.MockResponse{
		Text: `{"message":"Welcome! I read about your payments service, let's begin."}`,
	})
	f := newCoordFixture(t, nil, mock)

	msg, err := f.coord.ExecuteStep(context.Background(), Input{})
	if err != nil {
		t.Fatalf("step: %v", err)
	}
	if msg == "" {
		t.Error("no greeting returned")
	}

	cp, err := f.store.LoadLatest(context.Background(), "iv-1")
	if err != nil {
		t.Fatalf("load checkpoint: %v", err)
	}
	if cp.Version != 1 {
		t.Errorf("version %d", cp.Version)
	}
	st, err := Decode(cp.Blob)
	if err != nil {
		t.Fatalf("decode checkpoint: %v", err)
	}
	if st.Resume == nil || st.Resume.Profile == "" {
		t.Error("resume missing from reconstructed state")
	}
	if len(f.emit.ByMsg("checkpoint_saved")) != 1 {
		t.Error("no checkpoint_saved event")
	}
}

func TestCoordinator_InputValidation(t *testing.T) {
	f := newCoordFixture(t, nil, nil)

	t.Run("oversized code", func(t *testing.T) {
		big := make([]byte, DefaultConfig().CodeMaxBytes+1)
		_, err := f.coord.ExecuteStep(context.Background(), Input{Code: string(big), Language: "python"})
		if !errors.Is(err, ErrCodeTooLarge) {
			t.Errorf("want ErrCodeTooLarge, got %v", err)
		}
	})

	t.Run("unsupported language", func(t *testing.T) {
		_, err := f.coord.ExecuteStep(context.Background(), Input{Code: "fmt.Println(1)", Language: "go"})
		if !errors.Is(err, ErrUnsupportedLanguage) {
			t.Errorf("want ErrUnsupportedLanguage, got %v", err)
		}
	})

	t.Run("validation happens before any state access", func(t *testing.T) {
		if _, err := f.store.LoadLatest(context.Background(), "iv-1"); !errors.Is(err, store.ErrNotFound) {
			t.Errorf("rejected inputs touched storage: %v", err)
		}
	})
}

func TestCoordinator_FailedStepLeavesCheckpointIntact(t *testing.T) {
	mock := model.NewMockProvider(
		model.MockResponse{Text: `{"message":"Welcome aboard."}`},
		model.MockResponse{Err: errors.New("provider down")},
	)
	f := newCoordFixture(t, nil, mock)

	if _, err := f.coord.ExecuteStep(context.Background(), Input{}); err != nil {
		t.Fatalf("greeting step: %v", err)
	}
	before, err := f.store.LoadLatest(context.Background(), "iv-1")
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	// Two consecutive failing steps: same error, no new checkpoint.
	for i := 0; i < 2; i++ {
		if _, err := f.coord.ExecuteStep(context.Background(), Input{Utterance: "hello?"}); err == nil {
			t.Fatalf("step %d succeeded with a dead provider", i)
		}
	}

	after, err := f.store.LoadLatest(context.Background(), "iv-1")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if after.Version != before.Version || !bytes.Equal(after.Blob, before.Blob) {
		t.Error("failed steps moved the checkpoint")
	}
}

func TestCoordinator_ReconnectResumesByteIdentical(t *testing.T) {
	mock := model.NewMockProvider(model.MockResponse{
		Text: `{"message":"Welcome back territory."}`,
	})
	shared := store.NewMemStore()
	f := newCoordFixture(t, shared, mock)

	if _, err := f.coord.ExecuteStep(context.Background(), Input{}); err != nil {
		t.Fatalf("greeting step: %v", err)
	}
	saved, err := shared.LoadLatest(context.Background(), "iv-1")
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	// A fresh coordinator (new process, same store) picks up the latest
	// checkpoint; a timer tick then leaves the state byte-identical.
	f2 := newCoordFixture(t, shared, model.NewMockProvider())
	if _, err := f2.coord.ExecuteStep(context.Background(), Input{}); err != nil {
		t.Fatalf("tick after reconnect: %v", err)
	}
	resumed, err := shared.LoadLatest(context.Background(), "iv-1")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if resumed.Version != saved.Version+1 {
		t.Errorf("version %d after tick", resumed.Version)
	}
	if !bytes.Equal(resumed.Blob, saved.Blob) {
		t.Errorf("reconnect changed state:\n%s\n%s", saved.Blob, resumed.Blob)
	}
}

func TestCoordinator_SaveFailureFlagsUnchecked(t *testing.T) {
	mock := model.NewMockProvider(model.MockResponse{
		Text: `{"message":"Hello and welcome."}`,
	})
	faulty := &faultStore{inner: store.NewMemStore(), failSave: true}
	f := newCoordFixture(t, faulty, mock)

	msg, err := f.coord.ExecuteStep(context.Background(), Input{})
	if err != nil {
		t.Fatalf("step should survive a storage outage: %v", err)
	}
	if msg == "" {
		t.Error("no message despite the completed run")
	}
	if !f.coord.Unchecked() {
		t.Error("interview not flagged unchecked")
	}
	if len(f.emit.ByMsg("checkpoint_skipped")) != 1 {
		t.Error("no checkpoint_skipped event")
	}

	// Storage returns; the next completed run checkpoints and clears the
	// flag.
	faulty.setFailures(false, false)
	if _, err := f.coord.ExecuteStep(context.Background(), Input{}); err != nil {
		t.Fatalf("recovery step: %v", err)
	}
	if f.coord.Unchecked() {
		t.Error("unchecked flag not cleared after a successful save")
	}
	if _, err := faulty.LoadLatest(context.Background(), "iv-1"); err != nil {
		t.Errorf("no checkpoint after recovery: %v", err)
	}
}

func TestCoordinator_CorruptCheckpointReconstructs(t *testing.T) {
	shared := store.NewMemStore()
	if _, err := shared.Save(context.Background(), "iv-1", []byte("not a checkpoint")); err != nil {
		t.Fatalf("seed corrupt blob: %v", err)
	}

	f := newCoordFixture(t, shared, model.NewMockProvider())
	f.rows.Put(Row{
		ID: "iv-1", UserID: "u-1", ResumeID: "r-1", Status: StatusInProgress,
		History: []TurnRecord{
			{Role: RoleAssistant, Content: "Welcome."},
			{Role: RoleUser, Content: "Hi."},
		},
	})

	// A timer tick forces a load; the corrupt blob falls back to the row.
	if _, err := f.coord.ExecuteStep(context.Background(), Input{}); err != nil {
		t.Fatalf("step: %v", err)
	}

	cp, err := shared.LoadLatest(context.Background(), "iv-1")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	st, err := Decode(cp.Blob)
	if err != nil {
		t.Fatalf("decode rebuilt checkpoint: %v", err)
	}
	if len(st.ConversationHistory) != 2 || st.TurnCount != 1 {
		t.Errorf("rebuilt state %+v", st)
	}
}

func TestCoordinator_StorageDownWithNoMemoryFails(t *testing.T) {
	faulty := &faultStore{inner: store.NewMemStore(), failLoad: true}
	f := newCoordFixture(t, faulty, nil)

	_, err := f.coord.ExecuteStep(context.Background(), Input{})
	if !errors.Is(err, ErrStorageUnavailable) {
		t.Errorf("want ErrStorageUnavailable, got %v", err)
	}
}

func TestCoordinator_StorageOutageServesFromMemory(t *testing.T) {
	mock := model.NewMockProvider(model.MockResponse{
		Text: `{"message":"Welcome, let us begin."}`,
	})
	faulty := &faultStore{inner: store.NewMemStore()}
	f := newCoordFixture(t, faulty, mock)

	if _, err := f.coord.ExecuteStep(context.Background(), Input{}); err != nil {
		t.Fatalf("first step: %v", err)
	}

	// Full outage: loads and saves both fail, but the session continues
	// from memory and is flagged unchecked.
	faulty.setFailures(true, true)
	if _, err := f.coord.ExecuteStep(context.Background(), Input{}); err != nil {
		t.Fatalf("step during outage: %v", err)
	}
	if !f.coord.Unchecked() {
		t.Error("outage step not flagged unchecked")
	}
}

func TestCoordinator_SerializesConcurrentInputs(t *testing.T) {
	mock := model.NewMockProvider(model.MockResponse{
		Text: `{"message":"Hello!"}`,
	})
	f := newCoordFixture(t, nil, mock)

	var wg sync.WaitGroup
	errs := make([]error, 4)
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.coord.ExecuteStep(context.Background(), Input{})
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Errorf("step %d: %v", i, err)
		}
	}
	cp, err := f.store.LoadLatest(context.Background(), "iv-1")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cp.Version != 4 {
		t.Errorf("version %d after 4 serialized steps", cp.Version)
	}
}

func TestCoordinator_ClosedRejectsSteps(t *testing.T) {
	f := newCoordFixture(t, nil, nil)
	f.coord.close()
	if _, err := f.coord.ExecuteStep(context.Background(), Input{}); !errors.Is(err, ErrSessionClosed) {
		t.Errorf("want ErrSessionClosed, got %v", err)
	}
}

func TestCoordinator_MissingRowFails(t *testing.T) {
	f := newCoordFixture(t, nil, nil)
	f.coord.id = "iv-ghost"
	if _, err := f.coord.ExecuteStep(context.Background(), Input{}); !errors.Is(err, ErrRowNotFound) {
		t.Errorf("want ErrRowNotFound, got %v", err)
	}
}
