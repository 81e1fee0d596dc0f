package railyard_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/railyard/railyard"
	"github.com/railyard/railyard/pkg/adapters/memory"
	"github.com/railyard/railyard/pkg/domain"
	"github.com/railyard/railyard/pkg/graph"
	"github.com/railyard/railyard/pkg/ports"
)

// fakeSource is an in-process push channel the tests drive directly.
type fakeSource struct {
	ch chan domain.Frame
}

func newFakeSource() *fakeSource {
	return &fakeSource{ch: make(chan domain.Frame, 16)}
}

func (s *fakeSource) Attach() (<-chan domain.Frame, func(), error) {
	return s.ch, func() {}, nil
}

func (s *fakeSource) push(frame domain.Frame) { s.ch <- frame }

// revivableSource simulates a push channel whose connection can go down
// for good and be manually revived.
type revivableSource struct {
	mu         sync.Mutex
	down       bool
	reconnects int
	ch         chan domain.Frame
}

func newRevivableSource() *revivableSource {
	return &revivableSource{ch: make(chan domain.Frame, 16)}
}

func (s *revivableSource) Attach() (<-chan domain.Frame, func(), error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.down {
		return nil, nil, domain.ErrChannelDown
	}
	return s.ch, func() {}, nil
}

func (s *revivableSource) Reconnect() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.down = false
	s.reconnects++
	s.ch = make(chan domain.Frame, 16)
	return nil
}

func (s *revivableSource) markDown() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.down = true
}

func (s *revivableSource) push(frame domain.Frame) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ch <- frame
}

func (s *revivableSource) reconnectCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reconnects
}

// captureExecutor records execution requests.
type captureExecutor struct {
	executed []ports.ExecuteRequest
	stopped  []string
	flows    [][2]string
}

func (e *captureExecutor) Execute(_ context.Context, req ports.ExecuteRequest) error {
	e.executed = append(e.executed, req)
	return nil
}

func (e *captureExecutor) Stop(_ context.Context, nodeID string) error {
	e.stopped = append(e.stopped, nodeID)
	return nil
}

func (e *captureExecutor) ExecuteFlow(_ context.Context, sectionID, startNodeID string) error {
	e.flows = append(e.flows, [2]string{sectionID, startNodeID})
	return nil
}

func seedStore() *memory.Store {
	return memory.NewStoreWith(
		&domain.Section{
			ID:   "s1",
			Name: "Ingest",
			Nodes: []*domain.Node{
				{ID: "a", Type: domain.NodeTypeInput, Label: "A", Position: domain.Position{X: 80, Y: 120}},
				{ID: "b", Type: domain.NodeTypeTransform, Label: "B", Position: domain.Position{X: 320, Y: 120}},
			},
		},
		&domain.Section{
			ID:   "s2",
			Name: "Publish",
			Nodes: []*domain.Node{
				{ID: "c", Type: domain.NodeTypeOutput, Label: "C", Position: domain.Position{X: 1040, Y: 120}},
			},
		},
	)
}

func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal(msg)
}

func TestEngine_ConnectTrackDeleteScenario(t *testing.T) {
	store := seedStore()
	source := newFakeSource()
	engine, err := railyard.New(store,
		railyard.WithSource(source),
		railyard.WithDebounce(10*time.Millisecond),
	)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	ctx := context.Background()
	if err := engine.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer engine.Close(ctx)

	if _, err := engine.ActivateSection(ctx, "s1"); err != nil {
		t.Fatalf("ActivateSection failed: %v", err)
	}

	// Connect A -> B.
	result, err := engine.Connect(ctx, "s1", "a", "b")
	if err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	if result.Duplicate {
		t.Error("first connect flagged as duplicate")
	}
	if edges := engine.Edges("s1"); len(edges) != 1 {
		t.Fatalf("expected 1 edge, got %d", len(edges))
	}

	// Let the debounced write land, then repeat: the duplicate is signalled,
	// the graph is untouched, and nothing new is scheduled.
	waitFor(t, func() bool { return !engine.HasPendingWrite("s1") }, "connect write never flushed")

	result, err = engine.Connect(ctx, "s1", "a", "b")
	if err != nil {
		t.Fatalf("duplicate Connect failed: %v", err)
	}
	if !result.Duplicate {
		t.Error("duplicate connect not signalled")
	}
	if edges := engine.Edges("s1"); len(edges) != 1 {
		t.Errorf("duplicate connect changed the edge count: %d", len(edges))
	}
	if engine.HasPendingWrite("s1") {
		t.Error("duplicate connect scheduled a write")
	}

	// Execution progress shows up on the overlay.
	source.push(&domain.ProgressFrame{NodeID: "a", Progress: 0.5})
	waitFor(t, func() bool {
		return engine.Execution("s1", "a").Phase == domain.PhaseRunning
	}, "progress frame never reached the overlay")
	if state := engine.Execution("s1", "a"); state.Progress != 0.5 {
		t.Errorf("unexpected progress: %v", state.Progress)
	}

	// Deleting A cascades out of B's adjacency and drops A's overlay.
	if err := engine.RemoveNode(ctx, "s1", "a"); err != nil {
		t.Fatalf("RemoveNode failed: %v", err)
	}
	view, ok := engine.View("s1")
	if !ok {
		t.Fatal("section view missing")
	}
	if view.Node("a") != nil {
		t.Error("node a still present after removal")
	}
	if b := view.Node("b"); len(b.ConnectedFrom) != 0 {
		t.Errorf("cascade left stale references: %v", b.ConnectedFrom)
	}

	// A late frame for the deleted node is dropped without side effects.
	source.push(&domain.ProgressFrame{NodeID: "a", Progress: 0.9})
	time.Sleep(50 * time.Millisecond)
	if !engine.Execution("s1", "a").Idle() {
		t.Error("late frame revived a deleted node's overlay")
	}

	// The deletion itself persists.
	if err := engine.FlushNow(ctx, "s1"); err != nil {
		t.Fatalf("FlushNow failed: %v", err)
	}
	sections, err := store.LoadAll(ctx)
	if err != nil {
		t.Fatal(err)
	}
	for _, section := range sections {
		if section.ID == "s1" && section.Node("a") != nil {
			t.Error("deleted node still in the store")
		}
	}
}

func TestEngine_OutputPersistsBeforeActivation(t *testing.T) {
	store := seedStore()
	source := newFakeSource()
	engine, err := railyard.New(store,
		railyard.WithSource(source),
		railyard.WithDebounce(10*time.Millisecond),
	)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	ctx := context.Background()
	if err := engine.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer engine.Close(ctx)

	// No section switch has happened yet. The output frame must still be
	// applied as a durable update against the loaded documents.
	source.push(&domain.OutputFrame{NodeID: "a", Output: "fresh output"})
	waitFor(t, func() bool { return engine.HasPendingWrite("s1") }, "output frame never scheduled a write")

	if err := engine.FlushNow(ctx, "s1"); err != nil {
		t.Fatalf("FlushNow failed: %v", err)
	}
	sections, err := store.LoadAll(ctx)
	if err != nil {
		t.Fatal(err)
	}
	for _, section := range sections {
		if section.ID == "s1" {
			if got := section.Node("a").Output; got != "fresh output" {
				t.Errorf("output lost for never-activated section: %q", got)
			}
		}
	}

	// Transient frames route the same way.
	source.push(&domain.ProgressFrame{NodeID: "c", Progress: 0.4})
	waitFor(t, func() bool {
		return engine.Execution("s2", "c").Phase == domain.PhaseRunning
	}, "progress frame dropped for never-activated section")
}

func TestEngine_ReattachRevivesDownChannel(t *testing.T) {
	store := seedStore()
	source := newRevivableSource()
	engine, err := railyard.New(store, railyard.WithSource(source))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	ctx := context.Background()
	if err := engine.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer engine.Close(ctx)

	// The channel exhausts its budget and refuses new consumers until a
	// manual reconnect. The facade alone must be able to recover.
	source.markDown()
	if err := engine.ReattachSource(); err != nil {
		t.Fatalf("ReattachSource failed against a down channel: %v", err)
	}
	if got := source.reconnectCount(); got != 1 {
		t.Fatalf("expected 1 reconnect, got %d", got)
	}

	// Frames flow again on the revived stream.
	if _, err := engine.ActivateSection(ctx, "s1"); err != nil {
		t.Fatal(err)
	}
	source.push(&domain.ProgressFrame{NodeID: "a", Progress: 0.5})
	waitFor(t, func() bool {
		return engine.Execution("s1", "a").Phase == domain.PhaseRunning
	}, "no frames after facade-driven reconnect")
}

func TestEngine_FlushOnSectionSwitch(t *testing.T) {
	store := seedStore()
	engine, err := railyard.New(store, railyard.WithDebounce(time.Hour))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	ctx := context.Background()
	if err := engine.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer engine.Close(ctx)

	if _, err := engine.ActivateSection(ctx, "s1"); err != nil {
		t.Fatal(err)
	}
	label := "Renamed"
	if err := engine.UpdateNode(ctx, "s1", "a", graph.NodePatch{Label: &label}); err != nil {
		t.Fatalf("UpdateNode failed: %v", err)
	}
	if !engine.HasPendingWrite("s1") {
		t.Fatal("edit did not schedule a write")
	}

	// Switching sections flushes the previous one synchronously, even with
	// an hour-long debounce window.
	if _, err := engine.ActivateSection(ctx, "s2"); err != nil {
		t.Fatal(err)
	}
	if engine.HasPendingWrite("s1") {
		t.Error("pending write survived the section switch")
	}

	sections, err := store.LoadAll(ctx)
	if err != nil {
		t.Fatal(err)
	}
	for _, section := range sections {
		if section.ID == "s1" && section.Node("a").Label != label {
			t.Errorf("edit lost at section switch: %q", section.Node("a").Label)
		}
	}
}

func TestEngine_ToggleDeactivated(t *testing.T) {
	store := seedStore()
	engine, err := railyard.New(store, railyard.WithDebounce(10*time.Millisecond))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	ctx := context.Background()
	if err := engine.Start(ctx); err != nil {
		t.Fatal(err)
	}
	defer engine.Close(ctx)

	if _, err := engine.ActivateSection(ctx, "s1"); err != nil {
		t.Fatal(err)
	}
	if err := engine.ToggleDeactivated(ctx, "s1", "b"); err != nil {
		t.Fatalf("ToggleDeactivated failed: %v", err)
	}

	view, _ := engine.View("s1")
	if !view.Node("b").IsDeactivated {
		t.Error("local view not toggled")
	}
	sections, _ := store.LoadAll(ctx)
	for _, section := range sections {
		if section.ID == "s1" && !section.Node("b").IsDeactivated {
			t.Error("backend not toggled")
		}
	}

	// Toggling again flips it back.
	if err := engine.ToggleDeactivated(ctx, "s1", "b"); err != nil {
		t.Fatal(err)
	}
	view, _ = engine.View("s1")
	if view.Node("b").IsDeactivated {
		t.Error("second toggle did not revert")
	}
}

func TestEngine_ExecuteNodeGathersInputs(t *testing.T) {
	store := seedStore()
	exec := &captureExecutor{}
	engine, err := railyard.New(store, railyard.WithExecutor(exec))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	ctx := context.Background()
	if err := engine.Start(ctx); err != nil {
		t.Fatal(err)
	}
	defer engine.Close(ctx)

	if _, err := engine.ActivateSection(ctx, "s1"); err != nil {
		t.Fatal(err)
	}
	if _, err := engine.Connect(ctx, "s1", "a", "b"); err != nil {
		t.Fatal(err)
	}
	output := "42 rows"
	if err := engine.UpdateNode(ctx, "s1", "a", graph.NodePatch{Output: &output}); err != nil {
		t.Fatal(err)
	}

	if err := engine.ExecuteNode(ctx, "s1", "b"); err != nil {
		t.Fatalf("ExecuteNode failed: %v", err)
	}
	if len(exec.executed) != 1 {
		t.Fatalf("expected 1 execution, got %d", len(exec.executed))
	}
	req := exec.executed[0]
	if req.NodeID != "b" || req.SectionID != "s1" {
		t.Errorf("unexpected request: %+v", req)
	}
	if req.Inputs["a"] != output {
		t.Errorf("upstream output not gathered: %v", req.Inputs)
	}

	if err := engine.StopNode(ctx, "b"); err != nil {
		t.Fatal(err)
	}
	if len(exec.stopped) != 1 || exec.stopped[0] != "b" {
		t.Errorf("stop not forwarded: %v", exec.stopped)
	}

	if err := engine.ExecuteFlow(ctx, "s1", "a"); err != nil {
		t.Fatal(err)
	}
	if len(exec.flows) != 1 || exec.flows[0] != [2]string{"s1", "a"} {
		t.Errorf("flow not forwarded: %v", exec.flows)
	}
}
