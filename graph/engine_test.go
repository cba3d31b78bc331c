package graph

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/factorops/maintgraph/graph/emit"
	"github.com/factorops/maintgraph/graph/store"
)

// testState is the shared state used across engine tests.
type testState struct {
	Count   int
	Log     []string
	Route   string
	Errors  []string
	Answers []string
}

// testReducer merges deltas the way domain reducers do: counters are
// max-monotone, log-shaped fields append, scalar fields last-write-wins.
func testReducer(prev, delta testState) testState {
	out := prev
	if delta.Count > out.Count {
		out.Count = delta.Count
	}
	out.Log = append(out.Log, delta.Log...)
	out.Errors = append(out.Errors, delta.Errors...)
	out.Answers = append(out.Answers, delta.Answers...)
	if delta.Route != "" {
		out.Route = delta.Route
	}
	return out
}

func logNode(name string, route Next) NodeFunc[testState] {
	return func(_ context.Context, s testState) NodeResult[testState] {
		return NodeResult[testState]{
			Delta: testState{Count: s.Count + 1, Log: []string{name}},
			Route: route,
		}
	}
}

func newTestEngine(t *testing.T, opts ...Option) (*Engine[testState], *store.MemStore[testState], *emit.BufferedEmitter) {
	t.Helper()
	st := store.NewMemStore[testState]()
	em := emit.NewBufferedEmitter()
	return New[testState](testReducer, st, em, opts...), st, em
}

func TestEngineRunLinear(t *testing.T) {
	e, st, em := newTestEngine(t)

	mustAdd(t, e, "first", logNode("first", Goto("second")))
	mustAdd(t, e, "second", logNode("second", Stop()))
	mustStartAt(t, e, "first")

	final, susp, err := e.Run(context.Background(), "t1", testState{})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if susp != nil {
		t.Fatalf("unexpected suspension at node %s", susp.NodeID)
	}
	if got := strings.Join(final.Log, ","); got != "first,second" {
		t.Errorf("visit order = %q, want %q", got, "first,second")
	}
	if final.Count != 2 {
		t.Errorf("Count = %d, want 2", final.Count)
	}

	// The last checkpoint must carry the final state with no pending node.
	cp, err := st.Load(context.Background(), "t1")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cp.Suspended() {
		t.Error("completed thread should not be suspended")
	}
	if cp.State.Count != 2 {
		t.Errorf("checkpointed Count = %d, want 2", cp.State.Count)
	}

	events := em.History("t1")
	if len(events) == 0 || events[len(events)-1].Msg != emit.MsgTerminal {
		t.Errorf("last event = %+v, want terminal", events[len(events)-1])
	}
}

func TestEngineRouterBased(t *testing.T) {
	e, _, _ := newTestEngine(t)

	mustAdd(t, e, "classify", NodeFunc[testState](func(_ context.Context, s testState) NodeResult[testState] {
		return NodeResult[testState]{Delta: testState{Route: s.Route, Log: []string{"classify"}}}
	}))
	mustAdd(t, e, "left", logNode("left", Stop()))
	mustAdd(t, e, "right", logNode("right", Stop()))
	if err := e.Route("classify", func(s testState) string {
		if s.Route == "left" {
			return "left"
		}
		return "right"
	}); err != nil {
		t.Fatalf("Route failed: %v", err)
	}
	mustStartAt(t, e, "classify")

	tests := []struct {
		name  string
		route string
		want  string
	}{
		{"routes left", "left", "classify,left"},
		{"routes right", "right", "classify,right"},
		{"default branch", "", "classify,right"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			final, _, err := e.Run(context.Background(), "t-"+tt.name, testState{Route: tt.route})
			if err != nil {
				t.Fatalf("Run failed: %v", err)
			}
			if got := strings.Join(final.Log, ","); got != tt.want {
				t.Errorf("visit order = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestEngineRouterEnd(t *testing.T) {
	e, _, _ := newTestEngine(t)

	mustAdd(t, e, "only", NodeFunc[testState](func(_ context.Context, _ testState) NodeResult[testState] {
		return NodeResult[testState]{Delta: testState{Log: []string{"only"}}}
	}))
	if err := e.Route("only", func(testState) string { return End }); err != nil {
		t.Fatalf("Route failed: %v", err)
	}
	mustStartAt(t, e, "only")

	final, susp, err := e.Run(context.Background(), "t1", testState{})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if susp != nil {
		t.Fatal("unexpected suspension")
	}
	if len(final.Log) != 1 {
		t.Errorf("Log = %v, want one entry", final.Log)
	}
}

// askNode suspends with a question payload and records the answer on resume.
type askNode struct {
	question string
	route    Next
}

func (a *askNode) BuildRequest(_ context.Context, s testState) (any, error) {
	return map[string]any{"question": a.question, "count": s.Count}, nil
}

func (a *askNode) HandleResponse(_ context.Context, s testState, resume any) NodeResult[testState] {
	answer, _ := resume.(string)
	return NodeResult[testState]{
		Delta: testState{Count: s.Count + 1, Log: []string{"ask"}, Answers: []string{answer}},
		Route: a.route,
	}
}

func TestEngineSuspendResume(t *testing.T) {
	e, st, em := newTestEngine(t)

	mustAdd(t, e, "prep", logNode("prep", Goto("ask")))
	if err := e.AddInterrupt("ask", &askNode{question: "proceed?", route: Goto("finish")}); err != nil {
		t.Fatalf("AddInterrupt failed: %v", err)
	}
	mustAdd(t, e, "finish", logNode("finish", Stop()))
	mustStartAt(t, e, "prep")

	ctx := context.Background()

	state, susp, err := e.Run(ctx, "t1", testState{})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if susp == nil {
		t.Fatal("expected a suspension")
	}
	if susp.NodeID != "ask" {
		t.Errorf("suspended at %q, want %q", susp.NodeID, "ask")
	}
	payload, ok := susp.Payload.(map[string]any)
	if !ok || payload["question"] != "proceed?" {
		t.Errorf("payload = %#v, want question map", susp.Payload)
	}
	if state.Count != 1 {
		t.Errorf("suspended state Count = %d, want 1", state.Count)
	}

	// The checkpoint must record the pending node so a separate process
	// can pick the thread up.
	cp, err := st.Load(ctx, "t1")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if !cp.Suspended() || cp.PendingNode != "ask" {
		t.Fatalf("checkpoint = %+v, want pending ask", cp)
	}

	final, susp, err := e.Resume(ctx, "t1", "yes")
	if err != nil {
		t.Fatalf("Resume failed: %v", err)
	}
	if susp != nil {
		t.Fatal("unexpected second suspension")
	}
	if got := strings.Join(final.Log, ","); got != "prep,ask,finish" {
		t.Errorf("visit order = %q, want %q", got, "prep,ask,finish")
	}
	if len(final.Answers) != 1 || final.Answers[0] != "yes" {
		t.Errorf("Answers = %v, want [yes]", final.Answers)
	}

	var msgs []string
	for _, ev := range em.History("t1") {
		msgs = append(msgs, ev.Msg)
	}
	joined := strings.Join(msgs, ",")
	if !strings.Contains(joined, emit.MsgSuspended) || !strings.Contains(joined, emit.MsgResumed) {
		t.Errorf("event msgs = %v, want suspended and resumed", msgs)
	}
}

func TestEngineResumeErrors(t *testing.T) {
	e, st, _ := newTestEngine(t)

	mustAdd(t, e, "only", logNode("only", Stop()))
	mustStartAt(t, e, "only")

	ctx := context.Background()

	t.Run("unknown thread", func(t *testing.T) {
		_, _, err := e.Resume(ctx, "missing", "x")
		if err == nil {
			t.Fatal("expected error resuming unknown thread")
		}
	})

	t.Run("not suspended", func(t *testing.T) {
		if _, _, err := e.Run(ctx, "done", testState{}); err != nil {
			t.Fatalf("Run failed: %v", err)
		}
		_, _, err := e.Resume(ctx, "done", "x")
		if !errors.Is(err, ErrNotSuspended) {
			t.Fatalf("Resume error = %v, want ErrNotSuspended", err)
		}
	})

	t.Run("pending node unregistered", func(t *testing.T) {
		cp := store.Checkpoint[testState]{ThreadID: "stale", Step: 3, NodeID: "gone", PendingNode: "gone"}
		if err := st.Save(ctx, cp); err != nil {
			t.Fatalf("Save failed: %v", err)
		}
		_, _, err := e.Resume(ctx, "stale", "x")
		var ee *EngineError
		if !errors.As(err, &ee) || ee.Code != "NODE_NOT_FOUND" {
			t.Fatalf("Resume error = %v, want NODE_NOT_FOUND", err)
		}
	})
}

func TestEngineResumeAcrossEngines(t *testing.T) {
	// Two engine instances sharing a store stand in for two processes.
	st := store.NewMemStore[testState]()
	ctx := context.Background()

	build := func() *Engine[testState] {
		e := New[testState](testReducer, st, emit.NewNullEmitter())
		mustAdd(t, e, "prep", logNode("prep", Goto("ask")))
		if err := e.AddInterrupt("ask", &askNode{question: "ok?", route: Goto("finish")}); err != nil {
			t.Fatalf("AddInterrupt failed: %v", err)
		}
		mustAdd(t, e, "finish", logNode("finish", Stop()))
		mustStartAt(t, e, "prep")
		return e
	}

	first := build()
	if _, susp, err := first.Run(ctx, "t1", testState{}); err != nil || susp == nil {
		t.Fatalf("Run = (susp=%v, err=%v), want suspension", susp, err)
	}

	second := build()

	// The second engine can inspect the pending suspension before resuming.
	pending, err := second.Suspended(ctx, "t1")
	if err != nil {
		t.Fatalf("Suspended failed: %v", err)
	}
	if pending == nil || pending.NodeID != "ask" {
		t.Fatalf("pending = %+v, want ask", pending)
	}

	final, susp, err := second.Resume(ctx, "t1", "approved")
	if err != nil {
		t.Fatalf("Resume failed: %v", err)
	}
	if susp != nil {
		t.Fatal("unexpected suspension after resume")
	}
	if got := strings.Join(final.Log, ","); got != "prep,ask,finish" {
		t.Errorf("visit order = %q, want %q", got, "prep,ask,finish")
	}
}

func TestEngineRepeatedSuspension(t *testing.T) {
	// An interrupt node revisited after resume suspends again.
	e, _, _ := newTestEngine(t)

	ask := &askNode{question: "more?"}
	mustAdd(t, e, "prep", logNode("prep", Goto("ask")))
	if err := e.AddInterrupt("ask", ask); err != nil {
		t.Fatalf("AddInterrupt failed: %v", err)
	}
	mustAdd(t, e, "finish", logNode("finish", Stop()))
	if err := e.Route("ask", func(s testState) string {
		if len(s.Answers) < 2 {
			return "ask"
		}
		return "finish"
	}); err != nil {
		t.Fatalf("Route failed: %v", err)
	}
	mustStartAt(t, e, "prep")

	ctx := context.Background()

	_, susp, err := e.Run(ctx, "t1", testState{})
	if err != nil || susp == nil {
		t.Fatalf("Run = (susp=%v, err=%v), want suspension", susp, err)
	}

	_, susp, err = e.Resume(ctx, "t1", "first")
	if err != nil {
		t.Fatalf("first Resume failed: %v", err)
	}
	if susp == nil || susp.NodeID != "ask" {
		t.Fatalf("expected second suspension at ask, got %+v", susp)
	}

	final, susp, err := e.Resume(ctx, "t1", "second")
	if err != nil {
		t.Fatalf("second Resume failed: %v", err)
	}
	if susp != nil {
		t.Fatal("unexpected third suspension")
	}
	if len(final.Answers) != 2 || final.Answers[1] != "second" {
		t.Errorf("Answers = %v, want two entries", final.Answers)
	}
}

func TestEngineErrorHook(t *testing.T) {
	boom := errors.New("backend unavailable")

	failing := NodeFunc[testState](func(_ context.Context, _ testState) NodeResult[testState] {
		return NodeResult[testState]{Err: boom}
	})

	t.Run("without hook the run fails", func(t *testing.T) {
		e, _, _ := newTestEngine(t)
		mustAdd(t, e, "flaky", failing)
		mustStartAt(t, e, "flaky")

		_, _, err := e.Run(context.Background(), "t1", testState{})
		if !errors.Is(err, boom) {
			t.Fatalf("Run error = %v, want %v", err, boom)
		}
	})

	t.Run("hook converts failure to state and routing continues", func(t *testing.T) {
		e, _, em := newTestEngine(t)
		mustAdd(t, e, "flaky", failing)
		mustAdd(t, e, "recover", logNode("recover", Stop()))
		if err := e.Route("flaky", func(s testState) string {
			if len(s.Errors) > 0 {
				return "recover"
			}
			return End
		}); err != nil {
			t.Fatalf("Route failed: %v", err)
		}
		mustStartAt(t, e, "flaky")

		e.OnNodeError(func(nodeID string, err error) testState {
			return testState{Errors: []string{nodeID + ": " + err.Error()}}
		})

		final, _, err := e.Run(context.Background(), "t1", testState{})
		if err != nil {
			t.Fatalf("Run failed: %v", err)
		}
		if len(final.Errors) != 1 || !strings.Contains(final.Errors[0], "flaky") {
			t.Errorf("Errors = %v, want flaky record", final.Errors)
		}
		if got := strings.Join(final.Log, ","); got != "recover" {
			t.Errorf("visit order = %q, want recover", got)
		}

		var sawErrEvent bool
		for _, ev := range em.History("t1") {
			if ev.Msg == emit.MsgNodeError {
				sawErrEvent = true
			}
		}
		if !sawErrEvent {
			t.Error("expected a node_error event")
		}
	})
}

func TestEngineNonRecoverableError(t *testing.T) {
	e, st, _ := newTestEngine(t)

	mustAdd(t, e, "fatal", NodeFunc[testState](func(_ context.Context, _ testState) NodeResult[testState] {
		return NodeResult[testState]{Err: &NodeError{
			Message:     "state corrupted",
			Code:        "CORRUPT",
			NodeID:      "fatal",
			Recoverable: false,
		}}
	}))
	mustAdd(t, e, "unreached", logNode("unreached", Stop()))
	if err := e.Route("fatal", func(testState) string { return "unreached" }); err != nil {
		t.Fatalf("Route failed: %v", err)
	}
	mustStartAt(t, e, "fatal")

	e.OnNodeError(func(nodeID string, err error) testState {
		return testState{Errors: []string{err.Error()}}
	})

	final, susp, err := e.Run(context.Background(), "t1", testState{})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if susp != nil {
		t.Fatal("unexpected suspension")
	}
	if len(final.Log) != 0 {
		t.Errorf("routing continued past a non-recoverable failure: %v", final.Log)
	}
	if len(final.Errors) != 1 {
		t.Errorf("Errors = %v, want one degraded record", final.Errors)
	}

	// Degraded final state must still be checkpointed.
	cp, err := st.Load(context.Background(), "t1")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(cp.State.Errors) != 1 {
		t.Errorf("checkpointed Errors = %v", cp.State.Errors)
	}
}

func TestEngineMaxSteps(t *testing.T) {
	e, _, _ := newTestEngine(t, WithMaxSteps(3))

	mustAdd(t, e, "spin", logNode("spin", Goto("spin")))
	mustStartAt(t, e, "spin")

	_, _, err := e.Run(context.Background(), "t1", testState{})
	var ee *EngineError
	if !errors.As(err, &ee) || ee.Code != "MAX_STEPS_EXCEEDED" {
		t.Fatalf("Run error = %v, want MAX_STEPS_EXCEEDED", err)
	}
}

func TestEngineRetryPolicy(t *testing.T) {
	attempts := 0
	e, _, _ := newTestEngine(t)

	mustAdd(t, e, "flaky", NodeFunc[testState](func(_ context.Context, _ testState) NodeResult[testState] {
		attempts++
		if attempts < 3 {
			return NodeResult[testState]{Err: errors.New("transient")}
		}
		return NodeResult[testState]{Delta: testState{Log: []string{"ok"}}, Route: Stop()}
	}))
	mustStartAt(t, e, "flaky")
	e.SetPolicy("flaky", &NodePolicy{
		RetryPolicy: &RetryPolicy{
			MaxAttempts: 3,
			BaseDelay:   time.Millisecond,
			MaxDelay:    5 * time.Millisecond,
			Retryable:   func(error) bool { return true },
		},
	})

	final, _, err := e.Run(context.Background(), "t1", testState{})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if attempts != 3 {
		t.Errorf("attempts = %d, want 3", attempts)
	}
	if len(final.Log) != 1 || final.Log[0] != "ok" {
		t.Errorf("Log = %v, want [ok]", final.Log)
	}
}

func TestEngineRetryStampsAttempts(t *testing.T) {
	e, _, _ := newTestEngine(t)

	mustAdd(t, e, "flaky", NodeFunc[testState](func(_ context.Context, _ testState) NodeResult[testState] {
		return NodeResult[testState]{Err: &NodeError{
			Message: "upstream unavailable", Code: "UPSTREAM", NodeID: "flaky",
		}}
	}))
	mustStartAt(t, e, "flaky")
	e.SetPolicy("flaky", &NodePolicy{
		RetryPolicy: &RetryPolicy{
			MaxAttempts: 3,
			BaseDelay:   time.Millisecond,
			MaxDelay:    5 * time.Millisecond,
			Retryable:   func(error) bool { return true },
		},
	})

	var attempts int
	e.OnNodeError(func(_ string, err error) testState {
		var ne *NodeError
		if errors.As(err, &ne) {
			attempts = ne.Attempts
		}
		return testState{Errors: []string{err.Error()}}
	})

	if _, _, err := e.Run(context.Background(), "t1", testState{}); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if attempts != 3 {
		t.Errorf("NodeError.Attempts = %d, want 3", attempts)
	}
}

func TestEngineNodeTimeout(t *testing.T) {
	e, _, _ := newTestEngine(t)

	mustAdd(t, e, "slow", NodeFunc[testState](func(ctx context.Context, _ testState) NodeResult[testState] {
		select {
		case <-time.After(200 * time.Millisecond):
			return NodeResult[testState]{Route: Stop()}
		case <-ctx.Done():
			return NodeResult[testState]{Err: ctx.Err()}
		}
	}))
	mustStartAt(t, e, "slow")
	e.SetPolicy("slow", &NodePolicy{Timeout: 10 * time.Millisecond})

	_, _, err := e.Run(context.Background(), "t1", testState{})
	if err == nil {
		t.Fatal("expected timeout error")
	}
}

func TestEngineNoRoute(t *testing.T) {
	e, _, _ := newTestEngine(t)

	mustAdd(t, e, "dangling", NodeFunc[testState](func(_ context.Context, _ testState) NodeResult[testState] {
		return NodeResult[testState]{}
	}))
	mustStartAt(t, e, "dangling")

	_, _, err := e.Run(context.Background(), "t1", testState{})
	var ee *EngineError
	if !errors.As(err, &ee) || ee.Code != "NO_ROUTE" {
		t.Fatalf("Run error = %v, want NO_ROUTE", err)
	}
}

func TestEngineConfigErrors(t *testing.T) {
	t.Run("duplicate node ID", func(t *testing.T) {
		e, _, _ := newTestEngine(t)
		mustAdd(t, e, "dup", logNode("dup", Stop()))
		if err := e.Add("dup", logNode("dup", Stop())); err == nil {
			t.Fatal("expected duplicate node error")
		}
		if err := e.AddInterrupt("dup", &askNode{}); err == nil {
			t.Fatal("expected duplicate interrupt error")
		}
	})

	t.Run("start node must exist", func(t *testing.T) {
		e, _, _ := newTestEngine(t)
		if err := e.StartAt("nowhere"); err == nil {
			t.Fatal("expected error for unknown start node")
		}
	})

	t.Run("run without start node", func(t *testing.T) {
		e, _, _ := newTestEngine(t)
		mustAdd(t, e, "a", logNode("a", Stop()))
		_, _, err := e.Run(context.Background(), "t1", testState{})
		var ee *EngineError
		if !errors.As(err, &ee) || ee.Code != "NO_START_NODE" {
			t.Fatalf("Run error = %v, want NO_START_NODE", err)
		}
	})
}

func TestEngineContextCancellation(t *testing.T) {
	e, _, _ := newTestEngine(t)

	ctx, cancel := context.WithCancel(context.Background())
	mustAdd(t, e, "first", NodeFunc[testState](func(_ context.Context, s testState) NodeResult[testState] {
		cancel()
		return NodeResult[testState]{Delta: testState{Log: []string{"first"}}, Route: Goto("second")}
	}))
	mustAdd(t, e, "second", logNode("second", Stop()))
	mustStartAt(t, e, "first")

	_, _, err := e.Run(ctx, "t1", testState{})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Run error = %v, want context.Canceled", err)
	}
}

func mustAdd(t *testing.T, e *Engine[testState], id string, n Node[testState]) {
	t.Helper()
	if err := e.Add(id, n); err != nil {
		t.Fatalf("Add(%s) failed: %v", id, err)
	}
}

func mustStartAt(t *testing.T, e *Engine[testState], id string) {
	t.Helper()
	if err := e.StartAt(id); err != nil {
		t.Fatalf("StartAt(%s) failed: %v", id, err)
	}
}
