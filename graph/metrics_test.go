package graph

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/factorops/maintgraph/graph/emit"
	"github.com/factorops/maintgraph/graph/store"
)

func TestMetricsObserveNode(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := NewMetrics(registry)

	m.observeNode("planner", 0, nil)
	m.observeNode("planner", 0, errors.New("boom"))
	m.observeNode("inventory", 0, nil)

	if got := testutil.ToFloat64(m.nodeErrors.WithLabelValues("planner")); got != 1 {
		t.Errorf("planner errors = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.nodeErrors.WithLabelValues("inventory")); got != 0 {
		t.Errorf("inventory errors = %v, want 0", got)
	}
}

func TestEngineMetricsSuspendResume(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := NewMetrics(registry)

	e := New[testState](testReducer, store.NewMemStore[testState](), emit.NewNullEmitter())
	e.SetMetrics(m)

	mustAdd(t, e, "prep", logNode("prep", Goto("ask")))
	if err := e.AddInterrupt("ask", &askNode{question: "ok?", route: Stop()}); err != nil {
		t.Fatalf("AddInterrupt failed: %v", err)
	}
	mustStartAt(t, e, "prep")

	ctx := context.Background()
	if _, susp, err := e.Run(ctx, "t1", testState{}); err != nil || susp == nil {
		t.Fatalf("Run = (susp=%v, err=%v), want suspension", susp, err)
	}
	if _, _, err := e.Resume(ctx, "t1", "yes"); err != nil {
		t.Fatalf("Resume failed: %v", err)
	}

	if got := testutil.ToFloat64(m.suspensions); got != 1 {
		t.Errorf("suspensions = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.resumes); got != 1 {
		t.Errorf("resumes = %v, want 1", got)
	}
}
