package store

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"
	"time"
)

type checkpointState struct {
	Phase string   `json:"phase"`
	Log   []string `json:"log,omitempty"`
}

// runStoreContract exercises the Store behavior shared by all backends.
func runStoreContract(t *testing.T, st Store[checkpointState]) {
	t.Helper()
	ctx := context.Background()

	t.Run("load missing thread", func(t *testing.T) {
		_, err := st.Load(ctx, "missing")
		if !errors.Is(err, ErrNotFound) {
			t.Fatalf("Load error = %v, want ErrNotFound", err)
		}
	})

	t.Run("save and load", func(t *testing.T) {
		cp := Checkpoint[checkpointState]{
			ThreadID: "t1",
			Step:     2,
			NodeID:   "planner",
			State:    checkpointState{Phase: "planning", Log: []string{"a", "b"}},
		}
		if err := st.Save(ctx, cp); err != nil {
			t.Fatalf("Save failed: %v", err)
		}

		got, err := st.Load(ctx, "t1")
		if err != nil {
			t.Fatalf("Load failed: %v", err)
		}
		if got.Step != 2 || got.NodeID != "planner" {
			t.Errorf("loaded checkpoint = %+v", got)
		}
		if got.State.Phase != "planning" || len(got.State.Log) != 2 {
			t.Errorf("loaded state = %+v", got.State)
		}
		if got.Suspended() {
			t.Error("checkpoint without pending node reported suspended")
		}
		if got.UpdatedAt.IsZero() {
			t.Error("UpdatedAt not set on save")
		}
	})

	t.Run("save overwrites", func(t *testing.T) {
		first := Checkpoint[checkpointState]{ThreadID: "t2", Step: 1, NodeID: "a", State: checkpointState{Phase: "one"}}
		second := Checkpoint[checkpointState]{ThreadID: "t2", Step: 2, NodeID: "b", State: checkpointState{Phase: "two"}}
		if err := st.Save(ctx, first); err != nil {
			t.Fatalf("Save failed: %v", err)
		}
		if err := st.Save(ctx, second); err != nil {
			t.Fatalf("Save failed: %v", err)
		}

		got, err := st.Load(ctx, "t2")
		if err != nil {
			t.Fatalf("Load failed: %v", err)
		}
		if got.Step != 2 || got.State.Phase != "two" {
			t.Errorf("overwrite lost: %+v", got)
		}
	})

	t.Run("suspended checkpoint round-trip", func(t *testing.T) {
		payload, _ := json.Marshal(map[string]string{"question": "approve?"})
		cp := Checkpoint[checkpointState]{
			ThreadID:    "t3",
			Step:        5,
			NodeID:      "approval",
			State:       checkpointState{Phase: "waiting"},
			PendingNode: "approval",
			Payload:     payload,
		}
		if err := st.Save(ctx, cp); err != nil {
			t.Fatalf("Save failed: %v", err)
		}

		got, err := st.Load(ctx, "t3")
		if err != nil {
			t.Fatalf("Load failed: %v", err)
		}
		if !got.Suspended() || got.PendingNode != "approval" {
			t.Errorf("loaded checkpoint = %+v, want suspended", got)
		}
		var decoded map[string]string
		if err := json.Unmarshal(got.Payload, &decoded); err != nil {
			t.Fatalf("payload corrupted: %v", err)
		}
		if decoded["question"] != "approve?" {
			t.Errorf("payload = %v", decoded)
		}

		// Completing the visit clears the pending marker.
		cp.PendingNode = ""
		cp.Payload = nil
		if err := st.Save(ctx, cp); err != nil {
			t.Fatalf("Save failed: %v", err)
		}
		got, err = st.Load(ctx, "t3")
		if err != nil {
			t.Fatalf("Load failed: %v", err)
		}
		if got.Suspended() {
			t.Error("pending marker not cleared")
		}
	})

	t.Run("delete", func(t *testing.T) {
		cp := Checkpoint[checkpointState]{ThreadID: "t4", Step: 1, NodeID: "a"}
		if err := st.Save(ctx, cp); err != nil {
			t.Fatalf("Save failed: %v", err)
		}
		if err := st.Delete(ctx, "t4"); err != nil {
			t.Fatalf("Delete failed: %v", err)
		}
		if _, err := st.Load(ctx, "t4"); !errors.Is(err, ErrNotFound) {
			t.Fatalf("Load after delete = %v, want ErrNotFound", err)
		}

		// Deleting a missing thread is not an error.
		if err := st.Delete(ctx, "t4"); err != nil {
			t.Fatalf("second Delete failed: %v", err)
		}
	})
}

func TestMemStore(t *testing.T) {
	runStoreContract(t, NewMemStore[checkpointState]())
}

func TestSQLiteStore(t *testing.T) {
	st, err := NewSQLiteStore[checkpointState](filepath.Join(t.TempDir(), "checkpoints.db"))
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}
	defer st.Close()

	runStoreContract(t, st)
}

func TestMemStoreSweepSuspended(t *testing.T) {
	st := NewMemStore[checkpointState]()
	ctx := context.Background()

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	st.now = func() time.Time { return base }

	save := func(threadID, pending string) {
		t.Helper()
		cp := Checkpoint[checkpointState]{ThreadID: threadID, Step: 1, NodeID: "n", PendingNode: pending}
		if err := st.Save(ctx, cp); err != nil {
			t.Fatalf("Save failed: %v", err)
		}
	}

	save("old-suspended", "ask")
	save("old-completed", "")

	st.now = func() time.Time { return base.Add(48 * time.Hour) }
	save("fresh-suspended", "ask")

	removed, err := st.SweepSuspended(ctx, 24*time.Hour)
	if err != nil {
		t.Fatalf("SweepSuspended failed: %v", err)
	}
	if removed != 1 {
		t.Errorf("removed = %d, want 1", removed)
	}

	if _, err := st.Load(ctx, "old-suspended"); !errors.Is(err, ErrNotFound) {
		t.Error("stale suspended thread survived the sweep")
	}
	if _, err := st.Load(ctx, "old-completed"); err != nil {
		t.Error("completed thread should not be swept")
	}
	if _, err := st.Load(ctx, "fresh-suspended"); err != nil {
		t.Error("fresh suspended thread should not be swept")
	}
}

func TestSQLiteStoreSweepSuspended(t *testing.T) {
	st, err := NewSQLiteStore[checkpointState](filepath.Join(t.TempDir(), "checkpoints.db"))
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}
	defer st.Close()

	ctx := context.Background()

	suspended := Checkpoint[checkpointState]{ThreadID: "s1", Step: 1, NodeID: "ask", PendingNode: "ask"}
	completed := Checkpoint[checkpointState]{ThreadID: "c1", Step: 1, NodeID: "done"}
	if err := st.Save(ctx, suspended); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if err := st.Save(ctx, completed); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	// Nothing is older than an hour yet.
	removed, err := st.SweepSuspended(ctx, time.Hour)
	if err != nil {
		t.Fatalf("SweepSuspended failed: %v", err)
	}
	if removed != 0 {
		t.Errorf("removed = %d, want 0", removed)
	}

	// With a zero age every suspended row qualifies.
	removed, err = st.SweepSuspended(ctx, 0)
	if err != nil {
		t.Fatalf("SweepSuspended failed: %v", err)
	}
	if removed != 1 {
		t.Errorf("removed = %d, want 1", removed)
	}
	if _, err := st.Load(ctx, "c1"); err != nil {
		t.Error("completed thread should survive the sweep")
	}
}
