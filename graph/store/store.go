// Package store provides per-thread checkpoint persistence for workflow state.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested thread ID does not exist.
var ErrNotFound = errors.New("not found")

// Checkpoint is the durable snapshot of one conversation thread.
//
// One checkpoint exists per thread and is overwritten at every engine step
// boundary. When the thread is suspended at an interrupt node, PendingNode
// names it and Payload carries the value handed to the external caller;
// both are cleared on the next completed step.
type Checkpoint[S any] struct {
	// ThreadID identifies the conversation this checkpoint belongs to.
	ThreadID string `json:"thread_id"`

	// Step is the engine step number at checkpoint time, monotonically
	// increasing within a thread.
	Step int `json:"step"`

	// NodeID is the node that produced the checkpointed state.
	NodeID string `json:"node_id"`

	// State is the full accumulated state. Must be JSON-serializable.
	State S `json:"state"`

	// PendingNode, when non-empty, names the interrupt node awaiting an
	// external response.
	PendingNode string `json:"pending_node,omitempty"`

	// Payload is the suspend payload handed to the caller, JSON-encoded.
	// Nil unless PendingNode is set.
	Payload json.RawMessage `json:"payload,omitempty"`

	// UpdatedAt records when the checkpoint was last written.
	UpdatedAt time.Time `json:"updated_at"`
}

// Suspended reports whether the checkpoint represents a paused thread.
func (c Checkpoint[S]) Suspended() bool {
	return c.PendingNode != ""
}

// Store persists one checkpoint per conversation thread.
//
// Implementations must make Save an atomic overwrite so that a reader
// never observes a half-written checkpoint, and must be safe for use from
// multiple goroutines (independent threads run concurrently).
//
// Backends provided: in-memory (testing, single process), SQLite
// (single-node persistence), MySQL (shared persistence across processes,
// allowing a suspend in one process to be resumed from another).
//
// Type parameter S is the state type to persist.
type Store[S any] interface {
	// Save overwrites the checkpoint for cp.ThreadID.
	Save(ctx context.Context, cp Checkpoint[S]) error

	// Load retrieves the checkpoint for a thread.
	// Returns ErrNotFound if the thread has never been saved.
	Load(ctx context.Context, threadID string) (Checkpoint[S], error)

	// Delete removes a thread's checkpoint. Deleting an unknown thread is
	// not an error.
	Delete(ctx context.Context, threadID string) error

	// SweepSuspended deletes checkpoints of suspended threads whose last
	// update is older than olderThan, returning how many were removed.
	// This is the reclamation hook for conversations abandoned mid-suspend;
	// nothing calls it automatically.
	SweepSuspended(ctx context.Context, olderThan time.Duration) (int, error)
}
