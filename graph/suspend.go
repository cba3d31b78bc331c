package graph

import "context"

// InterruptNode is a node that pauses the workflow for external input.
//
// Instead of a single opaque function with an internal pause point, an
// interrupt node is explicitly two-phase and the engine owns the pause:
//
//  1. BuildRequest produces the payload handed to the external caller
//     (a work-order card for a technician, an approval request for a
//     supervisor). The engine persists a checkpoint recording that this
//     node is pending, and returns a Suspension instead of continuing.
//  2. HandleResponse is invoked on a later Resume call with the externally
//     supplied value. It completes the visit, producing the node's normal
//     partial state update, after which the engine resumes the ordinary
//     merge/route loop.
//
// An interrupt node may suspend again on a later visit in the same thread
// (cross-call resumption); it is never re-entered mid-call. At most one node
// is pending per thread at a time.
type InterruptNode[S any] interface {
	// BuildRequest assembles the payload handed to the external caller.
	// The payload must be JSON-serializable for checkpoint persistence.
	BuildRequest(ctx context.Context, state S) (any, error)

	// HandleResponse resumes the visit with the externally supplied value
	// and produces the node's normal result. The engine introduces no
	// transformation of the resume value.
	HandleResponse(ctx context.Context, state S, resume any) NodeResult[S]
}

// Suspension describes a paused workflow awaiting external input.
//
// Returned by Engine.Run and Engine.Resume in place of a final state when an
// interrupt node pauses. The caller realizes the pause however it wants
// (chat UI action buttons, an approval screen, a queue) and later calls
// Engine.Resume with the same thread ID and the human's response.
type Suspension[S any] struct {
	// ThreadID identifies the paused conversation.
	ThreadID string

	// NodeID is the interrupt node awaiting a response.
	NodeID string

	// Payload is the value produced by BuildRequest.
	Payload any

	// State is the full state snapshot at the suspend point.
	State S

	// Step is the engine step at which the suspension occurred.
	Step int
}
