package graph

import "context"

// Node represents a processing unit in the workflow graph.
// It receives state of type S, performs computation, and returns a NodeResult.
//
// Each node can:
//   - Read any field of the current state
//   - Perform side effects (LLM calls, database writes, emitting events)
//   - Return a partial state update via Delta
//   - Override routing via Route
//   - Report failures via Err
//
// A node is invoked at most once per visit, but may be visited multiple
// times across the life of a thread (for example an inventory node revisited
// when a technician requests more parts later).
//
// Type parameter S is the state type shared across the workflow.
type Node[S any] interface {
	// Run executes the node's logic with the given context and state.
	Run(ctx context.Context, state S) NodeResult[S]
}

// NodeResult represents the output of a node execution.
type NodeResult[S any] struct {
	// Delta is the partial state update produced by this node.
	// It is merged with the current state using the configured reducer.
	Delta S

	// Route optionally overrides router-based flow control.
	// Use Stop() for terminal nodes or Goto(id) for explicit routing.
	// The zero value defers to the node's registered Router.
	Route Next

	// Err contains any error that occurred during node execution.
	// The engine converts node errors into state via the OnNodeError hook
	// when one is configured; otherwise the error halts the run.
	Err error
}

// Next specifies the next step in workflow execution after a node completes.
//
// Three modes:
//   - Zero value: defer to the node's registered Router
//   - Terminal: stop execution (Stop())
//   - Explicit: go to a specific node (Goto(id))
type Next struct {
	// To specifies the next node to execute. Mutually exclusive with Terminal.
	To string

	// Terminal indicates workflow execution should stop.
	Terminal bool
}

// Stop returns a Next that terminates workflow execution.
func Stop() Next {
	return Next{Terminal: true}
}

// Goto returns a Next that routes to the specified node.
func Goto(nodeID string) Next {
	return Next{To: nodeID}
}

// NodeFunc is a function adapter that implements the Node interface.
//
// Example:
//
//	check := graph.NodeFunc[State](func(ctx context.Context, s State) graph.NodeResult[State] {
//	    return graph.NodeResult[State]{Delta: State{Checked: true}}
//	})
type NodeFunc[S any] func(ctx context.Context, state S) NodeResult[S]

// Run implements the Node interface for NodeFunc.
func (f NodeFunc[S]) Run(ctx context.Context, state S) NodeResult[S] {
	return f(ctx, state)
}

// NodeError represents an error that occurred during node execution.
type NodeError struct {
	// Message is the human-readable error description.
	Message string

	// Code is a machine-readable error code for programmatic handling.
	Code string

	// NodeID identifies which node produced this error.
	NodeID string

	// Recoverable marks errors the conversation can survive. Non-recoverable
	// errors mark the thread degraded and end it.
	Recoverable bool

	// Attempts is the number of executions performed before the error was
	// surfaced, filled in by the engine's retry loop. 1 means no retries.
	Attempts int

	// Cause is the underlying error, if any.
	Cause error
}

// Error implements the error interface.
func (e *NodeError) Error() string {
	if e.NodeID != "" {
		return "node " + e.NodeID + ": " + e.Message
	}
	return e.Message
}

// Unwrap returns the underlying cause error for error wrapping support.
func (e *NodeError) Unwrap() error {
	return e.Cause
}
