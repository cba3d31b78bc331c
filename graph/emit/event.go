// Package emit provides observability events for workflow execution.
package emit

// Standard event messages emitted by the engine.
const (
	MsgNodeCompleted = "node_completed"
	MsgNodeError     = "node_error"
	MsgSuspended     = "suspended"
	MsgResumed       = "resumed"
	MsgTerminal      = "terminal"
)

// Event represents an observability event emitted during workflow execution.
//
// Events provide insight into workflow behavior: node execution, routing,
// suspensions, resumes, errors. They are delivered to an Emitter, which can
// log them, forward them to OpenTelemetry, or buffer them for inspection.
type Event struct {
	// ThreadID identifies the conversation that emitted this event.
	ThreadID string

	// Step is the engine step number (1-indexed). Zero for thread-level
	// events.
	Step int

	// NodeID identifies which node this event concerns. Empty for
	// thread-level events.
	NodeID string

	// Msg is a short machine-readable description, typically one of the
	// Msg* constants.
	Msg string

	// Meta contains additional structured data. Common keys:
	//   - "error": error text for node_error events
	//   - "next": routing decision
	//   - "pending_node": suspended interrupt node
	Meta map[string]interface{}
}
