package emit

// Emitter receives observability events from workflow execution.
//
// Implementations should be:
//   - Non-blocking: avoid slowing down workflow execution
//   - Thread-safe: independent conversations emit concurrently
//   - Resilient: a failing backend must not crash the workflow
//
// Emit must not panic; internal errors should be swallowed or logged by the
// implementation.
type Emitter interface {
	// Emit sends an observability event to the configured backend.
	Emit(event Event)
}
