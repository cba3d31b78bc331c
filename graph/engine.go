package graph

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/factorops/maintgraph/graph/emit"
	"github.com/factorops/maintgraph/graph/store"
)

// Reducer merges a partial state update into the canonical state.
//
// The engine applies it after every node execution: prev is the canonical
// state, delta the node's partial update. Reducers are expected to be
// shallow last-write-wins per field, appending for log-shaped fields.
type Reducer[S any] func(prev, delta S) S

// ErrorHook converts a node failure into a partial state update.
//
// When configured, node-level failures are caught at the invocation boundary,
// passed to the hook, and the returned delta is merged into state; the engine
// then asks the failed node's router to continue from the partially updated
// state. Without a hook, the first node error halts the run.
type ErrorHook[S any] func(nodeID string, err error) S

// Engine orchestrates stateful workflow execution with per-thread
// checkpointing and a suspend/resume protocol for human-in-the-loop nodes.
//
// The Engine:
//   - Holds the node registry and the per-node router registry
//   - Executes one node at a time per thread: invoke, merge, persist, route
//   - Pauses at interrupt nodes, returning a Suspension to the caller
//   - Resumes a suspended thread with an externally supplied value
//   - Enforces MaxSteps, per-node timeouts and retry policies
//   - Emits observability events at every step boundary
//
// Registries are read-only after startup; any number of independent threads
// may execute concurrently, each with its own state.
//
// Type parameter S is the state type shared across the workflow.
type Engine[S any] struct {
	mu sync.RWMutex

	reducer    Reducer[S]
	nodes      map[string]Node[S]
	interrupts map[string]InterruptNode[S]
	routers    map[string]Router[S]
	policies   map[string]*NodePolicy
	startNode  string

	store   store.Store[S]
	emitter emit.Emitter
	metrics *Metrics
	onError ErrorHook[S]

	opts Options
}

// Options configures Engine execution behavior. Zero values are valid.
type Options struct {
	// MaxSteps limits execution steps per Run/Resume call to prevent
	// runaway loops. If 0, no engine-level limit is enforced (domain
	// routers typically carry their own iteration cap as well).
	MaxSteps int

	// DefaultNodeTimeout bounds each node invocation unless a NodePolicy
	// overrides it. If 0, nodes run without a deadline.
	DefaultNodeTimeout time.Duration
}

// Option is a functional option for configuring an Engine.
type Option func(*Options)

// WithMaxSteps limits workflow execution steps.
func WithMaxSteps(n int) Option {
	return func(o *Options) { o.MaxSteps = n }
}

// WithDefaultNodeTimeout sets the engine-wide node execution deadline.
func WithDefaultNodeTimeout(d time.Duration) Option {
	return func(o *Options) { o.DefaultNodeTimeout = d }
}

// New creates a new Engine.
//
// Parameters:
//   - reducer: merges partial state updates (required for Run)
//   - st: checkpoint persistence backend (required for Run)
//   - emitter: observability event receiver (nil disables emission)
//
// Example:
//
//	engine := graph.New(reducer, store.NewMemStore[State](), emit.NewLogEmitter(os.Stdout, false),
//	    graph.WithMaxSteps(40))
func New[S any](reducer Reducer[S], st store.Store[S], emitter emit.Emitter, opts ...Option) *Engine[S] {
	e := &Engine[S]{
		reducer:    reducer,
		nodes:      make(map[string]Node[S]),
		interrupts: make(map[string]InterruptNode[S]),
		routers:    make(map[string]Router[S]),
		policies:   make(map[string]*NodePolicy),
		store:      st,
		emitter:    emitter,
	}
	for _, opt := range opts {
		opt(&e.opts)
	}
	return e
}

// Add registers a node in the workflow graph. Node IDs must be unique.
func (e *Engine[S]) Add(nodeID string, node Node[S]) error {
	if nodeID == "" {
		return &EngineError{Message: "node ID cannot be empty"}
	}
	if node == nil {
		return &EngineError{Message: "node cannot be nil"}
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.registered(nodeID) {
		return &EngineError{Message: "duplicate node ID: " + nodeID, Code: "DUPLICATE_NODE"}
	}
	e.nodes[nodeID] = node
	return nil
}

// AddInterrupt registers an interrupt (suspend-capable) node.
func (e *Engine[S]) AddInterrupt(nodeID string, node InterruptNode[S]) error {
	if nodeID == "" {
		return &EngineError{Message: "node ID cannot be empty"}
	}
	if node == nil {
		return &EngineError{Message: "node cannot be nil"}
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.registered(nodeID) {
		return &EngineError{Message: "duplicate node ID: " + nodeID, Code: "DUPLICATE_NODE"}
	}
	e.interrupts[nodeID] = node
	return nil
}

// registered reports whether nodeID is taken. Caller holds e.mu.
func (e *Engine[S]) registered(nodeID string) bool {
	if _, ok := e.nodes[nodeID]; ok {
		return true
	}
	_, ok := e.interrupts[nodeID]
	return ok
}

// Route registers the router invoked after nodeID completes without an
// explicit NodeResult.Route.
func (e *Engine[S]) Route(nodeID string, router Router[S]) error {
	if nodeID == "" {
		return &EngineError{Message: "node ID cannot be empty"}
	}
	if router == nil {
		return &EngineError{Message: "router cannot be nil"}
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.routers[nodeID] = router
	return nil
}

// StartAt sets the entry point for workflow execution.
func (e *Engine[S]) StartAt(nodeID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.registered(nodeID) {
		return &EngineError{Message: "start node does not exist: " + nodeID, Code: "NODE_NOT_FOUND"}
	}
	e.startNode = nodeID
	return nil
}

// SetPolicy attaches a retry/timeout policy to a node.
func (e *Engine[S]) SetPolicy(nodeID string, policy *NodePolicy) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.policies[nodeID] = policy
}

// OnNodeError installs the hook that converts node failures into state.
func (e *Engine[S]) OnNodeError(hook ErrorHook[S]) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.onError = hook
}

// SetMetrics attaches a Prometheus metrics collector.
func (e *Engine[S]) SetMetrics(m *Metrics) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.metrics = m
}

// Run executes the workflow for a thread from the start node until a
// terminal marker, a suspension, or an error.
//
// Return values:
//   - (state, nil, nil): the workflow reached a terminal state
//   - (state, suspension, nil): an interrupt node paused the workflow;
//     call Resume with the same thread ID to continue
//   - (zero, nil, err): configuration error, exceeded limits, or an
//     unhandled node failure
func (e *Engine[S]) Run(ctx context.Context, threadID string, initial S) (S, *Suspension[S], error) {
	var zero S

	if e.reducer == nil {
		return zero, nil, &EngineError{Message: "reducer is required", Code: "MISSING_REDUCER"}
	}
	if e.store == nil {
		return zero, nil, &EngineError{Message: "store is required", Code: "MISSING_STORE"}
	}

	e.mu.RLock()
	start := e.startNode
	e.mu.RUnlock()

	if start == "" {
		return zero, nil, &EngineError{Message: "start node not set (call StartAt before Run)", Code: "NO_START_NODE"}
	}

	return e.loop(ctx, threadID, initial, start, 0)
}

// Resume continues a suspended thread by delivering the external response to
// the pending interrupt node.
//
// The pending node's HandleResponse is invoked with the checkpointed state
// and the resume value exactly as supplied; its result is then merged and
// routed like any ordinary node result. The thread may suspend again (from
// the same node or a different one) before reaching a terminal state.
func (e *Engine[S]) Resume(ctx context.Context, threadID string, resume any) (S, *Suspension[S], error) {
	var zero S

	cp, err := e.store.Load(ctx, threadID)
	if err != nil {
		return zero, nil, &EngineError{Message: "cannot resume thread " + threadID + ": " + err.Error(), Code: "THREAD_NOT_FOUND"}
	}
	if !cp.Suspended() {
		return zero, nil, ErrNotSuspended
	}

	e.mu.RLock()
	node, ok := e.interrupts[cp.PendingNode]
	e.mu.RUnlock()
	if !ok {
		return zero, nil, &EngineError{Message: "pending node not registered: " + cp.PendingNode, Code: "NODE_NOT_FOUND"}
	}

	e.emit(emit.Event{ThreadID: threadID, Step: cp.Step, NodeID: cp.PendingNode, Msg: emit.MsgResumed})
	if e.metrics != nil {
		e.metrics.resumes.Inc()
	}

	result := node.HandleResponse(ctx, cp.State, resume)

	state, next, done, err := e.advance(ctx, threadID, cp.PendingNode, cp.Step, result, cp.State)
	if err != nil {
		return zero, nil, err
	}
	if done {
		e.emit(emit.Event{ThreadID: threadID, Step: cp.Step, NodeID: cp.PendingNode, Msg: emit.MsgTerminal})
		return state, nil, nil
	}

	return e.loop(ctx, threadID, state, next, cp.Step)
}

// Suspended returns the pending suspension for a thread, or nil when the
// thread is not suspended.
func (e *Engine[S]) Suspended(ctx context.Context, threadID string) (*Suspension[S], error) {
	cp, err := e.store.Load(ctx, threadID)
	if err != nil {
		if err == store.ErrNotFound {
			return nil, nil
		}
		return nil, err
	}
	if !cp.Suspended() {
		return nil, nil
	}

	var payload any
	if cp.Payload != nil {
		if err := json.Unmarshal(cp.Payload, &payload); err != nil {
			return nil, &EngineError{Message: "corrupt suspend payload: " + err.Error(), Code: "BAD_PAYLOAD"}
		}
	}

	return &Suspension[S]{
		ThreadID: threadID,
		NodeID:   cp.PendingNode,
		Payload:  payload,
		State:    cp.State,
		Step:     cp.Step,
	}, nil
}

// loop is the core execution loop shared by Run and Resume.
func (e *Engine[S]) loop(ctx context.Context, threadID string, state S, current string, step int) (S, *Suspension[S], error) {
	var zero S

	for {
		step++

		if e.opts.MaxSteps > 0 && step > e.opts.MaxSteps {
			return zero, nil, &EngineError{Message: "workflow exceeded MaxSteps limit", Code: "MAX_STEPS_EXCEEDED"}
		}

		select {
		case <-ctx.Done():
			return zero, nil, ctx.Err()
		default:
		}

		e.mu.RLock()
		interrupt, isInterrupt := e.interrupts[current]
		node, isNode := e.nodes[current]
		policy := e.policies[current]
		e.mu.RUnlock()

		if isInterrupt {
			return e.suspend(ctx, threadID, current, step, state, interrupt)
		}
		if !isNode {
			return zero, nil, &EngineError{Message: "node not found during execution: " + current, Code: "NODE_NOT_FOUND"}
		}

		started := time.Now()
		result := executeWithRetry(ctx, node, current, state, policy, e.opts.DefaultNodeTimeout)
		if e.metrics != nil {
			e.metrics.observeNode(current, time.Since(started), result.Err)
		}

		newState, next, done, err := e.advance(ctx, threadID, current, step, result, state)
		if err != nil {
			return zero, nil, err
		}
		state = newState
		if done {
			e.emit(emit.Event{ThreadID: threadID, Step: step, NodeID: current, Msg: emit.MsgTerminal})
			return state, nil, nil
		}
		current = next
	}
}

// suspend checkpoints the thread at an interrupt node and hands the payload
// back to the caller.
func (e *Engine[S]) suspend(ctx context.Context, threadID, nodeID string, step int, state S, node InterruptNode[S]) (S, *Suspension[S], error) {
	var zero S

	payload, err := node.BuildRequest(ctx, state)
	if err != nil {
		return zero, nil, &NodeError{Message: "build suspend request: " + err.Error(), Code: "SUSPEND_FAILED", NodeID: nodeID, Cause: err}
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return zero, nil, &NodeError{Message: "marshal suspend payload: " + err.Error(), Code: "SUSPEND_FAILED", NodeID: nodeID, Cause: err}
	}

	cp := store.Checkpoint[S]{
		ThreadID:    threadID,
		Step:        step,
		NodeID:      nodeID,
		State:       state,
		PendingNode: nodeID,
		Payload:     raw,
	}
	if err := e.store.Save(ctx, cp); err != nil {
		return zero, nil, &EngineError{Message: "failed to save suspension: " + err.Error(), Code: "STORE_ERROR"}
	}

	e.emit(emit.Event{
		ThreadID: threadID,
		Step:     step,
		NodeID:   nodeID,
		Msg:      emit.MsgSuspended,
		Meta:     map[string]interface{}{"pending_node": nodeID},
	})
	if e.metrics != nil {
		e.metrics.suspensions.Inc()
	}

	return state, &Suspension[S]{
		ThreadID: threadID,
		NodeID:   nodeID,
		Payload:  payload,
		State:    state,
		Step:     step,
	}, nil
}

// advance merges a node result into state, persists the step, and resolves
// the next node. Returns the updated state, the next node ID, whether the
// workflow is done, and any fatal error.
func (e *Engine[S]) advance(ctx context.Context, threadID, nodeID string, step int, result NodeResult[S], state S) (S, string, bool, error) {
	var zero S

	failed := result.Err != nil
	if failed {
		e.emit(emit.Event{
			ThreadID: threadID,
			Step:     step,
			NodeID:   nodeID,
			Msg:      emit.MsgNodeError,
			Meta:     map[string]interface{}{"error": result.Err.Error()},
		})

		e.mu.RLock()
		hook := e.onError
		e.mu.RUnlock()
		if hook == nil {
			return zero, "", false, result.Err
		}
		state = e.reducer(state, hook(nodeID, result.Err))
	} else {
		state = e.reducer(state, result.Delta)
	}

	cp := store.Checkpoint[S]{
		ThreadID: threadID,
		Step:     step,
		NodeID:   nodeID,
		State:    state,
	}
	if err := e.store.Save(ctx, cp); err != nil {
		return zero, "", false, &EngineError{Message: "failed to save step: " + err.Error(), Code: "STORE_ERROR"}
	}

	if !failed {
		e.emit(emit.Event{ThreadID: threadID, Step: step, NodeID: nodeID, Msg: emit.MsgNodeCompleted})
	}

	// A non-recoverable failure ends the thread after its error record is
	// merged; the final checkpoint carries the degraded state.
	var nodeErr *NodeError
	if failed && errors.As(result.Err, &nodeErr) && !nodeErr.Recoverable {
		return state, "", true, nil
	}

	// Explicit routing from a successful node wins over the router.
	if !failed {
		if result.Route.Terminal {
			return state, "", true, nil
		}
		if result.Route.To != "" {
			return state, result.Route.To, false, nil
		}
	}

	e.mu.RLock()
	router := e.routers[nodeID]
	e.mu.RUnlock()
	if router == nil {
		return zero, "", false, &EngineError{Message: "no router registered for node: " + nodeID, Code: "NO_ROUTE"}
	}

	next := router(state)
	switch next {
	case End:
		return state, "", true, nil
	case "":
		return zero, "", false, &EngineError{Message: "no valid route from node: " + nodeID, Code: "NO_ROUTE"}
	default:
		return state, next, false, nil
	}
}

func (e *Engine[S]) emit(event emit.Event) {
	if e.emitter != nil {
		e.emitter.Emit(event)
	}
}
