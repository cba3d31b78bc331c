// Package graph provides the core graph execution engine for maintgraph.
package graph

// End is the terminal marker a Router returns to stop workflow execution.
const End = "__end__"

// Router decides the next node after a given node completes.
//
// One router is registered per predecessor node. Routers must be pure
// functions of state: no side effects, no I/O, deterministic given the same
// state. The engine calls the current node's router after every execution
// step that did not carry an explicit NodeResult.Route.
//
// Routers return a node ID, or End to terminate the workflow, or "" when no
// route applies (which the engine treats as a configuration error).
//
// Domain routers are expected to apply a uniform precedence:
//  1. global iteration-limit check (always End once the cap is reached)
//  2. an explicit next-node field set by the node
//  3. heuristic fallbacks on domain signals
//
// Type parameter S is the state type to evaluate.
type Router[S any] func(state S) string
