package maint

import (
	"errors"
	"fmt"
	"time"

	"github.com/factorops/maintgraph/graph"
	"github.com/factorops/maintgraph/graph/emit"
	"github.com/factorops/maintgraph/graph/model"
	"github.com/factorops/maintgraph/graph/store"
)

// NewGraph assembles the conversation engine: six agent nodes, their
// routers, the error hook and retry policy for model-backed nodes. The
// returned engine is safe for concurrent threads.
func NewGraph(deps Deps, st store.Store[State], emitter emit.Emitter, opts ...graph.Option) (*graph.Engine[State], error) {
	eng := graph.New(Reduce, st, emitter, opts...)

	nodes := map[Agent]graph.Node[State]{
		AgentPlanner:     &PlannerNode{Deps: deps},
		AgentAssignment:  &AssignmentNode{Deps: deps},
		AgentInventory:   &InventoryNode{Deps: deps},
		AgentProcurement: &ProcurementNode{Deps: deps},
		AgentEmail:       &EmailNode{Deps: deps},
	}
	for id, n := range nodes {
		if err := eng.Add(string(id), n); err != nil {
			return nil, err
		}
	}
	if err := eng.AddInterrupt(string(AgentTechnician), &TechnicianNode{Deps: deps}); err != nil {
		return nil, err
	}

	routers := map[Agent]graph.Router[State]{
		AgentPlanner:     routeFromPlanner,
		AgentAssignment:  routeFromAssignment,
		AgentInventory:   routeFromInventory,
		AgentProcurement: routeFromProcurement,
		AgentTechnician:  routeFromTechnician,
		AgentEmail:       routeFromEmail,
	}
	for id, r := range routers {
		if err := eng.Route(string(id), r); err != nil {
			return nil, err
		}
	}
	if err := eng.StartAt(string(AgentPlanner)); err != nil {
		return nil, err
	}

	// Transient model failures retry before the error hook sees them.
	retry := &graph.NodePolicy{
		RetryPolicy: &graph.RetryPolicy{
			MaxAttempts: 3,
			BaseDelay:   500 * time.Millisecond,
			MaxDelay:    5 * time.Second,
			Retryable:   model.Retryable,
		},
	}
	for id := range routers {
		eng.SetPolicy(string(id), retry)
	}

	eng.OnNodeError(NodeErrorHook(deps))
	return eng, nil
}

// NodeErrorHook converts a failed node visit into an error record so the
// failed node's own router still runs and the conversation stays resumable.
func NodeErrorHook(deps Deps) graph.ErrorHook[State] {
	return func(nodeID string, err error) State {
		rec := ErrorRecord{
			Agent:       nodeID,
			Kind:        "node_failure",
			Message:     err.Error(),
			Time:        deps.now(),
			Recoverable: true,
		}
		var ne *graph.NodeError
		if errors.As(err, &ne) {
			rec.Kind = ne.Code
			rec.Recoverable = ne.Recoverable
			if ne.Attempts > 1 {
				rec.Retries = ne.Attempts - 1
			}
		}
		return State{
			// The override that routed here is spent; leaving it set would
			// send the failed node's router straight back into the failure.
			NextAgent: ClearNext(),
			Errors:    []ErrorRecord{rec},
			Outputs: []OutputRecord{{
				Agent:   Agent(nodeID),
				Content: fmt.Sprintf("Step failed and was skipped: %s", err.Error()),
			}},
		}
	}
}
