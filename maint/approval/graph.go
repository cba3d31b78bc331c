package approval

import (
	"github.com/factorops/maintgraph/graph"
	"github.com/factorops/maintgraph/graph/emit"
	"github.com/factorops/maintgraph/graph/store"
)

// NewPipeline wires the fixed approval graph. The only branch is the
// inventory skip: a work order with no spare requirements goes straight to
// pre-approval.
func NewPipeline(deps Deps, st store.Store[State], emitter emit.Emitter, opts ...graph.Option) (*graph.Engine[State], error) {
	eng := graph.New(Reduce, st, emitter, opts...)

	nodes := map[string]graph.Node[State]{
		NodeOperator:    &OperatorNode{Deps: deps},
		NodeSupervisor:  &SupervisorNode{Deps: deps},
		NodeTechnician:  &TechnicianNode{Deps: deps},
		NodeInventory:   &InventoryNode{Deps: deps},
		NodePreApproval: &PreApprovalNode{Deps: deps},
		NodeFinal:       &FinalNode{Deps: deps},
	}
	for id, n := range nodes {
		if err := eng.Add(id, n); err != nil {
			return nil, err
		}
	}
	if err := eng.AddInterrupt(NodeHumanApproval, &HumanApprovalNode{Deps: deps}); err != nil {
		return nil, err
	}

	routes := map[string]graph.Router[State]{
		NodeOperator:   fixed(NodeSupervisor),
		NodeSupervisor: fixed(NodeTechnician),
		NodeTechnician: func(s State) string {
			if len(s.RequiredParts) == 0 {
				return NodePreApproval
			}
			return NodeInventory
		},
		NodeInventory:     fixed(NodePreApproval),
		NodePreApproval:   fixed(NodeHumanApproval),
		NodeHumanApproval: fixed(NodeFinal),
	}
	for id, r := range routes {
		if err := eng.Route(id, r); err != nil {
			return nil, err
		}
	}
	if err := eng.StartAt(NodeOperator); err != nil {
		return nil, err
	}
	return eng, nil
}

func fixed(next string) graph.Router[State] {
	return func(State) string { return next }
}
