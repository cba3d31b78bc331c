package maint

import (
	"testing"
)

func TestReduceAppendsAndLWW(t *testing.T) {
	s := NewState("fix the press")
	s = Reduce(s, State{
		CurrentAgent:   AgentPlanner,
		Intent:         IntentExecuteMaintenance,
		IterationCount: 1,
		Outputs:        []OutputRecord{{Agent: AgentPlanner, Content: "found tickets"}},
	})
	s = Reduce(s, State{
		CurrentAgent:   AgentAssignment,
		IterationCount: 2,
		WorkOrderID:    7,
		Outputs:        []OutputRecord{{Agent: AgentAssignment, Content: "created WO"}},
	})

	if s.CurrentAgent != AgentAssignment {
		t.Errorf("CurrentAgent = %q, want assignment", s.CurrentAgent)
	}
	if s.Intent != IntentExecuteMaintenance {
		t.Errorf("Intent = %q, want execute_maintenance", s.Intent)
	}
	if s.WorkOrderID != 7 {
		t.Errorf("WorkOrderID = %d, want 7", s.WorkOrderID)
	}
	if len(s.Outputs) != 2 || s.Outputs[0].Agent != AgentPlanner || s.Outputs[1].Agent != AgentAssignment {
		t.Errorf("Outputs = %+v, want two records in visit order", s.Outputs)
	}
}

func TestReduceIterationCountMonotone(t *testing.T) {
	s := Reduce(State{IterationCount: 5}, State{IterationCount: 3})
	if s.IterationCount != 5 {
		t.Errorf("IterationCount = %d, a delta must not lower it", s.IterationCount)
	}
	s = Reduce(s, State{IterationCount: 6})
	if s.IterationCount != 6 {
		t.Errorf("IterationCount = %d, want 6", s.IterationCount)
	}
}

func TestReduceNextAgentPointerPresence(t *testing.T) {
	s := Reduce(State{}, State{NextAgent: Next(AgentInventory)})
	if s.RoutingOverride() != AgentInventory {
		t.Fatalf("RoutingOverride = %q, want inventory", s.RoutingOverride())
	}

	// A delta without the field leaves the override alone.
	s = Reduce(s, State{WorkOrderID: 1})
	if s.RoutingOverride() != AgentInventory {
		t.Fatalf("RoutingOverride = %q after unrelated delta, want inventory", s.RoutingOverride())
	}

	// An explicit clear removes it.
	s = Reduce(s, State{NextAgent: ClearNext()})
	if s.RoutingOverride() != "" {
		t.Fatalf("RoutingOverride = %q after clear, want empty", s.RoutingOverride())
	}
}

func TestReduceHITLActionClear(t *testing.T) {
	s := Reduce(State{}, State{HITLAction: SetAction(ActionRequestParts)})
	if s.Action() != ActionRequestParts {
		t.Fatalf("Action = %q, want request_parts", s.Action())
	}
	s = Reduce(s, State{HITLAction: ClearAction()})
	if s.Action() != "" {
		t.Fatalf("Action = %q after clear, want empty", s.Action())
	}
}

func TestReducePartitionReplacement(t *testing.T) {
	s := Reduce(State{}, State{
		PartsChecked: true,
		Available:    []RequiredPart{{PartCode: "BRG-100"}},
		OutOfStock:   []RequiredPart{{PartCode: "SEAL-77"}},
	})

	// A later check with everything in stock must replace, not merge:
	// an empty non-nil slice means "checked, none missing".
	s = Reduce(s, State{
		Available:  []RequiredPart{{PartCode: "BRG-100"}, {PartCode: "SEAL-77"}},
		OutOfStock: []RequiredPart{},
	})
	if len(s.OutOfStock) != 0 {
		t.Errorf("OutOfStock = %+v, want empty after replacement", s.OutOfStock)
	}
	if len(s.Available) != 2 {
		t.Errorf("Available = %+v, want both parts", s.Available)
	}
}

func TestIterationsExhausted(t *testing.T) {
	tests := []struct {
		name  string
		state State
		want  bool
	}{
		{"fresh", NewState("x"), false},
		{"at cap", State{IterationCount: 15, MaxIterations: 15}, true},
		{"under custom cap", State{IterationCount: 2, MaxIterations: 3}, false},
		{"zero cap uses default", State{IterationCount: DefaultMaxIterations}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.state.IterationsExhausted(); got != tt.want {
				t.Errorf("IterationsExhausted() = %v, want %v", got, tt.want)
			}
		})
	}
}
