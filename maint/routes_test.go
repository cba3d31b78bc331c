package maint

import (
	"testing"

	"github.com/factorops/maintgraph/graph"
)

func TestRoutePrecedenceOverrideBeatsDomain(t *testing.T) {
	// The planner classified an execution intent, but a node set an
	// explicit override. The override wins.
	s := State{
		Intent:        IntentExecuteMaintenance,
		NextAgent:     Next(AgentEmail),
		MaxIterations: DefaultMaxIterations,
	}
	if got := routeFromPlanner(s); got != string(AgentEmail) {
		t.Errorf("routeFromPlanner = %q, want email_report", got)
	}
}

func TestRoutePrecedenceCapBeatsOverride(t *testing.T) {
	// The iteration guard outranks even an explicit override, in every
	// router.
	s := State{
		Intent:         IntentExecuteMaintenance,
		NextAgent:      Next(AgentAssignment),
		IterationCount: DefaultMaxIterations,
		MaxIterations:  DefaultMaxIterations,
		OutOfStock:     []RequiredPart{{PartCode: "X"}},
		PartsChecked:   true,
	}
	routers := map[string]graph.Router[State]{
		"planner":     routeFromPlanner,
		"assignment":  routeFromAssignment,
		"inventory":   routeFromInventory,
		"procurement": routeFromProcurement,
		"technician":  routeFromTechnician,
		"email":       routeFromEmail,
	}
	for name, r := range routers {
		if got := r(s); got != graph.End {
			t.Errorf("%s router = %q at iteration cap, want End", name, got)
		}
	}
}

func TestRouteFromPlannerIntents(t *testing.T) {
	tests := []struct {
		intent Intent
		want   string
	}{
		{IntentExecuteMaintenance, string(AgentAssignment)},
		{IntentExecuteSingleTicket, string(AgentAssignment)},
		{IntentInventoryQuery, string(AgentInventory)},
		{IntentEmailReport, string(AgentEmail)},
		{IntentGeneralQA, graph.End},
		{"", graph.End},
	}
	for _, tt := range tests {
		s := State{Intent: tt.intent, MaxIterations: DefaultMaxIterations}
		if got := routeFromPlanner(s); got != tt.want {
			t.Errorf("routeFromPlanner(intent=%q) = %q, want %q", tt.intent, got, tt.want)
		}
	}
}

func TestRouteFromInventoryDomainSignals(t *testing.T) {
	base := State{MaxIterations: DefaultMaxIterations}

	shortage := base
	shortage.PartsChecked = true
	shortage.OutOfStock = []RequiredPart{{PartCode: "SEAL-77"}}
	if got := routeFromInventory(shortage); got != string(AgentProcurement) {
		t.Errorf("shortage routes to %q, want procurement", got)
	}

	stocked := base
	stocked.PartsChecked = true
	stocked.OutOfStock = []RequiredPart{}
	if got := routeFromInventory(stocked); got != string(AgentTechnician) {
		t.Errorf("fully stocked routes to %q, want technician", got)
	}

	query := base
	if got := routeFromInventory(query); got != string(AgentPlanner) {
		t.Errorf("standalone query routes to %q, want planner", got)
	}
}

func TestRouteFromTechnicianActions(t *testing.T) {
	tests := []struct {
		action string
		want   string
	}{
		{ActionRequestParts, string(AgentInventory)},
		{ActionReschedule, string(AgentAssignment)},
		{ActionConfirmCompletion, string(AgentPlanner)},
		{ActionAddNotes, string(AgentPlanner)},
		{"", string(AgentPlanner)},
	}
	for _, tt := range tests {
		s := State{MaxIterations: DefaultMaxIterations}
		if tt.action != "" {
			s.HITLAction = SetAction(tt.action)
		}
		if got := routeFromTechnician(s); got != tt.want {
			t.Errorf("routeFromTechnician(action=%q) = %q, want %q", tt.action, got, tt.want)
		}
	}
}
