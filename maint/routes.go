package maint

import "github.com/factorops/maintgraph/graph"

// route applies the uniform precedence every router in the conversation
// graph follows: the iteration guard first, then an explicit next-agent
// override, then the node's own domain signals. The guard outranks
// everything, including an explicit override.
func route(s State, domain func(State) string) string {
	if s.IterationsExhausted() {
		return graph.End
	}
	if next := s.RoutingOverride(); next != "" {
		if next == AgentEnd {
			return graph.End
		}
		return string(next)
	}
	return domain(s)
}

// routeFromPlanner dispatches on the classified intent when the planner set
// no explicit override. Unrecognized intents end the turn.
func routeFromPlanner(s State) string {
	return route(s, func(s State) string {
		switch s.Intent {
		case IntentExecuteMaintenance, IntentExecuteSingleTicket:
			return string(AgentAssignment)
		case IntentInventoryQuery:
			return string(AgentInventory)
		case IntentEmailReport:
			return string(AgentEmail)
		default:
			return graph.End
		}
	})
}

// routeFromAssignment continues to inventory once a work order exists,
// otherwise returns to the planner to report why assignment stopped.
func routeFromAssignment(s State) string {
	return route(s, func(s State) string {
		if s.WorkOrderID != 0 {
			return string(AgentInventory)
		}
		return string(AgentPlanner)
	})
}

// routeFromInventory escalates shortages to procurement, hands complete
// parts sets to the technician, and sends standalone queries back to the
// planner.
func routeFromInventory(s State) string {
	return route(s, func(s State) string {
		if len(s.OutOfStock) > 0 {
			return string(AgentProcurement)
		}
		if s.PartsChecked {
			return string(AgentTechnician)
		}
		return string(AgentPlanner)
	})
}

func routeFromProcurement(s State) string {
	return route(s, func(s State) string {
		return string(AgentPlanner)
	})
}

// routeFromTechnician dispatches on the interpreted HITL action.
func routeFromTechnician(s State) string {
	return route(s, func(s State) string {
		switch s.Action() {
		case ActionRequestParts:
			return string(AgentInventory)
		case ActionReschedule:
			return string(AgentAssignment)
		default:
			return string(AgentPlanner)
		}
	})
}

func routeFromEmail(s State) string {
	return route(s, func(s State) string {
		return string(AgentPlanner)
	})
}
