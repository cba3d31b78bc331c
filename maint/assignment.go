package maint

import (
	"context"
	"fmt"
	"strings"

	"github.com/factorops/maintgraph/graph"
	"github.com/factorops/maintgraph/graph/model"
	"github.com/factorops/maintgraph/maint/repo"
)

const assignmentSystemPrompt = `You are David, the maintenance assignment
coordinator. You write short, numbered work procedures a technician can follow
on the shop floor. Be specific to the machine and the fault described.`

// AssignmentNode turns a ticket into a staffed work order: it resolves the
// ticket and machine, pulls the bill of materials, picks an available
// technician, drafts procedures and persists the work order. On re-entry
// after a technician reschedule it parks the work order instead.
type AssignmentNode struct {
	Deps Deps
}

func (n *AssignmentNode) Run(ctx context.Context, s State) graph.NodeResult[State] {
	if s.Action() == ActionReschedule {
		return n.reschedule(ctx, s)
	}
	return n.assign(ctx, s)
}

func (n *AssignmentNode) assign(ctx context.Context, s State) graph.NodeResult[State] {
	delta := State{
		CurrentAgent:   AgentAssignment,
		IterationCount: s.IterationCount + 1,
	}

	ticketID := s.CurrentTicketID
	if ticketID == 0 && len(s.TicketIDs) > 0 {
		ticketID = s.TicketIDs[0]
	}
	if ticketID == 0 {
		delta.Outputs = []OutputRecord{{Agent: AgentAssignment, Content: "No ticket was selected for assignment."}}
		delta.NextAgent = Next(AgentPlanner)
		return graph.NodeResult[State]{Delta: delta}
	}

	ticket, err := n.Deps.Store.TicketByID(ctx, ticketID)
	if err != nil {
		return n.fail(err)
	}
	if ticket == nil {
		delta.Outputs = []OutputRecord{{
			Agent:   AgentAssignment,
			Content: fmt.Sprintf("Ticket %d does not exist, sending this back to planning.", ticketID),
		}}
		delta.NextAgent = Next(AgentPlanner)
		return graph.NodeResult[State]{Delta: delta}
	}

	machine, err := n.Deps.Store.MachineByID(ctx, ticket.MachineID)
	if err != nil {
		return n.fail(err)
	}
	if machine == nil {
		delta.Outputs = []OutputRecord{{
			Agent:   AgentAssignment,
			Content: fmt.Sprintf("Ticket %s references machine %d which is not in the register.", ticket.Number, ticket.MachineID),
		}}
		delta.NextAgent = Next(AgentPlanner)
		return graph.NodeResult[State]{Delta: delta}
	}

	bom, err := n.Deps.Store.BOMForMachine(ctx, machine.ID)
	if err != nil {
		return n.fail(err)
	}
	parts := make([]RequiredPart, 0, len(bom))
	for _, item := range bom {
		parts = append(parts, RequiredPart{
			PartCode: item.PartCode,
			Name:     item.PartName,
			Required: item.Quantity,
			OnHand:   item.OnHand,
			Location: item.BinLocation,
			InBOM:    true,
		})
	}

	techs, err := n.Deps.Store.AvailableTechnicians(ctx)
	if err != nil {
		return n.fail(err)
	}
	if len(techs) == 0 {
		delta.Outputs = []OutputRecord{{
			Agent:   AgentAssignment,
			Content: fmt.Sprintf("No technician is available for ticket %s right now.", ticket.Number),
		}}
		delta.NextAgent = Next(AgentPlanner)
		return graph.NodeResult[State]{Delta: delta}
	}
	// First available technician gets the job; the availability query
	// already filtered on is_available.
	tech := techs[0]

	procedures, err := n.draftProcedures(ctx, ticket, machine, parts)
	if err != nil {
		return n.fail(err)
	}

	number := fmt.Sprintf("WO-%s-%d", n.Deps.now().Format("20060102"), ticket.ID)
	woID, err := n.Deps.Store.CreateWorkOrder(ctx, repo.WorkOrder{
		Number:        number,
		TicketID:      ticket.ID,
		TechnicianID:  tech.ID,
		Description:   ticket.Title,
		Procedures:    procedures,
		Status:        repo.WorkOrderAssigned,
		ScheduledDate: n.Deps.today(),
	})
	if err != nil {
		return n.fail(err)
	}
	if len(parts) > 0 {
		woParts := make([]repo.WorkOrderPart, 0, len(parts))
		for _, p := range parts {
			woParts = append(woParts, repo.WorkOrderPart{PartCode: p.PartCode, Quantity: p.Required, InBOM: true})
		}
		if err := n.Deps.Store.AddWorkOrderParts(ctx, woID, woParts); err != nil {
			return n.fail(err)
		}
	}
	if err := n.Deps.Store.UpdateTicketStatus(ctx, ticket.ID, repo.TicketAssigned); err != nil {
		return n.fail(err)
	}

	delta.CurrentTicketID = ticket.ID
	delta.MachineID = machine.ID
	delta.WorkOrderID = woID
	delta.WorkOrderNumber = number
	delta.TechnicianID = tech.ID
	delta.TechnicianName = tech.Name
	delta.RequiredParts = parts
	delta.NextAgent = Next(AgentInventory)
	delta.Outputs = []OutputRecord{{
		Agent: AgentAssignment,
		Content: fmt.Sprintf("Created work order %s for ticket %s (%s), assigned to %s with %d required part(s). Sending the parts list to inventory.",
			number, ticket.Number, machine.Name, tech.Name, len(parts)),
	}}
	return graph.NodeResult[State]{Delta: delta}
}

// reschedule parks the work order after the technician asked to defer it.
func (n *AssignmentNode) reschedule(ctx context.Context, s State) graph.NodeResult[State] {
	delta := State{
		CurrentAgent:   AgentAssignment,
		IterationCount: s.IterationCount + 1,
		HITLAction:     ClearAction(),
		NextAgent:      Next(AgentPlanner),
	}

	note := "Rescheduled at technician request."
	if s.HITLResponse != nil && s.HITLResponse.Text != "" {
		note = "Rescheduled at technician request: " + s.HITLResponse.Text
	}
	if s.WorkOrderID != 0 {
		if err := n.Deps.Store.UpdateWorkOrderStatus(ctx, s.WorkOrderID, repo.WorkOrderWaitingParts, note); err != nil {
			return n.fail(err)
		}
	}

	delta.Outputs = []OutputRecord{{
		Agent:   AgentAssignment,
		Content: fmt.Sprintf("Work order %s has been put on hold. %s", s.WorkOrderNumber, note),
	}}
	return graph.NodeResult[State]{Delta: delta}
}

func (n *AssignmentNode) draftProcedures(ctx context.Context, t *repo.Ticket, m *repo.Machine, parts []RequiredPart) (string, error) {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Ticket %s (%s, priority %s): %s\n", t.Number, t.Type, t.Priority, t.Title)
	fmt.Fprintf(&sb, "Machine: %s (%s) at %s, criticality %s\n", m.Name, m.Code, m.Location, m.Criticality)
	if len(parts) > 0 {
		sb.WriteString("Parts on the bill of materials:\n")
		for _, p := range parts {
			fmt.Fprintf(&sb, "- %s %s x%.0f\n", p.PartCode, p.Name, p.Required)
		}
	}
	sb.WriteString("\nWrite the work procedure.")

	out, err := n.Deps.Model.Chat(ctx, []model.Message{
		{Role: model.RoleSystem, Content: assignmentSystemPrompt},
		{Role: model.RoleUser, Content: sb.String()},
	})
	if err != nil {
		return "", err
	}
	return out.Text, nil
}

func (n *AssignmentNode) fail(err error) graph.NodeResult[State] {
	return graph.NodeResult[State]{Err: &graph.NodeError{
		Message:     err.Error(),
		Code:        "ASSIGNMENT_FAILED",
		NodeID:      string(AgentAssignment),
		Recoverable: true,
		Cause:       err,
	}}
}
