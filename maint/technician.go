package maint

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/factorops/maintgraph/graph"
	"github.com/factorops/maintgraph/graph/model"
	"github.com/factorops/maintgraph/maint/repo"
)

// WorkOrderCard is the payload handed to the technician at the suspend
// point: everything needed to act on the job from a phone or terminal.
type WorkOrderCard struct {
	WorkOrderID     int64          `json:"work_order_id"`
	WorkOrderNumber string         `json:"work_order_number"`
	TechnicianName  string         `json:"technician_name"`
	Available       []RequiredPart `json:"available"`
	OutOfStock      []RequiredPart `json:"out_of_stock"`
	Prompt          string         `json:"prompt"`
	Actions         []string       `json:"actions"`
}

// TechnicianNode is the human-in-the-loop gate. BuildRequest presents the
// work order; HandleResponse interprets the technician's reply, falling back
// to an LLM classification when the reply is free text without an action.
type TechnicianNode struct {
	Deps Deps
}

func (n *TechnicianNode) BuildRequest(ctx context.Context, s State) (any, error) {
	available := s.Available
	if available == nil {
		available = []RequiredPart{}
	}
	outOfStock := s.OutOfStock
	if outOfStock == nil {
		outOfStock = []RequiredPart{}
	}
	return WorkOrderCard{
		WorkOrderID:     s.WorkOrderID,
		WorkOrderNumber: s.WorkOrderNumber,
		TechnicianName:  s.TechnicianName,
		Available:       available,
		OutOfStock:      outOfStock,
		Prompt: fmt.Sprintf("Work order %s is ready for %s. Confirm completion, request parts, reschedule, or add notes.",
			s.WorkOrderNumber, s.TechnicianName),
		Actions: technicianActions,
	}, nil
}

var technicianActions = []string{ActionConfirmCompletion, ActionRequestParts, ActionReschedule, ActionAddNotes}

const technicianInterpretPrompt = `A technician replied to a maintenance work
order in free text. Extract the reply as JSON with exactly these fields:
{"action": "...", "parts": ["..."]}
where action is one of confirm_completion, request_parts, reschedule or
add_notes, and parts lists any part codes or names the technician asked for
(empty if none). Use add_notes when nothing else fits. Reply with JSON only.`

// interpretFreeText turns an unstructured technician reply into an action
// and the parts it mentions. A model reply without usable JSON degrades to
// a plain category classification with no parts extraction.
func (n *TechnicianNode) interpretFreeText(ctx context.Context, text string) (string, []string, error) {
	var out struct {
		Action string   `json:"action"`
		Parts  []string `json:"parts"`
	}
	err := model.AskJSON(ctx, n.Deps.Model, []model.Message{
		{Role: model.RoleSystem, Content: technicianInterpretPrompt},
		{Role: model.RoleUser, Content: text},
	}, &out)
	if err != nil {
		var me *model.Error
		if errors.As(err, &me) && me.Code == "malformed_output" {
			action, cerr := model.Classify(ctx, n.Deps.Model, text, technicianActions, ActionAddNotes)
			return action, nil, cerr
		}
		return "", nil, err
	}
	switch out.Action {
	case ActionConfirmCompletion, ActionRequestParts, ActionReschedule, ActionAddNotes:
	default:
		out.Action = ActionAddNotes
	}
	return out.Action, out.Parts, nil
}

func (n *TechnicianNode) HandleResponse(ctx context.Context, s State, resume any) graph.NodeResult[State] {
	resp, err := parseTechnicianResponse(resume)
	if err != nil {
		return graph.NodeResult[State]{Err: &graph.NodeError{
			Message: err.Error(),
			Code:    "BAD_TECHNICIAN_RESPONSE",
			NodeID:  string(AgentTechnician),
			Cause:   err,
		}}
	}

	if resp.Action == "" {
		action, parts, err := n.interpretFreeText(ctx, resp.Text)
		if err != nil {
			return n.fail(err)
		}
		resp.Action = action
		if len(resp.Parts) == 0 {
			resp.Parts = parts
		}
	}

	delta := State{
		CurrentAgent:   AgentTechnician,
		IterationCount: s.IterationCount + 1,
		HITLAction:     SetAction(resp.Action),
		HITLResponse:   &resp,
	}

	// Each visit overwrites the routing override; a stale override from the
	// hop that led here must never route the thread back into the gate.
	switch resp.Action {
	case ActionRequestParts:
		delta.NextAgent = Next(AgentInventory)
	case ActionReschedule:
		delta.NextAgent = Next(AgentAssignment)
	default:
		delta.NextAgent = Next(AgentPlanner)
	}

	switch resp.Action {
	case ActionConfirmCompletion:
		if s.WorkOrderID != 0 {
			if err := n.Deps.Store.UpdateWorkOrderStatus(ctx, s.WorkOrderID, repo.WorkOrderCompleted, resp.Text); err != nil {
				return n.fail(err)
			}
		}
		if s.CurrentTicketID != 0 {
			if err := n.Deps.Store.UpdateTicketStatus(ctx, s.CurrentTicketID, repo.TicketCompleted); err != nil {
				return n.fail(err)
			}
		}
		delta.Outputs = []OutputRecord{{
			Agent:   AgentTechnician,
			Content: fmt.Sprintf("%s confirmed completion of work order %s.", s.TechnicianName, s.WorkOrderNumber),
		}}
	case ActionRequestParts:
		delta.Outputs = []OutputRecord{{
			Agent:   AgentTechnician,
			Content: fmt.Sprintf("%s requested additional parts: %s.", s.TechnicianName, strings.Join(resp.Parts, ", ")),
		}}
	case ActionReschedule:
		delta.Outputs = []OutputRecord{{
			Agent:   AgentTechnician,
			Content: fmt.Sprintf("%s asked to reschedule work order %s.", s.TechnicianName, s.WorkOrderNumber),
		}}
	default: // ActionAddNotes
		if s.WorkOrderID != 0 && resp.Text != "" {
			if err := n.Deps.Store.UpdateWorkOrderStatus(ctx, s.WorkOrderID, repo.WorkOrderInProgress, resp.Text); err != nil {
				return n.fail(err)
			}
		}
		delta.Outputs = []OutputRecord{{
			Agent:   AgentTechnician,
			Content: fmt.Sprintf("%s added notes to work order %s: %s", s.TechnicianName, s.WorkOrderNumber, resp.Text),
		}}
	}
	return graph.NodeResult[State]{Delta: delta}
}

// parseTechnicianResponse accepts the resume value in any of the shapes a
// caller realistically produces: a TechnicianResponse, a JSON-ish map, a JSON
// string, or bare free text.
func parseTechnicianResponse(resume any) (TechnicianResponse, error) {
	switch v := resume.(type) {
	case TechnicianResponse:
		return v, nil
	case *TechnicianResponse:
		if v == nil {
			return TechnicianResponse{}, fmt.Errorf("nil technician response")
		}
		return *v, nil
	case map[string]any:
		raw, err := json.Marshal(v)
		if err != nil {
			return TechnicianResponse{}, err
		}
		var resp TechnicianResponse
		if err := json.Unmarshal(raw, &resp); err != nil {
			return TechnicianResponse{}, err
		}
		return resp, nil
	case string:
		trimmed := strings.TrimSpace(v)
		if strings.HasPrefix(trimmed, "{") {
			var resp TechnicianResponse
			if err := json.Unmarshal([]byte(trimmed), &resp); err == nil {
				return resp, nil
			}
		}
		return TechnicianResponse{Text: trimmed}, nil
	default:
		return TechnicianResponse{}, fmt.Errorf("unsupported technician response type %T", resume)
	}
}

func (n *TechnicianNode) fail(err error) graph.NodeResult[State] {
	return graph.NodeResult[State]{Err: &graph.NodeError{
		Message:     err.Error(),
		Code:        "TECHNICIAN_FAILED",
		NodeID:      string(AgentTechnician),
		Recoverable: true,
		Cause:       err,
	}}
}
