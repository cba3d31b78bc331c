package approval

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/factorops/maintgraph/graph"
	"github.com/factorops/maintgraph/graph/model"
	"github.com/factorops/maintgraph/maint/repo"
)

// Deps carries the pipeline's collaborators.
type Deps struct {
	Store *repo.CSVStore
	Model model.ChatModel
	Now   func() time.Time
}

func (d Deps) now() time.Time {
	if d.Now != nil {
		return d.Now()
	}
	return time.Now()
}

// roleNames maps a work order's primary role code to the crew member on
// duty for it.
var roleNames = map[string]string{
	"MMT": "Mike",
	"EMT": "Eric",
	"HT":  "Henry",
}

// OperatorNode loads the work order from the flat files. An unknown work
// order is not something the pipeline can recover from.
type OperatorNode struct {
	Deps Deps
}

func (n *OperatorNode) Run(_ context.Context, s State) graph.NodeResult[State] {
	wo, err := n.Deps.Store.WorkOrderByID(s.WorkOrderID)
	if err != nil {
		return failNode(NodeOperator, err, true)
	}
	if wo == nil {
		return graph.NodeResult[State]{Err: &graph.NodeError{
			Message:     fmt.Sprintf("work order %s not found", s.WorkOrderID),
			Code:        "WORK_ORDER_NOT_FOUND",
			NodeID:      NodeOperator,
			Recoverable: false,
		}}
	}
	return graph.NodeResult[State]{Delta: State{
		Equipment:   wo.Equipment,
		JobType:     wo.JobType,
		Description: wo.Description,
		PrimaryRole: wo.PrimaryRole,
		Messages: []string{fmt.Sprintf("Operator: logged %s work order %s for %s: %s",
			wo.JobType, wo.ID, wo.Equipment, wo.Description)},
	}}
}

// SupervisorNode assigns the technician on duty for the work order's
// primary role.
type SupervisorNode struct {
	Deps Deps
}

func (n *SupervisorNode) Run(_ context.Context, s State) graph.NodeResult[State] {
	name, ok := roleNames[s.PrimaryRole]
	if !ok {
		name = "Duty technician"
	}
	return graph.NodeResult[State]{Delta: State{
		TechnicianName: name,
		Messages: []string{fmt.Sprintf("Supervisor: assigned %s (%s) to work order %s.",
			name, s.PrimaryRole, s.WorkOrderID)},
	}}
}

// TechnicianNode pulls the spare requirements and drafts the job plan.
type TechnicianNode struct {
	Deps Deps
}

func (n *TechnicianNode) Run(ctx context.Context, s State) graph.NodeResult[State] {
	parts, err := n.Deps.Store.RequiredParts(s.WorkOrderID)
	if err != nil {
		return failNode(NodeTechnician, err, true)
	}

	var prompt strings.Builder
	fmt.Fprintf(&prompt, "Plan the job for %s work order %s on %s: %s\n",
		s.JobType, s.WorkOrderID, s.Equipment, s.Description)
	if len(parts) > 0 {
		prompt.WriteString("Spare parts required:\n")
		for _, p := range parts {
			fmt.Fprintf(&prompt, "- %s %s x%.0f %s\n", p.PartCode, p.PartName, p.Required, p.Unit)
		}
	}
	prompt.WriteString("Write a short numbered plan.")

	out, err := n.Deps.Model.Chat(ctx, []model.Message{
		{Role: model.RoleSystem, Content: "You are a maintenance technician planning a job. Be brief and practical."},
		{Role: model.RoleUser, Content: prompt.String()},
	})
	if err != nil {
		return failNode(NodeTechnician, err, true)
	}

	delta := State{
		JobPlan: out.Text,
		Messages: []string{fmt.Sprintf("Technician %s: planned the job, %d part(s) required.",
			s.TechnicianName, len(parts))},
	}
	if parts != nil {
		delta.RequiredParts = parts
	}
	return graph.NodeResult[State]{Delta: delta}
}

// InventoryNode checks and issues the required spares. Shortages raise a
// purchase requisition per part and flag the order for hold.
type InventoryNode struct {
	Deps Deps
}

func (n *InventoryNode) Run(_ context.Context, s State) graph.NodeResult[State] {
	avail, err := n.Deps.Store.CheckAvailability(s.RequiredParts)
	if err != nil {
		return failNode(NodeInventory, err, true)
	}
	issues, err := n.Deps.Store.IssueSpares(s.WorkOrderID, s.RequiredParts)
	if err != nil {
		return failNode(NodeInventory, err, true)
	}

	delta := State{Availability: avail, Issues: issues}
	var issued, short []string
	for _, p := range s.RequiredParts {
		a := avail[p.PartCode]
		if a.Sufficient {
			issued = append(issued, p.PartCode)
			continue
		}
		short = append(short, p.PartCode)

		shortage := p.Required - a.Available
		prID := fmt.Sprintf("PR-%s-%s", n.Deps.now().Format("20060102150405"), p.PartCode)
		if err := n.Deps.Store.AppendRequisition(repo.FlatRequisition{
			ID:          prID,
			PartCode:    p.PartCode,
			Quantity:    shortage,
			Reason:      fmt.Sprintf("Insufficient stock for %s", s.WorkOrderID),
			WorkOrderID: s.WorkOrderID,
			Status:      "Pending",
			CreatedDate: n.Deps.now().Format("2006-01-02"),
		}); err != nil {
			return failNode(NodeInventory, err, true)
		}
		delta.RequisitionIDs = append(delta.RequisitionIDs, prID)
		delta.PurchaseRequired = true
	}

	msg := fmt.Sprintf("Inventory: issued %d part(s)", len(issued))
	if len(short) > 0 {
		msg += fmt.Sprintf(", raised %d requisition(s) for %s", len(short), strings.Join(short, ", "))
	}
	delta.Messages = []string{msg + "."}
	return graph.NodeResult[State]{Delta: delta}
}

// PreApprovalNode produces the recommendation the human sees: approve,
// unless a purchase is still outstanding.
type PreApprovalNode struct {
	Deps Deps
}

func (n *PreApprovalNode) Run(_ context.Context, s State) graph.NodeResult[State] {
	rec := RecommendApprove
	reason := "all checks passed"
	if s.PurchaseRequired {
		rec = RecommendHold
		reason = "waiting on purchased parts"
	}
	return graph.NodeResult[State]{Delta: State{
		Recommendation: rec,
		Messages:       []string{fmt.Sprintf("Pre-approval: recommendation %s (%s).", rec, reason)},
	}}
}

// ApprovalRequest is the payload shown to the human approver.
type ApprovalRequest struct {
	WorkOrderID      string   `json:"work_order_id"`
	Equipment        string   `json:"equipment"`
	JobType          string   `json:"job_type"`
	TechnicianName   string   `json:"technician_name"`
	JobPlan          string   `json:"job_plan"`
	PurchaseRequired bool     `json:"purchase_required"`
	RequisitionIDs   []string `json:"requisition_ids,omitempty"`
	Recommendation   string   `json:"recommendation"`
	Decisions        []string `json:"decisions"`
}

// ApprovalDecision is the resume value delivered to the gate.
type ApprovalDecision struct {
	Decision string `json:"decision"`
	Notes    string `json:"notes,omitempty"`
}

// HumanApprovalNode is the pipeline's interrupt gate. The closing flags
// come solely from the decision: an approval marks the work completed,
// verified and closed; a hold leaves all three false.
type HumanApprovalNode struct {
	Deps Deps
}

func (n *HumanApprovalNode) BuildRequest(_ context.Context, s State) (any, error) {
	return ApprovalRequest{
		WorkOrderID:      s.WorkOrderID,
		Equipment:        s.Equipment,
		JobType:          s.JobType,
		TechnicianName:   s.TechnicianName,
		JobPlan:          s.JobPlan,
		PurchaseRequired: s.PurchaseRequired,
		RequisitionIDs:   s.RequisitionIDs,
		Recommendation:   s.Recommendation,
		Decisions:        []string{DecisionApproved, DecisionOnHold},
	}, nil
}

func (n *HumanApprovalNode) HandleResponse(_ context.Context, s State, resume any) graph.NodeResult[State] {
	decision, err := parseDecision(resume)
	if err != nil {
		return graph.NodeResult[State]{Err: &graph.NodeError{
			Message: err.Error(),
			Code:    "BAD_APPROVAL_RESPONSE",
			NodeID:  NodeHumanApproval,
			Cause:   err,
		}}
	}

	approved := decision.Decision == DecisionApproved
	delta := State{
		Decision:           decision.Decision,
		DecisionNotes:      decision.Notes,
		WorkCompleted:      approved,
		VerificationPassed: approved,
		WorkOrderClosed:    approved,
	}
	if approved {
		delta.Messages = []string{fmt.Sprintf("Approver: APPROVED work order %s.", s.WorkOrderID)}
	} else {
		delta.Messages = []string{fmt.Sprintf("Approver: put work order %s ON HOLD.", s.WorkOrderID)}
	}
	return graph.NodeResult[State]{Delta: delta}
}

func parseDecision(resume any) (ApprovalDecision, error) {
	switch v := resume.(type) {
	case ApprovalDecision:
		return normalizeDecision(v)
	case *ApprovalDecision:
		if v == nil {
			return ApprovalDecision{}, fmt.Errorf("nil approval decision")
		}
		return normalizeDecision(*v)
	case map[string]any:
		raw, err := json.Marshal(v)
		if err != nil {
			return ApprovalDecision{}, err
		}
		var d ApprovalDecision
		if err := json.Unmarshal(raw, &d); err != nil {
			return ApprovalDecision{}, err
		}
		return normalizeDecision(d)
	case string:
		return normalizeDecision(ApprovalDecision{Decision: v})
	default:
		return ApprovalDecision{}, fmt.Errorf("unsupported approval decision type %T", resume)
	}
}

func normalizeDecision(d ApprovalDecision) (ApprovalDecision, error) {
	got := strings.ToUpper(strings.TrimSpace(d.Decision))
	got = strings.ReplaceAll(got, " ", "_")
	switch got {
	case DecisionApproved, "APPROVE":
		d.Decision = DecisionApproved
	case DecisionOnHold, "HOLD", "PUT_ON_HOLD":
		d.Decision = DecisionOnHold
	default:
		return d, fmt.Errorf("unknown decision %q", d.Decision)
	}
	return d, nil
}

// FinalNode writes the closing summary from the explicit flags.
type FinalNode struct {
	Deps Deps
}

func (n *FinalNode) Run(_ context.Context, s State) graph.NodeResult[State] {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Work order %s (%s on %s), technician %s.\n",
		s.WorkOrderID, s.JobType, s.Equipment, s.TechnicianName)
	fmt.Fprintf(&sb, "Decision: %s", s.Decision)
	if s.DecisionNotes != "" {
		fmt.Fprintf(&sb, " (%s)", s.DecisionNotes)
	}
	sb.WriteString("\n")
	fmt.Fprintf(&sb, "Work completed: %t. Verification passed: %t. Work order closed: %t.",
		s.WorkCompleted, s.VerificationPassed, s.WorkOrderClosed)
	if len(s.RequisitionIDs) > 0 {
		fmt.Fprintf(&sb, "\nOpen requisitions: %s.", strings.Join(s.RequisitionIDs, ", "))
	}

	return graph.NodeResult[State]{
		Delta: State{Summary: sb.String(), Messages: []string{"Pipeline finished."}},
		Route: graph.Stop(),
	}
}

func failNode(nodeID string, err error, recoverable bool) graph.NodeResult[State] {
	return graph.NodeResult[State]{Err: &graph.NodeError{
		Message:     err.Error(),
		Code:        "PIPELINE_STEP_FAILED",
		NodeID:      nodeID,
		Recoverable: recoverable,
		Cause:       err,
	}}
}
