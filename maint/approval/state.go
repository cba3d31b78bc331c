// Package approval implements the fixed work-order approval pipeline that
// runs over a directory of CSV flat files: operator intake, supervisor
// assignment, technician planning, inventory issue, a recommendation, a
// human approval gate, and a closing summary.
package approval

import "github.com/factorops/maintgraph/maint/repo"

// Pipeline node identifiers.
const (
	NodeOperator      = "operator"
	NodeSupervisor    = "supervisor"
	NodeTechnician    = "technician"
	NodeInventory     = "inventory"
	NodePreApproval   = "pre_approval"
	NodeHumanApproval = "human_approval"
	NodeFinal         = "final"
)

// Recommendations produced before the human gate.
const (
	RecommendApprove = "APPROVE"
	RecommendHold    = "PUT ON HOLD"
)

// Decisions a human can return at the approval gate.
const (
	DecisionApproved = "APPROVED"
	DecisionOnHold   = "ON_HOLD"
)

// State is the record threaded through the approval pipeline.
type State struct {
	// Work order context, loaded by the operator.
	WorkOrderID string `json:"work_order_id"`
	Equipment   string `json:"equipment,omitempty"`
	JobType     string `json:"job_type,omitempty"`
	Description string `json:"description,omitempty"`
	PrimaryRole string `json:"primary_role,omitempty"`

	// Assignment and planning.
	TechnicianName string                  `json:"technician_name,omitempty"`
	JobPlan        string                  `json:"job_plan,omitempty"`
	RequiredParts  []repo.SpareRequirement `json:"required_parts,omitempty"`

	// Inventory outcome.
	Availability     map[string]repo.SpareAvailability `json:"availability,omitempty"`
	Issues           []repo.SpareIssue                 `json:"issues,omitempty"`
	PurchaseRequired bool                              `json:"purchase_required,omitempty"`
	RequisitionIDs   []string                          `json:"requisition_ids,omitempty"`

	// Approval.
	Recommendation string `json:"recommendation,omitempty"`
	Decision       string `json:"decision,omitempty"`
	DecisionNotes  string `json:"decision_notes,omitempty"`

	// Closing flags. Set explicitly by the approval gate from the human
	// decision, never inferred.
	WorkCompleted      bool `json:"work_completed"`
	VerificationPassed bool `json:"verification_passed"`
	WorkOrderClosed    bool `json:"work_order_closed"`

	Summary  string   `json:"summary,omitempty"`
	Messages []string `json:"messages,omitempty"`
}

// NewState starts the pipeline for one work order.
func NewState(workOrderID string) State {
	return State{WorkOrderID: workOrderID}
}

// Reduce merges a node's partial update: scalars are last-write-wins on
// non-zero values, Messages and Issues and RequisitionIDs append, and the
// closing flags are last-write-wins whenever a decision is present because
// ON_HOLD must be able to force them false.
func Reduce(prev, delta State) State {
	out := prev

	if delta.WorkOrderID != "" {
		out.WorkOrderID = delta.WorkOrderID
	}
	if delta.Equipment != "" {
		out.Equipment = delta.Equipment
	}
	if delta.JobType != "" {
		out.JobType = delta.JobType
	}
	if delta.Description != "" {
		out.Description = delta.Description
	}
	if delta.PrimaryRole != "" {
		out.PrimaryRole = delta.PrimaryRole
	}
	if delta.TechnicianName != "" {
		out.TechnicianName = delta.TechnicianName
	}
	if delta.JobPlan != "" {
		out.JobPlan = delta.JobPlan
	}
	if delta.RequiredParts != nil {
		out.RequiredParts = delta.RequiredParts
	}
	if delta.Availability != nil {
		out.Availability = delta.Availability
	}
	out.Issues = append(out.Issues, delta.Issues...)
	if delta.PurchaseRequired {
		out.PurchaseRequired = true
	}
	out.RequisitionIDs = append(out.RequisitionIDs, delta.RequisitionIDs...)
	if delta.Recommendation != "" {
		out.Recommendation = delta.Recommendation
	}
	if delta.Decision != "" {
		out.Decision = delta.Decision
		out.DecisionNotes = delta.DecisionNotes
		out.WorkCompleted = delta.WorkCompleted
		out.VerificationPassed = delta.VerificationPassed
		out.WorkOrderClosed = delta.WorkOrderClosed
	}
	if delta.Summary != "" {
		out.Summary = delta.Summary
	}
	out.Messages = append(out.Messages, delta.Messages...)

	return out
}
