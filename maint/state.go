// Package maint implements the conversation-driven maintenance workflow:
// the shared state record, the agent nodes, and their routing tables,
// executed by the generic graph engine.
package maint

import "time"

// Agent is the closed set of node identifiers in the conversation graph.
// Human-facing persona names (James, David, Mira, Roberto) appear only in
// presentation strings, never in control flow.
type Agent string

const (
	AgentPlanner     Agent = "planner"
	AgentAssignment  Agent = "assignment"
	AgentInventory   Agent = "inventory"
	AgentProcurement Agent = "procurement"
	AgentTechnician  Agent = "technician"
	AgentEmail       Agent = "email_report"

	// AgentEnd is an explicit routing override meaning "terminate".
	AgentEnd Agent = "end"
)

// Intent is the classification of a user's free-text request.
type Intent string

const (
	IntentExecuteMaintenance  Intent = "execute_maintenance"
	IntentExecuteSingleTicket Intent = "execute_single_ticket"
	IntentInventoryQuery      Intent = "inventory_query"
	IntentTicketQuery         Intent = "ticket_query"
	IntentPriorityQuery       Intent = "priority_query"
	IntentEmailReport         Intent = "email_report"
	IntentGeneralQA           Intent = "general_qa"
)

// Intents lists every category the planner may classify into.
// IntentGeneralQA is the fallback for out-of-list results.
var Intents = []string{
	string(IntentExecuteMaintenance),
	string(IntentExecuteSingleTicket),
	string(IntentInventoryQuery),
	string(IntentTicketQuery),
	string(IntentPriorityQuery),
	string(IntentEmailReport),
	string(IntentGeneralQA),
}

// Technician HITL actions.
const (
	ActionConfirmCompletion = "confirm_completion"
	ActionRequestParts      = "request_parts"
	ActionReschedule        = "reschedule"
	ActionAddNotes          = "add_notes"
)

// RequiredPart is one line of a work order's parts list, created from a
// BOM lookup and annotated by the inventory check.
type RequiredPart struct {
	PartCode string  `json:"part_code"`
	Name     string  `json:"name"`
	Required float64 `json:"required"`
	OnHand   float64 `json:"on_hand"`
	Location string  `json:"location,omitempty"`

	// InBOM is false for parts a technician requested that are not in
	// the machine's bill of materials. Processed anyway, but flagged.
	InBOM bool `json:"in_bom"`
}

// Requisition statuses.
const (
	RequisitionOpen      = "open"
	RequisitionOrdered   = "ordered"
	RequisitionCancelled = "cancelled"
)

// PurchaseRequest is a requisition created by procurement for a part the
// inventory check marked unavailable. Quantity is the shortage, never the
// full required amount and never negative.
type PurchaseRequest struct {
	RequisitionID int64     `json:"requisition_id"`
	Number        string    `json:"number"`
	PartCode      string    `json:"part_code"`
	Quantity      float64   `json:"quantity"`
	Reason        string    `json:"reason"`
	WorkOrderID   int64     `json:"work_order_id"`
	VendorID      int64     `json:"vendor_id"`
	Status        string    `json:"status"`
	CreatedAt     time.Time `json:"created_at"`
}

// Vendor reply classifications.
const (
	VendorAccepted   = "accepted"
	VendorDeclined   = "declined"
	VendorNoResponse = "no_response"
)

// VendorResponse records one vendor contact attempt during procurement.
type VendorResponse struct {
	VendorID   int64  `json:"vendor_id"`
	VendorName string `json:"vendor_name"`
	PartCode   string `json:"part_code"`
	Status     string `json:"status"`
	Reply      string `json:"reply,omitempty"`
}

// TechnicianResponse is the structured resume value delivered to the
// technician interrupt node.
type TechnicianResponse struct {
	Action string   `json:"action"`
	Text   string   `json:"text,omitempty"`
	Parts  []string `json:"parts,omitempty"`
}

// OutputRecord is one entry of the append-only output log. The log's order
// is the sole input to the final summary.
type OutputRecord struct {
	Agent   Agent  `json:"agent"`
	Content string `json:"content"`
}

// ErrorRecord captures a node failure converted to state by the engine's
// error hook.
type ErrorRecord struct {
	Agent       string    `json:"agent"`
	Kind        string    `json:"kind"`
	Message     string    `json:"message"`
	Time        time.Time `json:"time"`
	Recoverable bool      `json:"recoverable"`
	Retries     int       `json:"retries"`
}

// State is the single record threaded through every node of the
// conversation graph. Nodes return partial States that the reducer merges;
// any field an upstream branch may not have produced must be read through
// the defensive accessors.
type State struct {
	// Routing and control.
	UserInput      string  `json:"user_input,omitempty"`
	CurrentAgent   Agent   `json:"current_agent,omitempty"`
	NextAgent      *Agent  `json:"next_agent,omitempty"`
	Intent         Intent  `json:"intent,omitempty"`
	IterationCount int     `json:"iteration_count"`
	MaxIterations  int     `json:"max_iterations"`

	// Ticket context.
	TicketIDs       []int64 `json:"ticket_ids,omitempty"`
	CurrentTicketID int64   `json:"current_ticket_id,omitempty"`
	MachineID       int64   `json:"machine_id,omitempty"`

	// Work order context.
	WorkOrderID     int64  `json:"work_order_id,omitempty"`
	WorkOrderNumber string `json:"work_order_number,omitempty"`
	TechnicianID    int64  `json:"technician_id,omitempty"`
	TechnicianName  string `json:"technician_name,omitempty"`

	// Parts and inventory context. Available and OutOfStock partition
	// RequiredParts after an inventory check.
	RequiredParts []RequiredPart `json:"required_parts,omitempty"`
	PartsChecked  bool           `json:"parts_checked,omitempty"`
	Available     []RequiredPart `json:"available,omitempty"`
	OutOfStock    []RequiredPart `json:"out_of_stock,omitempty"`
	Mismatched    []string       `json:"mismatched,omitempty"`

	// Procurement context.
	PurchaseRequests  []PurchaseRequest `json:"purchase_requests,omitempty"`
	RequisitionIDs    []int64           `json:"requisition_ids,omitempty"`
	VendorResponses   []VendorResponse  `json:"vendor_responses,omitempty"`
	ProcurementStatus string            `json:"procurement_status,omitempty"`
	FailedParts       []string          `json:"failed_parts,omitempty"`

	// HITL context.
	HITLAction   *string             `json:"hitl_action,omitempty"`
	HITLResponse *TechnicianResponse `json:"hitl_response,omitempty"`

	// Output.
	Outputs      []OutputRecord `json:"outputs,omitempty"`
	Errors       []ErrorRecord  `json:"errors,omitempty"`
	FinalSummary string         `json:"final_summary,omitempty"`
	EmailReport  string         `json:"email_report,omitempty"`
	Degraded     bool           `json:"degraded,omitempty"`
}

// DefaultMaxIterations guards against routing loops when the caller does
// not set an explicit cap.
const DefaultMaxIterations = 15

// NewState creates the initial state for one conversation turn.
func NewState(userInput string) State {
	return State{
		UserInput:     userInput,
		MaxIterations: DefaultMaxIterations,
	}
}

// RoutingOverride returns the explicit next-agent override, or "" when the
// last node set none.
func (s State) RoutingOverride() Agent {
	if s.NextAgent == nil {
		return ""
	}
	return *s.NextAgent
}

// Action returns the technician's HITL action, or "" when none is pending.
func (s State) Action() string {
	if s.HITLAction == nil {
		return ""
	}
	return *s.HITLAction
}

// IterationsExhausted reports whether the loop guard has fired.
func (s State) IterationsExhausted() bool {
	max := s.MaxIterations
	if max <= 0 {
		max = DefaultMaxIterations
	}
	return s.IterationCount >= max
}

// Next builds a routing-override delta value.
func Next(a Agent) *Agent {
	return &a
}

// ClearNext builds a delta value that erases the routing override.
func ClearNext() *Agent {
	var none Agent
	return &none
}

// SetAction builds an HITL-action delta value.
func SetAction(action string) *string {
	return &action
}

// ClearAction builds a delta value that erases the HITL action.
func ClearAction() *string {
	empty := ""
	return &empty
}

// Reduce merges a node's partial update into the canonical state.
//
// Merge rules: scalar fields are last-write-wins when the delta carries a
// non-zero value; Outputs, Errors, VendorResponses, RequisitionIDs and
// PurchaseRequests append; IterationCount is max-monotone (a delta can only
// raise it); NextAgent and HITLAction use pointer presence so a node can
// explicitly clear them.
func Reduce(prev, delta State) State {
	out := prev

	if delta.UserInput != "" {
		out.UserInput = delta.UserInput
	}
	if delta.CurrentAgent != "" {
		out.CurrentAgent = delta.CurrentAgent
	}
	if delta.NextAgent != nil {
		if *delta.NextAgent == "" {
			out.NextAgent = nil
		} else {
			out.NextAgent = delta.NextAgent
		}
	}
	if delta.Intent != "" {
		out.Intent = delta.Intent
	}
	if delta.IterationCount > out.IterationCount {
		out.IterationCount = delta.IterationCount
	}
	if delta.MaxIterations > 0 {
		out.MaxIterations = delta.MaxIterations
	}

	if delta.TicketIDs != nil {
		out.TicketIDs = delta.TicketIDs
	}
	if delta.CurrentTicketID != 0 {
		out.CurrentTicketID = delta.CurrentTicketID
	}
	if delta.MachineID != 0 {
		out.MachineID = delta.MachineID
	}
	if delta.WorkOrderID != 0 {
		out.WorkOrderID = delta.WorkOrderID
	}
	if delta.WorkOrderNumber != "" {
		out.WorkOrderNumber = delta.WorkOrderNumber
	}
	if delta.TechnicianID != 0 {
		out.TechnicianID = delta.TechnicianID
	}
	if delta.TechnicianName != "" {
		out.TechnicianName = delta.TechnicianName
	}

	if delta.RequiredParts != nil {
		out.RequiredParts = delta.RequiredParts
	}
	if delta.PartsChecked {
		out.PartsChecked = true
	}
	if delta.Available != nil {
		out.Available = delta.Available
	}
	if delta.OutOfStock != nil {
		out.OutOfStock = delta.OutOfStock
	}
	if delta.Mismatched != nil {
		out.Mismatched = delta.Mismatched
	}

	out.PurchaseRequests = append(out.PurchaseRequests, delta.PurchaseRequests...)
	out.RequisitionIDs = append(out.RequisitionIDs, delta.RequisitionIDs...)
	out.VendorResponses = append(out.VendorResponses, delta.VendorResponses...)
	if delta.ProcurementStatus != "" {
		out.ProcurementStatus = delta.ProcurementStatus
	}
	if delta.FailedParts != nil {
		out.FailedParts = delta.FailedParts
	}

	if delta.HITLAction != nil {
		if *delta.HITLAction == "" {
			out.HITLAction = nil
		} else {
			out.HITLAction = delta.HITLAction
		}
	}
	if delta.HITLResponse != nil {
		out.HITLResponse = delta.HITLResponse
	}

	out.Outputs = append(out.Outputs, delta.Outputs...)
	out.Errors = append(out.Errors, delta.Errors...)
	if delta.FinalSummary != "" {
		out.FinalSummary = delta.FinalSummary
	}
	if delta.EmailReport != "" {
		out.EmailReport = delta.EmailReport
	}
	if delta.Degraded {
		out.Degraded = true
	}

	return out
}
