package maint

import (
	"context"
	"fmt"
	"strings"

	"github.com/factorops/maintgraph/graph"
	"github.com/factorops/maintgraph/graph/model"
	"github.com/factorops/maintgraph/maint/mail"
	"github.com/factorops/maintgraph/maint/repo"
)

// Procurement outcomes recorded in State.ProcurementStatus.
const (
	ProcurementComplete = "complete"
	ProcurementPartial  = "partial"
	ProcurementFailed   = "failed"
)

// ProcurementNode sources every out-of-stock part from the vendor list.
// Vendors are contacted one at a time in priority order: open a requisition,
// mail a quote request, wait for the reply. An acceptance orders the part and
// stops the search; a decline or silence cancels the requisition and moves to
// the next vendor. A part no vendor accepts is recorded as failed.
type ProcurementNode struct {
	Deps Deps
}

func (n *ProcurementNode) Run(ctx context.Context, s State) graph.NodeResult[State] {
	delta := State{
		CurrentAgent:   AgentProcurement,
		IterationCount: s.IterationCount + 1,
		NextAgent:      Next(AgentPlanner),
	}

	vendors, err := n.Deps.Store.VendorsByPriority(ctx)
	if err != nil {
		return n.fail(err)
	}

	var (
		ordered []string
		failed  []string
		lines   []string
	)
	for _, part := range s.OutOfStock {
		shortage := part.Required - part.OnHand
		if shortage <= 0 {
			continue
		}

		result, err := n.sourcePart(ctx, s, part, shortage, vendors, &delta)
		if err != nil {
			return n.fail(err)
		}
		if result.ordered {
			ordered = append(ordered, part.PartCode)
			lines = append(lines, fmt.Sprintf("- %s x%.0f ordered from %s (%s)",
				part.PartCode, shortage, result.vendorName, result.prNumber))
		} else {
			failed = append(failed, part.PartCode)
			lines = append(lines, fmt.Sprintf("- %s x%.0f could not be sourced, %d vendor(s) contacted",
				part.PartCode, shortage, result.contacted))
		}
	}

	switch {
	case len(failed) == 0:
		delta.ProcurementStatus = ProcurementComplete
	case len(ordered) == 0:
		delta.ProcurementStatus = ProcurementFailed
	default:
		delta.ProcurementStatus = ProcurementPartial
	}
	delta.FailedParts = failed
	if failed == nil {
		delta.FailedParts = []string{}
	}

	if s.WorkOrderID != 0 {
		if err := n.Deps.Store.UpdateWorkOrderStatus(ctx, s.WorkOrderID, repo.WorkOrderWaitingParts,
			"Waiting for purchased parts."); err != nil {
			return n.fail(err)
		}
	}

	delta.Outputs = []OutputRecord{{
		Agent: AgentProcurement,
		Content: fmt.Sprintf("Procurement %s.\n%s", delta.ProcurementStatus,
			strings.Join(lines, "\n")),
	}}
	return graph.NodeResult[State]{Delta: delta}
}

type sourcingResult struct {
	ordered    bool
	vendorName string
	prNumber   string
	contacted  int
}

// sourcePart walks the vendor list for one part. Requisition and response
// records are appended to delta as they happen so a failure midway still
// leaves an audit trail in state.
func (n *ProcurementNode) sourcePart(ctx context.Context, s State, part RequiredPart, shortage float64, vendors []repo.Vendor, delta *State) (sourcingResult, error) {
	res := sourcingResult{}
	for _, vendor := range vendors {
		res.contacted++

		prNumber := fmt.Sprintf("PR-%s-%s-%d", n.Deps.now().Format("20060102150405"), part.PartCode, vendor.ID)
		reason := fmt.Sprintf("Out of stock for work order %s", s.WorkOrderNumber)
		reqID, err := n.Deps.Store.CreateRequisition(ctx, repo.Requisition{
			Number:      prNumber,
			WorkOrderID: s.WorkOrderID,
			PartCode:    part.PartCode,
			Quantity:    shortage,
			VendorID:    vendor.ID,
			Status:      RequisitionOpen,
			Reason:      reason,
			CreatedAt:   n.Deps.now(),
		})
		if err != nil {
			return res, err
		}
		delta.RequisitionIDs = append(delta.RequisitionIDs, reqID)
		delta.PurchaseRequests = append(delta.PurchaseRequests, PurchaseRequest{
			RequisitionID: reqID,
			Number:        prNumber,
			PartCode:      part.PartCode,
			Quantity:      shortage,
			Reason:        reason,
			WorkOrderID:   s.WorkOrderID,
			VendorID:      vendor.ID,
			Status:        RequisitionOpen,
			CreatedAt:     n.Deps.now(),
		})

		subject := fmt.Sprintf("Quote request %s: %s x%.0f", prNumber, part.PartCode, shortage)
		body := fmt.Sprintf("Hello %s,\n\nPlease quote %.0f unit(s) of %s (%s) for requisition %s.\n\nRegards,\nRoberto, Procurement",
			vendor.Name, shortage, part.Name, part.PartCode, prNumber)
		if err := n.Deps.Mailer.Send(ctx, vendor.Email, subject, body); err != nil {
			return res, err
		}

		reply, err := n.Deps.Mailer.Poll(ctx, prNumber, n.Deps.vendorTimeout())
		if err != nil {
			return res, err
		}

		status, replyText, err := n.classifyReply(ctx, reply)
		if err != nil {
			return res, err
		}
		delta.VendorResponses = append(delta.VendorResponses, VendorResponse{
			VendorID:   vendor.ID,
			VendorName: vendor.Name,
			PartCode:   part.PartCode,
			Status:     status,
			Reply:      replyText,
		})

		if status == VendorAccepted {
			if err := n.Deps.Store.UpdateRequisitionStatus(ctx, reqID, RequisitionOrdered, replyText); err != nil {
				return res, err
			}
			res.ordered = true
			res.vendorName = vendor.Name
			res.prNumber = prNumber
			return res, nil
		}
		if err := n.Deps.Store.UpdateRequisitionStatus(ctx, reqID, RequisitionCancelled, replyText); err != nil {
			return res, err
		}
	}
	return res, nil
}

// classifyReply maps a vendor reply to accepted or declined. No reply within
// the poll window counts as no response.
func (n *ProcurementNode) classifyReply(ctx context.Context, reply *mail.Message) (status, text string, err error) {
	if reply == nil {
		return VendorNoResponse, "", nil
	}
	got, err := model.Classify(ctx, n.Deps.Model, reply.Body,
		[]string{VendorAccepted, VendorDeclined}, VendorDeclined)
	if err != nil {
		return "", "", err
	}
	return got, reply.Body, nil
}

func (n *ProcurementNode) fail(err error) graph.NodeResult[State] {
	return graph.NodeResult[State]{Err: &graph.NodeError{
		Message:     err.Error(),
		Code:        "PROCUREMENT_FAILED",
		NodeID:      string(AgentProcurement),
		Recoverable: true,
		Cause:       err,
	}}
}
