package maint

import (
	"context"
	"fmt"
	"strings"

	"github.com/factorops/maintgraph/graph"
	"github.com/factorops/maintgraph/graph/model"
	"github.com/factorops/maintgraph/maint/repo"
)

const inventorySystemPrompt = `You are Mira, the storeroom clerk. You answer
inventory questions from stock data only. Quote part codes, quantities and bin
locations exactly as given; if a part is not in the data, say so.`

// InventoryNode checks and issues parts. It serves three callers: the
// assignment flow (check a work order's bill of materials), the technician
// (ad-hoc part requests mid-job) and the planner (standalone stock queries).
type InventoryNode struct {
	Deps Deps
}

func (n *InventoryNode) Run(ctx context.Context, s State) graph.NodeResult[State] {
	switch {
	case s.Action() == ActionRequestParts:
		return n.technicianRequest(ctx, s)
	case s.WorkOrderID != 0 && len(s.RequiredParts) > 0:
		return n.checkWorkOrder(ctx, s)
	default:
		return n.answerQuery(ctx, s)
	}
}

// checkWorkOrder partitions the work order's required parts into available
// and out of stock, issuing the available ones. Every required part lands in
// exactly one of the two lists.
func (n *InventoryNode) checkWorkOrder(ctx context.Context, s State) graph.NodeResult[State] {
	delta := State{
		CurrentAgent:   AgentInventory,
		IterationCount: s.IterationCount + 1,
	}

	available, outOfStock, err := n.partitionAndIssue(ctx, s.RequiredParts)
	if err != nil {
		return n.fail(err)
	}

	delta.PartsChecked = true
	delta.Available = available
	delta.OutOfStock = outOfStock
	delta.Outputs = []OutputRecord{{Agent: AgentInventory, Content: stockReport(s.WorkOrderNumber, available, outOfStock)}}

	if len(outOfStock) > 0 {
		delta.NextAgent = Next(AgentProcurement)
	} else {
		delta.NextAgent = Next(AgentTechnician)
	}
	return graph.NodeResult[State]{Delta: delta}
}

// technicianRequest resolves parts a technician asked for mid-job. Parts
// outside the machine's bill of materials are processed anyway but flagged.
func (n *InventoryNode) technicianRequest(ctx context.Context, s State) graph.NodeResult[State] {
	delta := State{
		CurrentAgent:   AgentInventory,
		IterationCount: s.IterationCount + 1,
		HITLAction:     ClearAction(),
	}

	var requested []string
	if s.HITLResponse != nil {
		requested = s.HITLResponse.Parts
	}
	if len(requested) == 0 {
		delta.Outputs = []OutputRecord{{Agent: AgentInventory, Content: "The technician asked for parts but named none. Nothing issued."}}
		delta.NextAgent = Next(AgentTechnician)
		return graph.NodeResult[State]{Delta: delta}
	}

	inBOM := map[string]bool{}
	if s.MachineID != 0 {
		bom, err := n.Deps.Store.BOMForMachine(ctx, s.MachineID)
		if err != nil {
			return n.fail(err)
		}
		for _, item := range bom {
			inBOM[strings.ToUpper(item.PartCode)] = true
		}
	}

	var (
		parts      []RequiredPart
		mismatched []string
		notFound   []string
	)
	for _, term := range requested {
		stock, err := n.resolvePart(ctx, term)
		if err != nil {
			return n.fail(err)
		}
		if stock == nil {
			notFound = append(notFound, term)
			continue
		}
		p := RequiredPart{
			PartCode: stock.PartCode,
			Name:     stock.PartName,
			Required: 1,
			OnHand:   stock.OnHand,
			Location: stock.BinLocation,
			InBOM:    inBOM[strings.ToUpper(stock.PartCode)],
		}
		if !p.InBOM {
			mismatched = append(mismatched, p.PartCode)
		}
		parts = append(parts, p)
	}

	available, outOfStock, err := n.partitionAndIssue(ctx, parts)
	if err != nil {
		return n.fail(err)
	}
	if s.WorkOrderID != 0 && len(available) > 0 {
		woParts := make([]repo.WorkOrderPart, 0, len(available))
		for _, p := range available {
			woParts = append(woParts, repo.WorkOrderPart{PartCode: p.PartCode, Quantity: p.Required, InBOM: p.InBOM})
		}
		if err := n.Deps.Store.AddWorkOrderParts(ctx, s.WorkOrderID, woParts); err != nil {
			return n.fail(err)
		}
	}

	var sb strings.Builder
	sb.WriteString(stockReport(s.WorkOrderNumber, available, outOfStock))
	if len(mismatched) > 0 {
		fmt.Fprintf(&sb, "\nWarning: %s not on this machine's bill of materials, issued on technician request.",
			strings.Join(mismatched, ", "))
	}
	if len(notFound) > 0 {
		fmt.Fprintf(&sb, "\nNo stock record matches: %s.", strings.Join(notFound, ", "))
	}

	delta.PartsChecked = true
	delta.Available = available
	delta.OutOfStock = outOfStock
	delta.Mismatched = mismatched
	delta.Outputs = []OutputRecord{{Agent: AgentInventory, Content: sb.String()}}

	if len(outOfStock) > 0 {
		delta.NextAgent = Next(AgentProcurement)
	} else {
		delta.NextAgent = Next(AgentTechnician)
	}
	return graph.NodeResult[State]{Delta: delta}
}

// answerQuery handles a standalone stock question and returns control to the
// planner for the final summary.
func (n *InventoryNode) answerQuery(ctx context.Context, s State) graph.NodeResult[State] {
	delta := State{
		CurrentAgent:   AgentInventory,
		IterationCount: s.IterationCount + 1,
		NextAgent:      Next(AgentPlanner),
	}

	var (
		stocks []repo.StockLevel
		err    error
	)
	input := strings.ToLower(s.UserInput)
	if strings.Contains(input, "low stock") || strings.Contains(input, "reorder") || strings.Contains(input, "running low") {
		stocks, err = n.Deps.Store.LowStockParts(ctx)
	} else {
		term, terr := n.extractSearchTerm(ctx, s.UserInput)
		if terr != nil {
			return n.fail(terr)
		}
		stocks, err = n.Deps.Store.SearchParts(ctx, term)
	}
	if err != nil {
		return n.fail(err)
	}

	var facts strings.Builder
	if len(stocks) == 0 {
		facts.WriteString("No matching stock records.\n")
	}
	for _, st := range stocks {
		fmt.Fprintf(&facts, "%s %s: %.0f on hand (reorder at %.0f), bin %s\n",
			st.PartCode, st.PartName, st.OnHand, st.ReorderLevel, st.BinLocation)
	}

	out, err := n.Deps.Model.Chat(ctx, []model.Message{
		{Role: model.RoleSystem, Content: inventorySystemPrompt},
		{Role: model.RoleUser, Content: fmt.Sprintf("Stock data:\n%s\nQuestion: %s", facts.String(), s.UserInput)},
	})
	if err != nil {
		return n.fail(err)
	}

	delta.Outputs = []OutputRecord{{Agent: AgentInventory, Content: out.Text}}
	return graph.NodeResult[State]{Delta: delta}
}

// partitionAndIssue splits parts by on-hand quantity and issues the available
// ones. The issue is atomic per part; a concurrent conversation draining the
// same bin moves the part to the out-of-stock side rather than going negative.
func (n *InventoryNode) partitionAndIssue(ctx context.Context, parts []RequiredPart) (available, outOfStock []RequiredPart, err error) {
	available = []RequiredPart{}
	outOfStock = []RequiredPart{}
	for _, p := range parts {
		stock, err := n.Deps.Store.StockByPartCode(ctx, p.PartCode)
		if err != nil {
			return nil, nil, err
		}
		if stock == nil {
			p.OnHand = 0
			outOfStock = append(outOfStock, p)
			continue
		}
		p.OnHand = stock.OnHand
		if p.Location == "" {
			p.Location = stock.BinLocation
		}

		issued, err := n.Deps.Store.IssueStock(ctx, p.PartCode, p.Required)
		if err != nil {
			return nil, nil, err
		}
		if issued {
			available = append(available, p)
		} else {
			outOfStock = append(outOfStock, p)
		}
	}
	return available, outOfStock, nil
}

func (n *InventoryNode) resolvePart(ctx context.Context, term string) (*repo.StockLevel, error) {
	stock, err := n.Deps.Store.StockByPartCode(ctx, strings.ToUpper(strings.TrimSpace(term)))
	if err != nil {
		return nil, err
	}
	if stock != nil {
		return stock, nil
	}
	matches, err := n.Deps.Store.SearchParts(ctx, term)
	if err != nil {
		return nil, err
	}
	if len(matches) == 0 {
		return nil, nil
	}
	return &matches[0], nil
}

func (n *InventoryNode) extractSearchTerm(ctx context.Context, input string) (string, error) {
	out, err := n.Deps.Model.Chat(ctx, []model.Message{
		{Role: model.RoleUser, Content: "Extract the part name or part code being asked about. " +
			"Reply with the search term only, nothing else.\n\n" + input},
	})
	if err != nil {
		return "", err
	}
	term := strings.TrimSpace(strings.Trim(out.Text, "\"'`"))
	if term == "" {
		term = input
	}
	return term, nil
}

func stockReport(woNumber string, available, outOfStock []RequiredPart) string {
	var sb strings.Builder
	if woNumber != "" {
		fmt.Fprintf(&sb, "Stock check for %s:\n", woNumber)
	} else {
		sb.WriteString("Stock check:\n")
	}
	for _, p := range available {
		fmt.Fprintf(&sb, "- %s %s x%.0f issued from bin %s\n", p.PartCode, p.Name, p.Required, p.Location)
	}
	for _, p := range outOfStock {
		fmt.Fprintf(&sb, "- %s %s x%.0f OUT OF STOCK (%.0f on hand)\n", p.PartCode, p.Name, p.Required, p.OnHand)
	}
	if len(available) == 0 && len(outOfStock) == 0 {
		sb.WriteString("- no parts required\n")
	}
	return strings.TrimRight(sb.String(), "\n")
}

func (n *InventoryNode) fail(err error) graph.NodeResult[State] {
	return graph.NodeResult[State]{Err: &graph.NodeError{
		Message:     err.Error(),
		Code:        "INVENTORY_FAILED",
		NodeID:      string(AgentInventory),
		Recoverable: true,
		Cause:       err,
	}}
}
