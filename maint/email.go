package maint

import (
	"context"
	"fmt"
	"strings"

	"github.com/factorops/maintgraph/graph"
	"github.com/factorops/maintgraph/graph/model"
)

const emailSystemPrompt = `You draft maintenance status emails for a factory
operations team. Reply in exactly this format:

SUBJECT: <one line>
BODY:
<the email body>

Plain text only, no markdown. Stick to the figures you are given.`

// EmailNode builds a maintenance digest from today's tickets, the open
// ticket counts and the low-stock list, drafts it with the model and sends
// it to the configured recipient. With no recipient configured the report is
// still generated and kept in state.
type EmailNode struct {
	Deps Deps
}

func (n *EmailNode) Run(ctx context.Context, s State) graph.NodeResult[State] {
	delta := State{
		CurrentAgent:   AgentEmail,
		IterationCount: s.IterationCount + 1,
		NextAgent:      Next(AgentPlanner),
	}

	due, err := n.Deps.Store.TicketsDueOn(ctx, n.Deps.today())
	if err != nil {
		return n.fail(err)
	}
	counts, err := n.Deps.Store.TicketCounts(ctx)
	if err != nil {
		return n.fail(err)
	}
	lowStock, err := n.Deps.Store.LowStockParts(ctx)
	if err != nil {
		return n.fail(err)
	}

	var facts strings.Builder
	fmt.Fprintf(&facts, "Report date: %s\n", n.Deps.today())
	fmt.Fprintf(&facts, "Open tickets: %d\n", counts.Total)
	for typ, byStatus := range counts.ByTypeStatus {
		for status, c := range byStatus {
			fmt.Fprintf(&facts, "  %s/%s: %d\n", typ, status, c)
		}
	}
	fmt.Fprintf(&facts, "Due today: %d\n", len(due))
	for _, t := range due {
		fmt.Fprintf(&facts, "  %s [%s/%s] %s on %s\n", t.Number, t.Type, t.Priority, t.Title, t.MachineName)
	}
	fmt.Fprintf(&facts, "Parts below reorder level: %d\n", len(lowStock))
	for _, p := range lowStock {
		fmt.Fprintf(&facts, "  %s %s: %.0f on hand, reorder at %.0f\n", p.PartCode, p.PartName, p.OnHand, p.ReorderLevel)
	}

	out, err := n.Deps.Model.Chat(ctx, []model.Message{
		{Role: model.RoleSystem, Content: emailSystemPrompt},
		{Role: model.RoleUser, Content: "Draft the daily maintenance status email from this data:\n\n" + facts.String()},
	})
	if err != nil {
		return n.fail(err)
	}

	subject, body := splitEmailDraft(out.Text)
	delta.EmailReport = out.Text

	if n.Deps.ReportRecipient == "" {
		delta.Outputs = []OutputRecord{{
			Agent:   AgentEmail,
			Content: "Status report generated but not sent: no recipient configured.\n\n" + out.Text,
		}}
		return graph.NodeResult[State]{Delta: delta}
	}

	if err := n.Deps.Mailer.Send(ctx, n.Deps.ReportRecipient, subject, body); err != nil {
		return n.fail(err)
	}
	delta.Outputs = []OutputRecord{{
		Agent:   AgentEmail,
		Content: fmt.Sprintf("Status report sent to %s with subject %q.", n.Deps.ReportRecipient, subject),
	}}
	return graph.NodeResult[State]{Delta: delta}
}

// splitEmailDraft separates the SUBJECT and BODY sections of a drafted
// email, tolerating a model that ignored the format.
func splitEmailDraft(draft string) (subject, body string) {
	subject = "Maintenance status report"
	body = strings.TrimSpace(draft)

	lines := strings.SplitN(body, "\n", 2)
	first := strings.TrimSpace(lines[0])
	if rest, ok := strings.CutPrefix(first, "SUBJECT:"); ok {
		subject = strings.TrimSpace(rest)
		if len(lines) > 1 {
			body = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(lines[1]), "BODY:"))
		} else {
			body = ""
		}
	}
	return subject, body
}

func (n *EmailNode) fail(err error) graph.NodeResult[State] {
	return graph.NodeResult[State]{Err: &graph.NodeError{
		Message:     err.Error(),
		Code:        "EMAIL_FAILED",
		NodeID:      string(AgentEmail),
		Recoverable: true,
		Cause:       err,
	}}
}
