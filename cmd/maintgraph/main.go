// Command maintgraph runs the maintenance assistant from a terminal.
//
// The default mode is a conversation loop against the relational store.
// With -approve it runs the flat-file work-order approval pipeline for a
// single work order instead.
//
// Configuration is taken from the environment:
//
//	MAINTGRAPH_PROVIDER     openai (default), anthropic or google
//	MAINTGRAPH_MODEL        provider model name, provider default if empty
//	OPENAI_API_KEY, ANTHROPIC_API_KEY, GOOGLE_API_KEY
//	MAINTGRAPH_DB           domain SQLite path (default maintgraph.db)
//	MAINTGRAPH_CHECKPOINTS  checkpoint store: a SQLite path, or a MySQL DSN
//	                        prefixed with "mysql:", empty for in-memory
//	MAINTGRAPH_DATA_DIR     CSV directory for -approve (default ./data)
//	MAINTGRAPH_REPORT_TO    email report recipient, unset to skip sending
//	MAINTGRAPH_SMTP_ADDR    SMTP host:port for outbound mail
//	MAINTGRAPH_SMTP_FROM    sender address for outbound mail
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/factorops/maintgraph/graph/emit"
	"github.com/factorops/maintgraph/graph/model"
	"github.com/factorops/maintgraph/graph/model/anthropic"
	"github.com/factorops/maintgraph/graph/model/google"
	"github.com/factorops/maintgraph/graph/model/openai"
	"github.com/factorops/maintgraph/graph/store"
	"github.com/factorops/maintgraph/maint"
	"github.com/factorops/maintgraph/maint/approval"
	"github.com/factorops/maintgraph/maint/mail"
	"github.com/factorops/maintgraph/maint/repo"
)

func main() {
	approve := flag.String("approve", "", "run the approval pipeline for the given work order id")
	verbose := flag.Bool("v", false, "log node events")
	flag.Parse()

	if err := run(*approve, *verbose); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func run(approveID string, verbose bool) error {
	ctx := context.Background()

	chat, closeModel, err := newChatModel(ctx)
	if err != nil {
		return err
	}
	defer closeModel()

	var emitter emit.Emitter = emit.NewNullEmitter()
	if verbose {
		emitter = emit.NewLogEmitter(os.Stderr, false)
	}

	if approveID != "" {
		return runApproval(ctx, approveID, chat, emitter)
	}
	return runConversation(ctx, chat, emitter)
}

func runConversation(ctx context.Context, chat model.ChatModel, emitter emit.Emitter) error {
	dbPath := envOr("MAINTGRAPH_DB", "maintgraph.db")
	domain, err := repo.NewSQLiteStore(dbPath)
	if err != nil {
		return fmt.Errorf("open domain store: %w", err)
	}
	defer domain.Close()

	checkpoints, closeCkpt, err := newCheckpointStore[maint.State]()
	if err != nil {
		return err
	}
	defer closeCkpt()

	var mailer mail.Mailer = &mail.Mock{}
	if addr := os.Getenv("MAINTGRAPH_SMTP_ADDR"); addr != "" {
		mailer = mail.NewSMTPMailer(addr, envOr("MAINTGRAPH_SMTP_FROM", "maintgraph@localhost"), nil)
	}

	deps := maint.Deps{
		Store:           domain,
		Model:           chat,
		Mailer:          mailer,
		ReportRecipient: os.Getenv("MAINTGRAPH_REPORT_TO"),
	}
	eng, err := maint.NewGraph(deps, checkpoints, emitter)
	if err != nil {
		return err
	}

	fmt.Println("maintgraph conversation. Empty line to quit.")
	scanner := bufio.NewScanner(os.Stdin)
	turn := 0
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			return scanner.Err()
		}
		input := strings.TrimSpace(scanner.Text())
		if input == "" {
			return nil
		}

		turn++
		threadID := fmt.Sprintf("cli-%d", turn)
		state, susp, err := eng.Run(ctx, threadID, maint.NewState(input))
		for err == nil && susp != nil {
			resume, rerr := promptTechnician(scanner, susp.Payload)
			if rerr != nil {
				return rerr
			}
			state, susp, err = eng.Resume(ctx, threadID, resume)
		}
		if err != nil {
			fmt.Fprintln(os.Stderr, "turn failed:", err)
			continue
		}
		fmt.Println(state.FinalSummary)
	}
}

// promptTechnician realizes the technician suspension on the terminal.
func promptTechnician(scanner *bufio.Scanner, payload any) (maint.TechnicianResponse, error) {
	if card, ok := payload.(maint.WorkOrderCard); ok {
		fmt.Println(card.Prompt)
		for _, p := range card.Available {
			fmt.Printf("  issued: %s %s x%.0f\n", p.PartCode, p.Name, p.Required)
		}
		for _, p := range card.OutOfStock {
			fmt.Printf("  missing: %s %s x%.0f\n", p.PartCode, p.Name, p.Required)
		}
		fmt.Printf("  actions: %s\n", strings.Join(card.Actions, ", "))
	} else {
		raw, _ := json.MarshalIndent(payload, "", "  ")
		fmt.Println(string(raw))
	}

	fmt.Print("technician> ")
	if !scanner.Scan() {
		return maint.TechnicianResponse{}, scanner.Err()
	}
	text := strings.TrimSpace(scanner.Text())

	// "action: detail" selects an action directly; anything else is free
	// text the graph will classify.
	if action, rest, ok := strings.Cut(text, ":"); ok {
		switch strings.TrimSpace(action) {
		case maint.ActionConfirmCompletion, maint.ActionReschedule, maint.ActionAddNotes:
			return maint.TechnicianResponse{Action: strings.TrimSpace(action), Text: strings.TrimSpace(rest)}, nil
		case maint.ActionRequestParts:
			var parts []string
			for _, p := range strings.Split(rest, ",") {
				if p = strings.TrimSpace(p); p != "" {
					parts = append(parts, p)
				}
			}
			return maint.TechnicianResponse{Action: maint.ActionRequestParts, Parts: parts}, nil
		}
	}
	return maint.TechnicianResponse{Text: text}, nil
}

func runApproval(ctx context.Context, workOrderID string, chat model.ChatModel, emitter emit.Emitter) error {
	dataDir := envOr("MAINTGRAPH_DATA_DIR", "data")
	deps := approval.Deps{
		Store: repo.NewCSVStore(dataDir),
		Model: chat,
	}

	checkpoints, closeCkpt, err := newCheckpointStore[approval.State]()
	if err != nil {
		return err
	}
	defer closeCkpt()

	eng, err := approval.NewPipeline(deps, checkpoints, emitter)
	if err != nil {
		return err
	}

	threadID := "approve-" + workOrderID
	state, susp, err := eng.Run(ctx, threadID, approval.NewState(workOrderID))
	if err != nil {
		return err
	}

	scanner := bufio.NewScanner(os.Stdin)
	if susp != nil {
		req := susp.Payload.(approval.ApprovalRequest)
		fmt.Printf("Work order %s on %s, technician %s\n", req.WorkOrderID, req.Equipment, req.TechnicianName)
		fmt.Println(req.JobPlan)
		if req.PurchaseRequired {
			fmt.Printf("Purchase pending: %s\n", strings.Join(req.RequisitionIDs, ", "))
		}
		fmt.Printf("Recommendation: %s\n", req.Recommendation)

		fmt.Printf("decision (%s)> ", strings.Join(req.Decisions, "/"))
		if !scanner.Scan() {
			return scanner.Err()
		}
		decision := strings.TrimSpace(scanner.Text())

		fmt.Print("notes> ")
		if !scanner.Scan() {
			return scanner.Err()
		}
		notes := strings.TrimSpace(scanner.Text())

		state, _, err = eng.Resume(ctx, threadID, approval.ApprovalDecision{Decision: decision, Notes: notes})
		if err != nil {
			return err
		}
	}

	fmt.Println(state.Summary)
	return nil
}

// newChatModel builds the provider selected by MAINTGRAPH_PROVIDER.
func newChatModel(ctx context.Context) (model.ChatModel, func(), error) {
	provider := envOr("MAINTGRAPH_PROVIDER", "openai")
	name := os.Getenv("MAINTGRAPH_MODEL")

	switch provider {
	case "openai":
		m, err := openai.New(os.Getenv("OPENAI_API_KEY"), name)
		if err != nil {
			return nil, nil, err
		}
		return m, func() {}, nil
	case "anthropic":
		key := os.Getenv("ANTHROPIC_API_KEY")
		if key == "" {
			return nil, nil, fmt.Errorf("ANTHROPIC_API_KEY is not set")
		}
		return anthropic.New(key, name), func() {}, nil
	case "google":
		m, err := google.New(ctx, os.Getenv("GOOGLE_API_KEY"), name)
		if err != nil {
			return nil, nil, err
		}
		return m, func() { _ = m.Close() }, nil
	default:
		return nil, nil, fmt.Errorf("unknown provider %q", provider)
	}
}

// newCheckpointStore selects the checkpoint backend from the environment.
func newCheckpointStore[S any]() (store.Store[S], func(), error) {
	cfg := os.Getenv("MAINTGRAPH_CHECKPOINTS")
	switch {
	case cfg == "":
		return store.NewMemStore[S](), func() {}, nil
	case strings.HasPrefix(cfg, "mysql:"):
		st, err := store.NewMySQLStore[S](strings.TrimPrefix(cfg, "mysql:"))
		if err != nil {
			return nil, nil, fmt.Errorf("open MySQL checkpoint store: %w", err)
		}
		return st, func() { _ = st.Close() }, nil
	default:
		st, err := store.NewSQLiteStore[S](cfg)
		if err != nil {
			return nil, nil, fmt.Errorf("open SQLite checkpoint store: %w", err)
		}
		return st, func() { _ = st.Close() }, nil
	}
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
