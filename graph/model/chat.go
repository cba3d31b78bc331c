// Package model provides LLM integration adapters.
package model

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ChatModel defines the interface for LLM chat providers.
//
// This interface abstracts the differences between various LLM providers
// (OpenAI, Anthropic, Google) providing a unified API for chat-based
// interactions. Implementations should:
// - Handle provider-specific authentication.
// - Convert the standard Message format to the provider's format.
// - Parse provider responses back to the standard ChatOut format.
// - Respect context cancellation and timeouts.
type ChatModel interface {
	// Chat sends messages to the LLM and returns the response.
	Chat(ctx context.Context, messages []Message) (ChatOut, error)
}

// Message represents a single message in an LLM conversation.
type Message struct {
	// Role identifies the message sender.
	// Standard roles: "system", "user", "assistant".
	Role string

	// Content contains the message text.
	Content string
}

// Standard role constants for LLM conversations.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ChatOut is the provider-independent response from a chat call.
type ChatOut struct {
	// Text is the model's response text.
	Text string

	// TokensUsed is the total token count reported by the provider,
	// zero when the provider does not report usage.
	TokensUsed int
}

// Error describes a provider failure in a provider-independent form.
// Retryable reports whether the caller may retry the request, which
// feeds retry policies at the node level.
type Error struct {
	Code      string
	Message   string
	Retryable bool
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Retryable reports whether err is a transient provider failure.
func Retryable(err error) bool {
	var me *Error
	if errors.As(err, &me) {
		return me.Retryable
	}
	return false
}

// Classify asks the model to place text into exactly one of the given
// categories. A response outside the category list maps to fallback, as
// does an empty response.
func Classify(ctx context.Context, m ChatModel, text string, categories []string, fallback string) (string, error) {
	var sb strings.Builder
	sb.WriteString("Classify the following message into exactly one category.\n")
	sb.WriteString("Categories: ")
	sb.WriteString(strings.Join(categories, ", "))
	sb.WriteString("\n\nMessage:\n")
	sb.WriteString(text)
	sb.WriteString("\n\nRespond with the category name only, nothing else.")

	out, err := m.Chat(ctx, []Message{{Role: RoleUser, Content: sb.String()}})
	if err != nil {
		return "", err
	}

	got := strings.ToLower(strings.TrimSpace(strings.Trim(out.Text, "\"'`.")))
	for _, c := range categories {
		if got == strings.ToLower(c) {
			return c, nil
		}
	}
	return fallback, nil
}

// AskJSON sends messages and unmarshals the model's reply into out.
// Models frequently wrap JSON in markdown fences or prose, so the reply
// is repaired with ExtractJSON before parsing.
func AskJSON(ctx context.Context, m ChatModel, messages []Message, out interface{}) error {
	reply, err := m.Chat(ctx, messages)
	if err != nil {
		return err
	}
	raw := ExtractJSON(reply.Text)
	if raw == "" {
		return &Error{Code: "malformed_output", Message: "no JSON object found in model response"}
	}
	if err := json.Unmarshal([]byte(raw), out); err != nil {
		return &Error{Code: "malformed_output", Message: fmt.Sprintf("invalid JSON in model response: %v", err)}
	}
	return nil
}

// ExtractJSON pulls the first JSON object or array out of a model reply,
// stripping markdown code fences and surrounding prose. Returns "" when
// no candidate is found.
func ExtractJSON(text string) string {
	s := strings.TrimSpace(text)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	s = strings.TrimSpace(s)

	if len(s) > 0 && (s[0] == '{' || s[0] == '[') {
		return s
	}

	objStart := strings.Index(s, "{")
	arrStart := strings.Index(s, "[")
	start := objStart
	close := "}"
	if start == -1 || (arrStart != -1 && arrStart < start) {
		start = arrStart
		close = "]"
	}
	if start == -1 {
		return ""
	}
	end := strings.LastIndex(s, close)
	if end <= start {
		return ""
	}
	return s[start : end+1]
}
