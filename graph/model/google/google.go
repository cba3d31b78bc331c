// Package google adapts the generative-ai-go Gemini client to the
// model.ChatModel interface.
package google

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"github.com/factorops/maintgraph/graph/model"
)

// DefaultModel is the Gemini model used when none is specified.
const DefaultModel = "gemini-1.5-flash"

// ChatModel wraps a Gemini generative model.
type ChatModel struct {
	client *genai.Client
	model  string
}

// New creates a Gemini chat model. An empty apiKey falls back to the
// GOOGLE_API_KEY environment variable; an empty modelName uses
// DefaultModel.
func New(ctx context.Context, apiKey, modelName string) (*ChatModel, error) {
	if apiKey == "" {
		apiKey = os.Getenv("GOOGLE_API_KEY")
		if apiKey == "" {
			return nil, &model.Error{
				Code:      "missing_api_key",
				Message:   "Google API key not provided and GOOGLE_API_KEY environment variable not set",
				Retryable: false,
			}
		}
	}
	if modelName == "" {
		modelName = DefaultModel
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create Google client: %w", err)
	}

	return &ChatModel{
		client: client,
		model:  modelName,
	}, nil
}

// Close releases the underlying client's resources.
func (c *ChatModel) Close() error {
	if c.client != nil {
		return c.client.Close()
	}
	return nil
}

// Chat implements model.ChatModel. Gemini keeps system instructions
// separate from the turn history, so system messages are moved there.
func (c *ChatModel) Chat(ctx context.Context, messages []model.Message) (model.ChatOut, error) {
	m := c.client.GenerativeModel(c.model)

	var system string
	var prompt strings.Builder
	for _, msg := range messages {
		switch msg.Role {
		case model.RoleSystem:
			if system != "" {
				system += "\n"
			}
			system += msg.Content
		case model.RoleAssistant:
			prompt.WriteString("Assistant: ")
			prompt.WriteString(msg.Content)
			prompt.WriteString("\n")
		default:
			prompt.WriteString(msg.Content)
			prompt.WriteString("\n")
		}
	}
	if system != "" {
		m.SystemInstruction = &genai.Content{
			Parts: []genai.Part{genai.Text(system)},
		}
	}

	resp, err := m.GenerateContent(ctx, genai.Text(prompt.String()))
	if err != nil {
		return model.ChatOut{}, mapError(err)
	}

	tokensUsed := 0
	if resp.UsageMetadata != nil {
		tokensUsed = int(resp.UsageMetadata.TotalTokenCount)
	}

	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return model.ChatOut{TokensUsed: tokensUsed}, nil
	}

	var text strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if t, ok := part.(genai.Text); ok {
			text.WriteString(string(t))
		}
	}

	return model.ChatOut{
		Text:       text.String(),
		TokensUsed: tokensUsed,
	}, nil
}

func mapError(err error) error {
	if errors.Is(err, context.Canceled) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &model.Error{
			Code:      "timeout",
			Message:   "Google API request timed out",
			Retryable: true,
		}
	}

	errMsg := strings.ToLower(err.Error())

	if strings.Contains(errMsg, "api key") ||
		strings.Contains(errMsg, "401") ||
		strings.Contains(errMsg, "403") ||
		strings.Contains(errMsg, "permission") {
		return &model.Error{
			Code:      "invalid_api_key",
			Message:   "Google API key is invalid or lacks permission",
			Retryable: false,
		}
	}

	if strings.Contains(errMsg, "429") ||
		strings.Contains(errMsg, "quota") ||
		strings.Contains(errMsg, "resource exhausted") {
		return &model.Error{
			Code:      "rate_limited",
			Message:   "Google API rate limit or quota exceeded",
			Retryable: true,
		}
	}

	if strings.Contains(errMsg, "500") ||
		strings.Contains(errMsg, "503") ||
		strings.Contains(errMsg, "unavailable") ||
		strings.Contains(errMsg, "internal") {
		return &model.Error{
			Code:      "server_error",
			Message:   fmt.Sprintf("Google API server error: %v", err),
			Retryable: true,
		}
	}

	return &model.Error{
		Code:      "api_error",
		Message:   fmt.Sprintf("Google API error: %v", err),
		Retryable: false,
	}
}
