// Package anthropic adapts the official anthropic-sdk-go client to the
// model.ChatModel interface.
package anthropic

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/factorops/maintgraph/graph/model"
)

const defaultMaxTokens = 4096

// DefaultModel is used when no model name is specified.
const DefaultModel = "claude-3-5-sonnet-latest"

// ChatModel wraps the Anthropic Messages API. Safe for concurrent use
// after creation.
type ChatModel struct {
	client *anthropic.Client
	model  string
}

// New creates an Anthropic chat model with the given API key and model
// name, e.g. "claude-3-5-sonnet-20241022". An empty modelName falls back
// to DefaultModel.
func New(apiKey, modelName string) *ChatModel {
	if modelName == "" {
		modelName = DefaultModel
	}
	client := anthropic.NewClient(option.WithAPIKey(apiKey))
	return &ChatModel{
		client: &client,
		model:  modelName,
	}
}

// Chat implements model.ChatModel. System messages are lifted into the
// request's System field as the Messages API requires.
func (c *ChatModel) Chat(ctx context.Context, messages []model.Message) (model.ChatOut, error) {
	var system string
	params := make([]anthropic.MessageParam, 0, len(messages))
	for _, msg := range messages {
		switch msg.Role {
		case model.RoleSystem:
			if system != "" {
				system += "\n"
			}
			system += msg.Content
		case model.RoleAssistant:
			params = append(params, anthropic.NewAssistantMessage(anthropic.NewTextBlock(msg.Content)))
		default:
			params = append(params, anthropic.NewUserMessage(anthropic.NewTextBlock(msg.Content)))
		}
	}

	req := anthropic.MessageNewParams{
		Model:     anthropic.Model(c.model),
		MaxTokens: defaultMaxTokens,
		Messages:  params,
	}
	if system != "" {
		req.System = []anthropic.TextBlockParam{{Text: system}}
	}

	message, err := c.client.Messages.New(ctx, req)
	if err != nil {
		return model.ChatOut{}, mapError(err)
	}

	var text strings.Builder
	for _, block := range message.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}

	return model.ChatOut{
		Text:       text.String(),
		TokensUsed: int(message.Usage.InputTokens + message.Usage.OutputTokens),
	}, nil
}

func mapError(err error) error {
	if errors.Is(err, context.Canceled) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &model.Error{
			Code:      "timeout",
			Message:   "Anthropic API request timed out",
			Retryable: true,
		}
	}

	errMsg := strings.ToLower(err.Error())

	if strings.Contains(errMsg, "401") ||
		strings.Contains(errMsg, "403") ||
		strings.Contains(errMsg, "authentication") ||
		strings.Contains(errMsg, "api_key") {
		return &model.Error{
			Code:      "invalid_api_key",
			Message:   "Anthropic API key is invalid or expired",
			Retryable: false,
		}
	}

	if strings.Contains(errMsg, "429") ||
		strings.Contains(errMsg, "rate_limit") ||
		strings.Contains(errMsg, "too many requests") {
		return &model.Error{
			Code:      "rate_limited",
			Message:   "Anthropic API rate limit exceeded",
			Retryable: true,
		}
	}

	if strings.Contains(errMsg, "quota") ||
		strings.Contains(errMsg, "billing") {
		return &model.Error{
			Code:      "quota_exceeded",
			Message:   "Anthropic API quota exceeded",
			Retryable: false,
		}
	}

	if strings.Contains(errMsg, "timeout") ||
		strings.Contains(errMsg, "deadline") {
		return &model.Error{
			Code:      "timeout",
			Message:   "Anthropic API request timed out",
			Retryable: true,
		}
	}

	if strings.Contains(errMsg, "500") ||
		strings.Contains(errMsg, "529") ||
		strings.Contains(errMsg, "overloaded") {
		return &model.Error{
			Code:      "server_error",
			Message:   fmt.Sprintf("Anthropic API server error: %v", err),
			Retryable: true,
		}
	}

	return &model.Error{
		Code:      "api_error",
		Message:   fmt.Sprintf("Anthropic API error: %v", err),
		Retryable: false,
	}
}
