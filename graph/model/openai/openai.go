// Package openai adapts the official OpenAI Go SDK to the model.ChatModel interface.
package openai

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"

	"github.com/factorops/maintgraph/graph/model"
)

// DefaultModel is used when no model name is specified.
const DefaultModel = "gpt-4o-mini"

// ChatModel wraps the OpenAI chat completions API. The underlying
// client is safe for concurrent use.
type ChatModel struct {
	client *openai.Client
	model  string
}

// New creates an OpenAI chat model. Returns an error if apiKey is empty;
// an empty modelName falls back to DefaultModel.
func New(apiKey, modelName string) (*ChatModel, error) {
	if apiKey == "" {
		return nil, errors.New("API key cannot be empty")
	}
	if modelName == "" {
		modelName = DefaultModel
	}

	client := openai.NewClient(
		option.WithAPIKey(apiKey),
	)

	return &ChatModel{
		client: &client,
		model:  modelName,
	}, nil
}

// Chat implements model.ChatModel using the chat completions endpoint.
func (c *ChatModel) Chat(ctx context.Context, messages []model.Message) (model.ChatOut, error) {
	if err := ctx.Err(); err != nil {
		return model.ChatOut{}, err
	}

	params := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages))
	for _, msg := range messages {
		switch msg.Role {
		case model.RoleSystem:
			params = append(params, openai.ChatCompletionMessageParamUnion{
				OfSystem: &openai.ChatCompletionSystemMessageParam{
					Content: openai.ChatCompletionSystemMessageParamContentUnion{
						OfString: openai.String(msg.Content),
					},
				},
			})
		case model.RoleAssistant:
			params = append(params, openai.ChatCompletionMessageParamUnion{
				OfAssistant: &openai.ChatCompletionAssistantMessageParam{
					Content: openai.ChatCompletionAssistantMessageParamContentUnion{
						OfString: openai.String(msg.Content),
					},
				},
			})
		default:
			params = append(params, openai.ChatCompletionMessageParamUnion{
				OfUser: &openai.ChatCompletionUserMessageParam{
					Content: openai.ChatCompletionUserMessageParamContentUnion{
						OfString: openai.String(msg.Content),
					},
				},
			})
		}
	}

	completion, err := c.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model:    shared.ChatModel(c.model),
		Messages: params,
	})
	if err != nil {
		return model.ChatOut{}, mapError(err)
	}

	if len(completion.Choices) == 0 {
		return model.ChatOut{}, &model.Error{
			Code:    "empty_response",
			Message: "no choices in OpenAI response",
		}
	}

	return model.ChatOut{
		Text:       completion.Choices[0].Message.Content,
		TokensUsed: int(completion.Usage.TotalTokens),
	}, nil
}

// mapError converts OpenAI API errors into model.Error values,
// distinguishing retryable transient failures from permanent ones.
func mapError(err error) error {
	if errors.Is(err, context.Canceled) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &model.Error{
			Code:      "timeout",
			Message:   "OpenAI API request timed out",
			Retryable: true,
		}
	}

	lowerErr := strings.ToLower(err.Error())

	if strings.Contains(lowerErr, "rate limit") ||
		strings.Contains(lowerErr, "429") ||
		strings.Contains(lowerErr, "too many requests") {
		return &model.Error{
			Code:      "rate_limited",
			Message:   "OpenAI API rate limit exceeded",
			Retryable: true,
		}
	}

	if strings.Contains(lowerErr, "401") ||
		strings.Contains(lowerErr, "unauthorized") ||
		strings.Contains(lowerErr, "invalid api key") ||
		strings.Contains(lowerErr, "authentication") {
		return &model.Error{
			Code:      "invalid_api_key",
			Message:   "OpenAI API key is invalid or expired",
			Retryable: false,
		}
	}

	if strings.Contains(lowerErr, "quota") ||
		strings.Contains(lowerErr, "billing") {
		return &model.Error{
			Code:      "quota_exceeded",
			Message:   "OpenAI API quota exceeded",
			Retryable: false,
		}
	}

	if strings.Contains(lowerErr, "500") ||
		strings.Contains(lowerErr, "502") ||
		strings.Contains(lowerErr, "503") ||
		strings.Contains(lowerErr, "internal server error") ||
		strings.Contains(lowerErr, "service unavailable") {
		return &model.Error{
			Code:      "server_error",
			Message:   fmt.Sprintf("OpenAI API server error: %v", err),
			Retryable: true,
		}
	}

	if strings.Contains(lowerErr, "connection") ||
		strings.Contains(lowerErr, "timeout") ||
		strings.Contains(lowerErr, "network") {
		return &model.Error{
			Code:      "network_error",
			Message:   fmt.Sprintf("network error calling OpenAI API: %v", err),
			Retryable: true,
		}
	}

	return &model.Error{
		Code:      "api_error",
		Message:   fmt.Sprintf("OpenAI API error: %v", err),
		Retryable: false,
	}
}
