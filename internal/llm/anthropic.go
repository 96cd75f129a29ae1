package llm

import (
	"context"
	"errors"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/joescharf/repochat/internal/models"
)

const defaultAnthropicModel = "claude-haiku-4-5-20251001"

// AnthropicClient implements Completer against the Anthropic API.
type AnthropicClient struct {
	api   *anthropic.Client
	model anthropic.Model
}

// NewAnthropicClient creates an Anthropic-backed completer.
func NewAnthropicClient(apiKey, model string) *AnthropicClient {
	opts := []option.RequestOption{}
	if apiKey != "" {
		opts = append(opts, option.WithAPIKey(apiKey))
	}
	if model == "" {
		model = defaultAnthropicModel
	}
	client := anthropic.NewClient(opts...)
	return &AnthropicClient{
		api:   &client,
		model: anthropic.Model(model),
	}
}

// Name returns the provider name.
func (c *AnthropicClient) Name() string { return "anthropic" }

// Complete sends the conversation and returns the first text block of the
// response. System-role messages become the request's system prompt.
func (c *AnthropicClient) Complete(ctx context.Context, messages []models.ChatMessage, model string) (string, error) {
	var system []anthropic.TextBlockParam
	var params []anthropic.MessageParam
	for _, m := range messages {
		switch m.Role {
		case models.RoleSystem:
			system = append(system, anthropic.TextBlockParam{Text: m.Content})
		case models.RoleAssistant:
			params = append(params, anthropic.NewAssistantMessage(anthropic.NewTextBlock(m.Content)))
		default:
			params = append(params, anthropic.NewUserMessage(anthropic.NewTextBlock(m.Content)))
		}
	}

	useModel := c.model
	if model != "" {
		useModel = anthropic.Model(model)
	}

	msg, err := c.api.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     useModel,
		MaxTokens: 4096,
		System:    system,
		Messages:  params,
	})
	if err != nil {
		return "", &CompletionError{Provider: "anthropic", Err: err}
	}

	var text string
	for _, block := range msg.Content {
		if block.Type == "text" {
			text = block.Text
			break
		}
	}
	if text == "" {
		return "", &CompletionError{Provider: "anthropic", Err: errors.New("no text content in API response")}
	}
	return text, nil
}
