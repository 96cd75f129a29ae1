package llm

import (
	"context"
	"errors"

	openai "github.com/sashabaranov/go-openai"

	"github.com/joescharf/repochat/internal/models"
)

const defaultOpenAIModel = "gpt-4o-mini"

// OpenAIClient implements Completer against the OpenAI chat API.
type OpenAIClient struct {
	api   *openai.Client
	model string
}

// NewOpenAIClient creates an OpenAI-backed completer.
func NewOpenAIClient(apiKey, model string) *OpenAIClient {
	if model == "" {
		model = defaultOpenAIModel
	}
	return &OpenAIClient{
		api:   openai.NewClient(apiKey),
		model: model,
	}
}

// Name returns the provider name.
func (c *OpenAIClient) Name() string { return "openai" }

// Complete sends the conversation and returns the first choice's content.
func (c *OpenAIClient) Complete(ctx context.Context, messages []models.ChatMessage, model string) (string, error) {
	converted := make([]openai.ChatCompletionMessage, 0, len(messages))
	for _, m := range messages {
		role := openai.ChatMessageRoleUser
		switch m.Role {
		case models.RoleSystem:
			role = openai.ChatMessageRoleSystem
		case models.RoleAssistant:
			role = openai.ChatMessageRoleAssistant
		}
		converted = append(converted, openai.ChatCompletionMessage{Role: role, Content: m.Content})
	}

	useModel := c.model
	if model != "" {
		useModel = model
	}

	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:    useModel,
		Messages: converted,
	})
	if err != nil {
		return "", &CompletionError{Provider: "openai", Err: err}
	}
	if len(resp.Choices) == 0 {
		return "", &CompletionError{Provider: "openai", Err: errors.New("no choices in API response")}
	}
	return resp.Choices[0].Message.Content, nil
}
