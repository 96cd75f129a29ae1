// Package llm wraps the text-completion capability behind a single
// provider-agnostic interface.
package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/joescharf/repochat/internal/models"
)

// CompletionError indicates the completion capability was unavailable or
// returned unusable output.
type CompletionError struct {
	Provider string
	Err      error
}

func (e *CompletionError) Error() string {
	return fmt.Sprintf("%s completion: %v", e.Provider, e.Err)
}

func (e *CompletionError) Unwrap() error { return e.Err }

// Completer is the text-completion capability. model may be empty to use
// the client's configured default.
type Completer interface {
	Complete(ctx context.Context, messages []models.ChatMessage, model string) (string, error)
	Name() string
}

// Config selects and configures a provider.
type Config struct {
	Provider string
	APIKey   string
	Model    string
}

// New builds a Completer for the configured provider.
func New(cfg Config) (Completer, error) {
	switch strings.ToLower(cfg.Provider) {
	case "", "anthropic":
		return NewAnthropicClient(cfg.APIKey, cfg.Model), nil
	case "openai":
		return NewOpenAIClient(cfg.APIKey, cfg.Model), nil
	default:
		return nil, fmt.Errorf("unsupported llm provider: %s", cfg.Provider)
	}
}
