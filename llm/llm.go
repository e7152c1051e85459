// Package llm abstracts the model providers used to generate review roadmaps.
// Providers are selected by name via New; all of them implement Client.
package llm

import (
	"context"
	"fmt"
	"strings"
)

// MaxTokens is the response cap for all providers. Roadmaps can be lengthy.
const MaxTokens = 4096

// ToolDef describes one tool offered to the model.
type ToolDef struct {
	Name        string
	Description string
	// Properties is the JSON Schema properties object for the tool arguments.
	Properties map[string]any
	Required   []string
}

// ToolCall is a single tool invocation requested by the model.
type ToolCall struct {
	ID   string
	Name string
	Args map[string]any
}

// Response is a model response that may carry tool invocations alongside text.
type Response struct {
	Text      string
	ToolCalls []ToolCall
}

// Client is implemented by every model provider.
type Client interface {
	// Complete sends a system+user prompt pair and returns the text response.
	Complete(ctx context.Context, system, user string) (string, error)
	// CompleteWithTools additionally offers tools the model may invoke.
	// The model deciding not to call any tool is a normal response.
	CompleteWithTools(ctx context.Context, system, user string, tools []ToolDef) (*Response, error)
}

// Config selects and authenticates a provider.
type Config struct {
	Provider string // "anthropic", "openai" or "google"
	Model    string
	APIKey   string
}

// New returns a Client for the configured provider. Unknown providers are a
// configuration error, reported eagerly rather than on first use.
func New(ctx context.Context, cfg Config) (Client, error) {
	switch strings.ToLower(cfg.Provider) {
	case "anthropic":
		return newAnthropicClient(cfg.Model, cfg.APIKey), nil
	case "openai":
		return newOpenAIClient(cfg.Model, cfg.APIKey), nil
	case "google":
		return newGoogleClient(ctx, cfg.Model, cfg.APIKey)
	default:
		return nil, fmt.Errorf("unsupported llm provider: %q", cfg.Provider)
	}
}
