package llm

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// anthropicClient talks to the Anthropic Messages API.
type anthropicClient struct {
	client anthropic.Client
	model  anthropic.Model
}

func newAnthropicClient(model, apiKey string) *anthropicClient {
	return &anthropicClient{
		client: anthropic.NewClient(option.WithAPIKey(apiKey)),
		model:  anthropic.Model(model),
	}
}

func (c *anthropicClient) Complete(ctx context.Context, system, user string) (string, error) {
	resp, err := c.request(ctx, system, user, nil)
	if err != nil {
		return "", err
	}
	return resp.Text, nil
}

func (c *anthropicClient) CompleteWithTools(ctx context.Context, system, user string, tools []ToolDef) (*Response, error) {
	return c.request(ctx, system, user, tools)
}

func (c *anthropicClient) request(ctx context.Context, system, user string, tools []ToolDef) (*Response, error) {
	params := anthropic.MessageNewParams{
		Model:     c.model,
		MaxTokens: MaxTokens,
		Messages: []anthropic.MessageParam{{
			Role:    anthropic.MessageParamRole("user"),
			Content: []anthropic.ContentBlockParamUnion{anthropic.NewTextBlock(user)},
		}},
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system, Type: "text"}}
	}

	if len(tools) > 0 {
		toolParams := make([]anthropic.ToolUnionParam, 0, len(tools))
		for _, t := range tools {
			schema := anthropic.ToolInputSchemaParam{
				Type:       "object",
				Properties: t.Properties,
				Required:   t.Required,
			}
			toolParams = append(toolParams, anthropic.ToolUnionParamOfTool(schema, t.Name))
		}
		params.Tools = toolParams
		params.ToolChoice = anthropic.ToolChoiceUnionParam{
			OfAuto: &anthropic.ToolChoiceAutoParam{},
		}
	}

	resp, err := c.client.Messages.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("anthropic request: %w", err)
	}
	if resp == nil || len(resp.Content) == 0 {
		return nil, fmt.Errorf("anthropic request: empty response")
	}

	out := &Response{}
	for i := range resp.Content {
		block := &resp.Content[i]
		switch block.Type {
		case "text":
			out.Text += block.AsText().Text
		case "tool_use":
			tu := block.AsToolUse()
			var args map[string]any
			if len(tu.Input) > 0 {
				if err := json.Unmarshal(tu.Input, &args); err != nil {
					return nil, fmt.Errorf("anthropic tool input: %w", err)
				}
			}
			out.ToolCalls = append(out.ToolCalls, ToolCall{ID: tu.ID, Name: tu.Name, Args: args})
		}
	}
	return out, nil
}
