package llm

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/responses"
)

// openaiClient talks to the OpenAI Responses API.
type openaiClient struct {
	client openai.Client
	model  string
}

func newOpenAIClient(model, apiKey string) *openaiClient {
	return &openaiClient{
		client: openai.NewClient(option.WithAPIKey(apiKey)),
		model:  model,
	}
}

func (c *openaiClient) Complete(ctx context.Context, system, user string) (string, error) {
	resp, err := c.request(ctx, system, user, nil)
	if err != nil {
		return "", err
	}
	return resp.Text, nil
}

func (c *openaiClient) CompleteWithTools(ctx context.Context, system, user string, tools []ToolDef) (*Response, error) {
	return c.request(ctx, system, user, tools)
}

func (c *openaiClient) request(ctx context.Context, system, user string, tools []ToolDef) (*Response, error) {
	input := user
	if system != "" {
		input = fmt.Sprintf("System: %s\n\n%s", system, user)
	}

	params := responses.ResponseNewParams{
		Model:           c.model,
		MaxOutputTokens: openai.Int(MaxTokens),
		Input:           responses.ResponseNewParamsInputUnion{OfString: openai.String(input)},
	}

	if len(tools) > 0 {
		toolParams := make([]responses.ToolUnionParam, 0, len(tools))
		for _, t := range tools {
			toolParams = append(toolParams, responses.ToolUnionParam{
				OfFunction: &responses.FunctionToolParam{
					Name:        t.Name,
					Description: openai.String(t.Description),
					Parameters: openai.FunctionParameters(map[string]interface{}{
						"type":       "object",
						"properties": t.Properties,
						"required":   t.Required,
					}),
				},
			})
		}
		params.Tools = toolParams
	}

	resp, err := c.client.Responses.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("openai request: %w", err)
	}
	if resp == nil {
		return nil, fmt.Errorf("openai request: empty response")
	}

	out := &Response{Text: resp.OutputText()}
	for i := range resp.Output {
		item := &resp.Output[i]
		if item.Type != "function_call" {
			continue
		}
		fc := item.AsFunctionCall()
		var args map[string]any
		if fc.Arguments != "" {
			if err := json.Unmarshal([]byte(fc.Arguments), &args); err != nil {
				return nil, fmt.Errorf("openai tool arguments: %w", err)
			}
		}
		out.ToolCalls = append(out.ToolCalls, ToolCall{ID: fc.ID, Name: fc.Name, Args: args})
	}
	return out, nil
}
