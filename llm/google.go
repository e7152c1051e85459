package llm

import (
	"context"
	"fmt"

	"google.golang.org/genai"
)

// googleClient talks to the Gemini API via the official genai SDK.
type googleClient struct {
	client *genai.Client
	model  string
}

func newGoogleClient(ctx context.Context, model, apiKey string) (*googleClient, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	return &googleClient{client: client, model: model}, nil
}

func (c *googleClient) Complete(ctx context.Context, system, user string) (string, error) {
	resp, err := c.request(ctx, system, user, nil)
	if err != nil {
		return "", err
	}
	return resp.Text, nil
}

func (c *googleClient) CompleteWithTools(ctx context.Context, system, user string, tools []ToolDef) (*Response, error) {
	return c.request(ctx, system, user, tools)
}

func (c *googleClient) request(ctx context.Context, system, user string, tools []ToolDef) (*Response, error) {
	config := &genai.GenerateContentConfig{
		MaxOutputTokens: MaxTokens,
	}
	if system != "" {
		config.SystemInstruction = &genai.Content{
			Parts: []*genai.Part{{Text: system}},
		}
	}

	if len(tools) > 0 {
		decls := make([]*genai.FunctionDeclaration, 0, len(tools))
		for _, t := range tools {
			decls = append(decls, &genai.FunctionDeclaration{
				Name:        t.Name,
				Description: t.Description,
				Parameters: &genai.Schema{
					Type:       genai.TypeObject,
					Properties: geminiProperties(t.Properties),
					Required:   t.Required,
				},
			})
		}
		config.Tools = []*genai.Tool{{FunctionDeclarations: decls}}
		// Auto, not Any: the model declining every tool is a normal outcome here.
		config.ToolConfig = &genai.ToolConfig{
			FunctionCallingConfig: &genai.FunctionCallingConfig{
				Mode: genai.FunctionCallingConfigModeAuto,
			},
		}
	}

	contents := []*genai.Content{{
		Role:  "user",
		Parts: []*genai.Part{{Text: user}},
	}}

	result, err := c.client.Models.GenerateContent(ctx, c.model, contents, config)
	if err != nil {
		return nil, fmt.Errorf("gemini request: %w", err)
	}
	if result == nil {
		return nil, fmt.Errorf("gemini request: empty response")
	}

	out := &Response{Text: result.Text()}
	for _, fc := range result.FunctionCalls() {
		out.ToolCalls = append(out.ToolCalls, ToolCall{ID: fc.ID, Name: fc.Name, Args: fc.Args})
	}
	return out, nil
}

// geminiProperties converts a JSON Schema properties object into the typed
// schema the genai SDK expects.
func geminiProperties(props map[string]any) map[string]*genai.Schema {
	out := make(map[string]*genai.Schema, len(props))
	for name, raw := range props {
		prop, _ := raw.(map[string]any)
		s := &genai.Schema{Type: geminiType(prop["type"])}
		if d, ok := prop["description"].(string); ok {
			s.Description = d
		}
		out[name] = s
	}
	return out
}

func geminiType(v any) genai.Type {
	t, _ := v.(string)
	switch t {
	case "string":
		return genai.TypeString
	case "number":
		return genai.TypeNumber
	case "integer":
		return genai.TypeInteger
	case "boolean":
		return genai.TypeBoolean
	case "array":
		return genai.TypeArray
	case "object":
		return genai.TypeObject
	}
	return genai.TypeString
}
