package adapter

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/genai"
)

const defaultGoogleModel = "gemini-1.5-flash"

// GoogleAdapter implements the Adapter interface for Gemini models.
type GoogleAdapter struct {
	client *genai.Client
	model  string
}

// NewGoogleAdapter creates a new Google Gemini adapter.
func NewGoogleAdapter(ctx context.Context, apiKey, model string) (*GoogleAdapter, error) {
	if apiKey == "" {
		return nil, missingKey("google")
	}
	if model == "" {
		model = defaultGoogleModel
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create google client: %w", err)
	}

	return &GoogleAdapter{
		client: client,
		model:  model,
	}, nil
}

// Name returns the adapter identifier.
func (a *GoogleAdapter) Name() string {
	return "google"
}

// Models returns the list of supported Gemini models.
func (a *GoogleAdapter) Models() []string {
	return []string{
		"gemini-1.5-flash",
		"gemini-2.0-flash",
	}
}

// Generate sends a request to Gemini. A schema is enforced with a JSON
// response MIME type and response schema.
func (a *GoogleAdapter) Generate(ctx context.Context, req *Request) (*Response, error) {
	model := pickModel(req, a.model)

	cfg := &genai.GenerateContentConfig{
		Temperature:     genai.Ptr(float32(req.Temperature)),
		MaxOutputTokens: int32(maxTokens(req)),
	}
	if req.System != "" {
		cfg.SystemInstruction = genai.NewContentFromText(req.System, genai.RoleUser)
	}
	if req.Schema != nil {
		cfg.ResponseMIMEType = "application/json"
		cfg.ResponseSchema = toGenaiSchema(req.Schema)
	}

	resp, err := a.client.Models.GenerateContent(ctx, model, genai.Text(req.Prompt), cfg)
	if err != nil {
		return nil, a.wrapError(err)
	}

	if resp == nil || len(resp.Candidates) == 0 {
		return nil, &AdapterError{Provider: a.Name(), Kind: KindInvalidOutput, Err: fmt.Errorf("google returned no candidates")}
	}

	var content string
	if resp.Candidates[0].Content != nil {
		for _, part := range resp.Candidates[0].Content.Parts {
			if part.Text != "" {
				content += part.Text
			}
		}
	}

	out := &Response{Content: content, Adapter: a.Name(), Model: model}
	if resp.UsageMetadata != nil {
		out.Usage = newUsage(int(resp.UsageMetadata.PromptTokenCount), int(resp.UsageMetadata.CandidatesTokenCount))
	}
	return out, nil
}

func (a *GoogleAdapter) wrapError(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return NewStatusError(a.Name(), apiErr.Code, fmt.Errorf("google API error: %w", err))
	}
	return Wrap(a.Name(), fmt.Errorf("google API error: %w", err))
}

func toGenaiSchema(s *Schema) *genai.Schema {
	props := make(map[string]*genai.Schema, len(s.Properties))
	for name, p := range s.Properties {
		props[name] = &genai.Schema{
			Type:        genaiType(p.Type),
			Description: p.Description,
			Enum:        p.Enum,
		}
	}
	return &genai.Schema{
		Type:       genai.TypeObject,
		Properties: props,
		Required:   s.Required,
	}
}

func genaiType(t string) genai.Type {
	switch t {
	case "number":
		return genai.TypeNumber
	case "integer":
		return genai.TypeInteger
	case "boolean":
		return genai.TypeBoolean
	default:
		return genai.TypeString
	}
}
