package adapter

import (
	"context"
	"errors"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

const defaultAnthropicModel = "claude-3-5-haiku-20241022"

// AnthropicAdapter implements the Adapter interface for Claude models.
type AnthropicAdapter struct {
	client anthropic.Client
	model  string
}

// NewAnthropicAdapter creates a new Anthropic adapter. SDK retries are
// disabled; the fallback chain decides what happens after a failure.
func NewAnthropicAdapter(apiKey, model string) (*AnthropicAdapter, error) {
	if apiKey == "" {
		return nil, missingKey("anthropic")
	}
	if model == "" {
		model = defaultAnthropicModel
	}

	client := anthropic.NewClient(
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0),
	)
	return &AnthropicAdapter{client: client, model: model}, nil
}

// Name returns the adapter identifier.
func (a *AnthropicAdapter) Name() string {
	return "anthropic"
}

// Models returns the list of supported Claude models.
func (a *AnthropicAdapter) Models() []string {
	return []string{
		"claude-3-5-haiku-20241022",
		"claude-sonnet-4-20250514",
	}
}

// Generate sends a request to Claude. Structured output is requested through
// the system prompt.
func (a *AnthropicAdapter) Generate(ctx context.Context, req *Request) (*Response, error) {
	model := pickModel(req, a.model)
	params := anthropic.MessageNewParams{
		Model:       anthropic.Model(model),
		MaxTokens:   int64(maxTokens(req)),
		Temperature: anthropic.Float(req.Temperature),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(req.Prompt)),
		},
	}
	if system := systemPrompt(req); system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}

	resp, err := a.client.Messages.New(ctx, params)
	if err != nil {
		return nil, a.wrapError(err)
	}

	var content string
	for _, block := range resp.Content {
		if block.Type == "text" {
			content += block.Text
		}
	}

	return &Response{
		Content: content,
		Adapter: a.Name(),
		Model:   model,
		Usage:   newUsage(int(resp.Usage.InputTokens), int(resp.Usage.OutputTokens)),
	}, nil
}

func (a *AnthropicAdapter) wrapError(err error) error {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		return NewStatusError(a.Name(), apiErr.StatusCode, fmt.Errorf("anthropic API error: %w", err))
	}
	return Wrap(a.Name(), fmt.Errorf("anthropic API error: %w", err))
}
