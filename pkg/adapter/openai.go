package adapter

import (
	"context"
	"errors"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

const defaultOpenAIModel = "gpt-4o"

// OpenAIAdapter implements the Adapter interface for OpenAI models.
type OpenAIAdapter struct {
	client openai.Client
	model  string
}

// NewOpenAIAdapter creates a new OpenAI adapter.
func NewOpenAIAdapter(apiKey, model string) (*OpenAIAdapter, error) {
	if apiKey == "" {
		return nil, missingKey("openai")
	}
	if model == "" {
		model = defaultOpenAIModel
	}

	client := openai.NewClient(
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0),
	)
	return &OpenAIAdapter{client: client, model: model}, nil
}

// Name returns the adapter identifier.
func (a *OpenAIAdapter) Name() string {
	return "openai"
}

// Models returns the list of supported OpenAI models.
func (a *OpenAIAdapter) Models() []string {
	return []string{
		"gpt-4o",
		"gpt-4o-mini",
	}
}

// Generate sends a request to OpenAI. A schema is enforced with a strict
// json_schema response format.
func (a *OpenAIAdapter) Generate(ctx context.Context, req *Request) (*Response, error) {
	model := pickModel(req, a.model)

	var messages []openai.ChatCompletionMessageParamUnion
	if req.System != "" {
		messages = append(messages, openai.SystemMessage(req.System))
	}
	messages = append(messages, openai.UserMessage(req.Prompt))

	params := openai.ChatCompletionNewParams{
		Model:               openai.ChatModel(model),
		Messages:            messages,
		MaxCompletionTokens: openai.Int(int64(maxTokens(req))),
		Temperature:         openai.Float(req.Temperature),
	}
	if req.Schema != nil {
		params.ResponseFormat = openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONSchema: &openai.ResponseFormatJSONSchemaParam{
				JSONSchema: openai.ResponseFormatJSONSchemaJSONSchemaParam{
					Name:   req.Schema.Name,
					Schema: req.Schema.JSONSchema(),
					Strict: openai.Bool(true),
				},
			},
		}
	}

	resp, err := a.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, a.wrapError(err)
	}

	if len(resp.Choices) == 0 {
		return nil, &AdapterError{Provider: a.Name(), Kind: KindInvalidOutput, Err: fmt.Errorf("openai returned no choices")}
	}

	return &Response{
		Content: resp.Choices[0].Message.Content,
		Adapter: a.Name(),
		Model:   model,
		Usage:   newUsage(int(resp.Usage.PromptTokens), int(resp.Usage.CompletionTokens)),
	}, nil
}

func (a *OpenAIAdapter) wrapError(err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return NewStatusError(a.Name(), apiErr.StatusCode, fmt.Errorf("openai API error: %w", err))
	}
	return Wrap(a.Name(), fmt.Errorf("openai API error: %w", err))
}
