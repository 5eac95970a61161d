package adapter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

const (
	deepseekBaseURL      = "https://api.deepseek.com/v1"
	defaultDeepSeekModel = "deepseek-chat"
)

// DeepSeekAdapter implements the Adapter interface for DeepSeek models.
// DeepSeek uses an OpenAI-compatible API format.
type DeepSeekAdapter struct {
	apiKey     string
	baseURL    string
	model      string
	httpClient *http.Client
}

type deepseekRequest struct {
	Model          string            `json:"model"`
	Messages       []deepseekMessage `json:"messages"`
	MaxTokens      int               `json:"max_tokens,omitempty"`
	Temperature    float64           `json:"temperature"`
	ResponseFormat *deepseekFormat   `json:"response_format,omitempty"`
}

type deepseekFormat struct {
	Type string `json:"type"`
}

type deepseekMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type deepseekResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    string `json:"code"`
	} `json:"error,omitempty"`
}

// NewDeepSeekAdapter creates a new DeepSeek adapter. An empty baseURL selects
// the public endpoint.
func NewDeepSeekAdapter(apiKey, model, baseURL string) (*DeepSeekAdapter, error) {
	if apiKey == "" {
		return nil, missingKey("deepseek")
	}
	if model == "" {
		model = defaultDeepSeekModel
	}
	if baseURL == "" {
		baseURL = deepseekBaseURL
	}

	return &DeepSeekAdapter{
		apiKey:     apiKey,
		baseURL:    strings.TrimRight(baseURL, "/"),
		model:      model,
		httpClient: &http.Client{},
	}, nil
}

// Name returns the adapter identifier.
func (a *DeepSeekAdapter) Name() string {
	return "deepseek"
}

// Models returns the list of supported DeepSeek models.
func (a *DeepSeekAdapter) Models() []string {
	return []string{
		"deepseek-chat",
		"deepseek-reasoner",
	}
}

// Generate sends a request to DeepSeek. DeepSeek only supports json_object
// mode, so the schema also travels in the system prompt.
func (a *DeepSeekAdapter) Generate(ctx context.Context, req *Request) (*Response, error) {
	model := pickModel(req, a.model)

	var messages []deepseekMessage
	if system := systemPrompt(req); system != "" {
		messages = append(messages, deepseekMessage{Role: "system", Content: system})
	}
	messages = append(messages, deepseekMessage{Role: "user", Content: req.Prompt})

	reqBody := deepseekRequest{
		Model:       model,
		Messages:    messages,
		MaxTokens:   maxTokens(req),
		Temperature: req.Temperature,
	}
	if req.Schema != nil {
		reqBody.ResponseFormat = &deepseekFormat{Type: "json_object"}
	}

	jsonBody, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/chat/completions", bytes.NewReader(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+a.apiKey)

	resp, err := a.httpClient.Do(httpReq)
	if err != nil {
		return nil, Wrap(a.Name(), fmt.Errorf("deepseek API request failed: %w", err))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, Wrap(a.Name(), fmt.Errorf("failed to read response body: %w", err))
	}

	if resp.StatusCode != http.StatusOK {
		return nil, NewStatusError(a.Name(), resp.StatusCode,
			fmt.Errorf("deepseek API returned status %d: %s", resp.StatusCode, string(body)))
	}

	var deepseekResp deepseekResponse
	if err := json.Unmarshal(body, &deepseekResp); err != nil {
		return nil, &AdapterError{Provider: a.Name(), Kind: KindInvalidOutput, Err: fmt.Errorf("failed to parse response: %w", err)}
	}

	if deepseekResp.Error != nil {
		return nil, &AdapterError{Provider: a.Name(), Kind: KindOther, Err: fmt.Errorf("deepseek API error: %s (type: %s, code: %s)",
			deepseekResp.Error.Message, deepseekResp.Error.Type, deepseekResp.Error.Code)}
	}

	if len(deepseekResp.Choices) == 0 {
		return nil, &AdapterError{Provider: a.Name(), Kind: KindInvalidOutput, Err: fmt.Errorf("deepseek returned no choices")}
	}

	return &Response{
		Content: deepseekResp.Choices[0].Message.Content,
		Adapter: a.Name(),
		Model:   model,
		Usage:   newUsage(deepseekResp.Usage.PromptTokens, deepseekResp.Usage.CompletionTokens),
	}, nil
}
