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
	defaultOllamaURL   = "http://localhost:11434"
	defaultOllamaModel = "qwen2.5:7b"
)

// OllamaAdapter talks to a local Ollama server. It needs no API key.
type OllamaAdapter struct {
	baseURL    string
	model      string
	httpClient *http.Client
}

type ollamaChatRequest struct {
	Model    string          `json:"model"`
	Messages []ollamaMessage `json:"messages"`
	Stream   bool            `json:"stream"`
	Format   any             `json:"format,omitempty"`
	Options  ollamaOptions   `json:"options"`
}

type ollamaOptions struct {
	Temperature float64 `json:"temperature"`
	NumPredict  int     `json:"num_predict,omitempty"`
}

type ollamaMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ollamaChatResponse struct {
	Model           string        `json:"model"`
	Message         ollamaMessage `json:"message"`
	Done            bool          `json:"done"`
	PromptEvalCount int           `json:"prompt_eval_count"`
	EvalCount       int           `json:"eval_count"`
}

// NewOllamaAdapter creates an adapter for the Ollama server at baseURL.
func NewOllamaAdapter(baseURL, model string) *OllamaAdapter {
	if baseURL == "" {
		baseURL = defaultOllamaURL
	}
	if model == "" {
		model = defaultOllamaModel
	}

	return &OllamaAdapter{
		baseURL:    strings.TrimRight(baseURL, "/"),
		model:      model,
		httpClient: &http.Client{},
	}
}

// Name returns the adapter identifier.
func (a *OllamaAdapter) Name() string {
	return "ollama"
}

// Models returns the configured local model.
func (a *OllamaAdapter) Models() []string {
	return []string{a.model}
}

// Generate sends a non-streaming chat request. A schema is passed as the
// format field, which Ollama enforces during decoding.
func (a *OllamaAdapter) Generate(ctx context.Context, req *Request) (*Response, error) {
	model := pickModel(req, a.model)

	messages := make([]ollamaMessage, 0, 2)
	if req.System != "" {
		messages = append(messages, ollamaMessage{Role: "system", Content: req.System})
	}
	messages = append(messages, ollamaMessage{Role: "user", Content: req.Prompt})

	reqBody := ollamaChatRequest{
		Model:    model,
		Messages: messages,
		Stream:   false,
		Options: ollamaOptions{
			Temperature: req.Temperature,
			NumPredict:  maxTokens(req),
		},
	}
	if req.Schema != nil {
		reqBody.Format = req.Schema.JSONSchema()
	}

	jsonBody, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/api/chat", bytes.NewReader(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := a.httpClient.Do(httpReq)
	if err != nil {
		return nil, Wrap(a.Name(), fmt.Errorf("ollama request failed: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, NewStatusError(a.Name(), resp.StatusCode,
			fmt.Errorf("ollama error (status %d): %s", resp.StatusCode, string(body)))
	}

	var ollamaResp ollamaChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&ollamaResp); err != nil {
		return nil, &AdapterError{Provider: a.Name(), Kind: KindInvalidOutput, Err: fmt.Errorf("failed to decode response: %w", err)}
	}

	return &Response{
		Content: ollamaResp.Message.Content,
		Adapter: a.Name(),
		Model:   model,
		Usage:   newUsage(ollamaResp.PromptEvalCount, ollamaResp.EvalCount),
	}, nil
}
