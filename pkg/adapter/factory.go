package adapter

import (
	"context"
	"fmt"
	"strings"
)

// Options configures a provider adapter.
type Options struct {
	APIKey  string
	Model   string
	BaseURL string
}

// New constructs the adapter registered under name. Providers that need an
// API key fail with an auth-kind *AdapterError when it is missing.
func New(ctx context.Context, name string, opts Options) (Adapter, error) {
	var (
		a   Adapter
		err error
	)
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "anthropic", "claude":
		a, err = NewAnthropicAdapter(opts.APIKey, opts.Model)
	case "openai":
		a, err = NewOpenAIAdapter(opts.APIKey, opts.Model)
	case "google", "gemini":
		a, err = NewGoogleAdapter(ctx, opts.APIKey, opts.Model)
	case "deepseek":
		a, err = NewDeepSeekAdapter(opts.APIKey, opts.Model, opts.BaseURL)
	case "ollama":
		a = NewOllamaAdapter(opts.BaseURL, opts.Model)
	case "mock":
		a = NewMockAdapter("mock")
	default:
		return nil, fmt.Errorf("unknown provider %q", name)
	}
	if err != nil {
		return nil, err
	}
	return a, nil
}

// KnownProviders lists the names accepted by New.
func KnownProviders() []string {
	return []string{"anthropic", "openai", "google", "deepseek", "ollama", "mock"}
}
