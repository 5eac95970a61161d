package adapter

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

var routeSchema = &Schema{
	Name: "route",
	Properties: map[string]Property{
		"category": {Type: "string", Enum: []string{"Theory", "Help"}},
	},
	Required: []string{"category"},
}

func TestOllamaGenerateSendsSchemaAsFormat(t *testing.T) {
	var got ollamaChatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/chat" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode: %v", err)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"model":             "qwen2.5:7b",
			"message":           map[string]string{"role": "assistant", "content": `{"category":"Theory"}`},
			"done":              true,
			"prompt_eval_count": 12,
			"eval_count":        5,
		})
	}))
	defer srv.Close()

	a := NewOllamaAdapter(srv.URL+"/", "")
	resp, err := a.Generate(context.Background(), &Request{System: "classify", Prompt: "que es el VAN", Schema: routeSchema, MaxTokens: 64})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if resp.Content != `{"category":"Theory"}` {
		t.Fatalf("unexpected content %q", resp.Content)
	}
	if resp.Usage == nil || resp.Usage.TotalTokens != 17 {
		t.Fatalf("unexpected usage %+v", resp.Usage)
	}
	if got.Stream {
		t.Fatalf("expected non-streaming request")
	}
	if got.Format == nil {
		t.Fatalf("expected schema in format field")
	}
	if got.Options.NumPredict != 64 {
		t.Fatalf("num_predict = %d", got.Options.NumPredict)
	}
	if len(got.Messages) != 2 || got.Messages[0].Role != "system" {
		t.Fatalf("unexpected messages %+v", got.Messages)
	}
}

func TestOllamaStatusErrorIsClassified(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := NewOllamaAdapter(srv.URL, "m").Generate(context.Background(), &Request{Prompt: "ping"})
	if !errors.Is(err, ErrProviderUnavailable) {
		t.Fatalf("expected unavailable, got %v", err)
	}
}

func TestDeepSeekGenerate(t *testing.T) {
	var got deepseekRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer sk-test" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		_, _ = w.Write([]byte(`{"model":"deepseek-chat","choices":[{"message":{"content":"{\"category\":\"Help\"}"}}],"usage":{"prompt_tokens":3,"completion_tokens":2}}`))
	}))
	defer srv.Close()

	a, err := NewDeepSeekAdapter("sk-test", "", srv.URL)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	resp, err := a.Generate(context.Background(), &Request{System: "classify", Prompt: "ayuda", Schema: routeSchema})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if resp.Content != `{"category":"Help"}` || resp.Model != "deepseek-chat" {
		t.Fatalf("unexpected response %+v", resp)
	}
	if got.ResponseFormat == nil || got.ResponseFormat.Type != "json_object" {
		t.Fatalf("expected json_object response format, got %+v", got.ResponseFormat)
	}

	bad, _ := NewDeepSeekAdapter("sk-wrong", "", srv.URL)
	if _, err := bad.Generate(context.Background(), &Request{Prompt: "x"}); !errors.Is(err, ErrProviderAuth) {
		t.Fatalf("expected auth error, got %v", err)
	}
}

func TestMockAdapterScriptAndSchema(t *testing.T) {
	m := NewMockAdapter("p1").WithScript(MockStep{Err: errors.New("down")}, MockStep{Content: "scripted"})

	if _, err := m.Generate(context.Background(), &Request{Prompt: "a"}); err == nil {
		t.Fatalf("expected scripted error")
	}
	resp, err := m.Generate(context.Background(), &Request{Prompt: "a"})
	if err != nil || resp.Content != "scripted" {
		t.Fatalf("unexpected second call: %v %+v", err, resp)
	}
	resp, err = m.Generate(context.Background(), &Request{Prompt: "a", Schema: routeSchema})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var obj map[string]string
	if err := json.Unmarshal([]byte(resp.Content), &obj); err != nil || obj["category"] != "Theory" {
		t.Fatalf("unexpected synthesized content %q", resp.Content)
	}
	if m.Calls() != 3 {
		t.Fatalf("calls = %d", m.Calls())
	}
}

func TestMockAdapterDelayHonorsContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewMockAdapter("slow").WithDelay(1e9).Generate(ctx, &Request{Prompt: "x"})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected canceled, got %v", err)
	}
}

func TestNewUnknownProvider(t *testing.T) {
	if _, err := New(context.Background(), "bogus", Options{}); err == nil {
		t.Fatalf("expected error for unknown provider")
	}
	a, err := New(context.Background(), "ollama", Options{})
	if err != nil || a.Name() != "ollama" {
		t.Fatalf("unexpected ollama adapter: %v", err)
	}
}

func TestMockAdapterPromptResponses(t *testing.T) {
	m := NewMockAdapterWithResponses("p1", map[string]string{"hola": `{"category":"Help"}`})

	resp, err := m.Generate(context.Background(), &Request{Prompt: "hola", Schema: routeSchema})
	if err != nil || resp.Content != `{"category":"Help"}` {
		t.Fatalf("unexpected response: %v %+v", err, resp)
	}
	if resp.Adapter != "p1" || m.LastRequest().Prompt != "hola" {
		t.Fatalf("unexpected bookkeeping %+v", resp)
	}
}

func TestKnownProvidersConstruct(t *testing.T) {
	for _, name := range KnownProviders() {
		_, err := New(context.Background(), name, Options{APIKey: "test-key"})
		if err != nil {
			t.Errorf("New(%q): %v", name, err)
		}
	}
}
