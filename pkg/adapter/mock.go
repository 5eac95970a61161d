package adapter

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"
)

// MockStep scripts the outcome of one Generate call.
type MockStep struct {
	Content string
	Err     error
}

// MockAdapter returns deterministic responses for local runs and tests.
// Scripted steps are consumed in order; once exhausted the adapter falls back
// to its fixed error, then to prompt-keyed responses, then to a response
// synthesized from the request schema.
type MockAdapter struct {
	name      string
	responses map[string]string
	err       error
	delay     time.Duration
	Usage     *Usage

	mu     sync.Mutex
	script []MockStep
	calls  atomic.Int64
	last   atomic.Pointer[Request]
}

// NewMockAdapter creates a mock adapter reporting the given name.
func NewMockAdapter(name string) *MockAdapter {
	if name == "" {
		name = "mock"
	}
	return &MockAdapter{
		name:      name,
		responses: make(map[string]string),
	}
}

// NewMockAdapterWithResponses creates a mock adapter with predefined
// prompt-keyed responses.
func NewMockAdapterWithResponses(name string, responses map[string]string) *MockAdapter {
	m := NewMockAdapter(name)
	for k, v := range responses {
		m.responses[k] = v
	}
	return m
}

// WithError makes every unscripted call fail with err.
func (a *MockAdapter) WithError(err error) *MockAdapter {
	a.err = err
	return a
}

// WithDelay makes every call wait d or until the context is done.
func (a *MockAdapter) WithDelay(d time.Duration) *MockAdapter {
	a.delay = d
	return a
}

// WithScript queues per-call outcomes.
func (a *MockAdapter) WithScript(steps ...MockStep) *MockAdapter {
	a.mu.Lock()
	a.script = append(a.script, steps...)
	a.mu.Unlock()
	return a
}

// Calls reports how many times Generate was called.
func (a *MockAdapter) Calls() int {
	return int(a.calls.Load())
}

// LastRequest returns the most recent request, or nil.
func (a *MockAdapter) LastRequest() *Request {
	return a.last.Load()
}

// Name returns the adapter identifier.
func (a *MockAdapter) Name() string {
	return a.name
}

// Models returns the list of supported mock models.
func (a *MockAdapter) Models() []string {
	return []string{"mock-1"}
}

// Generate returns the next scripted or configured outcome.
func (a *MockAdapter) Generate(ctx context.Context, req *Request) (*Response, error) {
	a.calls.Add(1)
	a.last.Store(req)

	if a.delay > 0 {
		timer := time.NewTimer(a.delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return nil, Wrap(a.name, ctx.Err())
		case <-timer.C:
		}
	}

	if step, ok := a.nextStep(); ok {
		if step.Err != nil {
			return nil, Wrap(a.name, step.Err)
		}
		return a.response(req, step.Content), nil
	}

	if a.err != nil {
		return nil, Wrap(a.name, a.err)
	}
	if content, ok := a.responses[req.Prompt]; ok {
		return a.response(req, content), nil
	}
	return a.response(req, synthesize(req)), nil
}

func (a *MockAdapter) nextStep() (MockStep, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if len(a.script) == 0 {
		return MockStep{}, false
	}
	step := a.script[0]
	a.script = a.script[1:]
	return step, true
}

func (a *MockAdapter) response(req *Request, content string) *Response {
	return &Response{
		Content: content,
		Adapter: a.name,
		Model:   pickModel(req, "mock-1"),
		Usage:   a.Usage,
	}
}

// synthesize builds a schema-conforming object: the first enum value for
// enumerated fields and the prompt for free-text ones.
func synthesize(req *Request) string {
	if req.Schema == nil {
		return "mock response:\n" + req.Prompt
	}
	obj := make(map[string]any, len(req.Schema.Properties))
	for name, p := range req.Schema.Properties {
		switch {
		case len(p.Enum) > 0:
			obj[name] = p.Enum[0]
		case p.Type == "string":
			obj[name] = req.Prompt
		case p.Type == "boolean":
			obj[name] = false
		default:
			obj[name] = 0
		}
	}
	out, err := json.Marshal(obj)
	if err != nil {
		return "{}"
	}
	return string(out)
}
