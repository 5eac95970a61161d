package router

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/zen-systems/finroute/pkg/adapter"
	"github.com/zen-systems/finroute/pkg/config"
	"github.com/zen-systems/finroute/pkg/fallback"
	"github.com/zen-systems/finroute/pkg/metrics"
)

var errDown = adapter.NewStatusError("", 503, errors.New("service unavailable"))

func newTestRouter(t *testing.T, inv Invoker, opts ...RouterOption) *HybridRouter {
	t.Helper()
	rs, err := NewRuleSet(config.DefaultRoutingConfig())
	if err != nil {
		t.Fatalf("new rule set: %v", err)
	}
	var classifier *Classifier
	if inv != nil {
		classifier = NewClassifier(inv, rs)
	}
	return NewHybridRouter(NewMatcher(rs), classifier, opts...)
}

func buildChain(t *testing.T, probe bool, adapters ...*adapter.MockAdapter) *fallback.Chain {
	t.Helper()
	candidates := make([]fallback.Candidate, len(adapters))
	for i, a := range adapters {
		candidates[i] = fallback.Candidate{Name: a.Name(), Priority: i + 1, Adapter: a}
	}
	chain, err := fallback.Build(context.Background(), candidates, fallback.WithProbe(probe))
	if err != nil {
		t.Fatalf("build chain: %v", err)
	}
	return chain
}

func TestRouteFastPathSkipsLLM(t *testing.T) {
	llm := adapter.NewMockAdapter("openai")
	r := newTestRouter(t, buildChain(t, false, llm))

	d, err := r.Route(context.Background(), "Calcula VAN: inversión 100k, flujos [30k, 40k], tasa 10%")
	if err != nil {
		t.Fatalf("route: %v", err)
	}
	if d.Target != FinanceCorp || d.Method != MethodFast || d.Confidence < 0.999 {
		t.Fatalf("unexpected decision %+v", d)
	}
	if d.Meta(MetaParamCount) != 3 || d.Meta(MetaIntent) != "calcula" {
		t.Fatalf("unexpected metadata %+v", d.Metadata)
	}
	if llm.Calls() != 0 {
		t.Fatalf("fast path must not call the LLM, got %d calls", llm.Calls())
	}
}

func TestRouteLowConfidenceUsesLLM(t *testing.T) {
	llm := adapter.NewMockAdapter("openai").WithScript(adapter.MockStep{Content: `{"category":"Theory","normalized_query":"qué es el valor actual neto"}`})
	r := newTestRouter(t, buildChain(t, false, llm))

	d, err := r.Route(context.Background(), "¿Qué es el VAN?", WithLocale("es"))
	if err != nil {
		t.Fatalf("route: %v", err)
	}
	if d.Target != Theory || d.Method != MethodLLMFallback {
		t.Fatalf("unexpected decision %+v", d)
	}
	if fc, ok := d.Meta(MetaFastConfidence).(float64); !ok || fc >= DefaultThreshold {
		t.Fatalf("fast confidence should be recorded below threshold, got %v", d.Meta(MetaFastConfidence))
	}
	if d.Meta(MetaFastCategory) != "FinanceCorp" {
		t.Fatalf("fast category = %v", d.Meta(MetaFastCategory))
	}
	if d.Meta(MetaProvider) != "openai" {
		t.Fatalf("provider = %v", d.Meta(MetaProvider))
	}
}

func TestRouteProviderDownAtStartupIsDropped(t *testing.T) {
	claude := adapter.NewMockAdapter("anthropic").WithError(errDown)
	openai := adapter.NewMockAdapter("openai").WithScript(
		adapter.MockStep{Content: "pong"},
		adapter.MockStep{Content: `{"category":"Theory","normalized_query":"van"}`},
	)
	gemini := adapter.NewMockAdapter("google")
	r := newTestRouter(t, buildChain(t, true, claude, openai, gemini))

	d, err := r.Route(context.Background(), "¿Qué es el VAN?")
	if err != nil {
		t.Fatalf("route: %v", err)
	}
	if d.Meta(MetaProvider) != "openai" {
		t.Fatalf("provider = %v", d.Meta(MetaProvider))
	}
	if !reflect.DeepEqual(d.Meta(MetaDroppedProviders), []string{"anthropic"}) {
		t.Fatalf("dropped = %v", d.Meta(MetaDroppedProviders))
	}
	if gemini.Calls() != 1 {
		t.Fatalf("gemini should only see the probe, got %d calls", gemini.Calls())
	}
}

func TestRouteProviderDownAtInvokeIsSkipped(t *testing.T) {
	claude := adapter.NewMockAdapter("anthropic").WithScript(adapter.MockStep{Content: "pong"}).WithError(errDown)
	openai := adapter.NewMockAdapter("openai")
	gemini := adapter.NewMockAdapter("google")
	r := newTestRouter(t, buildChain(t, true, claude, openai, gemini))

	d, err := r.Route(context.Background(), "¿Qué es el VAN?")
	if err != nil {
		t.Fatalf("route: %v", err)
	}
	if d.Meta(MetaProvider) != "openai" || d.Method != MethodLLMFallback {
		t.Fatalf("unexpected decision %+v", d)
	}
	if !reflect.DeepEqual(d.Meta(MetaSkippedProviders), []string{"anthropic"}) {
		t.Fatalf("skipped = %v", d.Meta(MetaSkippedProviders))
	}
}

func TestRouteAllProvidersDown(t *testing.T) {
	chain := buildChain(t, false,
		adapter.NewMockAdapter("anthropic").WithError(errDown),
		adapter.NewMockAdapter("openai").WithError(adapter.NewStatusError("", 429, errors.New("rate limited"))),
		adapter.NewMockAdapter("google").WithError(adapter.NewStatusError("", 401, errors.New("bad key"))),
	)
	m := metrics.New(prometheus.NewRegistry())
	r := newTestRouter(t, chain, WithMetrics(m))

	d, err := r.Route(context.Background(), "¿Qué es el VAN?")
	if !errors.Is(err, fallback.ErrProviderExhausted) {
		t.Fatalf("expected exhausted error, got %v", err)
	}
	if d.Target != "" || d.ID != "" {
		t.Fatalf("no decision may accompany an error, got %+v", d)
	}

	var exhausted *fallback.ExhaustedError
	if !errors.As(err, &exhausted) || len(exhausted.Attempts) != 3 {
		t.Fatalf("expected three attempts, got %v", err)
	}
	kinds := []adapter.Kind{exhausted.Attempts[0].Kind, exhausted.Attempts[1].Kind, exhausted.Attempts[2].Kind}
	if !reflect.DeepEqual(kinds, []adapter.Kind{adapter.KindUnavailable, adapter.KindRateLimit, adapter.KindAuth}) {
		t.Fatalf("kinds = %v", kinds)
	}
	if got := testutil.ToFloat64(m.RouteErrors.WithLabelValues("exhausted")); got != 1 {
		t.Fatalf("route error metric = %v", got)
	}
}

func TestRouteThresholdOneForcesLLM(t *testing.T) {
	llm := adapter.NewMockAdapter("openai").WithScript(adapter.MockStep{Content: `{"category":"FinanceCorp","normalized_query":"npv"}`})
	r := newTestRouter(t, buildChain(t, false, llm), WithThreshold(1.0))

	d, err := r.Route(context.Background(), "Calcula VAN: inversión 100k, flujos [30k, 40k], tasa 10%")
	if err != nil {
		t.Fatalf("route: %v", err)
	}
	if d.Method != MethodLLMFallback || llm.Calls() != 1 {
		t.Fatalf("expected LLM path, got %+v with %d calls", d, llm.Calls())
	}
	if d.Meta(MetaFastConfidence) != 1.0 {
		t.Fatalf("fast confidence = %v", d.Meta(MetaFastConfidence))
	}
}

func TestRouteWithoutClassifier(t *testing.T) {
	r := newTestRouter(t, nil)

	if _, err := r.Route(context.Background(), "Calcula VAN: inversión 100k, flujos [30k, 40k], tasa 10%"); err != nil {
		t.Fatalf("fast path should work without a classifier: %v", err)
	}
	_, err := r.Route(context.Background(), "¿Qué es el VAN?")
	if !errors.Is(err, ErrLLMUnavailable) {
		t.Fatalf("expected ErrLLMUnavailable, got %v", err)
	}
}

func TestRouteEmptyQuery(t *testing.T) {
	r := newTestRouter(t, nil)
	if _, err := r.Route(context.Background(), "   "); !errors.Is(err, ErrEmptyQuery) {
		t.Fatalf("expected ErrEmptyQuery, got %v", err)
	}
}

func TestRouteCancellationDoesNotFallThrough(t *testing.T) {
	slow := adapter.NewMockAdapter("anthropic").WithDelay(time.Second)
	next := adapter.NewMockAdapter("openai")
	r := newTestRouter(t, buildChain(t, false, slow, next))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := r.Route(ctx, "¿Qué es el VAN?")
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline error, got %v", err)
	}
	if errors.Is(err, fallback.ErrProviderExhausted) {
		t.Fatalf("cancellation is not exhaustion")
	}
	if next.Calls() != 0 {
		t.Fatalf("next provider must not be called after cancellation")
	}
}

func TestRouteConcurrentCalls(t *testing.T) {
	r := newTestRouter(t, buildChain(t, false, adapter.NewMockAdapter("openai")))

	done := make(chan error, 16)
	for i := 0; i < 16; i++ {
		query := "¿Qué es el VAN?"
		if i%2 == 0 {
			query = "Calcula VAN: inversión 100k, flujos [30k, 40k], tasa 10%"
		}
		go func() {
			_, err := r.Route(context.Background(), query)
			done <- err
		}()
	}
	for i := 0; i < 16; i++ {
		if err := <-done; err != nil {
			t.Fatalf("route: %v", err)
		}
	}
}
