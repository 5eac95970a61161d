package router

import (
	"math"
	"reflect"
	"testing"

	"github.com/zen-systems/finroute/pkg/config"
)

func defaultMatcher(t *testing.T) *Matcher {
	t.Helper()
	rs, err := NewRuleSet(config.DefaultRoutingConfig())
	if err != nil {
		t.Fatalf("new rule set: %v", err)
	}
	return NewMatcher(rs)
}

func TestMatcherNPVScenario(t *testing.T) {
	m := defaultMatcher(t)

	got := m.Classify("Calcula VAN: inversión 100k, flujos [30k, 40k], tasa 10%", "")
	if got.Category != FinanceCorp {
		t.Fatalf("category = %s, want %s", got.Category, FinanceCorp)
	}
	if math.Abs(got.Confidence-1.0) > 1e-9 {
		t.Fatalf("confidence = %.4f, want 1.0", got.Confidence)
	}
	if got.ParamCount != 3 {
		t.Fatalf("param count = %d, want 3", got.ParamCount)
	}
	if got.Intent != "calcula" {
		t.Fatalf("intent = %q", got.Intent)
	}
	if !reflect.DeepEqual(got.MatchedKeywords, []string{"van", "flujos"}) {
		t.Fatalf("matched keywords = %v", got.MatchedKeywords)
	}
}

func TestMatcherTheoryQuestionIsBelowThreshold(t *testing.T) {
	m := defaultMatcher(t)

	got := m.Classify("¿Qué es el VAN?", "es")
	if got.Intent != "" {
		t.Fatalf("unexpected intent %q", got.Intent)
	}
	if got.Confidence >= DefaultThreshold {
		t.Fatalf("confidence %.2f should be below threshold", got.Confidence)
	}
	if got.Category != FinanceCorp {
		t.Fatalf("keyword should still suggest %s, got %s", FinanceCorp, got.Category)
	}
}

func TestMatcherIntentWithParamsClearsThreshold(t *testing.T) {
	m := defaultMatcher(t)

	queries := []struct {
		query  string
		locale string
		want   Category
	}{
		{"Calcula VAN: inversión 100k, flujos [30k, 40k], tasa 10%", "es", FinanceCorp},
		{"Calculate the NPV: investment 100k, cash flows [30k, 40k], rate 10%", "en", FinanceCorp},
		{"Determina el precio del bono con cupón 5%, vencimiento 10 años y ytm 6%", "", FixedIncome},
		{"Calcula con Black-Scholes una opción call: S=100, K=95, r=5%, sigma=20%", "es-MX", Derivatives},
		{"Compute the Sharpe ratio of my portfolio: return 12%, risk free 3%", "en-US", Portfolio},
		{"Estima el costo del capital propio con CAPM: beta 1.2, rf 4%, prima 6%", "", Equity},
	}
	for _, q := range queries {
		got := m.Classify(q.query, q.locale)
		if got.Category != q.want {
			t.Errorf("%q: category = %s, want %s", q.query, got.Category, q.want)
		}
		if got.Confidence < DefaultThreshold {
			t.Errorf("%q: confidence %.2f below threshold", q.query, got.Confidence)
		}
	}
}

func TestMatcherWithoutIntentStaysBelowThreshold(t *testing.T) {
	m := defaultMatcher(t)

	queries := []string{
		"¿Qué es el VAN?",
		"Explica la duración de un bono con cupón 5%, 10 años, ytm 6%",
		"What is a put option? S=100, K=95, r=5%, T=1",
		"Diferencia entre TIR y VAN para flujos [10, 20, 30]",
		"hola, ¿cómo funciona este asistente?",
	}
	for _, q := range queries {
		if got := m.Classify(q, ""); got.Confidence >= DefaultThreshold {
			t.Errorf("%q: confidence %.2f should be below threshold", q, got.Confidence)
		}
	}
}

func TestMatcherNoRuleMatch(t *testing.T) {
	m := defaultMatcher(t)

	got := m.Classify("Calcula 2 + 2", "")
	if got.Category != "" || got.Confidence != 0 {
		t.Fatalf("expected no category and zero confidence, got %+v", got)
	}
	if got.Intent == "" || got.ParamCount != 2 {
		t.Fatalf("intent and params are still reported: %+v", got)
	}
}

func TestMatcherIsDeterministic(t *testing.T) {
	m := defaultMatcher(t)
	query := "Calcula VAN y TIR: inversión 100k, flujos [30k, 40k, 50k], tasa 10%"

	first := m.Classify(query, "es")
	for i := 0; i < 50; i++ {
		if got := m.Classify(query, "es"); !reflect.DeepEqual(got, first) {
			t.Fatalf("run %d differs: %+v vs %+v", i, got, first)
		}
	}
}

func TestMatcherLocaleHint(t *testing.T) {
	m := defaultMatcher(t)
	query := "Calculate the NPV: investment 100k, cash flows [30k, 40k], rate 10%"

	if got := m.Classify(query, "es"); got.Category != "" {
		t.Fatalf("spanish hint should not see english keywords, got %+v", got)
	}
	if got := m.Classify(query, "en-GB"); got.Category != FinanceCorp || got.Locale != "en" {
		t.Fatalf("unexpected english match %+v", got)
	}
	if got := m.Classify(query, "fr"); got.Category != FinanceCorp || got.Locale != "" {
		t.Fatalf("unconfigured locale should scan every locale, got %+v", got)
	}
}

func TestMatcherPriorityFirstMatchWins(t *testing.T) {
	m := defaultMatcher(t)

	// Derivatives (priority 50) is scanned before FinanceCorp (10).
	got := m.Classify("Calcula el VAN de un swap con flujos [1, 2], tasa 5%", "es")
	if got.Category != Derivatives {
		t.Fatalf("category = %s, want %s", got.Category, Derivatives)
	}
	if !reflect.DeepEqual(got.MatchedKeywords, []string{"swap"}) {
		t.Fatalf("only the winning rule's keywords are reported, got %v", got.MatchedKeywords)
	}
}

func TestCountParams(t *testing.T) {
	tests := []struct {
		text string
		want int
	}{
		{"inversion 100k, flujos [30k, 40k], tasa 10%", 3},
		{"100k, 200k", 2},
		{"1,000,000 y 3,5%", 2},
		{"$200 y 1.5m", 2},
		{"sin numeros", 0},
		{"[a, b] y 5", 1},
		{"[1, 2] [3, 4]", 2},
	}
	for _, tt := range tests {
		if got := countParams(tt.text); got != tt.want {
			t.Errorf("countParams(%q) = %d, want %d", tt.text, got, tt.want)
		}
	}
}

func TestNormalize(t *testing.T) {
	tests := map[string]string{
		"Inversión":       "inversion",
		"¿Qué es el VAN?": "¿que es el van?",
		"AÑO":             "ano",
		"Duración":        "duracion",
	}
	for in, want := range tests {
		if got := normalize(in); got != want {
			t.Errorf("normalize(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestScoreWeights(t *testing.T) {
	tests := []struct {
		intent   bool
		params   int
		required int
		want     float64
	}{
		{true, 3, 3, 1.0},
		{true, 5, 3, 1.0},
		{false, 0, 3, 0.2},
		{true, 1, 4, 0.7},
		{false, 5, 0, 0.6},
	}
	for _, tt := range tests {
		got := score(tt.intent, tt.params, tt.required)
		if math.Abs(got-tt.want) > 1e-9 {
			t.Errorf("score(%v,%d,%d) = %.4f, want %.4f", tt.intent, tt.params, tt.required, got, tt.want)
		}
	}
}

func TestMatcherSingleKeywordRule(t *testing.T) {
	rs, err := NewRuleSet(&config.RoutingConfig{
		Threshold: 0.8,
		Intents:   map[string][]string{"es": {`\bcalcula\b`}},
		Rules: []config.PatternRule{
			{Category: "FinanceCorp", Priority: 10, RequiredParams: 3, Keywords: map[string][]string{"es": {"van"}}},
		},
	})
	if err != nil {
		t.Fatalf("new rule set: %v", err)
	}

	got := NewMatcher(rs).Classify("Calcula VAN: inversión 100k, flujos [30k, 40k], tasa 10%", "")
	if got.Category != FinanceCorp || got.ParamCount != 3 {
		t.Fatalf("unexpected match %+v", got)
	}
	if math.Abs(got.Confidence-1.0) > 1e-9 {
		t.Fatalf("confidence = %.4f, want 1.0", got.Confidence)
	}
	if !reflect.DeepEqual(got.MatchedKeywords, []string{"van"}) {
		t.Fatalf("matched keywords = %v", got.MatchedKeywords)
	}
}
