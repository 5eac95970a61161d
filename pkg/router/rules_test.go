package router

import (
	"testing"

	"github.com/zen-systems/finroute/pkg/config"
)

func TestContainsTrigger(t *testing.T) {
	tests := []struct {
		text    string
		trigger string
		want    bool
	}{
		{"calcula el van del proyecto", "van", true},
		{"un modelo avanzado", "van", false},
		{"avanza el van", "van", true},
		{"van", "van", true},
		{"precio black-scholes de la opcion", "black-scholes", true},
		{"flujo de caja libre", "flujo de caja", true},
		{"cash flows of 100", "cash flow", false},
		{"año van", "van", true},
		{"añovan", "van", false},
		{"", "van", false},
		{"van", "", false},
	}
	for _, tt := range tests {
		if got := containsTrigger(tt.text, tt.trigger); got != tt.want {
			t.Errorf("containsTrigger(%q, %q) = %v, want %v", tt.text, tt.trigger, got, tt.want)
		}
	}
}

func TestNewRuleSetOrdersByPriority(t *testing.T) {
	cfg := &config.RoutingConfig{
		Threshold: 0.8,
		Intents:   map[string][]string{"en": {`\bcompute\b`}},
		Rules: []config.PatternRule{
			{Category: "Low", Priority: 1, Keywords: map[string][]string{"en": {"alpha"}}},
			{Category: "HighA", Priority: 5, Keywords: map[string][]string{"en": {"beta"}}},
			{Category: "HighB", Priority: 5, Keywords: map[string][]string{"es": {"Gamma"}}},
		},
	}
	rs, err := NewRuleSet(cfg)
	if err != nil {
		t.Fatalf("new rule set: %v", err)
	}

	rules := rs.Rules()
	want := []Category{"HighA", "HighB", "Low"}
	for i, c := range want {
		if rules[i].Category != c {
			t.Fatalf("rule %d = %s, want %s", i, rules[i].Category, c)
		}
	}
	if rules[1].Keywords["es"][0] != "gamma" {
		t.Fatalf("expected normalized keyword, got %v", rules[1].Keywords)
	}
	if locales := rs.Locales(); len(locales) != 2 || locales[0] != "en" || locales[1] != "es" {
		t.Fatalf("unexpected locales %v", locales)
	}
}

func TestNewRuleSetRejectsBadConfig(t *testing.T) {
	tests := []struct {
		name string
		cfg  *config.RoutingConfig
	}{
		{"nil", nil},
		{"bad regex", &config.RoutingConfig{
			Threshold: 0.8,
			Intents:   map[string][]string{"es": {"(calcula"}},
		}},
		{"bad locale", &config.RoutingConfig{
			Threshold: 0.8,
			Intents:   map[string][]string{"es": {`\bcalcula\b`}},
			Rules:     []config.PatternRule{{Category: "X", Keywords: map[string][]string{"not a locale!": {"x"}}}},
		}},
		{"empty keywords", &config.RoutingConfig{
			Threshold: 0.8,
			Intents:   map[string][]string{"es": {`\bcalcula\b`}},
			Rules:     []config.PatternRule{{Category: "X"}},
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewRuleSet(tt.cfg)
			if !config.IsConfigurationError(err) {
				t.Fatalf("expected configuration error, got %v", err)
			}
		})
	}
}

func TestCanonicalLocale(t *testing.T) {
	tests := map[string]string{
		"es":      "es",
		"es-MX":   "es",
		"en_US":   "en",
		"EN-gb":   "en",
		"":        "",
		"und":     "",
		"!!":      "",
		" pt-BR ": "pt",
	}
	for in, want := range tests {
		if got := canonicalLocale(in); got != want {
			t.Errorf("canonicalLocale(%q) = %q, want %q", in, got, want)
		}
	}
}
