package config

import (
	"fmt"
	"os"
	"regexp"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// RoutingConfig holds the routing rules configuration.
type RoutingConfig struct {
	Threshold      float64             `yaml:"threshold"`
	AttemptTimeout time.Duration       `yaml:"attempt_timeout,omitempty"`
	ProbeTimeout   time.Duration       `yaml:"probe_timeout,omitempty"`
	Providers      []ProviderConfig    `yaml:"providers"`
	Classifier     ClassifierConfig    `yaml:"classifier,omitempty"`
	Intents        map[string][]string `yaml:"intents"`
	Rules          []PatternRule       `yaml:"rules"`
	ModelAliases   map[string]string   `yaml:"model_aliases,omitempty"`
}

// ProviderConfig declares one fallback chain member. Lower priority values
// are tried first.
type ProviderConfig struct {
	Name     string `yaml:"name"`
	Model    string `yaml:"model,omitempty"`
	Priority int    `yaml:"priority"`
	BaseURL  string `yaml:"base_url,omitempty"`
}

// ClassifierConfig tunes the LLM classification request.
type ClassifierConfig struct {
	MaxTokens   int     `yaml:"max_tokens,omitempty"`
	Temperature float64 `yaml:"temperature,omitempty"`
}

// PatternRule maps keywords to a category. Higher priority rules are scanned
// first. Keywords are keyed by locale base ("es", "en").
type PatternRule struct {
	Category       string              `yaml:"category"`
	Priority       int                 `yaml:"priority"`
	Keywords       map[string][]string `yaml:"keywords"`
	RequiredParams int                 `yaml:"required_params"`
}

const defaultThreshold = 0.8

// LoadRoutingConfig reads routing configuration from a YAML file.
func LoadRoutingConfig(path string) (*RoutingConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	// An absent threshold keeps the default; an explicit 0 is honored.
	cfg := RoutingConfig{Threshold: defaultThreshold}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, &ConfigurationError{Field: path, Err: err}
	}

	applyRoutingDefaults(&cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// DefaultRoutingConfig returns the built-in financial routing table.
func DefaultRoutingConfig() *RoutingConfig {
	cfg := &RoutingConfig{
		Threshold: defaultThreshold,
		Providers: []ProviderConfig{
			{Name: "anthropic", Model: "claude-3-5-haiku-20241022", Priority: 1},
			{Name: "openai", Model: "gpt-4o", Priority: 2},
			{Name: "google", Model: "gemini-1.5-flash", Priority: 3},
		},
		Intents: map[string][]string{
			"es": {
				`\b(calcula|calcular|calculame|computa|computar|determina|determinar|halla|hallar|obten|obtener|estima|estimar|valora|valorar)\b`,
				`\bcuanto (es|vale|seria|sale)\b`,
			},
			"en": {
				`\b(calculate|compute|determine|estimate|price|value)\b`,
				`\b(work out|how much is)\b`,
			},
		},
		Rules: []PatternRule{
			{
				Category: "Derivatives",
				Priority: 50,
				Keywords: map[string][]string{
					"es": {"opcion", "opciones", "black-scholes", "black scholes", "futuro", "futuros", "forward", "swap", "griegas", "opcion call", "opcion put"},
					"en": {"option", "options", "black-scholes", "black scholes", "futures", "forward", "swap", "greeks", "call option", "put option"},
				},
				RequiredParams: 4,
			},
			{
				Category: "FixedIncome",
				Priority: 40,
				Keywords: map[string][]string{
					"es": {"bono", "bonos", "cupon", "duracion", "convexidad", "ytm", "renta fija", "rendimiento al vencimiento"},
					"en": {"bond", "bonds", "coupon", "duration", "convexity", "ytm", "yield to maturity", "fixed income"},
				},
				RequiredParams: 3,
			},
			{
				Category: "Equity",
				Priority: 30,
				Keywords: map[string][]string{
					"es": {"accion", "acciones", "dividendo", "dividendos", "gordon", "ddm", "capm", "costo del capital propio"},
					"en": {"stock", "stocks", "dividend", "dividends", "gordon", "ddm", "capm", "cost of equity"},
				},
				RequiredParams: 2,
			},
			{
				Category: "Portfolio",
				Priority: 20,
				Keywords: map[string][]string{
					"es": {"portafolio", "cartera", "sharpe", "markowitz", "frontera eficiente", "treynor"},
					"en": {"portfolio", "sharpe", "markowitz", "efficient frontier", "treynor"},
				},
				RequiredParams: 2,
			},
			{
				Category: "FinanceCorp",
				Priority: 10,
				Keywords: map[string][]string{
					"es": {"van", "tir", "wacc", "flujos", "flujo de caja", "payback", "periodo de recuperacion"},
					"en": {"npv", "irr", "wacc", "cash flow", "cash flows", "payback"},
				},
				RequiredParams: 3,
			},
		},
		ModelAliases: map[string]string{
			"haiku":  "claude-3-5-haiku-20241022",
			"sonnet": "claude-sonnet-4-20250514",
			"flash":  "gemini-1.5-flash",
		},
	}

	applyRoutingDefaults(cfg)
	return cfg
}

func applyRoutingDefaults(cfg *RoutingConfig) {
	if cfg == nil {
		return
	}
	if cfg.AttemptTimeout == 0 {
		cfg.AttemptTimeout = 30 * time.Second
	}
	if cfg.ProbeTimeout == 0 {
		cfg.ProbeTimeout = 10 * time.Second
	}
	if cfg.Classifier.MaxTokens == 0 {
		cfg.Classifier.MaxTokens = 256
	}
	for i := range cfg.Providers {
		cfg.Providers[i].Name = strings.ToLower(strings.TrimSpace(cfg.Providers[i].Name))
		cfg.Providers[i].Model = cfg.ResolveModel(cfg.Providers[i].Model)
	}
}

// Validate checks the rule table and thresholds. Any problem is a
// *ConfigurationError.
func (c *RoutingConfig) Validate() error {
	if c.Threshold < 0 || c.Threshold > 1 {
		return &ConfigurationError{Field: "threshold", Err: fmt.Errorf("must be within [0,1], got %v", c.Threshold)}
	}
	if c.AttemptTimeout < 0 || c.ProbeTimeout < 0 {
		return &ConfigurationError{Field: "timeouts", Err: fmt.Errorf("must not be negative")}
	}

	seen := make(map[string]bool, len(c.Providers))
	for i, p := range c.Providers {
		if p.Name == "" {
			return &ConfigurationError{Field: fmt.Sprintf("providers[%d].name", i), Err: fmt.Errorf("required")}
		}
		if seen[p.Name] {
			return &ConfigurationError{Field: fmt.Sprintf("providers[%d].name", i), Err: fmt.Errorf("duplicate provider %q", p.Name)}
		}
		seen[p.Name] = true
	}

	if len(c.Rules) == 0 {
		return &ConfigurationError{Field: "rules", Err: fmt.Errorf("at least one pattern rule is required")}
	}
	intents := 0
	for locale, patterns := range c.Intents {
		for i, pattern := range patterns {
			if strings.TrimSpace(pattern) != "" {
				intents++
			}
			if _, err := regexp.Compile(pattern); err != nil {
				return &ConfigurationError{Field: fmt.Sprintf("intents.%s[%d]", locale, i), Err: err}
			}
		}
	}

	if intents == 0 {
		return &ConfigurationError{Field: "intents", Err: fmt.Errorf("at least one intent pattern is required")}
	}

	for i, rule := range c.Rules {
		field := fmt.Sprintf("rules[%d]", i)
		if strings.TrimSpace(rule.Category) == "" {
			return &ConfigurationError{Field: field + ".category", Err: fmt.Errorf("required")}
		}
		if rule.RequiredParams < 0 {
			return &ConfigurationError{Field: field + ".required_params", Err: fmt.Errorf("must not be negative")}
		}
		count := 0
		for _, kws := range rule.Keywords {
			for _, kw := range kws {
				if strings.TrimSpace(kw) != "" {
					count++
				}
			}
		}
		if count == 0 {
			return &ConfigurationError{Field: field + ".keywords", Err: fmt.Errorf("rule %q has no keywords", rule.Category)}
		}
	}
	return nil
}

// SortedProviders returns the providers ordered by priority. Ties keep
// declaration order.
func (c *RoutingConfig) SortedProviders() []ProviderConfig {
	out := make([]ProviderConfig, len(c.Providers))
	copy(out, c.Providers)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Priority < out[j].Priority
	})
	return out
}
