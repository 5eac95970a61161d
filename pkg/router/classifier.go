package router

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/zen-systems/finroute/pkg/adapter"
	"github.com/zen-systems/finroute/pkg/fallback"
)

// llmConfidence is reported for every classifier decision; providers do not
// return a calibrated score.
const llmConfidence = 0.95

// Invoker runs a request through the provider fallback chain. Both
// *fallback.Chain and *fallback.Holder implement it.
type Invoker interface {
	InvokeWith(ctx context.Context, req *adapter.Request, accept fallback.AcceptFunc) (*fallback.Result, error)
}

// Classifier asks an LLM, through the fallback chain, which category should
// handle a query.
type Classifier struct {
	invoker     Invoker
	categories  categorySet
	schema      *adapter.Schema
	maxTokens   int
	temperature float64
}

// ClassifierOption configures a Classifier.
type ClassifierOption func(*Classifier)

// WithMaxTokens caps the classification completion.
func WithMaxTokens(n int) ClassifierOption {
	return func(c *Classifier) {
		if n > 0 {
			c.maxTokens = n
		}
	}
}

// WithTemperature sets the sampling temperature.
func WithTemperature(t float64) ClassifierOption {
	return func(c *Classifier) { c.temperature = t }
}

// NewClassifier creates a classifier that accepts Theory, Help and every
// category named by the rule set.
func NewClassifier(invoker Invoker, rules *RuleSet, opts ...ClassifierOption) *Classifier {
	var ruleCategories []string
	if rules != nil {
		ruleCategories = rules.Categories()
	}
	c := &Classifier{
		invoker:    invoker,
		categories: newCategorySet(ruleCategories),
		maxTokens:  256,
	}
	c.schema = &adapter.Schema{
		Name: "routing_decision",
		Properties: map[string]adapter.Property{
			"category": {
				Type:        "string",
				Description: "The handler that should answer the query",
				Enum:        c.categories.strings(),
			},
			"normalized_query": {
				Type:        "string",
				Description: "Self-contained rewrite of the query for document retrieval",
			},
		},
		Required: []string{"category", "normalized_query"},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Categories returns the categories the classifier may answer.
func (c *Classifier) Categories() []Category {
	return append([]Category(nil), c.categories...)
}

// Classify sends one classification request through the chain. A response
// that is not valid JSON or names an unknown category counts as that
// provider's failure. When every provider fails the error matches
// fallback.ErrProviderExhausted.
func (c *Classifier) Classify(ctx context.Context, query, locale string) (Decision, error) {
	var picked classifierPick
	req := &adapter.Request{
		System:      c.instruction(locale),
		Prompt:      query,
		Schema:      c.schema,
		MaxTokens:   c.maxTokens,
		Temperature: c.temperature,
	}

	res, err := c.invoker.InvokeWith(ctx, req, func(resp *adapter.Response) error {
		p, err := parseClassifierResponse(resp.Content, c.categories)
		if err != nil {
			return err
		}
		picked = *p
		return nil
	})
	if err != nil {
		return Decision{}, err
	}

	d := newDecision(picked.category, llmConfidence, MethodLLMFallback)
	d.Metadata[MetaProvider] = res.Provider
	d.Metadata[MetaSkippedProviders] = res.SkippedNames()
	d.Metadata[MetaDroppedProviders] = append([]string{}, res.Dropped...)
	if res.Response != nil && res.Response.Model != "" {
		d.Metadata[MetaModel] = res.Response.Model
	}
	if picked.normalizedQuery != "" {
		d.Metadata[MetaNormalizedQuery] = picked.normalizedQuery
	}
	if base := canonicalLocale(locale); base != "" {
		d.Metadata[MetaLocale] = base
	}
	return d, nil
}

func (c *Classifier) instruction(locale string) string {
	var sb strings.Builder
	sb.WriteString("You are the routing classifier of a financial tutoring assistant. ")
	sb.WriteString("Choose the single category that should answer the user's query.\n\nCategories:\n")
	for _, cat := range c.categories {
		sb.WriteString(fmt.Sprintf("- %s: %s\n", cat, cat.Describe()))
	}
	sb.WriteString("\nPick a calculation category only when the user asks for a computation. ")
	sb.WriteString("Definitions and explanations belong to Theory even when they name a calculation topic.\n")
	sb.WriteString("normalized_query must be a self-contained rewrite of the query for document retrieval")
	if base := canonicalLocale(locale); base != "" {
		sb.WriteString(fmt.Sprintf(", written in the language %q", base))
	} else {
		sb.WriteString(", in the language of the query")
	}
	sb.WriteString(".\n")
	sb.WriteString(fmt.Sprintf("Return ONLY JSON: {\"category\":\"<one of %s>\",\"normalized_query\":\"...\"}.",
		strings.Join(c.categories.strings(), "|")))
	return sb.String()
}

type classifierPick struct {
	category        Category
	normalizedQuery string
}

type classifierPayload struct {
	Category        string `json:"category"`
	NormalizedQuery string `json:"normalized_query"`
}

func parseClassifierResponse(content string, allowed categorySet) (*classifierPick, error) {
	content = strings.TrimSpace(content)
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")
	content = strings.TrimSpace(content)

	if start, end := strings.Index(content, "{"), strings.LastIndex(content, "}"); start >= 0 && end > start {
		content = content[start : end+1]
	}

	var payload classifierPayload
	if err := json.Unmarshal([]byte(content), &payload); err != nil {
		return nil, fmt.Errorf("classifier response is not JSON: %w", err)
	}
	if strings.TrimSpace(payload.Category) == "" {
		return nil, fmt.Errorf("missing category")
	}
	category, ok := allowed.lookup(payload.Category)
	if !ok {
		return nil, fmt.Errorf("category %q not in allowed set", payload.Category)
	}
	return &classifierPick{
		category:        category,
		normalizedQuery: strings.TrimSpace(payload.NormalizedQuery),
	}, nil
}
