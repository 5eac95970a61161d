package router

import "strings"

// Category identifies the downstream handler for a query.
type Category string

const (
	Theory      Category = "Theory"
	Help        Category = "Help"
	FinanceCorp Category = "FinanceCorp"
	FixedIncome Category = "FixedIncome"
	Equity      Category = "Equity"
	Portfolio   Category = "Portfolio"
	Derivatives Category = "Derivatives"
)

var categoryDescriptions = map[Category]string{
	Theory:      "conceptual questions, definitions and explanations of financial ideas",
	Help:        "questions about how to use the assistant or what it can do",
	FinanceCorp: "corporate finance calculations: NPV, IRR, WACC, cash flows, payback",
	FixedIncome: "bond calculations: price, yield to maturity, duration, convexity",
	Equity:      "equity valuation: dividend discount models, CAPM, cost of equity",
	Portfolio:   "portfolio calculations: returns, risk, Sharpe ratio, efficient frontier",
	Derivatives: "derivative pricing: options, Black-Scholes, futures, forwards, swaps",
}

// Describe returns a short description used in the classifier instruction.
func (c Category) Describe() string {
	if d, ok := categoryDescriptions[c]; ok {
		return d
	}
	return "calculation requests for " + string(c)
}

// categorySet is the ordered list of categories the classifier may answer.
type categorySet []Category

func newCategorySet(ruleCategories []string) categorySet {
	set := categorySet{Theory, Help}
	for _, name := range ruleCategories {
		c := Category(name)
		if !set.contains(c) {
			set = append(set, c)
		}
	}
	return set
}

func (s categorySet) contains(c Category) bool {
	_, ok := s.lookup(string(c))
	return ok
}

// lookup matches name case-insensitively and returns the canonical spelling.
func (s categorySet) lookup(name string) (Category, bool) {
	name = strings.TrimSpace(name)
	for _, c := range s {
		if strings.EqualFold(string(c), name) {
			return c, true
		}
	}
	return "", false
}

func (s categorySet) strings() []string {
	out := make([]string, len(s))
	for i, c := range s {
		out[i] = string(c)
	}
	return out
}
