package router

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/zen-systems/finroute/pkg/config"
)

// RuleSet contains the compiled pattern rules and intent expressions.
type RuleSet struct {
	rules   []compiledRule
	intents map[string][]*regexp.Regexp
	locales []string
}

type compiledRule struct {
	category       Category
	priority       int
	requiredParams int
	// keywords are normalized and keyed by locale base.
	keywords map[string][]string
}

// NewRuleSet compiles the routing configuration. Rules are ordered by
// descending priority; ties keep declaration order.
func NewRuleSet(cfg *config.RoutingConfig) (*RuleSet, error) {
	if cfg == nil {
		return nil, &config.ConfigurationError{Field: "routing", Err: fmt.Errorf("routing config is required")}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	rs := &RuleSet{intents: make(map[string][]*regexp.Regexp)}
	localeSeen := make(map[string]bool)
	addLocale := func(l string) {
		if !localeSeen[l] {
			localeSeen[l] = true
			rs.locales = append(rs.locales, l)
		}
	}

	for locale, patterns := range cfg.Intents {
		base := canonicalLocale(locale)
		if base == "" {
			return nil, &config.ConfigurationError{Field: "intents." + locale, Err: fmt.Errorf("unknown locale")}
		}
		addLocale(base)
		for i, pattern := range patterns {
			re, err := regexp.Compile(pattern)
			if err != nil {
				return nil, &config.ConfigurationError{Field: fmt.Sprintf("intents.%s[%d]", locale, i), Err: err}
			}
			rs.intents[base] = append(rs.intents[base], re)
		}
	}

	for _, rule := range cfg.Rules {
		cr := compiledRule{
			category:       Category(strings.TrimSpace(rule.Category)),
			priority:       rule.Priority,
			requiredParams: rule.RequiredParams,
			keywords:       make(map[string][]string),
		}
		for locale, kws := range rule.Keywords {
			base := canonicalLocale(locale)
			if base == "" {
				return nil, &config.ConfigurationError{Field: "rules." + rule.Category + ".keywords." + locale, Err: fmt.Errorf("unknown locale")}
			}
			addLocale(base)
			for _, kw := range kws {
				if n := normalize(strings.TrimSpace(kw)); n != "" {
					cr.keywords[base] = append(cr.keywords[base], n)
				}
			}
		}
		rs.rules = append(rs.rules, cr)
	}

	sort.SliceStable(rs.rules, func(i, j int) bool {
		return rs.rules[i].priority > rs.rules[j].priority
	})
	sort.Strings(rs.locales)
	return rs, nil
}

// RuleInfo describes a compiled rule for display.
type RuleInfo struct {
	Category       Category            `json:"category"`
	Priority       int                 `json:"priority"`
	RequiredParams int                 `json:"required_params"`
	Keywords       map[string][]string `json:"keywords"`
}

// Rules returns the compiled rules in scan order.
func (rs *RuleSet) Rules() []RuleInfo {
	out := make([]RuleInfo, 0, len(rs.rules))
	for _, r := range rs.rules {
		kws := make(map[string][]string, len(r.keywords))
		for l, k := range r.keywords {
			kws[l] = append([]string(nil), k...)
		}
		out = append(out, RuleInfo{Category: r.category, Priority: r.priority, RequiredParams: r.requiredParams, Keywords: kws})
	}
	return out
}

// Locales returns the configured locale bases, sorted.
func (rs *RuleSet) Locales() []string {
	return append([]string(nil), rs.locales...)
}

// Categories returns the distinct rule categories in scan order.
func (rs *RuleSet) Categories() []string {
	seen := make(map[Category]bool, len(rs.rules))
	var out []string
	for _, r := range rs.rules {
		if !seen[r.category] {
			seen[r.category] = true
			out = append(out, string(r.category))
		}
	}
	return out
}

// containsTrigger reports whether text contains trigger delimited by
// non-word runes on both sides. Every occurrence is checked.
func containsTrigger(text, trigger string) bool {
	if trigger == "" {
		return false
	}
	offset := 0
	for {
		idx := strings.Index(text[offset:], trigger)
		if idx == -1 {
			return false
		}
		start := offset + idx
		end := start + len(trigger)

		before := start == 0
		if !before {
			r, _ := utf8.DecodeLastRuneInString(text[:start])
			before = !isWordRune(r)
		}
		after := end == len(text)
		if !after {
			r, _ := utf8.DecodeRuneInString(text[end:])
			after = !isWordRune(r)
		}
		if before && after {
			return true
		}

		_, size := utf8.DecodeRuneInString(text[start:])
		offset = start + size
	}
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_'
}
