package router

import (
	"math"
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/language"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Confidence weights. They sum to 1.
const (
	intentWeight  = 0.4
	paramWeight   = 0.4
	keywordWeight = 0.2
)

var (
	bracketListRe = regexp.MustCompile(`\[[^\[\]]*\]`)
	numberRe      = regexp.MustCompile(`\d+(?:[.,]\d+)*`)
)

// Match is the pattern matcher's guess for a query. Category is empty when
// no rule matched.
type Match struct {
	Category        Category `json:"category,omitempty"`
	Confidence      float64  `json:"confidence"`
	MatchedKeywords []string `json:"matched_keywords,omitempty"`
	ParamCount      int      `json:"param_count"`
	Intent          string   `json:"intent,omitempty"`
	Locale          string   `json:"locale,omitempty"`
}

// Matcher is the deterministic keyword and intent classifier. It holds no
// mutable state and is safe for concurrent use.
type Matcher struct {
	rules *RuleSet
}

// NewMatcher creates a matcher over a compiled rule set.
func NewMatcher(rules *RuleSet) *Matcher {
	return &Matcher{rules: rules}
}

// Rules returns the underlying rule set.
func (m *Matcher) Rules() *RuleSet {
	return m.rules
}

// Classify scores query against the rule table. locale is an optional BCP 47
// hint; when its base language is configured only that locale's intents and
// keywords are used, otherwise every locale is scanned.
func (m *Matcher) Classify(query, locale string) Match {
	text := normalize(query)
	locales := m.scanLocales(locale)

	match := Match{
		ParamCount: countParams(text),
		Intent:     m.intent(text, locales),
	}
	if len(locales) == 1 {
		match.Locale = locales[0]
	}

	for _, rule := range m.rules.rules {
		matched := matchKeywords(text, rule, locales)
		if len(matched) == 0 {
			continue
		}
		match.Category = rule.category
		match.MatchedKeywords = matched
		match.Confidence = score(match.Intent != "", match.ParamCount, rule.requiredParams)
		break
	}
	return match
}

// IsCalculation reports whether query carries a calculation intent.
func (m *Matcher) IsCalculation(query, locale string) bool {
	return m.intent(normalize(query), m.scanLocales(locale)) != ""
}

func (m *Matcher) scanLocales(hint string) []string {
	if base := canonicalLocale(hint); base != "" {
		for _, l := range m.rules.locales {
			if l == base {
				return []string{base}
			}
		}
	}
	return m.rules.locales
}

func (m *Matcher) intent(text string, locales []string) string {
	for _, l := range locales {
		for _, re := range m.rules.intents[l] {
			if hit := re.FindString(text); hit != "" {
				return hit
			}
		}
	}
	return ""
}

func matchKeywords(text string, rule compiledRule, locales []string) []string {
	var matched []string
	seen := make(map[string]bool)
	for _, l := range locales {
		for _, kw := range rule.keywords[l] {
			if seen[kw] {
				continue
			}
			if containsTrigger(text, kw) {
				seen[kw] = true
				matched = append(matched, kw)
			}
		}
	}
	return matched
}

// score is only called for the winning rule, so its keyword term is always
// fully satisfied.
func score(intent bool, params, required int) float64 {
	s := keywordWeight
	if intent {
		s += intentWeight
	}
	if required <= 0 {
		s += paramWeight
	} else {
		s += paramWeight * math.Min(float64(params)/float64(required), 1)
	}

	s = math.Round(s*1e4) / 1e4
	return math.Max(0, math.Min(s, 1))
}

// countParams counts numeric parameters. A bracketed list holding at least
// one number counts once; every other number counts once.
func countParams(text string) int {
	count := 0
	rest := bracketListRe.ReplaceAllStringFunc(text, func(list string) string {
		if numberRe.MatchString(list) {
			count++
		}
		return " "
	})
	return count + len(numberRe.FindAllStringIndex(rest, -1))
}

// normalize lower-cases s and strips diacritics. A fresh transformer is
// built per call since transformers carry state.
func normalize(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		out = s
	}
	return strings.ToLower(out)
}

// canonicalLocale reduces a BCP 47 tag to its base language ("es-MX" -> "es").
// Empty or unparseable tags yield "".
func canonicalLocale(tag string) string {
	tag = strings.TrimSpace(tag)
	if tag == "" {
		return ""
	}
	t, err := language.Parse(tag)
	if err != nil || t == language.Und {
		return ""
	}
	base, conf := t.Base()
	if conf == language.No {
		return ""
	}
	return base.String()
}
