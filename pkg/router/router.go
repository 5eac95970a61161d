package router

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/zen-systems/finroute/pkg/fallback"
	"github.com/zen-systems/finroute/pkg/metrics"
)

var (
	// ErrEmptyQuery is returned for blank queries.
	ErrEmptyQuery = errors.New("query is empty")

	// ErrLLMUnavailable is returned when the fast path cannot decide and the
	// router was built without a classifier.
	ErrLLMUnavailable = errors.New("llm classifier unavailable")
)

// DefaultThreshold is the fast-path confidence needed to skip the LLM.
const DefaultThreshold = 0.8

// HybridRouter tries the pattern matcher first and defers to the LLM
// classifier when the matcher is not confident enough. It keeps no state
// between calls.
type HybridRouter struct {
	matcher    *Matcher
	classifier *Classifier
	threshold  float64
	logger     zerolog.Logger
	metrics    *metrics.Metrics
}

// RouterOption configures a HybridRouter.
type RouterOption func(*HybridRouter)

// WithThreshold sets the fast-path threshold. A threshold of 1 or more sends
// every query to the classifier.
func WithThreshold(t float64) RouterOption {
	return func(r *HybridRouter) { r.threshold = t }
}

// WithLogger sets the router logger.
func WithLogger(logger zerolog.Logger) RouterOption {
	return func(r *HybridRouter) { r.logger = logger }
}

// WithMetrics records decisions and routing errors.
func WithMetrics(m *metrics.Metrics) RouterOption {
	return func(r *HybridRouter) { r.metrics = m }
}

// NewHybridRouter creates a router. classifier may be nil, in which case
// queries the matcher cannot decide fail with ErrLLMUnavailable.
func NewHybridRouter(matcher *Matcher, classifier *Classifier, opts ...RouterOption) *HybridRouter {
	r := &HybridRouter{
		matcher:    matcher,
		classifier: classifier,
		threshold:  DefaultThreshold,
		logger:     zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = r.logger.With().Str("component", "router").Logger()
	return r
}

// Threshold returns the configured fast-path threshold.
func (r *HybridRouter) Threshold() float64 {
	return r.threshold
}

// Matcher returns the router's pattern matcher.
func (r *HybridRouter) Matcher() *Matcher {
	return r.matcher
}

type routeOptions struct {
	locale string
}

// RouteOption configures a single Route call.
type RouteOption func(*routeOptions)

// WithLocale passes a BCP 47 locale hint ("es", "en-US").
func WithLocale(locale string) RouteOption {
	return func(o *routeOptions) { o.locale = locale }
}

// Route produces a decision for query. When the classifier fails the error is
// returned as is; Route never guesses a category.
func (r *HybridRouter) Route(ctx context.Context, query string, opts ...RouteOption) (Decision, error) {
	var o routeOptions
	for _, opt := range opts {
		opt(&o)
	}

	if strings.TrimSpace(query) == "" {
		r.metrics.ObserveRouteError("empty_query")
		return Decision{}, ErrEmptyQuery
	}

	match := r.matcher.Classify(query, o.locale)
	if r.fastPathAccepts(match) {
		d := newDecision(match.Category, match.Confidence, MethodFast)
		d.Metadata[MetaFastConfidence] = match.Confidence
		d.Metadata[MetaMatchedKeywords] = match.MatchedKeywords
		d.Metadata[MetaParamCount] = match.ParamCount
		d.Metadata[MetaIntent] = match.Intent
		if match.Locale != "" {
			d.Metadata[MetaLocale] = match.Locale
		}
		r.metrics.ObserveDecision(string(d.Method), string(d.Target), match.Confidence)
		r.logger.Debug().
			Str("method", string(d.Method)).
			Str("target", string(d.Target)).
			Float64("confidence", d.Confidence).
			Msg("routed on fast path")
		return d, nil
	}

	if r.classifier == nil {
		r.metrics.ObserveRouteError("llm_unavailable")
		return Decision{}, fmt.Errorf("fast path confidence %.2f below threshold %.2f: %w",
			match.Confidence, r.threshold, ErrLLMUnavailable)
	}

	d, err := r.classifier.Classify(ctx, query, o.locale)
	if err != nil {
		r.metrics.ObserveRouteError(errorReason(ctx, err))
		r.logger.Warn().Err(err).Float64("fast_confidence", match.Confidence).Msg("llm classification failed")
		return Decision{}, fmt.Errorf("llm classification: %w", err)
	}

	d.Metadata[MetaFastConfidence] = match.Confidence
	if match.Category != "" {
		d.Metadata[MetaFastCategory] = string(match.Category)
	}
	r.metrics.ObserveDecision(string(d.Method), string(d.Target), match.Confidence)
	r.logger.Debug().
		Str("method", string(d.Method)).
		Str("target", string(d.Target)).
		Interface("provider", d.Meta(MetaProvider)).
		Float64("fast_confidence", match.Confidence).
		Msg("routed by llm classifier")
	return d, nil
}

func (r *HybridRouter) fastPathAccepts(m Match) bool {
	if m.Category == "" || r.threshold >= 1 {
		return false
	}
	return m.Confidence >= r.threshold
}

func errorReason(ctx context.Context, err error) string {
	switch {
	case ctx.Err() != nil:
		return "canceled"
	case errors.Is(err, fallback.ErrProviderExhausted):
		return "exhausted"
	default:
		return "other"
	}
}
