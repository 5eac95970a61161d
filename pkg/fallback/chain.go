// Package fallback implements the ordered provider chain used by the LLM
// classifier: a startup liveness probe followed by strict in-order
// invocation.
package fallback

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/zen-systems/finroute/pkg/adapter"
	"github.com/zen-systems/finroute/pkg/config"
	"github.com/zen-systems/finroute/pkg/metrics"
)

const (
	DefaultAttemptTimeout = 30 * time.Second
	DefaultProbeTimeout   = 10 * time.Second
)

// Candidate is a provider offered to Build. Err records a construction
// failure such as a missing API key; such candidates are dropped without a
// probe.
type Candidate struct {
	Name     string
	Priority int
	Adapter  adapter.Adapter
	Err      error
}

// Handle is a provider after probing. Live is set once by Build.
type Handle struct {
	Name     string
	Priority int
	Live     bool
	Adapter  adapter.Adapter
	ProbeErr error
}

// Chain is an ordered list of live providers. It is immutable once built and
// safe for concurrent use.
type Chain struct {
	live    []Handle
	dropped []Handle
	opts    settings
}

type settings struct {
	logger         zerolog.Logger
	metrics        *metrics.Metrics
	attemptTimeout time.Duration
	probeTimeout   time.Duration
	probe          bool
}

// Option configures Build.
type Option func(*settings)

// WithLogger sets the logger for probe and attempt events.
func WithLogger(logger zerolog.Logger) Option {
	return func(s *settings) { s.logger = logger }
}

// WithMetrics records attempts and the live provider count.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *settings) { s.metrics = m }
}

// WithAttemptTimeout bounds each provider call. Non-positive values keep the
// default.
func WithAttemptTimeout(d time.Duration) Option {
	return func(s *settings) {
		if d > 0 {
			s.attemptTimeout = d
		}
	}
}

// WithProbeTimeout bounds each startup probe. Non-positive values keep the
// default.
func WithProbeTimeout(d time.Duration) Option {
	return func(s *settings) {
		if d > 0 {
			s.probeTimeout = d
		}
	}
}

// WithProbe enables or disables the startup probe. Disabled probing marks
// every constructed candidate live.
func WithProbe(enabled bool) Option {
	return func(s *settings) { s.probe = enabled }
}

func newSettings(opts []Option) settings {
	s := settings{
		logger:         zerolog.Nop(),
		attemptTimeout: DefaultAttemptTimeout,
		probeTimeout:   DefaultProbeTimeout,
		probe:          true,
	}
	for _, opt := range opts {
		opt(&s)
	}
	return s
}

// Build orders candidates by ascending priority (ties keep input order),
// probes each one, and keeps the survivors. Probes run concurrently.
func Build(ctx context.Context, candidates []Candidate, opts ...Option) (*Chain, error) {
	s := newSettings(opts)
	log := s.logger.With().Str("component", "fallback").Logger()

	ordered := make([]Candidate, len(candidates))
	copy(ordered, candidates)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Priority < ordered[j].Priority
	})

	handles := make([]Handle, len(ordered))
	var wg sync.WaitGroup
	for i, c := range ordered {
		handles[i] = Handle{Name: c.Name, Priority: c.Priority, Adapter: c.Adapter, ProbeErr: c.Err}
		switch {
		case c.Err != nil:
			continue
		case c.Adapter == nil:
			handles[i].ProbeErr = errors.New("no adapter configured")
			continue
		case !s.probe:
			handles[i].Live = true
			continue
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := probe(ctx, s.probeTimeout, c.Name, c.Adapter)
			handles[i].ProbeErr = err
			handles[i].Live = err == nil
		}()
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	chain := &Chain{opts: s}
	for _, h := range handles {
		if h.Live {
			chain.live = append(chain.live, h)
			log.Info().Str("provider", h.Name).Int("priority", h.Priority).Msg("provider live")
			continue
		}
		chain.dropped = append(chain.dropped, h)
		log.Warn().
			Str("provider", h.Name).
			Str("kind", string(adapter.KindOf(h.ProbeErr))).
			Err(h.ProbeErr).
			Msg("provider dropped from fallback chain")
	}
	s.metrics.SetLiveProviders(len(chain.live))

	if len(chain.live) == 0 {
		return nil, &config.ConfigurationError{Field: "providers", Err: ErrNoLiveProviders}
	}
	return chain, nil
}

func probe(ctx context.Context, timeout time.Duration, name string, a adapter.Adapter) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	resp, err := a.Generate(ctx, &adapter.Request{Prompt: "ping", MaxTokens: 1})
	if err != nil {
		return adapter.Wrap(name, err)
	}
	if resp == nil {
		return &adapter.AdapterError{Provider: name, Kind: adapter.KindInvalidOutput, Err: errors.New("empty probe response")}
	}
	return nil
}

// Providers returns the live handles in invocation order.
func (c *Chain) Providers() []Handle {
	out := make([]Handle, len(c.live))
	copy(out, c.live)
	return out
}

// Dropped returns the candidates removed at build time.
func (c *Chain) Dropped() []Handle {
	out := make([]Handle, len(c.dropped))
	copy(out, c.dropped)
	return out
}

// Len reports the number of live providers.
func (c *Chain) Len() int {
	return len(c.live)
}

// Names returns the live provider names in order.
func (c *Chain) Names() []string {
	names := make([]string, len(c.live))
	for i, h := range c.live {
		names[i] = h.Name
	}
	return names
}
