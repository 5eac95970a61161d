package fallback

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/zen-systems/finroute/pkg/adapter"
)

// AcceptFunc validates a response. A non-nil error rejects it as invalid
// output and the chain moves on to the next provider.
type AcceptFunc func(*adapter.Response) error

// Result is a successful chain invocation.
type Result struct {
	Response *adapter.Response
	Provider string
	Skipped  []Attempt
	// Dropped names the providers removed by the startup probe.
	Dropped []string
}

// SkippedNames returns the providers that failed before Provider answered.
func (r *Result) SkippedNames() []string {
	names := make([]string, len(r.Skipped))
	for i, a := range r.Skipped {
		names[i] = a.Provider
	}
	return names
}

// Invoke calls the live providers in order and returns the first success.
func (c *Chain) Invoke(ctx context.Context, req *adapter.Request) (*Result, error) {
	return c.InvokeWith(ctx, req, nil)
}

// InvokeWith is Invoke with a response validator. Every provider gets one
// attempt bounded by the attempt timeout. When ctx itself is done the chain
// stops and returns the context error; it never falls through after a
// cancellation. When every provider fails the error is an *ExhaustedError.
func (c *Chain) InvokeWith(ctx context.Context, req *adapter.Request, accept AcceptFunc) (*Result, error) {
	log := c.opts.logger.With().Str("component", "fallback").Logger()
	var attempts []Attempt

	for _, h := range c.live {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		start := time.Now()
		resp, err := c.attempt(ctx, h, req)
		if err == nil && accept != nil {
			if rejectErr := accept(resp); rejectErr != nil {
				err = &adapter.AdapterError{Provider: h.Name, Kind: adapter.KindInvalidOutput, Err: rejectErr}
			}
		}
		elapsed := time.Since(start)

		if err == nil {
			c.opts.metrics.ObserveAttempt(h.Name, "success", elapsed)
			log.Debug().Str("provider", h.Name).Dur("duration", elapsed).Int("skipped", len(attempts)).Msg("provider answered")
			return &Result{Response: resp, Provider: h.Name, Skipped: attempts, Dropped: c.droppedNames()}, nil
		}

		if ctxErr := ctx.Err(); ctxErr != nil {
			c.opts.metrics.ObserveAttempt(h.Name, "canceled", elapsed)
			return nil, fmt.Errorf("provider %s: %w", h.Name, ctxErr)
		}

		failure := adapter.Wrap(h.Name, err)
		attempts = append(attempts, Attempt{Provider: h.Name, Kind: failure.Kind, Err: failure, Duration: elapsed})
		c.opts.metrics.ObserveAttempt(h.Name, string(failure.Kind), elapsed)
		log.Warn().
			Str("provider", h.Name).
			Str("kind", string(failure.Kind)).
			Dur("duration", elapsed).
			Err(err).
			Msg("provider failed, falling through")
	}

	return nil, &ExhaustedError{Attempts: attempts}
}

func (c *Chain) attempt(ctx context.Context, h Handle, req *adapter.Request) (*adapter.Response, error) {
	actx, cancel := context.WithTimeout(ctx, c.opts.attemptTimeout)
	defer cancel()

	resp, err := h.Adapter.Generate(actx, req)
	if err != nil {
		if errors.Is(actx.Err(), context.DeadlineExceeded) && ctx.Err() == nil && adapter.KindOf(err) != adapter.KindTimeout {
			return nil, &adapter.AdapterError{Provider: h.Name, Kind: adapter.KindTimeout, Err: err}
		}
		return nil, err
	}
	if resp == nil {
		return nil, &adapter.AdapterError{Provider: h.Name, Kind: adapter.KindInvalidOutput, Err: errors.New("empty response")}
	}
	return resp, nil
}

func (c *Chain) droppedNames() []string {
	names := make([]string, len(c.dropped))
	for i, h := range c.dropped {
		names[i] = h.Name
	}
	return names
}
