package fallback

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/zen-systems/finroute/pkg/adapter"
)

// BuildFunc produces a fresh chain, typically by re-running Build over the
// configured candidates.
type BuildFunc func(ctx context.Context) (*Chain, error)

// Holder publishes the current chain through copy-and-swap. Readers never
// block; a rebuild that fails leaves the previous chain in place.
type Holder struct {
	current atomic.Pointer[Chain]
	build   BuildFunc
	mu      sync.Mutex
	logger  zerolog.Logger
}

// NewHolder builds the initial chain.
func NewHolder(ctx context.Context, build BuildFunc, logger zerolog.Logger) (*Holder, error) {
	chain, err := build(ctx)
	if err != nil {
		return nil, err
	}
	h := &Holder{build: build, logger: logger.With().Str("component", "fallback").Logger()}
	h.current.Store(chain)
	return h, nil
}

// Load returns the current chain.
func (h *Holder) Load() *Chain {
	return h.current.Load()
}

// Rebuild re-probes and swaps in the new chain. Concurrent rebuilds are
// serialized.
func (h *Holder) Rebuild(ctx context.Context) (*Chain, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	next, err := h.build(ctx)
	if err != nil {
		h.logger.Warn().Err(err).Msg("chain rebuild failed, keeping previous chain")
		return h.current.Load(), err
	}
	prev := h.current.Swap(next)
	h.logger.Info().
		Strs("providers", next.Names()).
		Int("previous", prev.Len()).
		Msg("fallback chain rebuilt")
	return next, nil
}

// InvokeWith runs the current chain.
func (h *Holder) InvokeWith(ctx context.Context, req *adapter.Request, accept AcceptFunc) (*Result, error) {
	return h.Load().InvokeWith(ctx, req, accept)
}
