package fallback

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/zen-systems/finroute/pkg/adapter"
)

var (
	// ErrProviderExhausted matches an *ExhaustedError with errors.Is.
	ErrProviderExhausted = errors.New("all providers failed")

	// ErrNoLiveProviders is wrapped in a *config.ConfigurationError when no
	// candidate survives the startup probe.
	ErrNoLiveProviders = errors.New("no live providers")
)

// Attempt records one failed provider call.
type Attempt struct {
	Provider string        `json:"provider"`
	Kind     adapter.Kind  `json:"kind"`
	Err      error         `json:"-"`
	Duration time.Duration `json:"duration"`
}

// Message returns the attempt error text.
func (a Attempt) Message() string {
	if a.Err == nil {
		return ""
	}
	return a.Err.Error()
}

// ExhaustedError is returned when every live provider failed. Attempts are in
// chain order.
type ExhaustedError struct {
	Attempts []Attempt
}

func (e *ExhaustedError) Error() string {
	if len(e.Attempts) == 0 {
		return ErrProviderExhausted.Error()
	}
	parts := make([]string, 0, len(e.Attempts))
	for _, a := range e.Attempts {
		parts = append(parts, fmt.Sprintf("%s (%s)", a.Provider, a.Kind))
	}
	return fmt.Sprintf("%s: %s", ErrProviderExhausted, strings.Join(parts, ", "))
}

func (e *ExhaustedError) Is(target error) bool {
	return target == ErrProviderExhausted
}

// Unwrap exposes the per-provider errors.
func (e *ExhaustedError) Unwrap() []error {
	errs := make([]error, 0, len(e.Attempts))
	for _, a := range e.Attempts {
		if a.Err != nil {
			errs = append(errs, a.Err)
		}
	}
	return errs
}
