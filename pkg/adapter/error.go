package adapter

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
)

// Sentinel errors for each provider failure kind. Use errors.Is against an
// *AdapterError to test the kind.
var (
	ErrProviderAuth        = errors.New("provider authentication failed")
	ErrProviderTimeout     = errors.New("provider timed out")
	ErrProviderRateLimit   = errors.New("provider rate limited")
	ErrProviderUnavailable = errors.New("provider unavailable")
	ErrInvalidOutput       = errors.New("provider returned invalid output")
)

// Kind classifies a provider failure.
type Kind string

const (
	KindAuth          Kind = "auth"
	KindTimeout       Kind = "timeout"
	KindRateLimit     Kind = "rate_limit"
	KindUnavailable   Kind = "unavailable"
	KindInvalidOutput Kind = "invalid_output"
	KindOther         Kind = "other"
)

func (k Kind) sentinel() error {
	switch k {
	case KindAuth:
		return ErrProviderAuth
	case KindTimeout:
		return ErrProviderTimeout
	case KindRateLimit:
		return ErrProviderRateLimit
	case KindUnavailable:
		return ErrProviderUnavailable
	case KindInvalidOutput:
		return ErrInvalidOutput
	default:
		return nil
	}
}

// AdapterError wraps provider errors with status metadata.
type AdapterError struct {
	Provider string
	Status   int
	Kind     Kind
	Err      error
}

func (e *AdapterError) Error() string {
	if e == nil {
		return "adapter error"
	}
	msg := fmt.Sprintf("adapter error (status=%d)", e.Status)
	if e.Err != nil {
		msg = e.Err.Error()
	}
	if e.Provider != "" {
		return fmt.Sprintf("%s: %s: %s", e.Provider, e.Kind, msg)
	}
	return fmt.Sprintf("%s: %s", e.Kind, msg)
}

func (e *AdapterError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Is matches the sentinel for the error's kind.
func (e *AdapterError) Is(target error) bool {
	if e == nil {
		return false
	}
	s := e.Kind.sentinel()
	return s != nil && target == s
}

// KindForStatus maps an HTTP status code to a failure kind.
func KindForStatus(status int) Kind {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return KindAuth
	case status == http.StatusRequestTimeout || status == http.StatusGatewayTimeout:
		return KindTimeout
	case status == http.StatusTooManyRequests:
		return KindRateLimit
	case status >= 500 && status <= 599:
		return KindUnavailable
	default:
		return KindOther
	}
}

// NewStatusError builds an AdapterError from an HTTP status.
func NewStatusError(provider string, status int, err error) *AdapterError {
	return &AdapterError{Provider: provider, Status: status, Kind: KindForStatus(status), Err: err}
}

// Wrap classifies err as an *AdapterError attributed to provider. Errors that
// are already classified are returned unchanged apart from a missing provider
// name.
func Wrap(provider string, err error) *AdapterError {
	if err == nil {
		return nil
	}
	var adapterErr *AdapterError
	if errors.As(err, &adapterErr) {
		if adapterErr.Provider == "" {
			clone := *adapterErr
			clone.Provider = provider
			return &clone
		}
		return adapterErr
	}
	kind := KindOther
	var netErr net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		kind = KindTimeout
	case errors.As(err, &netErr) && netErr.Timeout():
		kind = KindTimeout
	case errors.As(err, &netErr):
		kind = KindUnavailable
	}
	return &AdapterError{Provider: provider, Kind: kind, Err: err}
}

// KindOf reports the failure kind of err.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var adapterErr *AdapterError
	if errors.As(err, &adapterErr) && adapterErr.Kind != "" {
		return adapterErr.Kind
	}
	return Wrap("", err).Kind
}

func missingKey(provider string) error {
	return &AdapterError{
		Provider: provider,
		Kind:     KindAuth,
		Err:      fmt.Errorf("%s API key is required", provider),
	}
}
