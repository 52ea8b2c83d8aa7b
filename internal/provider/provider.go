package provider

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/venedict/inquest/internal/model"
)

// Capability identifies what kind of work a provider can do
type Capability string

const (
	CapabilityReasoning Capability = "reasoning"
	CapabilitySearch    Capability = "search"
)

// Failure sentinels. Adapters wrap one of these into every error they
// return, so callers can classify with errors.Is regardless of vendor.
var (
	ErrRateLimited         = errors.New("rate limited")
	ErrProviderUnavailable = errors.New("provider unavailable")
	ErrInvalidResponse     = errors.New("invalid response")
)

// Error is a typed provider failure carrying the provider name and, for
// rate limits, the server's retry-after hint.
type Error struct {
	Provider   string
	Kind       error // One of the failure sentinels
	RetryAfter time.Duration
	Err        error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v: %v", e.Provider, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Provider, e.Kind)
}

func (e *Error) Unwrap() error { return e.Kind }

// NewError wraps a vendor error into the typed taxonomy
func NewError(provider string, kind error, err error) *Error {
	return &Error{Provider: provider, Kind: kind, Err: err}
}

// IsTransient reports whether an error should be retried: rate limits,
// network/5xx unavailability, and timeouts. Invalid responses and
// validation errors are never transient.
func IsTransient(err error) bool {
	return errors.Is(err, ErrRateLimited) ||
		errors.Is(err, ErrProviderUnavailable) ||
		errors.Is(err, context.DeadlineExceeded)
}

// RetryAfterHint extracts the server retry-after hint, if any
func RetryAfterHint(err error) (time.Duration, bool) {
	var pe *Error
	if errors.As(err, &pe) && pe.RetryAfter > 0 {
		return pe.RetryAfter, true
	}
	return 0, false
}

// CompletionRequest is the input contract for a reasoning call
type CompletionRequest struct {
	System      string
	Prompt      string
	MaxTokens   int
	Temperature float32
}

// CompletionResponse is the output contract for a reasoning call
type CompletionResponse struct {
	Text       string
	Model      string
	TokensUsed int
}

// LLM is the reasoning capability boundary. Implementations translate
// vendor failures into the typed taxonomy and never return raw SDK errors.
type LLM interface {
	Name() string
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)
}

// Search is the search capability boundary
type Search interface {
	Name() string
	Search(ctx context.Context, query string, maxResults int) ([]model.SearchHit, error)
}
