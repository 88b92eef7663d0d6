package llm

import (
	"context"
	"errors"

	"github.com/harunnryd/tintuc/pkg/errorsx"
	"github.com/harunnryd/tintuc/pkg/resilience"
)

// NoResponseText is the reply used when the model returns no text.
const NoResponseText = "No response from AI."

// ErrQuotaExceeded is reported when the provider rate limits the caller.
var ErrQuotaExceeded = errors.New("quota exceeded")

// Image is an inline image attachment.
type Image struct {
	Data     []byte
	MIMEType string
}

// Turn is one prior exchange entry sent as context.
type Turn struct {
	Role string // "user" or "model"
	Text string
}

type Request struct {
	Text    string
	Images  []Image
	History []Turn
}

type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

type Response struct {
	Text         string
	Usage        Usage
	FinishReason string
}

// Generator produces one reply per request.
type Generator interface {
	Name() string
	Generate(ctx context.Context, req Request) (Response, error)
}

// QuotaError marks a provider rate limit so callers can match either
// ErrQuotaExceeded or resilience.RateLimitError.
type QuotaError struct {
	resilience.RateLimitError
}

func (e QuotaError) Is(target error) bool { return target == ErrQuotaExceeded }

func (e QuotaError) Unwrap() error { return e.RateLimitError }

// Quota builds a reasoned quota error for provider.
func Quota(provider, msg string) error {
	return errorsx.Wrap(QuotaError{resilience.RateLimitError{Provider: provider, Message: msg}}, errorsx.ReasonQuotaExceeded)
}
