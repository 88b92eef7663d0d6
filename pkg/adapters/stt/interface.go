package stt

import (
	"context"
	"errors"
	"time"

	"github.com/harunnryd/tintuc/pkg/audio"
	"github.com/harunnryd/tintuc/pkg/errorsx"
	"github.com/harunnryd/tintuc/pkg/resilience"
)

// ErrNoSpeechDetected means the service recognised nothing in the clip.
// It is not a transport failure.
var ErrNoSpeechDetected = errors.New("no speech detected")

// Transcriber turns one finished clip into text.
type Transcriber interface {
	// Name returns adapter name for logging/metrics.
	Name() string
	// Transcribe recognises the clip. Rate limiting is reported as
	// resilience.RateLimitError, an empty result as ErrNoSpeechDetected.
	Transcribe(ctx context.Context, clip audio.Clip, opts Options) (Utterance, error)
}

// Options selects the recognition languages.
type Options struct {
	Language             string
	AlternativeLanguages []string
	// Phrases biases recognition toward command words and headlines.
	Phrases []string
}

// Utterance is a recognised transcript. Confidence is informational only.
type Utterance struct {
	Text       string
	Confidence float32
	CapturedAt time.Time
}

// NoSpeech returns ErrNoSpeechDetected tagged with its reason code.
func NoSpeech() error {
	return errorsx.Wrap(ErrNoSpeechDetected, errorsx.ReasonNoSpeechDetected)
}

// QuotaExceeded wraps a provider rate limit with the quota reason code.
func QuotaExceeded(provider, msg string) error {
	return errorsx.Wrap(resilience.RateLimitError{Provider: provider, Message: msg}, errorsx.ReasonQuotaExceeded)
}

// Guarded wraps a transcriber with a circuit breaker that opens after
// repeated rate limits.
type Guarded struct {
	Transcriber
	Breaker *resilience.CircuitBreaker
}

func (g Guarded) Transcribe(ctx context.Context, clip audio.Clip, opts Options) (Utterance, error) {
	var out Utterance
	err := g.Breaker.Call(func() error {
		var err error
		out, err = g.Transcriber.Transcribe(ctx, clip, opts)
		return err
	})
	if errors.Is(err, resilience.ErrCircuitOpen) {
		return Utterance{}, errorsx.Wrap(err, errorsx.ReasonSTTCircuitOpen)
	}
	return out, err
}
