package tts

import (
	"context"
	"errors"

	"github.com/harunnryd/tintuc/pkg/audio"
	"github.com/harunnryd/tintuc/pkg/errorsx"
	"github.com/harunnryd/tintuc/pkg/resilience"
)

// Synthesizer renders text into playable audio.
type Synthesizer interface {
	// Name returns adapter name for logging/metrics.
	Name() string
	Synthesize(ctx context.Context, req Request) (audio.Source, error)
}

// Request is one synthesis call. Empty Voice picks the provider default for
// Language; Speed of 0 means normal rate.
type Request struct {
	Text     string
	Language string
	Voice    string
	Speed    float64
}

// Voice describes an available synthesis voice.
type Voice struct {
	Name          string
	LanguageCodes []string
	Gender        string
	SampleRateHz  int
}

// VoiceLister is implemented by providers that can enumerate their voices.
type VoiceLister interface {
	ListVoices(ctx context.Context, language string) ([]Voice, error)
}

// Guarded wraps a synthesizer with a circuit breaker that opens after
// repeated rate limits.
type Guarded struct {
	Synthesizer
	Breaker *resilience.CircuitBreaker
}

func (g Guarded) Synthesize(ctx context.Context, req Request) (audio.Source, error) {
	var out audio.Source
	err := g.Breaker.Call(func() error {
		var err error
		out, err = g.Synthesizer.Synthesize(ctx, req)
		return err
	})
	if errors.Is(err, resilience.ErrCircuitOpen) {
		return audio.Source{}, errorsx.Wrap(err, errorsx.ReasonTTSCircuitOpen)
	}
	return out, err
}
