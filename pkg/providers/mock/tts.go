package mock

import (
	"context"
	"sync"
	"time"

	"github.com/harunnryd/tintuc/pkg/adapters/tts"
	"github.com/harunnryd/tintuc/pkg/audio"
)

type TTSConfig struct {
	// Failures maps request text to the error returned for it.
	Failures map[string]error
	// PerRune sizes the silent clip relative to the text length.
	PerRune time.Duration
}

// Synthesizer returns silent WAV audio and records every request.
type Synthesizer struct {
	cfg TTSConfig

	mu       sync.Mutex
	requests []tts.Request
}

func NewTTS(cfg TTSConfig) *Synthesizer {
	if cfg.PerRune <= 0 {
		cfg.PerRune = time.Millisecond
	}
	return &Synthesizer{cfg: cfg}
}

func (s *Synthesizer) Name() string { return "mock_tts" }

func (s *Synthesizer) Synthesize(ctx context.Context, req tts.Request) (audio.Source, error) {
	if err := ctx.Err(); err != nil {
		return audio.Source{}, err
	}
	s.mu.Lock()
	s.requests = append(s.requests, req)
	s.mu.Unlock()
	if err, ok := s.cfg.Failures[req.Text]; ok {
		return audio.Source{}, err
	}
	d := time.Duration(len([]rune(req.Text))) * s.cfg.PerRune
	clip := audio.Clip{Data: make([]byte, int(16000*d/time.Second)*2), SampleRate: 16000, Channels: 1}
	return audio.Source{Data: clip.WAV(), Format: audio.FormatWAV}, nil
}

// Texts returns the text of every request in order.
func (s *Synthesizer) Texts() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.requests))
	for _, r := range s.requests {
		out = append(out, r.Text)
	}
	return out
}

func (s *Synthesizer) Requests() []tts.Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]tts.Request(nil), s.requests...)
}

func (s *Synthesizer) ListVoices(ctx context.Context, language string) ([]tts.Voice, error) {
	return []tts.Voice{{Name: "mock-female", LanguageCodes: []string{language}, Gender: "FEMALE", SampleRateHz: 16000}}, nil
}
