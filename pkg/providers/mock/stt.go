package mock

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/harunnryd/tintuc/pkg/adapters/stt"
	"github.com/harunnryd/tintuc/pkg/audio"
)

// STTStep is one scripted recognition result. An empty Text with no Err
// yields stt.ErrNoSpeechDetected.
type STTStep struct {
	Text  string
	Err   error
	Delay time.Duration
}

type STTConfig struct {
	Steps []STTStep
	// Fallback is returned once the script is exhausted.
	Fallback string
}

// Transcriber replays a script of transcripts, one per call.
type Transcriber struct {
	mu       sync.Mutex
	steps    []STTStep
	fallback string
	calls    int
	lastOpts stt.Options
}

func NewSTT(cfg STTConfig) *Transcriber {
	return &Transcriber{steps: cfg.Steps, fallback: cfg.Fallback}
}

// Script is a shortcut for NewSTT with text-only steps.
func Script(texts ...string) *Transcriber {
	steps := make([]STTStep, 0, len(texts))
	for _, t := range texts {
		steps = append(steps, STTStep{Text: t})
	}
	return NewSTT(STTConfig{Steps: steps})
}

func (s *Transcriber) Name() string { return "mock_stt" }

// Push appends steps to the script.
func (s *Transcriber) Push(steps ...STTStep) {
	s.mu.Lock()
	s.steps = append(s.steps, steps...)
	s.mu.Unlock()
}

func (s *Transcriber) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func (s *Transcriber) LastOptions() stt.Options {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastOpts
}

func (s *Transcriber) Transcribe(ctx context.Context, clip audio.Clip, opts stt.Options) (stt.Utterance, error) {
	s.mu.Lock()
	s.calls++
	s.lastOpts = opts
	step := STTStep{Text: s.fallback}
	if len(s.steps) > 0 {
		step = s.steps[0]
		s.steps = s.steps[1:]
	}
	s.mu.Unlock()

	if step.Delay > 0 {
		timer := time.NewTimer(step.Delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return stt.Utterance{}, ctx.Err()
		case <-timer.C:
		}
	}
	if step.Err != nil {
		return stt.Utterance{}, step.Err
	}
	if strings.TrimSpace(step.Text) == "" {
		return stt.Utterance{}, stt.NoSpeech()
	}
	return stt.Utterance{Text: step.Text, Confidence: 0.9, CapturedAt: clip.CapturedAt}, nil
}
