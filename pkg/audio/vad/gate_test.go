package vad

import (
	"testing"
	"time"

	"github.com/harunnryd/tintuc/pkg/audio/mock"
)

func TestGateRejectsSilence(t *testing.T) {
	g, err := New(2, 0.2)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	ok, err := g.HasSpeech(mock.Silence(16000, 500*time.Millisecond))
	if err != nil {
		t.Fatalf("has speech: %v", err)
	}
	if ok {
		t.Fatalf("expected silence to be rejected")
	}
}

func TestGateRejectsUnsupportedRate(t *testing.T) {
	g, err := New(1, 0.2)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if _, err := g.HasSpeech(mock.Silence(22050, 100*time.Millisecond)); err == nil {
		t.Fatalf("expected error for 22.05 kHz")
	}
}

func TestGateAcceptsWebRTCRates(t *testing.T) {
	g, err := New(1, 0.2)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	for _, rate := range []int{8000, 16000, 32000, 48000} {
		if _, err := g.HasSpeech(mock.Silence(rate, 100*time.Millisecond)); err != nil {
			t.Fatalf("rate %d: %v", rate, err)
		}
	}
}
