// Package vad gates captured clips on WebRTC voice activity detection.
package vad

import (
	"fmt"

	"github.com/harunnryd/tintuc/pkg/audio"
	webrtcvad "github.com/maxhawkins/go-webrtcvad"
)

// Gate reports whether a clip contains enough voiced 20ms frames.
type Gate struct {
	vad      *webrtcvad.VAD
	minRatio float64
}

// New builds a gate. mode is the WebRTC aggressiveness (0..3); minRatio is
// the fraction of voiced frames required.
func New(mode int, minRatio float64) (*Gate, error) {
	v, err := webrtcvad.New()
	if err != nil {
		return nil, fmt.Errorf("create vad: %w", err)
	}
	if mode < 0 {
		mode = 0
	}
	if mode > 3 {
		mode = 3
	}
	if err := v.SetMode(mode); err != nil {
		return nil, fmt.Errorf("set vad mode: %w", err)
	}
	if minRatio <= 0 {
		minRatio = 0.1
	}
	return &Gate{vad: v, minRatio: minRatio}, nil
}

// HasSpeech runs the detector over the clip in 20ms frames. Only mono
// 8/16/32/48 kHz clips are supported.
func (g *Gate) HasSpeech(clip audio.Clip) (bool, error) {
	if clip.Channels > 1 {
		return false, fmt.Errorf("vad: mono audio required")
	}
	// ValidRateAndFrameLength counts samples; Process takes the PCM bytes.
	frameSamples := clip.SampleRate / 50
	frameBytes := frameSamples * 2
	if !g.vad.ValidRateAndFrameLength(clip.SampleRate, frameSamples) {
		return false, fmt.Errorf("vad: unsupported sample rate %d", clip.SampleRate)
	}
	total, voiced := 0, 0
	for off := 0; off+frameBytes <= len(clip.Data); off += frameBytes {
		active, err := g.vad.Process(clip.SampleRate, clip.Data[off:off+frameBytes])
		if err != nil {
			return false, fmt.Errorf("vad process: %w", err)
		}
		total++
		if active {
			voiced++
		}
	}
	if total == 0 {
		return false, nil
	}
	return float64(voiced)/float64(total) >= g.minRatio, nil
}
