// Package loudspeaker plays MP3 and WAV audio on the default output device
// through beep.
package loudspeaker

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/faiface/beep"
	"github.com/faiface/beep/mp3"
	"github.com/faiface/beep/speaker"
	"github.com/faiface/beep/wav"
	"github.com/harunnryd/tintuc/pkg/audio"
	"github.com/harunnryd/tintuc/pkg/errorsx"
	"github.com/harunnryd/tintuc/pkg/logging"
)

type Config struct {
	SampleRate int
	// BufferDuration controls speaker latency.
	BufferDuration time.Duration
	HTTPClient     *http.Client
}

// Output implements audio.Output. The speaker is initialised once, at the
// first Load, and every track is resampled to its rate.
type Output struct {
	rate   beep.SampleRate
	buffer time.Duration
	client *http.Client
	logger *slog.Logger

	initOnce sync.Once
	initErr  error
}

func New(cfg Config, logger *slog.Logger) *Output {
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = 44100
	}
	if cfg.BufferDuration <= 0 {
		cfg.BufferDuration = 100 * time.Millisecond
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 60 * time.Second}
	}
	return &Output{
		rate:   beep.SampleRate(cfg.SampleRate),
		buffer: cfg.BufferDuration,
		client: cfg.HTTPClient,
		logger: logging.NewComponentLogger(logger, "loudspeaker"),
	}
}

func (o *Output) Load(ctx context.Context, src audio.Source) (audio.Track, error) {
	data := src.Data
	if len(data) == 0 && src.URL != "" {
		fetched, err := o.fetch(ctx, src.URL)
		if err != nil {
			return nil, errorsx.Wrap(err, errorsx.ReasonPlayback)
		}
		data = fetched
	}
	if len(data) == 0 {
		return nil, errorsx.Wrap(fmt.Errorf("empty audio source"), errorsx.ReasonPlayback)
	}

	var (
		streamer beep.StreamSeekCloser
		format   beep.Format
		err      error
	)
	switch src.DetectFormat() {
	case audio.FormatWAV:
		streamer, format, err = wav.Decode(bytes.NewReader(data))
	default:
		streamer, format, err = mp3.Decode(io.NopCloser(bytes.NewReader(data)))
	}
	if err != nil {
		return nil, errorsx.Wrap(fmt.Errorf("decode audio: %w", err), errorsx.ReasonPlayback)
	}

	o.initOnce.Do(func() {
		o.initErr = speaker.Init(o.rate, o.rate.N(o.buffer))
	})
	if o.initErr != nil {
		_ = streamer.Close()
		return nil, errorsx.Wrap(fmt.Errorf("init speaker: %w", o.initErr), errorsx.ReasonPlayback)
	}

	var s beep.Streamer = streamer
	if format.SampleRate != o.rate {
		s = beep.Resample(4, format.SampleRate, o.rate, streamer)
	}
	return &track{
		ctrl:   &beep.Ctrl{Streamer: s, Paused: true},
		source: streamer,
		done:   make(chan struct{}),
	}, nil
}

func (o *Output) fetch(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := o.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch audio: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return nil, fmt.Errorf("fetch audio: status %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

type track struct {
	ctrl   *beep.Ctrl
	source beep.StreamSeekCloser

	mu        sync.Mutex
	started   bool
	stopped   bool
	completed bool
	done      chan struct{}
	once      sync.Once
}

func (t *track) Play() error {
	t.mu.Lock()
	if t.stopped || t.completed {
		t.mu.Unlock()
		return fmt.Errorf("track ended")
	}
	first := !t.started
	t.started = true
	t.mu.Unlock()

	if first {
		speaker.Play(beep.Seq(t.ctrl, beep.Callback(t.reachedEnd)))
	}
	speaker.Lock()
	t.ctrl.Paused = false
	speaker.Unlock()
	return nil
}

func (t *track) Pause() error {
	speaker.Lock()
	t.ctrl.Paused = true
	speaker.Unlock()
	return nil
}

func (t *track) Resume() error {
	t.mu.Lock()
	ended := t.stopped || t.completed
	t.mu.Unlock()
	if ended {
		return fmt.Errorf("track ended")
	}
	speaker.Lock()
	t.ctrl.Paused = false
	speaker.Unlock()
	return nil
}

func (t *track) Stop() error {
	t.mu.Lock()
	if !t.completed {
		t.stopped = true
	}
	t.mu.Unlock()
	speaker.Lock()
	t.ctrl.Streamer = nil
	speaker.Unlock()
	t.close()
	return nil
}

// reachedEnd runs on the speaker goroutine.
func (t *track) reachedEnd() {
	t.mu.Lock()
	if !t.stopped {
		t.completed = true
	}
	t.mu.Unlock()
	t.close()
}

func (t *track) close() {
	t.once.Do(func() {
		close(t.done)
		go t.source.Close()
	})
}

func (t *track) Done() <-chan struct{} { return t.done }

func (t *track) Completed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.completed
}
