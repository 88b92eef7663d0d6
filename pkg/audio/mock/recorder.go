// Package mock provides in-memory microphone and speaker implementations used
// by tests and the --mock-audio mode of the CLI.
package mock

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/harunnryd/tintuc/pkg/audio"
	"github.com/harunnryd/tintuc/pkg/errorsx"
)

// Recorder hands out scripted clips in order. When the script is exhausted
// it returns silence.
type Recorder struct {
	mu       sync.Mutex
	clips    []audio.Clip
	deny     bool
	starts   int
	discards int
	live     *capture
	closed   bool
}

func NewRecorder(clips ...audio.Clip) *Recorder {
	return &Recorder{clips: clips}
}

// DenyPermission makes every StartCapture fail with audio.ErrPermissionDenied.
func (r *Recorder) DenyPermission() {
	r.mu.Lock()
	r.deny = true
	r.mu.Unlock()
}

// Push appends clips to the script.
func (r *Recorder) Push(clips ...audio.Clip) {
	r.mu.Lock()
	r.clips = append(r.clips, clips...)
	r.mu.Unlock()
}

func (r *Recorder) Starts() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.starts
}

func (r *Recorder) Discards() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.discards
}

// Live reports whether a capture is currently open.
func (r *Recorder) Live() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.live != nil
}

func (r *Recorder) StartCapture(ctx context.Context) (audio.Capture, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.deny {
		return nil, errorsx.Wrap(audio.ErrPermissionDenied, errorsx.ReasonPermissionDenied)
	}
	r.starts++
	c := &capture{rec: r, id: uuid.NewString(), started: time.Now()}
	r.live = c
	return c, nil
}

func (r *Recorder) Close() error {
	r.mu.Lock()
	live := r.live
	r.closed = true
	r.mu.Unlock()
	if live != nil {
		live.Discard()
	}
	return nil
}

func (r *Recorder) next(id string, at time.Time) audio.Clip {
	var clip audio.Clip
	if len(r.clips) > 0 {
		clip = r.clips[0]
		r.clips = r.clips[1:]
	} else {
		clip = Silence(16000, 100*time.Millisecond)
	}
	clip.ID = id
	clip.CapturedAt = at
	return clip
}

type capture struct {
	rec     *Recorder
	id      string
	started time.Time
	done    bool
}

func (c *capture) ID() string { return c.id }

func (c *capture) Stop() (audio.Clip, error) {
	r := c.rec
	r.mu.Lock()
	defer r.mu.Unlock()
	if c.done {
		return audio.Clip{}, audio.ErrCaptureClosed
	}
	c.done = true
	if r.live == c {
		r.live = nil
	}
	return r.next(c.id, c.started), nil
}

func (c *capture) Discard() {
	r := c.rec
	r.mu.Lock()
	defer r.mu.Unlock()
	if c.done {
		return
	}
	c.done = true
	r.discards++
	if r.live == c {
		r.live = nil
	}
}

// Silence builds an all-zero mono clip.
func Silence(rate int, d time.Duration) audio.Clip {
	n := int(time.Duration(rate) * d / time.Second)
	return audio.Clip{Data: make([]byte, n*2), SampleRate: rate, Channels: 1}
}

// Speech builds a loud square-wave clip that passes any sane energy gate.
func Speech(rate int, d time.Duration) audio.Clip {
	n := int(time.Duration(rate) * d / time.Second)
	samples := make([]int16, n)
	for i := range samples {
		if (i/40)%2 == 0 {
			samples[i] = 12000
		} else {
			samples[i] = -12000
		}
	}
	return audio.Clip{Data: audio.PCM16(samples), SampleRate: rate, Channels: 1}
}
