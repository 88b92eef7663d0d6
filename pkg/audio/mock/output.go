package mock

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/harunnryd/tintuc/pkg/audio"
)

// Output records loaded sources. Tracks finish when Finish is called, or on
// their own after AutoFinish when it is non-zero.
type Output struct {
	AutoFinish time.Duration
	FailLoad   error

	mu     sync.Mutex
	tracks []*Track
}

func NewOutput() *Output { return &Output{} }

func (o *Output) Load(ctx context.Context, src audio.Source) (audio.Track, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if o.FailLoad != nil {
		return nil, o.FailLoad
	}
	t := &Track{Source: src, done: make(chan struct{}), auto: o.AutoFinish}
	o.mu.Lock()
	o.tracks = append(o.tracks, t)
	o.mu.Unlock()
	return t, nil
}

// Tracks returns every track loaded so far.
func (o *Output) Tracks() []*Track {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]*Track(nil), o.tracks...)
}

// Last returns the most recently loaded track or nil.
func (o *Output) Last() *Track {
	o.mu.Lock()
	defer o.mu.Unlock()
	if len(o.tracks) == 0 {
		return nil
	}
	return o.tracks[len(o.tracks)-1]
}

type Track struct {
	Source audio.Source

	mu        sync.Mutex
	playing   bool
	paused    bool
	started   bool
	completed bool
	stopped   bool
	auto      time.Duration
	done      chan struct{}
	once      sync.Once
}

var errTrackEnded = errors.New("track ended")

func (t *Track) Play() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stopped || t.completed {
		return errTrackEnded
	}
	t.playing = true
	t.paused = false
	if !t.started && t.auto > 0 {
		go func() {
			time.Sleep(t.auto)
			t.Finish()
		}()
	}
	t.started = true
	return nil
}

func (t *Track) Pause() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.paused = true
	t.playing = false
	return nil
}

func (t *Track) Resume() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stopped || t.completed {
		return errTrackEnded
	}
	t.paused = false
	t.playing = true
	return nil
}

func (t *Track) Stop() error {
	t.mu.Lock()
	if !t.completed {
		t.stopped = true
	}
	t.playing = false
	t.mu.Unlock()
	t.once.Do(func() { close(t.done) })
	return nil
}

// Finish simulates the track reaching its end.
func (t *Track) Finish() {
	t.mu.Lock()
	if t.stopped {
		t.mu.Unlock()
		return
	}
	t.completed = true
	t.playing = false
	t.mu.Unlock()
	t.once.Do(func() { close(t.done) })
}

func (t *Track) Done() <-chan struct{} { return t.done }

func (t *Track) Completed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.completed
}

func (t *Track) Playing() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.playing
}

func (t *Track) Paused() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.paused
}

func (t *Track) Stopped() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stopped
}
