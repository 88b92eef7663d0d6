// Package playback serialises spoken utterances onto the speaker.
package playback

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/harunnryd/tintuc/pkg/adapters/tts"
	"github.com/harunnryd/tintuc/pkg/audio"
	"github.com/harunnryd/tintuc/pkg/logging"
	"github.com/harunnryd/tintuc/pkg/metrics"
	"github.com/harunnryd/tintuc/pkg/redact"
)

// Owner is the lease owner name used on the speaker.
const Owner = "tts_playback"

// Request is one utterance. An empty ID is filled with a UUID.
type Request struct {
	ID       string
	Text     string
	Language string
	Voice    string
	Speed    float64
}

type item struct {
	req    Request
	done   chan struct{}
	paused bool
}

type Options struct {
	Synthesizer tts.Synthesizer
	Output      audio.Output
	Speaker     *audio.Device
	Observer    metrics.Observer
	Logger      *slog.Logger
}

// Queue plays utterances one at a time in FIFO order. A single drain
// goroutine runs while items are pending.
type Queue struct {
	synth    tts.Synthesizer
	output   audio.Output
	speaker  *audio.Device
	observer metrics.Observer
	logger   *slog.Logger

	mu      sync.Mutex
	pending []*item
	current *item
	track   audio.Track
	cancel  context.CancelFunc
	active  bool
	closed  bool
}

func NewQueue(opts Options) *Queue {
	if opts.Speaker == nil {
		opts.Speaker = audio.NewDevice("speaker")
	}
	if opts.Observer == nil {
		opts.Observer = metrics.NoopObserver{}
	}
	return &Queue{
		synth:    opts.Synthesizer,
		output:   opts.Output,
		speaker:  opts.Speaker,
		observer: opts.Observer,
		logger:   logging.NewComponentLogger(opts.Logger, "playback"),
	}
}

func closedChan() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}

// Enqueue appends a request and returns a channel closed once the utterance
// has finished, failed, been skipped or been cancelled.
func (q *Queue) Enqueue(req Request) <-chan struct{} {
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return closedChan()
	}
	it := &item{req: req, done: make(chan struct{})}
	q.pending = append(q.pending, it)
	if !q.active {
		q.active = true
		go q.drain()
	}
	return it.done
}

// Say enqueues and waits for the utterance or ctx.
func (q *Queue) Say(ctx context.Context, req Request) error {
	done := q.Enqueue(req)
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Busy reports whether anything is playing or pending.
func (q *Queue) Busy() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.current != nil || len(q.pending) > 0
}

// Pause holds the active utterance. Pending requests and an idle queue
// are unaffected.
func (q *Queue) Pause() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.current == nil {
		return
	}
	q.current.paused = true
	if q.track != nil {
		_ = q.track.Pause()
	}
}

func (q *Queue) Resume() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.current == nil {
		return
	}
	q.current.paused = false
	if q.track != nil {
		_ = q.track.Resume()
	}
}

// Skip ends the active utterance; the next one starts.
func (q *Queue) Skip() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.endCurrentLocked()
}

// Cancel removes a request by ID whether it is pending or active.
func (q *Queue) Cancel(id string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.current != nil && q.current.req.ID == id {
		q.endCurrentLocked()
		return true
	}
	for i, it := range q.pending {
		if it.req.ID == id {
			q.pending = append(q.pending[:i], q.pending[i+1:]...)
			close(it.done)
			return true
		}
	}
	return false
}

// Stop drops every pending utterance and ends the active one.
func (q *Queue) Stop() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.stopLocked()
}

// Close stops the queue; later Enqueue calls return closed channels.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	q.stopLocked()
}

func (q *Queue) stopLocked() {
	for _, it := range q.pending {
		close(it.done)
	}
	q.pending = nil
	q.endCurrentLocked()
}

func (q *Queue) endCurrentLocked() {
	if q.cancel != nil {
		q.cancel()
	}
	if q.track != nil {
		_ = q.track.Stop()
	}
}

func (q *Queue) drain() {
	for {
		q.mu.Lock()
		if len(q.pending) == 0 {
			q.active = false
			q.mu.Unlock()
			return
		}
		it := q.pending[0]
		q.pending = q.pending[1:]
		ctx, cancel := context.WithCancel(context.Background())
		q.current = it
		q.cancel = cancel
		q.mu.Unlock()

		start := time.Now()
		err := q.play(ctx, it)
		interrupted := ctx.Err() != nil
		cancel()

		q.mu.Lock()
		q.current = nil
		q.cancel = nil
		q.track = nil
		q.mu.Unlock()
		close(it.done)

		tags := map[string]string{"provider": q.synth.Name()}
		if err != nil && !interrupted {
			q.logger.Warn("tts_item_failed",
				"id", it.req.ID,
				"text", redact.Text(it.req.Text),
				"error", err)
			metrics.Record(q.observer, metrics.EventSpeakFailed, 1, tags)
			continue
		}
		metrics.Since(q.observer, metrics.EventSpeak, start, tags)
	}
}

func (q *Queue) play(ctx context.Context, it *item) error {
	src, err := q.synth.Synthesize(ctx, tts.Request{
		Text:     it.req.Text,
		Language: it.req.Language,
		Voice:    it.req.Voice,
		Speed:    it.req.Speed,
	})
	if err != nil {
		return err
	}
	lease, err := q.speaker.Acquire(ctx, Owner, nil)
	if err != nil {
		return err
	}
	defer lease.Release()

	track, err := q.output.Load(ctx, src)
	if err != nil {
		return err
	}
	q.mu.Lock()
	if ctx.Err() != nil {
		q.mu.Unlock()
		_ = track.Stop()
		return ctx.Err()
	}
	q.track = track
	paused := it.paused
	q.mu.Unlock()

	if err := track.Play(); err != nil {
		_ = track.Stop()
		return err
	}
	if paused {
		_ = track.Pause()
	}
	q.logger.Debug("tts_item_playing", "id", it.req.ID)

	select {
	case <-track.Done():
		return nil
	case <-ctx.Done():
		_ = track.Stop()
		return ctx.Err()
	}
}
