package playback

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/harunnryd/tintuc/pkg/audio"
	audiomock "github.com/harunnryd/tintuc/pkg/audio/mock"
	"github.com/harunnryd/tintuc/pkg/metrics"
	"github.com/harunnryd/tintuc/pkg/providers/mock"
)

func wait(t *testing.T, ch <-chan struct{}) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(2 * time.Second):
		t.Fatalf("utterance did not resolve")
	}
}

// orderedOutput records which utterance each load belongs to and, on every
// Play, checks that all earlier tracks have already ended.
type orderedOutput struct {
	*audiomock.Output
	synth *mock.Synthesizer

	mu       sync.Mutex
	loaded   []string
	earlier  []audio.Track
	overlaps int
}

type orderedTrack struct {
	audio.Track
	o *orderedOutput
}

func (o *orderedOutput) Load(ctx context.Context, src audio.Source) (audio.Track, error) {
	tr, err := o.Output.Load(ctx, src)
	if err != nil {
		return nil, err
	}
	texts := o.synth.Texts()
	o.mu.Lock()
	o.loaded = append(o.loaded, texts[len(texts)-1])
	o.mu.Unlock()
	return &orderedTrack{Track: tr, o: o}, nil
}

func (t *orderedTrack) Play() error {
	t.o.mu.Lock()
	for _, prev := range t.o.earlier {
		select {
		case <-prev.Done():
		default:
			t.o.overlaps++
		}
	}
	t.o.earlier = append(t.o.earlier, t.Track)
	t.o.mu.Unlock()
	return t.Track.Play()
}

func (o *orderedOutput) result() ([]string, int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]string(nil), o.loaded...), o.overlaps
}

func sameTexts(got, want []string) bool {
	if len(got) != len(want) {
		return false
	}
	for i := range want {
		if got[i] != want[i] {
			return false
		}
	}
	return true
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("condition not met in time")
		}
		time.Sleep(time.Millisecond)
	}
}

func TestQueuePlaysInOrderWithoutOverlap(t *testing.T) {
	synth := mock.NewTTS(mock.TTSConfig{})
	out := &orderedOutput{Output: &audiomock.Output{AutoFinish: 5 * time.Millisecond}, synth: synth}
	q := NewQueue(Options{Synthesizer: synth, Output: out})
	defer q.Close()

	a := q.Enqueue(Request{Text: "một"})
	b := q.Enqueue(Request{Text: "hai"})
	c := q.Enqueue(Request{Text: "ba"})
	wait(t, a)
	wait(t, b)
	wait(t, c)

	loaded, overlaps := out.result()
	if want := []string{"một", "hai", "ba"}; !sameTexts(loaded, want) {
		t.Fatalf("loaded = %v, want %v", loaded, want)
	}
	if overlaps != 0 {
		t.Fatalf("a track started while %d earlier ones were still playing", overlaps)
	}
}

func TestQueueContinuesAfterFailure(t *testing.T) {
	synth := mock.NewTTS(mock.TTSConfig{Failures: map[string]error{"hai": errors.New("boom")}})
	out := &orderedOutput{Output: &audiomock.Output{AutoFinish: time.Millisecond}, synth: synth}
	mem := metrics.NewMemoryObserver()
	q := NewQueue(Options{Synthesizer: synth, Output: out, Observer: mem})
	defer q.Close()

	q.Enqueue(Request{Text: "một"})
	failed := q.Enqueue(Request{Text: "hai"})
	last := q.Enqueue(Request{Text: "ba"})
	wait(t, failed)
	wait(t, last)

	if loaded, _ := out.result(); !sameTexts(loaded, []string{"một", "ba"}) {
		t.Fatalf("loaded = %v, want [một ba]", loaded)
	}
	if n := mem.Count(metrics.EventSpeakFailed); n != 1 {
		t.Fatalf("expected one failure event, got %d", n)
	}
	if n := mem.Count(metrics.EventSpeak); n != 2 {
		t.Fatalf("expected two spoken events, got %d", n)
	}
}

func TestQueuePauseOnlyHoldsActiveUtterance(t *testing.T) {
	synth := mock.NewTTS(mock.TTSConfig{})
	out := audiomock.NewOutput()
	q := NewQueue(Options{Synthesizer: synth, Output: out})
	defer q.Close()

	first := q.Enqueue(Request{Text: "một"})
	second := q.Enqueue(Request{Text: "hai"})
	waitFor(t, func() bool { return out.Last() != nil && out.Last().Playing() })

	q.Pause()
	if !out.Last().Paused() {
		t.Fatalf("active track should be paused")
	}
	q.Skip()
	wait(t, first)

	waitFor(t, func() bool { return len(out.Tracks()) == 2 })
	next := out.Last()
	waitFor(t, next.Playing)
	if next.Paused() {
		t.Fatalf("pending utterance inherited the pause")
	}
	next.Finish()
	wait(t, second)
}

func TestQueuePauseResumeActive(t *testing.T) {
	synth := mock.NewTTS(mock.TTSConfig{})
	out := audiomock.NewOutput()
	q := NewQueue(Options{Synthesizer: synth, Output: out})
	defer q.Close()

	done := q.Enqueue(Request{Text: "một"})
	waitFor(t, func() bool { return out.Last() != nil && out.Last().Playing() })
	track := out.Last()

	q.Pause()
	if !track.Paused() || track.Playing() {
		t.Fatalf("expected paused track")
	}
	q.Resume()
	if track.Paused() || !track.Playing() {
		t.Fatalf("expected resumed track")
	}
	track.Finish()
	wait(t, done)
}

func TestQueuePauseWhileIdleIsNoop(t *testing.T) {
	synth := mock.NewTTS(mock.TTSConfig{})
	out := audiomock.NewOutput()
	q := NewQueue(Options{Synthesizer: synth, Output: out})
	defer q.Close()

	q.Pause()
	done := q.Enqueue(Request{Text: "một"})
	waitFor(t, func() bool { return out.Last() != nil && out.Last().Playing() })
	if out.Last().Paused() {
		t.Fatalf("idle pause leaked into the next utterance")
	}
	out.Last().Finish()
	wait(t, done)
}

func TestQueueStopResolvesPending(t *testing.T) {
	synth := mock.NewTTS(mock.TTSConfig{})
	out := audiomock.NewOutput()
	speaker := audio.NewDevice("speaker")
	q := NewQueue(Options{Synthesizer: synth, Output: out, Speaker: speaker})
	defer q.Close()

	first := q.Enqueue(Request{Text: "một"})
	second := q.Enqueue(Request{Text: "hai"})
	deadline := time.Now().Add(2 * time.Second)
	for out.Last() == nil && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if out.Last() == nil {
		t.Fatalf("first utterance never loaded")
	}

	q.Stop()
	wait(t, first)
	wait(t, second)
	if !out.Last().Stopped() {
		t.Fatalf("active track should be stopped")
	}
	if len(synth.Texts()) != 1 {
		t.Fatalf("pending utterance should not be synthesized: %v", synth.Texts())
	}
	deadline = time.Now().Add(2 * time.Second)
	for speaker.Holder() != "" && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if speaker.Holder() != "" {
		t.Fatalf("speaker not released")
	}
}

func TestQueueCancelPending(t *testing.T) {
	synth := mock.NewTTS(mock.TTSConfig{})
	out := audiomock.NewOutput()
	q := NewQueue(Options{Synthesizer: synth, Output: out})
	defer q.Close()

	q.Enqueue(Request{ID: "a", Text: "một"})
	b := q.Enqueue(Request{ID: "b", Text: "hai"})
	if !q.Cancel("b") {
		t.Fatalf("expected cancel to find pending request")
	}
	wait(t, b)
	if q.Cancel("missing") {
		t.Fatalf("unknown id should not cancel")
	}
}

func TestQueueSkipAdvances(t *testing.T) {
	synth := mock.NewTTS(mock.TTSConfig{})
	out := audiomock.NewOutput()
	q := NewQueue(Options{Synthesizer: synth, Output: out})
	defer q.Close()

	first := q.Enqueue(Request{Text: "một"})
	second := q.Enqueue(Request{Text: "hai"})
	deadline := time.Now().Add(2 * time.Second)
	for out.Last() == nil && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	q.Skip()
	wait(t, first)

	deadline = time.Now().Add(2 * time.Second)
	for len(out.Tracks()) < 2 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if len(out.Tracks()) != 2 {
		t.Fatalf("second utterance never started")
	}
	out.Last().Finish()
	wait(t, second)
}

func TestQueueClosedRejects(t *testing.T) {
	q := NewQueue(Options{Synthesizer: mock.NewTTS(mock.TTSConfig{}), Output: audiomock.NewOutput()})
	q.Close()
	wait(t, q.Enqueue(Request{Text: "x"}))
	if q.Busy() {
		t.Fatalf("closed queue should be idle")
	}
}

func TestSayHonorsContext(t *testing.T) {
	q := NewQueue(Options{Synthesizer: mock.NewTTS(mock.TTSConfig{}), Output: audiomock.NewOutput()})
	defer q.Close()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if err := q.Say(ctx, Request{Text: "chờ"}); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline, got %v", err)
	}
}
