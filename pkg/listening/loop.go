// Package listening implements the hands-free capture loop: record a short
// window, drop silence, hand speech to a pipeline, re-arm.
package listening

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/harunnryd/tintuc/pkg/audio"
	"github.com/harunnryd/tintuc/pkg/logging"
	"github.com/harunnryd/tintuc/pkg/metrics"
)

// Owner is the lease owner name used on the microphone.
const Owner = "continuous_listening"

// Outcome tells the loop what the pipeline did with a clip.
type Outcome struct {
	// Selected suppresses the automatic restart so the chosen article can
	// play uninterrupted.
	Selected bool
}

// Pipeline consumes a clip that passed the energy gate.
type Pipeline interface {
	Handle(ctx context.Context, clip audio.Clip) Outcome
}

type PipelineFunc func(ctx context.Context, clip audio.Clip) Outcome

func (f PipelineFunc) Handle(ctx context.Context, clip audio.Clip) Outcome { return f(ctx, clip) }

// SpeechGate is an optional second opinion after the energy check.
type SpeechGate interface {
	HasSpeech(clip audio.Clip) (bool, error)
}

type Config struct {
	CaptureWindow     time.Duration
	RestartDelay      time.Duration
	EnergyThresholdDB float64
	// ArtifactsDir, when set, receives every capture as a WAV file.
	ArtifactsDir string
}

func (c Config) withDefaults() Config {
	if c.CaptureWindow <= 0 {
		c.CaptureWindow = 3 * time.Second
	}
	if c.RestartDelay < 0 {
		c.RestartDelay = time.Second
	}
	if c.EnergyThresholdDB == 0 {
		c.EnergyThresholdDB = -40
	}
	return c
}

// Session is the observable loop state.
type Session struct {
	IsListening      bool
	AudioEnergyLevel float64
	LastCaptureURI   string
}

type Options struct {
	Config     Config
	Recorder   audio.Recorder
	Microphone *audio.Device
	Pipeline   Pipeline
	Gate       SpeechGate
	Observer   metrics.Observer
	Logger     *slog.Logger
}

// Loop owns the microphone while listening. Every timer and in-flight
// processing step carries the generation it was started in; Stop bumps the
// generation so stale callbacks do nothing.
type Loop struct {
	cfg      Config
	rec      audio.Recorder
	mic      *audio.Device
	pipeline Pipeline
	gate     SpeechGate
	observer metrics.Observer
	logger   *slog.Logger
	fsm      *stateMachine

	mu         sync.Mutex
	gen        uint64
	runCtx     context.Context
	lease      *audio.Lease
	capture    audio.Capture
	timer      *time.Timer
	cancelProc context.CancelFunc
	session    Session
}

func New(opts Options) *Loop {
	if opts.Microphone == nil {
		opts.Microphone = audio.NewDevice("microphone")
	}
	if opts.Observer == nil {
		opts.Observer = metrics.NoopObserver{}
	}
	return &Loop{
		cfg:      opts.Config.withDefaults(),
		rec:      opts.Recorder,
		mic:      opts.Microphone,
		pipeline: opts.Pipeline,
		gate:     opts.Gate,
		observer: opts.Observer,
		logger:   logging.NewComponentLogger(opts.Logger, "listening"),
		fsm:      &stateMachine{current: StateIdle},
	}
}

// SetPipeline replaces the clip consumer. It must be called before Start.
func (l *Loop) SetPipeline(p Pipeline) {
	l.mu.Lock()
	l.pipeline = p
	l.mu.Unlock()
}

func (l *Loop) AddListener(listener StateListener) { l.fsm.addListener(listener) }

func (l *Loop) State() State { return l.fsm.State() }

func (l *Loop) Snapshot() Session {
	l.mu.Lock()
	defer l.mu.Unlock()
	s := l.session
	s.IsListening = l.fsm.State() == StateListening
	return s
}

// Start begins a capture window. It is a no-op unless the loop is Idle, and
// it never takes the microphone from another owner: a busy microphone
// returns audio.ErrDeviceBusy.
func (l *Loop) Start(ctx context.Context) error {
	l.mu.Lock()
	ev, err := l.startLocked(ctx)
	l.mu.Unlock()
	l.fsm.notify(ev)
	return err
}

func (l *Loop) startLocked(ctx context.Context) ([]StateChange, error) {
	if l.fsm.State() != StateIdle {
		return nil, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	l.stopTimerLocked()

	lease, err := l.mic.TryAcquire(Owner, l.preempted)
	if err != nil {
		l.logger.Debug("listening_mic_busy", "holder", l.mic.Holder())
		return nil, err
	}
	capture, err := l.rec.StartCapture(ctx)
	if err != nil {
		lease.Release()
		if errors.Is(err, audio.ErrPermissionDenied) {
			l.logger.Warn("listening_permission_denied")
		} else {
			l.logger.Error("listening_capture_failed", "error", err)
		}
		return nil, err
	}

	ev, err := l.fsm.transition(StateListening, "capture started")
	if err != nil {
		capture.Discard()
		lease.Release()
		return nil, err
	}
	l.gen++
	gen := l.gen
	l.runCtx = ctx
	l.lease = lease
	l.capture = capture
	l.timer = time.AfterFunc(l.cfg.CaptureWindow, func() { l.windowElapsed(gen) })
	l.logger.Debug("listening_started", "capture_id", capture.ID())
	return []StateChange{ev}, nil
}

// Stop cancels the capture window and any pending restart, discards the
// in-flight capture, cancels processing and releases the microphone.
func (l *Loop) Stop() {
	l.mu.Lock()
	l.gen++
	l.stopTimerLocked()
	if l.cancelProc != nil {
		l.cancelProc()
		l.cancelProc = nil
	}
	capture, lease := l.capture, l.lease
	l.capture, l.lease = nil, nil
	var events []StateChange
	if l.fsm.State() != StateIdle {
		if ev, err := l.fsm.transition(StateIdle, "stopped"); err == nil {
			events = append(events, ev)
		}
	}
	l.mu.Unlock()

	if capture != nil {
		capture.Discard()
	}
	lease.Release()
	l.fsm.notify(events)
	if len(events) > 0 {
		l.logger.Debug("listening_stopped")
	}
}

// preempted runs when a manual action takes the microphone.
func (l *Loop) preempted() {
	l.logger.Debug("listening_preempted")
	l.Stop()
}

func (l *Loop) stopTimerLocked() {
	if l.timer != nil {
		l.timer.Stop()
		l.timer = nil
	}
}

func (l *Loop) windowElapsed(gen uint64) {
	l.mu.Lock()
	if gen != l.gen || l.fsm.State() != StateListening {
		l.mu.Unlock()
		return
	}
	capture, lease := l.capture, l.lease
	l.capture, l.lease = nil, nil
	l.timer = nil
	l.mu.Unlock()

	clip, err := capture.Stop()
	lease.Release()
	if err != nil {
		l.logger.Error("listening_stop_capture_failed", "error", err)
		l.settle(gen, StateIdle, "capture failed", true)
		return
	}

	energy := clip.EnergyDBFS()
	uri := l.captureURI(clip)
	l.mu.Lock()
	if gen == l.gen {
		l.session.AudioEnergyLevel = energy
		l.session.LastCaptureURI = uri
	}
	l.mu.Unlock()

	if !l.hasSpeech(clip, energy) {
		metrics.Record(l.observer, metrics.EventSilence, energy, nil)
		l.settle(gen, StateIdle, "silence", true)
		return
	}
	metrics.Record(l.observer, metrics.EventCapture, energy, nil)

	l.mu.Lock()
	if gen != l.gen {
		l.mu.Unlock()
		return
	}
	ev, err := l.fsm.transition(StateProcessing, "speech captured")
	if err != nil {
		l.mu.Unlock()
		return
	}
	procCtx, cancel := context.WithCancel(l.runCtx)
	l.cancelProc = cancel
	pipeline := l.pipeline
	l.mu.Unlock()
	l.fsm.notify([]StateChange{ev})

	outcome := Outcome{}
	if pipeline != nil {
		outcome = pipeline.Handle(procCtx, clip)
	}
	cancel()

	if outcome.Selected {
		l.settle(gen, StateIdle, "article selected", false)
		return
	}
	l.settle(gen, StateIdle, "processed", true)
}

func (l *Loop) hasSpeech(clip audio.Clip, energy float64) bool {
	if energy < l.cfg.EnergyThresholdDB {
		return false
	}
	if l.gate == nil {
		return true
	}
	ok, err := l.gate.HasSpeech(clip)
	if err != nil {
		l.logger.Warn("listening_vad_failed", "error", err)
		return true
	}
	return ok
}

// settle moves a still-current cycle to Idle and optionally re-arms it.
func (l *Loop) settle(gen uint64, to State, reason string, restart bool) {
	l.mu.Lock()
	if gen != l.gen {
		l.mu.Unlock()
		return
	}
	l.cancelProc = nil
	var events []StateChange
	if l.fsm.State() != to {
		if ev, err := l.fsm.transition(to, reason); err == nil {
			events = append(events, ev)
		}
	}
	if restart {
		l.timer = time.AfterFunc(l.cfg.RestartDelay, func() { l.restart(gen) })
	}
	l.mu.Unlock()
	l.fsm.notify(events)
}

func (l *Loop) restart(gen uint64) {
	l.mu.Lock()
	if gen != l.gen {
		l.mu.Unlock()
		return
	}
	ctx := l.runCtx
	l.timer = nil
	events, err := l.startLocked(ctx)
	l.mu.Unlock()
	l.fsm.notify(events)
	if err != nil && !errors.Is(err, context.Canceled) {
		l.logger.Debug("listening_restart_skipped", "error", err)
	}
}

func (l *Loop) captureURI(clip audio.Clip) string {
	if l.cfg.ArtifactsDir == "" {
		return fmt.Sprintf("mem://%s", clip.ID)
	}
	path, err := audio.SaveWAV(l.cfg.ArtifactsDir, clip)
	if err != nil {
		l.logger.Warn("listening_artifact_failed", "error", err)
		return fmt.Sprintf("mem://%s", clip.ID)
	}
	return path
}
