package runner

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"
)

var ErrDrainTimeout = errors.New("drain timeout")

var _ Runner = (*LifecycleRunner)(nil)

// LifecycleRunner blocks in Run until its context ends or Stop is called,
// then drains once within the timeout.
type LifecycleRunner struct {
	state    atomic.Int32
	stopCh   chan struct{}
	stopOnce sync.Once
	drainDo  sync.Once
	hooks    Hooks
	drainer  Drainer
	drainErr error
	timeout  time.Duration
	banner   bool
}

func NewLifecycleRunner(drainer Drainer, hooks Hooks, timeout time.Duration) *LifecycleRunner {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &LifecycleRunner{
		stopCh:  make(chan struct{}),
		hooks:   hooks,
		drainer: drainer,
		timeout: timeout,
	}
}

// SetBanner enables the startup banner. Call before Run.
func (r *LifecycleRunner) SetBanner(on bool) { r.banner = on }

func (r *LifecycleRunner) Run(ctx context.Context) error {
	if !r.state.CompareAndSwap(int32(StateNew), int32(StateStarting)) {
		return errors.New("runner already started")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if r.banner {
		PrintBanner(nil)
	}
	if r.hooks.OnStart != nil {
		r.hooks.OnStart()
	}
	r.state.CompareAndSwap(int32(StateStarting), int32(StateRunning))
	select {
	case <-ctx.Done():
	case <-r.stopCh:
	}
	return r.drain()
}

// Stop makes Run return. It is safe before, during and after Run.
func (r *LifecycleRunner) Stop() error {
	r.stopOnce.Do(func() { close(r.stopCh) })
	if r.State() == StateNew {
		return nil
	}
	return r.drain()
}

func (r *LifecycleRunner) State() State {
	return State(r.state.Load())
}

func (r *LifecycleRunner) drain() error {
	r.drainDo.Do(func() {
		r.state.Store(int32(StateDraining))
		if r.drainer != nil {
			done := make(chan error, 1)
			go func() { done <- r.drainer.Drain() }()
			select {
			case r.drainErr = <-done:
			case <-time.After(r.timeout):
				r.drainErr = ErrDrainTimeout
			}
		}
		if r.hooks.OnStop != nil {
			r.hooks.OnStop()
		}
		r.state.Store(int32(StateStopped))
	})
	return r.drainErr
}
