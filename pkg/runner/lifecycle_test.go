package runner

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func TestRunDrainsOnceOnCancel(t *testing.T) {
	var drains, starts, stops atomic.Int32
	r := NewLifecycleRunner(DrainerFunc(func() error {
		drains.Add(1)
		return nil
	}), Hooks{
		OnStart: func() { starts.Add(1) },
		OnStop:  func() { stops.Add(1) },
	}, time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("run: %v", err)
	}
	_ = r.Stop()
	if drains.Load() != 1 || starts.Load() != 1 || stops.Load() != 1 {
		t.Fatalf("unexpected counts drains=%d starts=%d stops=%d", drains.Load(), starts.Load(), stops.Load())
	}
	if r.State() != StateStopped {
		t.Fatalf("expected stopped, got %s", r.State())
	}
}

func TestStopBeforeRunReturnsImmediately(t *testing.T) {
	r := NewLifecycleRunner(nil, Hooks{}, time.Second)
	if err := r.Stop(); err != nil {
		t.Fatalf("stop: %v", err)
	}
	done := make(chan error, 1)
	go func() { done <- r.Run(context.Background()) }()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("run did not return after early stop")
	}
}

func TestDrainTimeout(t *testing.T) {
	block := make(chan struct{})
	defer close(block)
	r := NewLifecycleRunner(DrainerFunc(func() error {
		<-block
		return nil
	}), Hooks{}, 20*time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := r.Run(ctx); !errors.Is(err, ErrDrainTimeout) {
		t.Fatalf("expected drain timeout, got %v", err)
	}
}

func TestRunTwiceFails(t *testing.T) {
	r := NewLifecycleRunner(nil, Hooks{}, time.Second)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_ = r.Run(ctx)
	if err := r.Run(ctx); err == nil {
		t.Fatalf("expected error on second run")
	}
}
