package metrics

import (
	"sync"
	"sync/atomic"
)

// AsyncObserver hands events to a background goroutine so the listening loop
// never blocks on a slow sink. A full queue drops the event and counts it.
type AsyncObserver struct {
	sink    Observer
	queue   chan MetricsEvent
	dropped atomic.Int64

	gate     sync.RWMutex
	stopped  bool
	stopOnce sync.Once
	wg       sync.WaitGroup
}

func NewAsyncObserver(sink Observer, buffer int) *AsyncObserver {
	if buffer < 1 {
		buffer = 256
	}
	a := &AsyncObserver{sink: sink, queue: make(chan MetricsEvent, buffer)}
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		for ev := range a.queue {
			a.sink.RecordEvent(ev)
		}
	}()
	return a
}

func (a *AsyncObserver) RecordEvent(ev MetricsEvent) {
	if a == nil {
		return
	}
	a.gate.RLock()
	defer a.gate.RUnlock()
	if a.stopped {
		return
	}
	select {
	case a.queue <- ev:
	default:
		a.dropped.Add(1)
	}
}

// Dropped is the number of events discarded because the queue was full.
func (a *AsyncObserver) Dropped() int64 { return a.dropped.Load() }

// Close rejects new events and blocks until every queued one reached the sink.
func (a *AsyncObserver) Close() {
	if a == nil {
		return
	}
	a.stopOnce.Do(func() {
		a.gate.Lock()
		a.stopped = true
		close(a.queue)
		a.gate.Unlock()
	})
	a.wg.Wait()
}
