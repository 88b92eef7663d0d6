package listening

import (
	"sync"
	"time"
)

type State int

const (
	StateIdle State = iota
	StateListening
	StateProcessing
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateListening:
		return "LISTENING"
	case StateProcessing:
		return "PROCESSING"
	default:
		return "UNKNOWN"
	}
}

// StateChange represents a state transition event.
type StateChange struct {
	FromState State
	ToState   State
	Timestamp time.Time
	Reason    string
}

// StateListener observes loop state changes, e.g. to drive a listening
// indicator.
type StateListener interface {
	OnStateChange(event StateChange)
}

// ListenerFunc adapts a function to StateListener.
type ListenerFunc func(StateChange)

func (f ListenerFunc) OnStateChange(ev StateChange) { f(ev) }

var validTransitions = map[State][]State{
	StateIdle:       {StateListening},
	StateListening:  {StateProcessing, StateIdle},
	StateProcessing: {StateIdle, StateListening},
}

// stateMachine validates transitions. The caller serialises access and
// dispatches the returned events once its own locks are released.
type stateMachine struct {
	current   State
	mu        sync.RWMutex
	listeners []StateListener
}

func (sm *stateMachine) State() State {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return sm.current
}

func (sm *stateMachine) transition(to State, reason string) (StateChange, error) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	from := sm.current
	if !allowed(from, to) {
		return StateChange{}, &InvalidTransitionError{From: from, To: to}
	}
	sm.current = to
	return StateChange{FromState: from, ToState: to, Timestamp: time.Now(), Reason: reason}, nil
}

func allowed(from, to State) bool {
	for _, s := range validTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

func (sm *stateMachine) addListener(l StateListener) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.listeners = append(sm.listeners, l)
}

func (sm *stateMachine) notify(events []StateChange) {
	if len(events) == 0 {
		return
	}
	sm.mu.RLock()
	listeners := make([]StateListener, len(sm.listeners))
	copy(listeners, sm.listeners)
	sm.mu.RUnlock()
	for _, ev := range events {
		for _, l := range listeners {
			l.OnStateChange(ev)
		}
	}
}

// InvalidTransitionError represents an invalid state transition attempt
type InvalidTransitionError struct {
	From State
	To   State
}

func (e *InvalidTransitionError) Error() string {
	return "invalid state transition from " + e.From.String() + " to " + e.To.String()
}
