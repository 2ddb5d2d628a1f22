// Package audio drives playback of a generation stream: decoding
// units, feeding a continuous PCM stream to the output device and
// tracking position across sentence boundaries.
package audio

import (
	"sync"

	"github.com/readaloud/readaloud/tts"
)

// State represents the playback session state.
type State int

const (
	// StateIdle indicates no active session.
	StateIdle State = iota
	// StateLoadingInitial indicates the session is waiting for its
	// first audio unit.
	StateLoadingInitial
	// StatePlaying indicates audio is being played.
	StatePlaying
	// StatePaused indicates playback is paused.
	StatePaused
	// StateFinished indicates the last sentence finished playing.
	StateFinished
	// StateError indicates the session failed.
	StateError
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateLoadingInitial:
		return "loading"
	case StatePlaying:
		return "playing"
	case StatePaused:
		return "paused"
	case StateFinished:
		return "finished"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// stateMachine guards playback transitions. Any state may move to
// error; stopping a session returns to idle from anywhere.
type stateMachine struct {
	mu          sync.Mutex
	current     State
	transitions map[State][]State
}

func newStateMachine() *stateMachine {
	return &stateMachine{
		current: StateIdle,
		transitions: map[State][]State{
			StateIdle:           {StateLoadingInitial},
			StateLoadingInitial: {StatePlaying},
			StatePlaying:        {StatePaused, StateFinished},
			StatePaused:         {StatePlaying},
			StateFinished:       {},
			StateError:          {},
		},
	}
}

// State returns the current state.
func (m *stateMachine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// to attempts a transition. Error and idle are reachable from every
// state; anything else must be listed in the transition table.
func (m *stateMachine) to(next State) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if next == StateError || next == StateIdle {
		m.current = next
		return nil
	}
	for _, allowed := range m.transitions[m.current] {
		if allowed == next {
			m.current = next
			return nil
		}
	}
	return tts.ErrInvalidTransition
}
