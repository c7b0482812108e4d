package services

import (
	"fmt"
)

// RelayState is the lifecycle position of one relay request.
type RelayState int

const (
	StateIdle RelayState = iota
	StatePersonaResolved
	StateStreaming
	StateClosed
	StateErrored
)

var relayStateNames = map[RelayState]string{
	StateIdle:            "idle",
	StatePersonaResolved: "persona_resolved",
	StateStreaming:       "streaming",
	StateClosed:          "closed",
	StateErrored:         "errored",
}

var relayTransitions = map[RelayState][]RelayState{
	StateIdle:            {StatePersonaResolved, StateErrored},
	StatePersonaResolved: {StateStreaming, StateErrored},
	StateStreaming:       {StateClosed, StateErrored},
}

func (s RelayState) String() string {
	if name, ok := relayStateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("RelayState(%d)", int(s))
}

// Terminal reports whether no transition leaves s.
func (s RelayState) Terminal() bool {
	return s == StateClosed || s == StateErrored
}

// Can reports whether next is a legal successor of s.
func (s RelayState) Can(next RelayState) bool {
	for _, allowed := range relayTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// RelayTracker enforces the relay state machine for one request.
// It is not safe for concurrent use.
type RelayTracker struct {
	state RelayState
}

func (t *RelayTracker) State() RelayState {
	return t.state
}

// Advance moves to next or returns an error if the move is illegal.
func (t *RelayTracker) Advance(next RelayState) error {
	if !t.state.Can(next) {
		return fmt.Errorf("invalid relay transition %s -> %s", t.state, next)
	}
	t.state = next
	return nil
}
