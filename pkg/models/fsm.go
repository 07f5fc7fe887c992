package models

import (
	"errors"
	"fmt"
)

// RunState is the lifecycle state of a JobRun
type RunState string

const (
	RunStateCreated   RunState = "created"   // Admitted, worker not yet spawned
	RunStateRunning   RunState = "running"   // Worker process is alive
	RunStateSucceeded RunState = "succeeded" // Artifact published
	RunStateFailed    RunState = "failed"    // Error surfaced to the session
)

// ErrInvalidTransition is returned when a run is moved along an edge the FSM does not allow
var ErrInvalidTransition = errors.New("invalid state transition")

// validTransitions maps from-state to allowed to-states
var validTransitions = map[RunState]map[RunState]bool{
	RunStateCreated: {
		RunStateRunning: true, // worker spawned
		RunStateFailed:  true, // spawn failed or output could not be staged
	},
	RunStateRunning: {
		RunStateSucceeded: true, // exit 0 and artifact published
		RunStateFailed:    true, // nonzero exit or output assembly error
	},
	// Terminal states (no transitions allowed)
	RunStateSucceeded: {},
	RunStateFailed:    {},
}

// ValidateTransition checks if a state transition is valid
func ValidateTransition(from, to RunState) error {
	allowed, ok := validTransitions[from]
	if !ok {
		return fmt.Errorf("unknown source state: %s", from)
	}
	if !allowed[to] {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
	return nil
}

// IsTerminalState returns true if the state is terminal (no further transitions)
func IsTerminalState(state RunState) bool {
	return state == RunStateSucceeded || state == RunStateFailed
}
