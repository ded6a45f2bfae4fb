package scheduler

import (
	"fmt"
	"sync"
)

// JobState is a step of the per-job lifecycle.
type JobState string

const (
	StatePending       JobState = "pending"
	StateQuarantined   JobState = "quarantined"
	StateAcquiring     JobState = "acquiring"
	StateAcquireFailed JobState = "acquire_failed"
	StateRunning       JobState = "running"
	StatePassed        JobState = "passed"
	StateFailed        JobState = "failed"
	StateCancelled     JobState = "cancelled"
)

var allowedTransitions = map[JobState]map[JobState]struct{}{
	StatePending: {
		StateQuarantined: {},
		StateAcquiring:   {},
		StateCancelled:   {},
	},
	StateAcquiring: {
		StateAcquireFailed: {},
		StateRunning:       {},
		StateCancelled:     {},
	},
	StateRunning: {
		StatePassed:    {},
		StateFailed:    {},
		StateCancelled: {},
	},
	StateQuarantined:   {},
	StateAcquireFailed: {},
	StatePassed:        {},
	StateFailed:        {},
	StateCancelled:     {},
}

func ValidateJobState(state JobState) error {
	if _, ok := allowedTransitions[state]; !ok {
		return fmt.Errorf("invalid job state: %q", state)
	}
	return nil
}

func ValidateTransition(from, to JobState) error {
	if err := ValidateJobState(from); err != nil {
		return err
	}
	if err := ValidateJobState(to); err != nil {
		return err
	}
	if _, ok := allowedTransitions[from][to]; !ok {
		return fmt.Errorf("invalid job transition: %s -> %s", from, to)
	}
	return nil
}

// IsTerminal reports whether no transition leaves state.
func IsTerminal(state JobState) bool {
	next, ok := allowedTransitions[state]
	return ok && len(next) == 0
}

// stateTable tracks the current state of every job of a run.
type stateTable struct {
	mu     sync.Mutex
	states map[string]JobState
}

func newStateTable() *stateTable {
	return &stateTable{states: make(map[string]JobState)}
}

func (t *stateTable) get(jobID string) JobState {
	t.mu.Lock()
	defer t.mu.Unlock()
	if s, ok := t.states[jobID]; ok {
		return s
	}
	return StatePending
}

// transition moves jobID to next and returns the previous state.
func (t *stateTable) transition(jobID string, next JobState) (JobState, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	from, ok := t.states[jobID]
	if !ok {
		from = StatePending
	}
	if err := ValidateTransition(from, next); err != nil {
		return from, fmt.Errorf("job %s: %w", jobID, err)
	}
	t.states[jobID] = next
	return from, nil
}
