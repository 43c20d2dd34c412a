package domain

import (
	"fmt"
	"time"
)

// RunState describes the current state of a pipeline Run.
type RunState int

const (
	RunStateUnknown  RunState = 0
	RunStatePending  RunState = 10 // Planned, not yet started
	RunStateRunning  RunState = 20 // At least one stage executing
	RunStatePassed   RunState = 30 // All stages passed
	RunStateFailed   RunState = 40 // A stage failed
	RunStateCanceled RunState = 50 // Interrupted before completion
)

func (s RunState) String() string {
	switch s {
	case RunStatePending:
		return "PENDING"
	case RunStateRunning:
		return "RUNNING"
	case RunStatePassed:
		return "PASSED"
	case RunStateFailed:
		return "FAILED"
	case RunStateCanceled:
		return "CANCELED"
	default:
		return "UNKNOWN"
	}
}

// IsFinal returns true if the run is in a terminal state.
func (s RunState) IsFinal() bool {
	return s == RunStatePassed || s == RunStateFailed || s == RunStateCanceled
}

// ValidRunStateTransition checks if a run state transition is valid.
// Valid transitions: PENDING -> RUNNING -> {PASSED, FAILED, CANCELED},
// plus PENDING -> CANCELED for runs interrupted before any stage started.
func ValidRunStateTransition(from, to RunState) bool {
	switch from {
	case RunStatePending:
		return to == RunStateRunning || to == RunStateCanceled
	case RunStateRunning:
		return to.IsFinal()
	case RunStatePassed, RunStateFailed, RunStateCanceled:
		return false // Terminal states
	default:
		return to == RunStatePending // Allow setting initial state
	}
}

// Run is a single execution of a pipeline: stages expanded into jobs,
// executed once, with the outcome recorded.
type Run struct {
	ID         string
	Pipeline   string // Pipeline name from config
	Branch     string
	CommitSHA  string
	State      RunState
	CreatedAt  time.Time
	UpdatedAt  time.Time
	StartedAt  *time.Time
	FinishedAt *time.Time
	Version    int64
}

// NewRun creates a new Run in PENDING state.
func NewRun(id, pipeline string) *Run {
	now := time.Now().UTC()
	return &Run{
		ID:        id,
		Pipeline:  pipeline,
		State:     RunStatePending,
		CreatedAt: now,
		UpdatedAt: now,
		Version:   1,
	}
}

// SetState transitions the run to a new state.
func (r *Run) SetState(newState RunState) error {
	if !ValidRunStateTransition(r.State, newState) {
		return fmt.Errorf("%w: cannot transition run from %s to %s",
			ErrInvalidState, r.State, newState)
	}
	r.State = newState
	now := time.Now().UTC()
	r.UpdatedAt = now
	switch {
	case newState == RunStateRunning:
		r.StartedAt = &now
	case newState.IsFinal():
		r.FinishedAt = &now
	}
	// Note: Version is managed by the storage layer, not here
	return nil
}

// Duration returns the elapsed wall time of the run, if it started.
func (r *Run) Duration() time.Duration {
	if r.StartedAt == nil {
		return 0
	}
	end := time.Now().UTC()
	if r.FinishedAt != nil {
		end = *r.FinishedAt
	}
	return end.Sub(*r.StartedAt)
}

// Failure contains information about a failure.
type Failure struct {
	Message    string
	OccurredAt time.Time
}
