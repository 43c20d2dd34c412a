package domain

import (
	"fmt"
	"time"
)

// StageState describes the current state of a Stage within a run.
type StageState int

const (
	StageStateUnknown StageState = 0
	StageStatePending StageState = 10 // Waiting for upstream stages
	StageStateRunning StageState = 20 // Jobs executing
	StageStatePassed  StageState = 30 // All jobs passed (or allowed to fail)
	StageStateFailed  StageState = 40 // A job failed
	StageStateSkipped StageState = 50 // Never ran because an upstream stage failed
)

func (s StageState) String() string {
	switch s {
	case StageStatePending:
		return "PENDING"
	case StageStateRunning:
		return "RUNNING"
	case StageStatePassed:
		return "PASSED"
	case StageStateFailed:
		return "FAILED"
	case StageStateSkipped:
		return "SKIPPED"
	default:
		return "UNKNOWN"
	}
}

// IsFinal returns true if the stage is in a terminal state.
func (s StageState) IsFinal() bool {
	return s == StageStatePassed || s == StageStateFailed || s == StageStateSkipped
}

// ValidStageStateTransition checks if a stage state transition is valid.
// Valid transitions: PENDING -> RUNNING -> {PASSED, FAILED},
// PENDING -> SKIPPED when an upstream stage failed or the run was canceled.
func ValidStageStateTransition(from, to StageState) bool {
	switch from {
	case StageStatePending:
		return to == StageStateRunning || to == StageStateSkipped
	case StageStateRunning:
		return to == StageStatePassed || to == StageStateFailed
	case StageStatePassed, StageStateFailed, StageStateSkipped:
		return false // Terminal states
	default:
		return to == StageStatePending // Allow setting initial state
	}
}

// Stage is an ordered group of jobs within a Run. A stage starts only
// after every stage it depends on has passed.
type Stage struct {
	RunID     string
	Name      string
	Ordinal   int // Declaration order in the pipeline config
	DependsOn []string
	State     StageState
	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewStage creates a new Stage in PENDING state.
func NewStage(runID, name string, ordinal int) *Stage {
	now := time.Now().UTC()
	return &Stage{
		RunID:     runID,
		Name:      name,
		Ordinal:   ordinal,
		State:     StageStatePending,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// SetState transitions the stage to a new state.
func (s *Stage) SetState(newState StageState) error {
	if !ValidStageStateTransition(s.State, newState) {
		return fmt.Errorf("%w: cannot transition stage %q from %s to %s",
			ErrInvalidState, s.Name, s.State, newState)
	}
	s.State = newState
	s.UpdatedAt = time.Now().UTC()
	return nil
}
