package domain

import (
	"fmt"
	"time"
)

// JobState describes the current state of a Job.
type JobState int

const (
	JobStateUnknown  JobState = 0
	JobStateCreated  JobState = 10 // Planned, waiting for its stage
	JobStateRunning  JobState = 20 // Executing
	JobStatePassed   JobState = 30 // All steps exited zero
	JobStateFailed   JobState = 40 // A step exited non-zero or timed out
	JobStateCanceled JobState = 50 // Aborted before completion
)

func (s JobState) String() string {
	switch s {
	case JobStateCreated:
		return "CREATED"
	case JobStateRunning:
		return "RUNNING"
	case JobStatePassed:
		return "PASSED"
	case JobStateFailed:
		return "FAILED"
	case JobStateCanceled:
		return "CANCELED"
	default:
		return "UNKNOWN"
	}
}

// IsFinal returns true if the job is in a terminal state.
func (s JobState) IsFinal() bool {
	return s == JobStatePassed || s == JobStateFailed || s == JobStateCanceled
}

// ValidJobStateTransition checks if a job state transition is valid.
// Valid transitions: CREATED -> RUNNING -> {PASSED, FAILED, CANCELED},
// plus CREATED -> CANCELED for jobs whose stage never started them.
func ValidJobStateTransition(from, to JobState) bool {
	switch from {
	case JobStateCreated:
		return to == JobStateRunning || to == JobStateCanceled
	case JobStateRunning:
		return to.IsFinal()
	case JobStatePassed, JobStateFailed, JobStateCanceled:
		return false // Terminal states
	default:
		return to == JobStateCreated // Allow setting initial state
	}
}

// Job is a single leg of a stage: one matrix expansion, executed as a
// fail-fast sequence of steps with the leg's environment applied.
type Job struct {
	ID           string
	RunID        string
	Stage        string
	Name         string   // Stage name plus the leg's matrix env, e.g. "test TF_VERSION=tf-nightly"
	Env          []string // K=V pairs for this leg, global env first then matrix env
	AllowFailure bool     // Failure reported but does not fail the stage
	State        JobState
	Failure      *Failure
	CreatedAt    time.Time
	UpdatedAt    time.Time
	StartedAt    *time.Time
	FinishedAt   *time.Time
	Version      int64
}

// NewJob creates a new Job in CREATED state.
func NewJob(id, runID, stage, name string) *Job {
	now := time.Now().UTC()
	return &Job{
		ID:        id,
		RunID:     runID,
		Stage:     stage,
		Name:      name,
		State:     JobStateCreated,
		CreatedAt: now,
		UpdatedAt: now,
		Version:   1,
	}
}

// SetState transitions the job to a new state.
func (j *Job) SetState(newState JobState) error {
	if !ValidJobStateTransition(j.State, newState) {
		return fmt.Errorf("%w: cannot transition job %q from %s to %s",
			ErrInvalidState, j.Name, j.State, newState)
	}
	j.State = newState
	now := time.Now().UTC()
	j.UpdatedAt = now
	switch {
	case newState == JobStateRunning:
		j.StartedAt = &now
	case newState.IsFinal():
		j.FinishedAt = &now
	}
	// Note: Version is managed by the storage layer, not here
	return nil
}

// SetFailure marks the job as failed with a message.
func (j *Job) SetFailure(message string) error {
	if err := j.SetState(JobStateFailed); err != nil {
		return err
	}
	j.Failure = &Failure{
		Message:    message,
		OccurredAt: time.Now().UTC(),
	}
	return nil
}

// Duration returns the elapsed wall time of the job, if it started.
func (j *Job) Duration() time.Duration {
	if j.StartedAt == nil {
		return 0
	}
	end := time.Now().UTC()
	if j.FinishedAt != nil {
		end = *j.FinishedAt
	}
	return end.Sub(*j.StartedAt)
}
