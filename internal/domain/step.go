package domain

import "time"

// Phase identifies which part of a job a step belongs to. Install steps
// run before script steps; a non-zero exit in either aborts the job.
// AfterFailure steps run best-effort once a job has already failed and
// never change its outcome.
type Phase string

const (
	PhaseInstall      Phase = "install"
	PhaseScript       Phase = "script"
	PhaseAfterFailure Phase = "after_failure"
)

// Step is a single shell command executed within a job, with its
// captured output and exit status.
type Step struct {
	JobID      string
	Idx        int // Execution order within the job, across phases
	Phase      Phase
	Command    string
	ExitCode   int
	TimedOut   bool
	Output     string // Combined stdout and stderr, tail-capped
	StartedAt  time.Time
	FinishedAt time.Time
}

// Ok returns true if the step exited zero without timing out.
func (s *Step) Ok() bool {
	return s.ExitCode == 0 && !s.TimedOut
}

// Duration returns the wall time the step took.
func (s *Step) Duration() time.Duration {
	return s.FinishedAt.Sub(s.StartedAt)
}
