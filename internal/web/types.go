package web

import (
	"time"

	"github.com/example/matrixci/internal/domain"
)

// RunSummary is the wire form of a run in list responses.
type RunSummary struct {
	ID         string     `json:"id"`
	Pipeline   string     `json:"pipeline"`
	Branch     string     `json:"branch,omitempty"`
	CommitSHA  string     `json:"commit_sha,omitempty"`
	State      string     `json:"state"`
	CreatedAt  time.Time  `json:"created_at"`
	StartedAt  *time.Time `json:"started_at,omitempty"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	DurationMS int64      `json:"duration_ms"`
}

// ListRunsResponse is the response for GET /api/runs.
type ListRunsResponse struct {
	Runs []RunSummary `json:"runs"`
}

// StageView is the wire form of a stage.
type StageView struct {
	Name      string   `json:"name"`
	DependsOn []string `json:"depends_on,omitempty"`
	State     string   `json:"state"`
}

// JobView is the wire form of a job.
type JobView struct {
	ID           string     `json:"id"`
	Stage        string     `json:"stage"`
	Name         string     `json:"name"`
	Env          []string   `json:"env,omitempty"`
	AllowFailure bool       `json:"allow_failure,omitempty"`
	State        string     `json:"state"`
	Failure      string     `json:"failure,omitempty"`
	StartedAt    *time.Time `json:"started_at,omitempty"`
	FinishedAt   *time.Time `json:"finished_at,omitempty"`
	DurationMS   int64      `json:"duration_ms"`
}

// RunDetailResponse is the response for GET /api/runs/{id}.
type RunDetailResponse struct {
	Run    RunSummary  `json:"run"`
	Stages []StageView `json:"stages"`
	Jobs   []JobView   `json:"jobs"`
}

// StepView is the wire form of one executed command.
type StepView struct {
	Idx        int       `json:"idx"`
	Phase      string    `json:"phase"`
	Command    string    `json:"command"`
	ExitCode   int       `json:"exit_code"`
	TimedOut   bool      `json:"timed_out,omitempty"`
	Output     string    `json:"output"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}

// JobLogResponse is the response for GET /api/runs/{id}/jobs/{jobID}/log.
type JobLogResponse struct {
	Job   JobView    `json:"job"`
	Steps []StepView `json:"steps"`
}

func convertRun(run *domain.Run) RunSummary {
	return RunSummary{
		ID:         run.ID,
		Pipeline:   run.Pipeline,
		Branch:     run.Branch,
		CommitSHA:  run.CommitSHA,
		State:      run.State.String(),
		CreatedAt:  run.CreatedAt,
		StartedAt:  run.StartedAt,
		FinishedAt: run.FinishedAt,
		DurationMS: run.Duration().Milliseconds(),
	}
}

func convertStage(stage *domain.Stage) StageView {
	return StageView{
		Name:      stage.Name,
		DependsOn: stage.DependsOn,
		State:     stage.State.String(),
	}
}

func convertJob(job *domain.Job) JobView {
	view := JobView{
		ID:           job.ID,
		Stage:        job.Stage,
		Name:         job.Name,
		Env:          job.Env,
		AllowFailure: job.AllowFailure,
		State:        job.State.String(),
		StartedAt:    job.StartedAt,
		FinishedAt:   job.FinishedAt,
		DurationMS:   job.Duration().Milliseconds(),
	}
	if job.Failure != nil {
		view.Failure = job.Failure.Message
	}
	return view
}

func convertStep(step *domain.Step) StepView {
	return StepView{
		Idx:        step.Idx,
		Phase:      string(step.Phase),
		Command:    step.Command,
		ExitCode:   step.ExitCode,
		TimedOut:   step.TimedOut,
		Output:     step.Output,
		StartedAt:  step.StartedAt,
		FinishedAt: step.FinishedAt,
	}
}
