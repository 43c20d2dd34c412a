package service

import (
	"context"
	"fmt"

	"github.com/example/matrixci/internal/domain"
	"github.com/example/matrixci/internal/pipeline"
	"github.com/example/matrixci/internal/plan"
	"github.com/example/matrixci/internal/storage"
	"github.com/example/matrixci/pkg/id"
)

// OrchestratorService plans runs and answers queries about them. It is
// the only layer that talks to storage on behalf of the CLI and the
// HTTP API.
type OrchestratorService struct {
	storage storage.Storage
}

// NewOrchestrator creates a new OrchestratorService.
func NewOrchestrator(store storage.Storage) *OrchestratorService {
	return &OrchestratorService{storage: store}
}

// PlanRunRequest is the request for PlanRun.
type PlanRunRequest struct {
	Config *pipeline.Config
	Plan   *plan.Plan

	// Optional source metadata recorded on the run.
	Branch    string
	CommitSHA string
}

// PlanRun persists a new PENDING run with every stage and job the
// pipeline expands to. The whole plan is written in one transaction so
// a run is never observable half-created.
func (s *OrchestratorService) PlanRun(ctx context.Context, req *PlanRunRequest) (*domain.Run, error) {
	if req == nil || req.Config == nil || req.Plan == nil {
		return nil, fmt.Errorf("%w: config and plan are required", domain.ErrInvalidArgument)
	}

	run := domain.NewRun(id.Generate(), req.Config.Name)
	run.Branch = req.Branch
	run.CommitSHA = req.CommitSHA

	uow, err := s.storage.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	if err := uow.Runs().Create(ctx, run); err != nil {
		return nil, fmt.Errorf("failed to create run: %w", err)
	}

	for i := range req.Config.Stages {
		sc := &req.Config.Stages[i]

		stage := domain.NewStage(run.ID, sc.Name, i)
		stage.DependsOn = req.Plan.DependsOn(sc.Name)
		if err := uow.Stages().Create(ctx, stage); err != nil {
			return nil, fmt.Errorf("failed to create stage %q: %w", sc.Name, err)
		}

		for _, spec := range sc.ExpandMatrix() {
			job := domain.NewJob(id.GenerateShort(), run.ID, sc.Name, spec.Name)
			// Global env first, then stage env, then the matrix leg, so
			// later entries shadow earlier ones at execution time.
			env := make([]string, 0, len(req.Config.Env)+len(sc.Env)+len(spec.Env))
			env = append(env, req.Config.Env...)
			env = append(env, sc.Env...)
			job.Env = append(env, spec.Env...)
			job.AllowFailure = spec.AllowFailure
			if err := uow.Jobs().Create(ctx, job); err != nil {
				return nil, fmt.Errorf("failed to create job %q: %w", spec.Name, err)
			}
		}
	}

	if err := uow.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit: %w", err)
	}

	return run, nil
}

// GetRun retrieves a run by ID.
func (s *OrchestratorService) GetRun(ctx context.Context, runID string) (*domain.Run, error) {
	uow, err := s.storage.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	return uow.Runs().Get(ctx, runID)
}

// ListRuns lists runs, newest first.
func (s *OrchestratorService) ListRuns(ctx context.Context, opts storage.ListOptions) ([]*domain.Run, error) {
	uow, err := s.storage.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	return uow.Runs().List(ctx, opts)
}

// RunDetail is a run together with its stages and jobs.
type RunDetail struct {
	Run    *domain.Run
	Stages []*domain.Stage
	Jobs   []*domain.Job
}

// GetRunDetail retrieves a run with all of its stages and jobs.
func (s *OrchestratorService) GetRunDetail(ctx context.Context, runID string) (*RunDetail, error) {
	uow, err := s.storage.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	run, err := uow.Runs().Get(ctx, runID)
	if err != nil {
		return nil, err
	}
	stages, err := uow.Stages().ListByRun(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to list stages: %w", err)
	}
	jobs, err := uow.Jobs().ListByRun(ctx, runID, storage.ListOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}

	return &RunDetail{Run: run, Stages: stages, Jobs: jobs}, nil
}

// JobLog is a job together with its executed steps.
type JobLog struct {
	Job   *domain.Job
	Steps []*domain.Step
}

// GetJobLog retrieves a job and its step-by-step output.
func (s *OrchestratorService) GetJobLog(ctx context.Context, runID, jobID string) (*JobLog, error) {
	uow, err := s.storage.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	job, err := uow.Jobs().Get(ctx, runID, jobID)
	if err != nil {
		return nil, err
	}
	steps, err := uow.Steps().ListByJob(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("failed to list steps: %w", err)
	}

	return &JobLog{Job: job, Steps: steps}, nil
}
