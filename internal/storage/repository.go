package storage

import (
	"context"

	"github.com/example/matrixci/internal/domain"
)

// ListOptions provides filtering options for list operations.
type ListOptions struct {
	// States to filter by (empty = all)
	RunStates []domain.RunState
	JobStates []domain.JobState

	// Pagination
	Limit  int
	Offset int
}

// RunRepository provides access to Run storage.
type RunRepository interface {
	// Create creates a new Run.
	Create(ctx context.Context, run *domain.Run) error

	// Get retrieves a Run by ID.
	Get(ctx context.Context, id string) (*domain.Run, error)

	// Update updates an existing Run.
	Update(ctx context.Context, run *domain.Run) error

	// List lists Runs, newest first, with optional filtering.
	List(ctx context.Context, opts ListOptions) ([]*domain.Run, error)

	// Delete deletes a Run and everything under it.
	Delete(ctx context.Context, id string) error
}

// StageRepository provides access to Stage storage.
type StageRepository interface {
	// Create creates a new Stage.
	Create(ctx context.Context, stage *domain.Stage) error

	// Get retrieves a Stage by run ID and name.
	Get(ctx context.Context, runID, name string) (*domain.Stage, error)

	// Update updates an existing Stage.
	Update(ctx context.Context, stage *domain.Stage) error

	// ListByRun lists the Stages of a run in ordinal order.
	ListByRun(ctx context.Context, runID string) ([]*domain.Stage, error)
}

// JobRepository provides access to Job storage.
type JobRepository interface {
	// Create creates a new Job.
	Create(ctx context.Context, job *domain.Job) error

	// Get retrieves a Job by run ID and job ID.
	Get(ctx context.Context, runID, jobID string) (*domain.Job, error)

	// Update updates an existing Job.
	Update(ctx context.Context, job *domain.Job) error

	// ListByRun lists the Jobs of a run with optional filtering.
	ListByRun(ctx context.Context, runID string, opts ListOptions) ([]*domain.Job, error)

	// ListByStage lists the Jobs of one stage within a run.
	ListByStage(ctx context.Context, runID, stage string) ([]*domain.Job, error)
}

// StepRepository provides access to Step storage.
type StepRepository interface {
	// Create appends an executed step to a job.
	Create(ctx context.Context, step *domain.Step) error

	// ListByJob lists a job's steps in execution order.
	ListByJob(ctx context.Context, jobID string) ([]*domain.Step, error)
}

// UnitOfWork provides transactional access to all repositories.
type UnitOfWork interface {
	// Repository accessors
	Runs() RunRepository
	Stages() StageRepository
	Jobs() JobRepository
	Steps() StepRepository

	// Transaction control
	Commit() error
	Rollback() error
}

// Storage is the top-level storage interface.
type Storage interface {
	// Begin starts a new transaction and returns a UnitOfWork.
	Begin(ctx context.Context) (UnitOfWork, error)

	// Close closes the storage connection.
	Close() error

	// Migrate runs database migrations.
	Migrate(ctx context.Context) error
}
