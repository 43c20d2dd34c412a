package service

import (
	"context"
	"fmt"
	"runtime"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/example/matrixci/internal/domain"
	"github.com/example/matrixci/internal/observability"
	"github.com/example/matrixci/internal/pipeline"
	"github.com/example/matrixci/internal/plan"
	"github.com/example/matrixci/internal/shell"
	"github.com/example/matrixci/internal/storage"
)

// DefaultJobTimeout bounds a single job when its stage declares none.
const DefaultJobTimeout = 10 * time.Minute

// SchedulerConfig configures run execution.
type SchedulerConfig struct {
	// Parallelism caps concurrently running jobs within a stage. Stages
	// in the same batch each get their own cap. Zero means
	// runtime.NumCPU().
	Parallelism int

	// JobTimeout bounds each job unless its stage sets its own timeout.
	// Zero means DefaultJobTimeout.
	JobTimeout time.Duration

	// WorkDir is the working directory commands run in. Empty means the
	// current directory.
	WorkDir string
}

// Scheduler executes planned runs: stages in dependency order, jobs
// within a stage in parallel, commands within a job sequentially with
// the first failing command aborting the job.
type Scheduler struct {
	storage  storage.Storage
	executor shell.Executor
	metrics  *observability.Metrics
	logger   *zap.Logger
	cfg      SchedulerConfig
}

// NewScheduler creates a new Scheduler.
func NewScheduler(store storage.Storage, executor shell.Executor, metrics *observability.Metrics, logger *zap.Logger, cfg SchedulerConfig) *Scheduler {
	if cfg.Parallelism <= 0 {
		cfg.Parallelism = runtime.NumCPU()
	}
	if cfg.JobTimeout <= 0 {
		cfg.JobTimeout = DefaultJobTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if metrics == nil {
		metrics = observability.NewMetrics()
	}
	return &Scheduler{
		storage:  store,
		executor: executor,
		metrics:  metrics,
		logger:   logger,
		cfg:      cfg,
	}
}

// Execute runs a planned run to completion and returns it in its final
// state. Cancellation of ctx cancels in-flight jobs; terminal states are
// still persisted, and a context already canceled at entry finalizes the
// run as CANCELED without starting anything. A failed run is not a Go
// error; errors are reserved for infrastructure failures.
func (s *Scheduler) Execute(ctx context.Context, runID string, cfg *pipeline.Config, pl *plan.Plan) (*domain.Run, error) {
	// State writes run on a detached context: cancellation decides what
	// the run does next, never whether its state reaches the database.
	detached := context.WithoutCancel(ctx)

	run, err := s.loadRun(detached, runID)
	if err != nil {
		return nil, err
	}

	if ctx.Err() == nil {
		if err := run.SetState(domain.RunStateRunning); err != nil {
			return nil, err
		}
		if err := s.saveRun(detached, run); err != nil {
			return nil, err
		}
		s.logger.Info("run started",
			zap.String("run_id", run.ID),
			zap.String("pipeline", run.Pipeline))
	}

	runFailed := false
	for _, batch := range pl.Batches() {
		if runFailed || ctx.Err() != nil {
			if err := s.skipBatch(detached, run.ID, batch); err != nil {
				return nil, err
			}
			continue
		}

		// Stages in a batch have no dependencies between them and run
		// unbounded; each stage caps its own job concurrency.
		g, batchCtx := errgroup.WithContext(ctx)

		results := make([]bool, len(batch))
		for i, name := range batch {
			i, name := i, name
			g.Go(func() error {
				failed, err := s.executeStage(batchCtx, run.ID, pl.Stage(name))
				results[i] = failed
				return err
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}
		for _, failed := range results {
			if failed {
				runFailed = true
			}
		}
	}

	final := domain.RunStatePassed
	switch {
	case ctx.Err() != nil:
		final = domain.RunStateCanceled
	case runFailed:
		final = domain.RunStateFailed
	}
	if err := run.SetState(final); err != nil {
		return nil, err
	}
	if err := s.saveRun(detached, run); err != nil {
		return nil, err
	}

	s.metrics.RunsTotal().WithLabels(final.String()).Inc()
	s.metrics.RunDuration().Observe(run.Duration())
	s.logger.Info("run finished",
		zap.String("run_id", run.ID),
		zap.String("state", final.String()),
		zap.Duration("duration", run.Duration()))

	return run, nil
}

// executeStage runs every job of one stage and returns whether the
// stage failed. Jobs whose stage allows failure never fail the stage.
func (s *Scheduler) executeStage(ctx context.Context, runID string, sc *pipeline.StageConfig) (bool, error) {
	detached := context.WithoutCancel(ctx)

	stage, jobs, err := s.loadStage(detached, runID, sc.Name)
	if err != nil {
		return false, err
	}

	if err := stage.SetState(domain.StageStateRunning); err != nil {
		return false, err
	}
	if err := s.saveStage(detached, stage); err != nil {
		return false, err
	}
	s.logger.Info("stage started",
		zap.String("run_id", runID),
		zap.String("stage", sc.Name),
		zap.Int("jobs", len(jobs)))

	// Matrix legs run in parallel, capped by the configured parallelism.
	g, jobCtx := s.jobGroup(ctx)

	failures := make([]bool, len(jobs))
	for i, job := range jobs {
		i, job := i, job
		g.Go(func() error {
			failed, err := s.executeJob(jobCtx, sc, job)
			failures[i] = failed && !job.AllowFailure
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return false, err
	}

	stageFailed := false
	for _, f := range failures {
		if f {
			stageFailed = true
		}
	}

	final := domain.StageStatePassed
	if stageFailed {
		final = domain.StageStateFailed
	}
	if ctx.Err() != nil && !stageFailed {
		// Canceled mid-stage without a real failure. The run ends
		// CANCELED; record the stage as failed so it is not mistaken
		// for a pass.
		final = domain.StageStateFailed
	}
	if err := stage.SetState(final); err != nil {
		return false, err
	}
	if err := s.saveStage(detached, stage); err != nil {
		return false, err
	}
	s.logger.Info("stage finished",
		zap.String("run_id", runID),
		zap.String("stage", sc.Name),
		zap.String("state", final.String()))

	return final == domain.StageStateFailed, nil
}

func (s *Scheduler) jobGroup(ctx context.Context) (*errgroup.Group, context.Context) {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.Parallelism)
	return g, gctx
}

// executeJob runs one job's install and script phases and returns
// whether the job failed.
func (s *Scheduler) executeJob(ctx context.Context, sc *pipeline.StageConfig, job *domain.Job) (bool, error) {
	detached := context.WithoutCancel(ctx)

	if ctx.Err() != nil {
		return false, s.cancelJob(detached, job)
	}

	if err := job.SetState(domain.JobStateRunning); err != nil {
		return false, err
	}
	if err := s.saveJob(detached, job); err != nil {
		return false, err
	}
	s.metrics.RunningJobs().Inc()
	defer s.metrics.RunningJobs().Dec()

	timeout := s.cfg.JobTimeout
	if sc.Timeout > 0 {
		timeout = time.Duration(sc.Timeout)
	}
	jobCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	failure, err := s.runPhases(jobCtx, sc, job)
	if err != nil {
		return false, err
	}

	if failure == "" && ctx.Err() != nil {
		return false, s.cancelJob(detached, job)
	}

	if failure != "" {
		s.runAfterFailure(detached, sc, job)
		if err := job.SetFailure(failure); err != nil {
			return false, err
		}
	} else {
		if err := job.SetState(domain.JobStatePassed); err != nil {
			return false, err
		}
	}
	if err := s.saveJob(detached, job); err != nil {
		return false, err
	}

	s.metrics.JobsTotal().WithLabels(job.State.String()).Inc()
	s.metrics.JobDuration().WithLabels(job.Stage).Observe(job.Duration())
	s.logger.Info("job finished",
		zap.String("run_id", job.RunID),
		zap.String("job_id", job.ID),
		zap.String("job", job.Name),
		zap.String("state", job.State.String()))

	return job.State == domain.JobStateFailed, nil
}

// runPhases executes install then script. It returns a failure message
// for the first failing command, or "" if every command passed.
func (s *Scheduler) runPhases(ctx context.Context, sc *pipeline.StageConfig, job *domain.Job) (string, error) {
	idx := 0
	phases := []struct {
		phase    domain.Phase
		commands []string
	}{
		{domain.PhaseInstall, sc.Install},
		{domain.PhaseScript, sc.Script},
	}

	for _, p := range phases {
		for i, command := range p.commands {
			step, err := s.runStep(ctx, job, p.phase, idx, command)
			if err != nil {
				return "", err
			}
			idx++
			if step.Ok() {
				continue
			}
			if step.TimedOut {
				return fmt.Sprintf("%s command %d timed out: %s", p.phase, i, command), nil
			}
			if ctx.Err() != nil {
				// Killed by cancellation, not a real failure. The
				// caller records the job CANCELED.
				return "", nil
			}
			return fmt.Sprintf("%s command %d exited %d: %s", p.phase, i, step.ExitCode, command), nil
		}
	}
	return "", nil
}

// runAfterFailure runs the stage's after_failure commands. They are
// best effort: their exit codes never change the job outcome, and they
// get a fresh deadline because the job's may already be spent.
func (s *Scheduler) runAfterFailure(ctx context.Context, sc *pipeline.StageConfig, job *domain.Job) {
	if len(sc.AfterFailure) == 0 {
		return
	}
	afCtx, cancel := context.WithTimeout(ctx, time.Minute)
	defer cancel()

	base := len(sc.Install) + len(sc.Script)
	for i, command := range sc.AfterFailure {
		if _, err := s.runStep(afCtx, job, domain.PhaseAfterFailure, base+i, command); err != nil {
			s.logger.Warn("after_failure command error",
				zap.String("job_id", job.ID),
				zap.String("command", command),
				zap.Error(err))
			return
		}
	}
}

// runStep executes one command and persists it as a step.
func (s *Scheduler) runStep(ctx context.Context, job *domain.Job, phase domain.Phase, idx int, command string) (*domain.Step, error) {
	started := time.Now().UTC()
	result, err := s.executor.Run(ctx, shell.Command{
		Argv: command,
		Dir:  s.cfg.WorkDir,
		Env:  job.Env,
	})
	if result == nil {
		return nil, fmt.Errorf("failed to run %q: %w", command, err)
	}
	// A context error still comes with a result; the step is recorded
	// and the caller decides from ctx what it means.

	step := &domain.Step{
		JobID:      job.ID,
		Idx:        idx,
		Phase:      phase,
		Command:    command,
		ExitCode:   result.ExitCode,
		TimedOut:   result.TimedOut,
		Output:     result.Output,
		StartedAt:  started,
		FinishedAt: started.Add(result.Duration),
	}
	if err := s.saveStep(context.WithoutCancel(ctx), step); err != nil {
		return nil, err
	}

	outcome := "ok"
	if !step.Ok() {
		outcome = "failed"
	}
	s.metrics.StepsTotal().WithLabels(outcome).Inc()
	s.metrics.StepDuration().WithLabels(string(phase)).Observe(result.Duration)
	s.logger.Debug("step finished",
		zap.String("job_id", job.ID),
		zap.String("phase", string(phase)),
		zap.String("command", command),
		zap.Int("exit_code", result.ExitCode))

	return step, nil
}

// skipBatch marks every stage in a batch SKIPPED and cancels its jobs.
func (s *Scheduler) skipBatch(ctx context.Context, runID string, batch []string) error {
	ctx = context.WithoutCancel(ctx)
	for _, name := range batch {
		stage, jobs, err := s.loadStage(ctx, runID, name)
		if err != nil {
			return err
		}
		if err := stage.SetState(domain.StageStateSkipped); err != nil {
			return err
		}
		if err := s.saveStage(ctx, stage); err != nil {
			return err
		}
		for _, job := range jobs {
			if err := s.cancelJob(ctx, job); err != nil {
				return err
			}
		}
		s.logger.Info("stage skipped",
			zap.String("run_id", runID),
			zap.String("stage", name))
	}
	return nil
}

func (s *Scheduler) cancelJob(ctx context.Context, job *domain.Job) error {
	if err := job.SetState(domain.JobStateCanceled); err != nil {
		return err
	}
	if err := s.saveJob(ctx, job); err != nil {
		return err
	}
	s.metrics.JobsTotal().WithLabels(job.State.String()).Inc()
	return nil
}

// Storage helpers. Each opens a short transaction of its own so that
// concurrent jobs never contend for a long-lived one.

func (s *Scheduler) loadRun(ctx context.Context, runID string) (*domain.Run, error) {
	uow, err := s.storage.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()
	return uow.Runs().Get(ctx, runID)
}

func (s *Scheduler) saveRun(ctx context.Context, run *domain.Run) error {
	return s.inTx(ctx, func(uow storage.UnitOfWork) error {
		return uow.Runs().Update(ctx, run)
	})
}

func (s *Scheduler) loadStage(ctx context.Context, runID, name string) (*domain.Stage, []*domain.Job, error) {
	uow, err := s.storage.Begin(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	stage, err := uow.Stages().Get(ctx, runID, name)
	if err != nil {
		return nil, nil, err
	}
	jobs, err := uow.Jobs().ListByStage(ctx, runID, name)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to list jobs: %w", err)
	}
	return stage, jobs, nil
}

func (s *Scheduler) saveStage(ctx context.Context, stage *domain.Stage) error {
	return s.inTx(ctx, func(uow storage.UnitOfWork) error {
		return uow.Stages().Update(ctx, stage)
	})
}

func (s *Scheduler) saveJob(ctx context.Context, job *domain.Job) error {
	return s.inTx(ctx, func(uow storage.UnitOfWork) error {
		return uow.Jobs().Update(ctx, job)
	})
}

func (s *Scheduler) saveStep(ctx context.Context, step *domain.Step) error {
	return s.inTx(ctx, func(uow storage.UnitOfWork) error {
		return uow.Steps().Create(ctx, step)
	})
}

func (s *Scheduler) inTx(ctx context.Context, fn func(uow storage.UnitOfWork) error) error {
	uow, err := s.storage.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	if err := fn(uow); err != nil {
		return err
	}

	start := time.Now()
	if err := uow.Commit(); err != nil {
		return fmt.Errorf("failed to commit: %w", err)
	}
	s.metrics.TxCommitDuration().Observe(time.Since(start))
	return nil
}
