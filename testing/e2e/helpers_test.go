package e2e

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/example/matrixci/internal/domain"
	"github.com/example/matrixci/internal/pipeline"
	"github.com/example/matrixci/internal/plan"
	"github.com/example/matrixci/internal/service"
	"github.com/example/matrixci/internal/shell"
	"github.com/example/matrixci/internal/storage/sqlite"
)

// TestEnv wires real components against a temp database and the real
// shell executor. Commands in e2e configs stick to portable POSIX
// tools (echo, true, false, sh, sleep).
type TestEnv struct {
	t     *testing.T
	Store *sqlite.SQLiteStorage
	Orch  *service.OrchestratorService
	Dir   string
}

func NewTestEnv(t *testing.T) *TestEnv {
	t.Helper()

	dir := t.TempDir()
	store, err := sqlite.New(filepath.Join(dir, "matrixci.db"))
	if err != nil {
		t.Fatalf("failed to create storage: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	if err := store.Migrate(context.Background()); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}

	return &TestEnv{
		t:     t,
		Store: store,
		Orch:  service.NewOrchestrator(store),
		Dir:   dir,
	}
}

// LoadConfig writes src to a config file in the env dir and loads it.
func (e *TestEnv) LoadConfig(src string) (*pipeline.Config, *plan.Plan) {
	e.t.Helper()

	path := filepath.Join(e.Dir, pipeline.DefaultFile)
	if err := os.WriteFile(path, []byte(src), 0o644); err != nil {
		e.t.Fatalf("failed to write config: %v", err)
	}
	cfg, err := pipeline.Load(path)
	if err != nil {
		e.t.Fatalf("failed to load config: %v", err)
	}
	pl, err := plan.Build(cfg)
	if err != nil {
		e.t.Fatalf("failed to build plan: %v", err)
	}
	return cfg, pl
}

// RunPipeline plans and executes a pipeline end to end.
func (e *TestEnv) RunPipeline(ctx context.Context, cfg *pipeline.Config, pl *plan.Plan) *domain.Run {
	e.t.Helper()

	run, err := e.Orch.PlanRun(ctx, &service.PlanRunRequest{Config: cfg, Plan: pl})
	if err != nil {
		e.t.Fatalf("failed to plan run: %v", err)
	}

	sched := service.NewScheduler(e.Store, shell.NewLocalExecutor(), nil, zap.NewNop(),
		service.SchedulerConfig{
			Parallelism: 2,
			JobTimeout:  time.Minute,
			WorkDir:     e.Dir,
		})
	run, err = sched.Execute(ctx, run.ID, cfg, pl)
	if err != nil {
		e.t.Fatalf("failed to execute run: %v", err)
	}
	return run
}

// Detail fetches the run with stages and jobs.
func (e *TestEnv) Detail(ctx context.Context, runID string) *service.RunDetail {
	e.t.Helper()
	detail, err := e.Orch.GetRunDetail(ctx, runID)
	if err != nil {
		e.t.Fatalf("failed to get run detail: %v", err)
	}
	return detail
}

// JobLog fetches one job's steps.
func (e *TestEnv) JobLog(ctx context.Context, runID, jobID string) *service.JobLog {
	e.t.Helper()
	log, err := e.Orch.GetJobLog(ctx, runID, jobID)
	if err != nil {
		e.t.Fatalf("failed to get job log: %v", err)
	}
	return log
}

func (e *TestEnv) jobByName(detail *service.RunDetail, name string) *domain.Job {
	e.t.Helper()
	for _, j := range detail.Jobs {
		if j.Name == name {
			return j
		}
	}
	e.t.Fatalf("job %q not found", name)
	return nil
}

func (e *TestEnv) stageByName(detail *service.RunDetail, name string) *domain.Stage {
	e.t.Helper()
	for _, s := range detail.Stages {
		if s.Name == name {
			return s
		}
	}
	e.t.Fatalf("stage %q not found", name)
	return nil
}
