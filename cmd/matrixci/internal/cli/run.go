package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/example/matrixci/internal/domain"
	"github.com/example/matrixci/internal/observability"
	"github.com/example/matrixci/internal/pipeline"
	"github.com/example/matrixci/internal/plan"
	"github.com/example/matrixci/internal/report"
	"github.com/example/matrixci/internal/service"
	"github.com/example/matrixci/internal/shell"
	"github.com/example/matrixci/internal/storage/sqlite"
)

var (
	configPath  string
	parallelism int
	jobTimeout  time.Duration
	workDir     string
	branch      string
	commitSHA   string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Execute the pipeline",
	Long: `Execute the pipeline defined in the config file.

The run is planned first: the stage dependency graph is resolved and
every matrix leg becomes a job, all recorded PENDING in the database.
Execution then walks the stages in dependency order. A Ctrl+C cancels
in-flight jobs and records the run CANCELED.

The command exits non-zero when the run fails, so it composes with
shell scripting and outer automation.

EXAMPLES:
  matrixci run
  matrixci run --config ci.yml --parallelism 4
  matrixci run --branch main --commit $(git rev-parse HEAD)`,
	RunE: runRun,
}

func init() {
	runCmd.Flags().StringVarP(&configPath, "config", "c", pipeline.DefaultFile, "pipeline config file")
	runCmd.Flags().IntVar(&parallelism, "parallelism", 0, "max concurrent jobs (0 = number of CPUs)")
	runCmd.Flags().DurationVar(&jobTimeout, "job-timeout", 0, "per-job timeout (0 = 10m default)")
	runCmd.Flags().StringVar(&workDir, "workdir", "", "working directory for commands")
	runCmd.Flags().StringVar(&branch, "branch", "", "branch name recorded on the run")
	runCmd.Flags().StringVar(&commitSHA, "commit", "", "commit SHA recorded on the run")
}

func runRun(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := pipeline.Load(configPath)
	if err != nil {
		return err
	}
	pl, err := plan.Build(cfg)
	if err != nil {
		return err
	}

	store, err := sqlite.New(dbPath)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer store.Close()
	if err := store.Migrate(ctx); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}

	orch := service.NewOrchestrator(store)
	run, err := orch.PlanRun(ctx, &service.PlanRunRequest{
		Config:    cfg,
		Plan:      pl,
		Branch:    branch,
		CommitSHA: commitSHA,
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Planned run %s (%s)\n", run.ID, cfg.Name)

	sched := service.NewScheduler(store, shell.NewLocalExecutor(), observability.NewMetrics(), logger,
		service.SchedulerConfig{
			Parallelism: parallelism,
			JobTimeout:  jobTimeout,
			WorkDir:     workDir,
		})

	run, err = sched.Execute(ctx, run.ID, cfg, pl)
	if err != nil {
		return fmt.Errorf("run execution failed: %w", err)
	}

	// Summaries read fresh state so cancellation is reflected.
	detail, err := orch.GetRunDetail(context.Background(), run.ID)
	if err != nil {
		return err
	}
	summary, err := report.RenderSummary(detail)
	if err != nil {
		return err
	}
	fmt.Fprint(cmd.OutOrStdout(), summary)

	if run.State != domain.RunStatePassed {
		return fmt.Errorf("run %s %s", run.ID, run.State)
	}
	return nil
}
