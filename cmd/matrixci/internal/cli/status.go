package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/example/matrixci/internal/report"
	"github.com/example/matrixci/internal/service"
	"github.com/example/matrixci/internal/storage/sqlite"
)

var showLogs bool

var statusCmd = &cobra.Command{
	Use:   "status <run-id>",
	Short: "Show one run's stages, jobs and failures",
	Args:  cobra.ExactArgs(1),
	RunE:  runStatus,
}

func init() {
	statusCmd.Flags().BoolVar(&showLogs, "logs", false, "include command output of failed jobs")
}

func runStatus(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	runID := args[0]

	store, err := sqlite.New(dbPath)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer store.Close()
	if err := store.Migrate(ctx); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}

	orch := service.NewOrchestrator(store)
	detail, err := orch.GetRunDetail(ctx, runID)
	if err != nil {
		return err
	}

	summary, err := report.RenderSummary(detail)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	fmt.Fprint(out, summary)

	if !showLogs {
		return nil
	}
	for _, job := range detail.Jobs {
		if job.Failure == nil {
			continue
		}
		log, err := orch.GetJobLog(ctx, runID, job.ID)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "\n--- %s ---\n", job.Name)
		for _, step := range log.Steps {
			fmt.Fprintf(out, "$ %s (exit %d)\n%s\n", step.Command, step.ExitCode, step.Output)
		}
	}
	return nil
}
