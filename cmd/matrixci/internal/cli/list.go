package cli

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/example/matrixci/internal/service"
	"github.com/example/matrixci/internal/storage"
	"github.com/example/matrixci/internal/storage/sqlite"
)

var listLimit int

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List recorded runs, newest first",
	RunE:  runList,
}

func init() {
	listCmd.Flags().IntVarP(&listLimit, "limit", "n", 20, "max runs to show")
}

func runList(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	store, err := sqlite.New(dbPath)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer store.Close()
	if err := store.Migrate(ctx); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}

	orch := service.NewOrchestrator(store)
	runs, err := orch.ListRuns(ctx, storage.ListOptions{Limit: listLimit})
	if err != nil {
		return err
	}

	if len(runs) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No runs recorded.")
		return nil
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "RUN\tPIPELINE\tBRANCH\tSTATE\tCREATED")
	for _, run := range runs {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			run.ID, run.Pipeline, run.Branch, run.State,
			run.CreatedAt.Local().Format("2006-01-02 15:04:05"))
	}
	return w.Flush()
}
