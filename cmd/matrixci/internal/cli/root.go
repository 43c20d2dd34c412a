// Package cli implements the matrixci command line interface.
package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	dbPath  string
	verbose bool

	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "matrixci",
	Short: "Run stage-based CI pipelines with matrix job expansion",
	Long: `matrixci executes CI pipelines defined in a .matrixci.yml file on the
local host.

A pipeline is a list of stages. Each stage declares install and script
commands and optionally a matrix of environment variables; the matrix
expands the stage into one job per combination, and jobs run in
parallel. Stages run in dependency order: when no stage declares
depends_on they run one after another, and a failing stage skips
everything downstream. Within a job, the first command that exits
non-zero aborts the job.

Every run is recorded in a local SQLite database, so results can be
inspected later with 'matrixci list' and 'matrixci status', or served
over HTTP with 'matrixci serve'.

EXAMPLES:
  # Validate the pipeline config without running anything
  matrixci validate

  # Execute the pipeline in the current directory
  matrixci run

  # Execute with a specific config and 4 parallel jobs
  matrixci run --config ci.yml --parallelism 4

  # Inspect past runs
  matrixci list
  matrixci status <run-id>

  # Serve run status as JSON
  matrixci serve --addr :8080`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return initLogger()
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			logger.Sync()
		}
	},
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "matrixci.db", "path to the run database")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(versionCmd)
}

func initLogger() error {
	cfg := zap.NewProductionConfig()
	if verbose {
		cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	}
	l, err := cfg.Build()
	if err != nil {
		return fmt.Errorf("failed to build logger: %w", err)
	}
	logger = l
	return nil
}
