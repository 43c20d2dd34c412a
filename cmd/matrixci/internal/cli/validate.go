package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/example/matrixci/internal/pipeline"
	"github.com/example/matrixci/internal/plan"
)

var validateConfigPath string

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the pipeline config without running it",
	Long: `Validate the pipeline config: schema, stage references, env entries
and the dependency graph. On success it prints the planned execution
order and the jobs each stage expands to.

EXAMPLES:
  matrixci validate
  matrixci validate --config ci.yml`,
	RunE: runValidate,
}

func init() {
	validateCmd.Flags().StringVarP(&validateConfigPath, "config", "c", pipeline.DefaultFile, "pipeline config file")
}

func runValidate(cmd *cobra.Command, args []string) error {
	cfg, err := pipeline.Load(validateConfigPath)
	if err != nil {
		return err
	}
	pl, err := plan.Build(cfg)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s: valid (%d stages)\n\n", validateConfigPath, len(cfg.Stages))

	for i, batch := range pl.Batches() {
		fmt.Fprintf(out, "Batch %d: %s\n", i+1, strings.Join(batch, ", "))
		for _, name := range batch {
			for _, spec := range pl.Stage(name).ExpandMatrix() {
				fmt.Fprintf(out, "  %s\n", spec.Name)
			}
		}
	}
	return nil
}
