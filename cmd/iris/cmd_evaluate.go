package main

import (
	"io"

	"github.com/spf13/cobra"

	"irislab/pipeline"
)

func newEvaluateCmd(stdout, _ io.Writer) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "evaluate",
		Short: "Cross-validate the saved pipeline on the full dataset",
		Long: `Reload the saved pipeline and run 5-fold cross-validation on all 150 samples.

By default every fold refits a copy of the saved pipeline. With --frozen the
saved weights are scored as they are. The artifact was trained on these same
samples, so both numbers describe training-set performance.

Examples:
  iris evaluate
  iris evaluate --frozen`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			frozen, _ := cmd.Flags().GetBool("frozen")
			return runEvaluate(cmd, stdout, frozen)
		},
	}
	cmd.Flags().Bool("frozen", false, "Score the saved weights without refitting")
	return cmd
}

func runEvaluate(cmd *cobra.Command, stdout io.Writer, frozen bool) error {
	e, err := loadEnv(cmd)
	if err != nil {
		return err
	}
	defer e.close(nil)

	evaluator := pipeline.NewEvaluator(e.settings(), e.logger)
	evaluator.Out = stdout
	if frozen {
		evaluator.Mode = pipeline.ModeFrozen
	}
	_, err = evaluator.EvaluatePersisted(cmd.Context())
	return err
}
