package main

import (
	"io"

	"github.com/spf13/cobra"

	"irislab/pipeline"
)

func newTrainCmd(stdout, _ io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "train",
		Short: "Train the pipeline and save the artifact",
		Long: `Train the scaler + logistic regression pipeline on the bundled Iris dataset.

Reports 5-fold cross-validation on a stratified training split and metrics on
the held-out split, then refits on all 150 samples and saves the artifact.

Examples:
  iris train
  iris train --artifact /tmp/iris.json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runTrain(cmd, stdout)
		},
	}
}

func runTrain(cmd *cobra.Command, stdout io.Writer) error {
	e, err := loadEnv(cmd)
	if err != nil {
		return err
	}
	store := e.openStore()
	defer e.close(store)

	trainer := pipeline.NewTrainer(e.settings(), e.logger)
	trainer.Out = stdout
	if store != nil {
		trainer.Runs = store
	}
	_, err = trainer.TrainAndPersist(cmd.Context())
	return err
}
