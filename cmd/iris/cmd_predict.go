package main

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"irislab/pipeline"
)

func newPredictCmd(stdout, stderr io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "predict SEPAL_LENGTH SEPAL_WIDTH PETAL_LENGTH PETAL_WIDTH",
		Short: "Predict the species of one flower",
		Long: `Predict the species of one flower from its four measurements in centimetres.

Examples:
  iris predict 5.1 3.5 1.4 0.2
  iris predict 6.7 3.0 5.2 2.3`,
		Args: cobra.ExactArgs(4),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPredict(cmd, stdout, stderr, args)
		},
	}
}

func runPredict(cmd *cobra.Command, stdout, stderr io.Writer, args []string) error {
	sample, err := pipeline.ParseSample(args)
	if err != nil {
		return usageError(cmd, stderr, err)
	}

	e, err := loadEnv(cmd)
	if err != nil {
		return err
	}
	predictor := pipeline.NewPredictor(e.settings(), pipeline.FileSource{}, e.logger)
	// the history file is only created once there is a model to score with
	if _, err := predictor.Artifact(); err != nil {
		return err
	}
	store := e.openStore()
	defer e.close(store)
	if store != nil {
		predictor.Store = store
	}
	pred, err := predictor.Predict(pipeline.WithSource(cmd.Context(), "cli"), sample)
	if errors.Is(err, pipeline.ErrMalformedInput) {
		return usageError(cmd, stderr, err)
	}
	if err != nil {
		return err
	}
	pipeline.WritePrediction(stdout, pred)
	return nil
}

func usageError(cmd *cobra.Command, stderr io.Writer, err error) error {
	fmt.Fprintf(stderr, "iris: %v\n", err)
	fmt.Fprintf(stderr, "Usage: %s\n", cmd.UseLine())
	return errExit
}
