package pipeline

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"irislab/dataset"
	"irislab/db"
	"irislab/ml"
)

const modelName = "standard_scaler+logistic_regression"

// TrainingReport summarizes a training run.
type TrainingReport struct {
	RunID           string       `json:"run_id"`
	ArtifactPath    string       `json:"artifact_path"`
	ClassNames      []string     `json:"class_names"`
	TrainSize       int          `json:"train_size"`
	TestSize        int          `json:"test_size"`
	CV              *ml.CVResult `json:"cv"`
	HoldoutAccuracy float64      `json:"holdout_accuracy"`
	HoldoutF1       float64      `json:"holdout_f1"`
	NIter           int          `json:"n_iter"`
	Converged       bool         `json:"converged"`
	TrainedAt       time.Time    `json:"trained_at"`
}

// Trainer cross-validates the pipeline on a stratified train split, checks
// it on the held-out split, then refits on the whole dataset and persists
// that final fit.
type Trainer struct {
	Settings Settings
	Runs     RunStore
	Logger   *zap.Logger
	Out      io.Writer
}

func NewTrainer(settings Settings, logger *zap.Logger) *Trainer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Trainer{Settings: settings, Logger: logger, Out: io.Discard}
}

func (t *Trainer) TrainAndPersist(ctx context.Context) (*TrainingReport, error) {
	logger := t.logger()
	settings := t.Settings

	ds, err := dataset.Load()
	if err != nil {
		return nil, err
	}

	trainIdx, testIdx, err := ml.StratifiedSplit(ds.Labels, settings.TestRatio, settings.Options.Seed)
	if err != nil {
		return nil, fmt.Errorf("split dataset: %w", err)
	}
	train := ds.Subset(trainIdx)
	test := ds.Subset(testIdx)

	model := ml.NewPipeline(settings.Options)
	cv, err := ml.CrossValidate(model, train.Features, train.Labels, settings.Folds)
	if err != nil {
		return nil, fmt.Errorf("cross-validate: %w", err)
	}

	if err := model.Fit(train.Matrix(), train.Labels); err != nil {
		return nil, fmt.Errorf("fit train split: %w", err)
	}
	pred, err := model.Predict(test.Matrix())
	if err != nil {
		return nil, fmt.Errorf("predict test split: %w", err)
	}

	report := &TrainingReport{
		RunID:           uuid.NewString(),
		ArtifactPath:    settings.ArtifactPath,
		ClassNames:      ds.ClassNames,
		TrainSize:       train.Len(),
		TestSize:        test.Len(),
		CV:              cv,
		HoldoutAccuracy: ml.Accuracy(test.Labels, pred),
		HoldoutF1:       ml.MacroF1(test.Labels, pred),
	}

	// the shipped artifact uses every sample
	final := model.Clone()
	if err := final.Fit(ds.Matrix(), ds.Labels); err != nil {
		return nil, fmt.Errorf("fit full dataset: %w", err)
	}
	artifact, err := ml.NewArtifact(final, Schema(), ds.Len())
	if err != nil {
		return nil, err
	}
	artifact.RunID = report.RunID
	if err := ml.SaveArtifact(settings.ArtifactPath, artifact); err != nil {
		return nil, err
	}
	report.NIter = final.Classifier.NIter
	report.Converged = final.Classifier.Converged
	report.TrainedAt = artifact.TrainedAt

	if !report.Converged {
		logger.Warn("solver stopped before convergence",
			zap.Int("n_iter", report.NIter), zap.Int("max_iter", final.Classifier.MaxIter))
	}
	logger.Info("model trained",
		zap.String("run_id", report.RunID),
		zap.String("artifact", settings.ArtifactPath),
		zap.Float64("cv_accuracy", cv.Accuracy.Mean),
		zap.Float64("cv_f1", cv.F1.Mean),
		zap.Float64("holdout_accuracy", report.HoldoutAccuracy),
		zap.Float64("holdout_f1", report.HoldoutF1),
	)

	if t.Runs != nil {
		if err := t.Runs.SaveTrainingLog(ctx, report.TrainingLog()); err != nil {
			logger.Warn("failed to record training run", zap.String("run_id", report.RunID), zap.Error(err))
		}
	}

	if t.Out != nil {
		report.Write(t.Out, settings.Folds)
	}
	return report, nil
}

func (t *Trainer) logger() *zap.Logger {
	if t.Logger == nil {
		return zap.NewNop()
	}
	return t.Logger
}

// TrainingLog converts the report into a history row.
func (r *TrainingReport) TrainingLog() db.TrainingLog {
	log := db.TrainingLog{
		RunID:           r.RunID,
		ModelName:       modelName,
		HoldoutAccuracy: r.HoldoutAccuracy,
		HoldoutF1:       r.HoldoutF1,
		ArtifactPath:    r.ArtifactPath,
		DataPoints:      r.TrainSize + r.TestSize,
		TrainedAt:       r.TrainedAt,
	}
	if r.CV != nil {
		log.CVAccuracyMean = r.CV.Accuracy.Mean
		log.CVAccuracyStd = r.CV.Accuracy.Std
		log.CVF1Mean = r.CV.F1.Mean
		log.CVF1Std = r.CV.F1.Std
	}
	return log
}

// Write prints the human-readable metrics block.
func (r *TrainingReport) Write(w io.Writer, folds int) {
	fmt.Fprintf(w, "%d-fold CV metrics on training split:\n", folds)
	writeSummaries(w, r.CV)
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Hold-out test metrics:")
	fmt.Fprintf(w, "  Accuracy: %.3f\n", r.HoldoutAccuracy)
	fmt.Fprintf(w, "  F1-macro: %.3f\n", r.HoldoutF1)
	fmt.Fprintln(w)
	fmt.Fprintf(w, "Model trained on full data and saved to %s\n", r.ArtifactPath)
	fmt.Fprintf(w, "Classes: %s\n", strings.Join(r.ClassNames, ", "))
}

func writeSummaries(w io.Writer, cv *ml.CVResult) {
	fmt.Fprintf(w, "  Accuracy: %s\n", cv.Accuracy)
	fmt.Fprintf(w, "  F1-macro: %s\n", cv.F1)
}
