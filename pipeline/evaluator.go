package pipeline

import (
	"context"
	"fmt"
	"io"

	"go.uber.org/zap"

	"irislab/dataset"
	"irislab/ml"
)

// Mode selects how the evaluator treats the persisted weights.
type Mode string

const (
	// ModeRefit refits a copy of the persisted pipeline on every fold.
	ModeRefit Mode = "refit"
	// ModeFrozen scores the persisted weights as they are.
	ModeFrozen Mode = "frozen"
)

// EvaluationReport is the cross-validation result on the full dataset.
// Every sample was also part of the artifact's training data.
type EvaluationReport struct {
	RunID        string       `json:"run_id,omitempty"`
	ArtifactPath string       `json:"artifact_path"`
	Mode         Mode         `json:"mode"`
	CV           *ml.CVResult `json:"cv"`
}

// Evaluator reloads the persisted pipeline and cross-validates it.
type Evaluator struct {
	Settings Settings
	Mode     Mode
	Source   ArtifactSource
	Logger   *zap.Logger
	Out      io.Writer
}

func NewEvaluator(settings Settings, logger *zap.Logger) *Evaluator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Evaluator{
		Settings: settings,
		Mode:     ModeRefit,
		Source:   FileSource{},
		Logger:   logger,
		Out:      io.Discard,
	}
}

// EvaluatePersisted fails with *ml.ArtifactNotFoundError before writing
// anything when no artifact has been trained yet.
func (e *Evaluator) EvaluatePersisted(ctx context.Context) (*EvaluationReport, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	source := e.Source
	if source == nil {
		source = FileSource{}
	}
	artifact, err := source.Get(e.Settings.ArtifactPath)
	if err != nil {
		return nil, err
	}

	ds, err := dataset.Load()
	if err != nil {
		return nil, err
	}

	mode := e.Mode
	if mode == "" {
		mode = ModeRefit
	}
	var cv *ml.CVResult
	switch mode {
	case ModeRefit:
		cv, err = ml.CrossValidate(artifact.Pipeline, ds.Features, ds.Labels, e.Settings.Folds)
	case ModeFrozen:
		cv, err = ml.ScoreFolds(artifact.Pipeline, ds.Features, ds.Labels, e.Settings.Folds)
	default:
		return nil, fmt.Errorf("unknown evaluation mode %q", mode)
	}
	if err != nil {
		return nil, fmt.Errorf("cross-validate: %w", err)
	}

	report := &EvaluationReport{
		RunID:        artifact.RunID,
		ArtifactPath: e.Settings.ArtifactPath,
		Mode:         mode,
		CV:           cv,
	}
	if e.Logger != nil {
		e.Logger.Info("model evaluated",
			zap.String("run_id", report.RunID),
			zap.String("mode", string(mode)),
			zap.Float64("accuracy", cv.Accuracy.Mean),
			zap.Float64("f1", cv.F1.Mean),
		)
	}
	if e.Out != nil {
		report.Write(e.Out, e.Settings.Folds)
	}
	return report, nil
}

func (r *EvaluationReport) Write(w io.Writer, folds int) {
	fmt.Fprintf(w, "%d-fold cross-validation on full dataset using saved pipeline:\n", folds)
	writeSummaries(w, r.CV)
}
