// Package pipeline trains, evaluates and serves the Iris classifier.
package pipeline

import (
	"context"

	"irislab/config"
	"irislab/dataset"
	"irislab/db"
	"irislab/ml"
)

// Settings are the knobs shared by the trainer, evaluator and predictor.
type Settings struct {
	ArtifactPath string
	Options      ml.Options
	TestRatio    float64
	Folds        int
}

func DefaultSettings() Settings {
	return SettingsFrom(config.Default())
}

func SettingsFrom(cfg *config.Config) Settings {
	return Settings{
		ArtifactPath: cfg.Model.ArtifactPath,
		Options: ml.Options{
			C:       cfg.Model.C,
			MaxIter: cfg.Model.MaxIter,
			Seed:    cfg.Model.Seed,
		},
		TestRatio: cfg.Model.TestRatio,
		Folds:     cfg.Model.Folds,
	}
}

// Schema is the feature order and label mapping of the bundled dataset.
// Every artifact must match it.
func Schema() ml.Schema {
	return ml.Schema{
		FeatureNames: dataset.FeatureNames(),
		ClassNames:   dataset.ClassNames(),
	}
}

// RunStore records finished training runs.
type RunStore interface {
	SaveTrainingLog(ctx context.Context, log db.TrainingLog) error
}

// PredictionStore records served predictions.
type PredictionStore interface {
	SavePrediction(ctx context.Context, record db.PredictionRecord) error
}

// ArtifactSource resolves an artifact path to a validated artifact.
type ArtifactSource interface {
	Get(path string) (*ml.Artifact, error)
}

// FileSource reads the artifact from disk on every call.
type FileSource struct{}

func (FileSource) Get(path string) (*ml.Artifact, error) {
	return ml.LoadPipeline(path, Schema())
}

type sourceKey struct{}

// WithSource tags ctx with the caller kind ("cli", "web", "api", "ws") used
// in prediction records and metrics.
func WithSource(ctx context.Context, source string) context.Context {
	return context.WithValue(ctx, sourceKey{}, source)
}

func sourceFrom(ctx context.Context) string {
	if source, ok := ctx.Value(sourceKey{}).(string); ok {
		return source
	}
	return ""
}
