package pipeline

import (
	"bytes"
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"irislab/db"
	"irislab/ml"
	"irislab/monitoring"
)

type memoryStore struct {
	mu          sync.Mutex
	runs        []db.TrainingLog
	predictions []db.PredictionRecord
}

func (s *memoryStore) SaveTrainingLog(_ context.Context, log db.TrainingLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs = append(s.runs, log)
	return nil
}

func (s *memoryStore) SavePrediction(_ context.Context, record db.PredictionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.predictions = append(s.predictions, record)
	return nil
}

func testSettings(t *testing.T) Settings {
	t.Helper()
	settings := DefaultSettings()
	settings.ArtifactPath = filepath.Join(t.TempDir(), "models", "iris_pipeline.json")
	return settings
}

// trainOnce trains into a temp dir and returns the settings pointing at it.
func trainOnce(t *testing.T) (Settings, *TrainingReport, string) {
	t.Helper()
	settings := testSettings(t)
	var out bytes.Buffer
	trainer := NewTrainer(settings, nil)
	trainer.Out = &out
	report, err := trainer.TrainAndPersist(context.Background())
	require.NoError(t, err)
	return settings, report, out.String()
}

func TestTrainAndPersist(t *testing.T) {
	settings, report, out := trainOnce(t)

	assert.FileExists(t, settings.ArtifactPath)
	assert.Equal(t, 120, report.TrainSize)
	assert.Equal(t, 30, report.TestSize)
	assert.Len(t, report.CV.Folds, 5)
	assert.Greater(t, report.CV.Accuracy.Mean, 0.9)
	assert.Greater(t, report.HoldoutAccuracy, 0.85)
	assert.NotEmpty(t, report.RunID)

	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	require.Len(t, lines, 10)
	assert.Equal(t, "5-fold CV metrics on training split:", lines[0])
	assert.Regexp(t, `^  Accuracy: \d\.\d{3} ± \d\.\d{3}$`, lines[1])
	assert.Regexp(t, `^  F1-macro: \d\.\d{3} ± \d\.\d{3}$`, lines[2])
	assert.Equal(t, "", lines[3])
	assert.Equal(t, "Hold-out test metrics:", lines[4])
	assert.Regexp(t, `^  Accuracy: \d\.\d{3}$`, lines[5])
	assert.Regexp(t, `^  F1-macro: \d\.\d{3}$`, lines[6])
	assert.Equal(t, "", lines[7])
	assert.Equal(t, "Model trained on full data and saved to "+settings.ArtifactPath, lines[8])
	assert.Equal(t, "Classes: setosa, versicolor, virginica", lines[9])

	artifact, err := ml.LoadPipeline(settings.ArtifactPath, Schema())
	require.NoError(t, err)
	assert.Equal(t, report.RunID, artifact.RunID)
	assert.Equal(t, 150, artifact.NSamples)
}

func TestTrainRecordsRun(t *testing.T) {
	settings := testSettings(t)
	store := &memoryStore{}
	trainer := NewTrainer(settings, nil)
	trainer.Runs = store

	report, err := trainer.TrainAndPersist(context.Background())
	require.NoError(t, err)
	require.Len(t, store.runs, 1)
	run := store.runs[0]
	assert.Equal(t, report.RunID, run.RunID)
	assert.Equal(t, 150, run.DataPoints)
	assert.InDelta(t, report.CV.Accuracy.Mean, run.CVAccuracyMean, 1e-12)
	assert.Equal(t, settings.ArtifactPath, run.ArtifactPath)
}

func TestTrainIsDeterministic(t *testing.T) {
	_, first, _ := trainOnce(t)
	_, second, _ := trainOnce(t)
	assert.Equal(t, first.CV.Accuracy, second.CV.Accuracy)
	assert.Equal(t, first.HoldoutAccuracy, second.HoldoutAccuracy)
}

func TestPredictSetosa(t *testing.T) {
	settings, _, _ := trainOnce(t)
	store := &memoryStore{}
	metrics := monitoring.NewMetricsCollector()
	predictor := NewPredictor(settings, nil, nil)
	predictor.Store = store
	predictor.Metrics = metrics

	ctx := WithSource(context.Background(), "cli")
	pred, err := predictor.Predict(ctx, []float64{5.1, 3.5, 1.4, 0.2})
	require.NoError(t, err)
	assert.Equal(t, "setosa", pred.Species)
	assert.Equal(t, 0, pred.Label)
	assert.Greater(t, pred.Confidence(), 0.9)
	assert.Equal(t, pred.Confidence(), pred.Probability("setosa"))

	sum := 0.0
	for _, p := range pred.Probabilities {
		assert.GreaterOrEqual(t, p, 0.0)
		assert.LessOrEqual(t, p, 1.0)
		sum += p
	}
	assert.InDelta(t, 1.0, sum, 1e-9)

	require.Len(t, store.predictions, 1)
	assert.Equal(t, "cli", store.predictions[0].Source)
	assert.Equal(t, [4]float64{5.1, 3.5, 1.4, 0.2}, store.predictions[0].Features)
	assert.Equal(t, int64(1), metrics.Snapshot().Sources["cli"])
}

func TestPredictIsDeterministic(t *testing.T) {
	settings, _, _ := trainOnce(t)
	predictor := NewPredictor(settings, nil, nil)
	sample := []float64{6.7, 3.0, 5.2, 2.3}

	first, err := predictor.Predict(context.Background(), sample)
	require.NoError(t, err)
	second, err := predictor.Predict(context.Background(), sample)
	require.NoError(t, err)
	assert.Equal(t, first.Probabilities, second.Probabilities)
	assert.Equal(t, "virginica", first.Species)
}

func TestPredictOutOfRange(t *testing.T) {
	settings, _, _ := trainOnce(t)
	predictor := NewPredictor(settings, nil, nil)

	pred, err := predictor.Predict(context.Background(), []float64{0, 0, 0, 0})
	require.NoError(t, err)
	assert.Len(t, pred.Probabilities, 3)

	pred, err = predictor.Predict(context.Background(), []float64{100, 100, 100, 100})
	require.NoError(t, err)
	assert.Len(t, pred.Probabilities, 3)
}

func TestPredictExtremeValues(t *testing.T) {
	settings, _, _ := trainOnce(t)
	predictor := NewPredictor(settings, nil, nil)

	samples := [][]float64{
		{-1e308, 1e308, 1e308, -1e308},
		{1e308, -1e308, -1e308, 1e308},
		{1e300, 1e300, 1e300, 1e300},
		{-math.MaxFloat64, -math.MaxFloat64, -math.MaxFloat64, -math.MaxFloat64},
	}
	for _, sample := range samples {
		pred, err := predictor.Predict(context.Background(), sample)
		if err != nil {
			assert.ErrorIs(t, err, ErrMalformedInput, "%v", sample)
			continue
		}
		var sum float64
		for _, p := range pred.Probabilities {
			assert.False(t, math.IsNaN(p), "%v", sample)
			assert.GreaterOrEqual(t, p, 0.0)
			assert.LessOrEqual(t, p, 1.0)
			sum += p
		}
		assert.InDelta(t, 1.0, sum, 1e-9, "%v", sample)
		assert.Equal(t, pred.Probabilities[pred.Label], pred.Confidence())
		for _, p := range pred.Probabilities {
			assert.LessOrEqual(t, p, pred.Confidence())
		}
	}
}

func TestPredictNonFiniteFeatures(t *testing.T) {
	settings, _, _ := trainOnce(t)
	predictor := NewPredictor(settings, nil, nil)
	for _, v := range []float64{math.NaN(), math.Inf(1), math.Inf(-1)} {
		_, err := predictor.Predict(context.Background(), []float64{5.1, v, 1.4, 0.2})
		assert.ErrorIs(t, err, ErrMalformedInput)
	}
}

func TestPredictorLiteralReadsFromDisk(t *testing.T) {
	settings, _, _ := trainOnce(t)
	predictor := &Predictor{Settings: settings}
	pred, err := predictor.Predict(context.Background(), []float64{5.1, 3.5, 1.4, 0.2})
	require.NoError(t, err)
	assert.Equal(t, "setosa", pred.Species)

	artifact, err := predictor.Artifact()
	require.NoError(t, err)
	assert.Equal(t, pred.RunID, artifact.RunID)
}

func TestPredictWrongFeatureCount(t *testing.T) {
	settings, _, _ := trainOnce(t)
	predictor := NewPredictor(settings, nil, nil)
	_, err := predictor.Predict(context.Background(), []float64{1, 2, 3})
	assert.ErrorIs(t, err, ErrMalformedInput)
}

func TestPredictMissingArtifact(t *testing.T) {
	settings := testSettings(t)
	metrics := monitoring.NewMetricsCollector()
	predictor := NewPredictor(settings, nil, nil)
	predictor.Metrics = metrics

	_, err := predictor.Predict(context.Background(), []float64{5.1, 3.5, 1.4, 0.2})
	require.ErrorIs(t, err, ml.ErrArtifactNotFound)
	var notFound *ml.ArtifactNotFoundError
	require.True(t, errors.As(err, &notFound))
	assert.Equal(t, settings.ArtifactPath, notFound.Path)
	assert.Contains(t, err.Error(), "iris train")
	assert.Equal(t, int64(1), metrics.Snapshot().Errors["missing_artifact"])
}

func TestEvaluatePersisted(t *testing.T) {
	settings, _, _ := trainOnce(t)

	var out bytes.Buffer
	evaluator := NewEvaluator(settings, nil)
	evaluator.Out = &out
	report, err := evaluator.EvaluatePersisted(context.Background())
	require.NoError(t, err)
	assert.Equal(t, ModeRefit, report.Mode)
	assert.Len(t, report.CV.Folds, 5)
	assert.Greater(t, report.CV.Accuracy.Mean, 0.9)

	lines := strings.Split(strings.TrimRight(out.String(), "\n"), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "5-fold cross-validation on full dataset using saved pipeline:", lines[0])
	assert.True(t, strings.HasPrefix(lines[1], "  Accuracy: "))
	assert.True(t, strings.HasPrefix(lines[2], "  F1-macro: "))
}

func TestEvaluateFrozen(t *testing.T) {
	settings, _, _ := trainOnce(t)
	evaluator := NewEvaluator(settings, nil)
	evaluator.Mode = ModeFrozen

	report, err := evaluator.EvaluatePersisted(context.Background())
	require.NoError(t, err)
	assert.Equal(t, ModeFrozen, report.Mode)
	assert.Greater(t, report.CV.Accuracy.Mean, 0.95)
}

func TestEvaluateMissingArtifactWritesNothing(t *testing.T) {
	settings := testSettings(t)
	var out bytes.Buffer
	evaluator := NewEvaluator(settings, nil)
	evaluator.Out = &out

	_, err := evaluator.EvaluatePersisted(context.Background())
	require.ErrorIs(t, err, ml.ErrArtifactNotFound)
	assert.Empty(t, out.String())
	_, statErr := os.Stat(settings.ArtifactPath)
	assert.True(t, os.IsNotExist(statErr))
}

func TestPredictThroughCache(t *testing.T) {
	settings, _, _ := trainOnce(t)
	cache, err := ml.NewArtifactCache(2, Schema(), nil)
	require.NoError(t, err)
	defer cache.Close()

	predictor := NewPredictor(settings, cache, nil)
	_, err = predictor.Predict(context.Background(), []float64{5.1, 3.5, 1.4, 0.2})
	require.NoError(t, err)
	assert.Equal(t, 1, cache.Len())
}

func TestParseSample(t *testing.T) {
	sample, err := ParseSample([]string{"5.1", " 3.5", "1.4", "0.2"})
	require.NoError(t, err)
	assert.Equal(t, []float64{5.1, 3.5, 1.4, 0.2}, sample)

	bad := [][]string{
		{"5.1", "3.5", "1.4"},
		{"5.1", "3.5", "1.4", "0.2", "1"},
		{"5.1", "abc", "1.4", "0.2"},
		{"5.1", "NaN", "1.4", "0.2"},
		{"5.1", "3.5", "+Inf", "0.2"},
		{"", "3.5", "1.4", "0.2"},
	}
	for _, args := range bad {
		_, err := ParseSample(args)
		assert.ErrorIs(t, err, ErrMalformedInput, "args %v", args)
	}
}

func TestWritePrediction(t *testing.T) {
	var out bytes.Buffer
	WritePrediction(&out, &Prediction{
		Label:         0,
		Species:       "setosa",
		ClassNames:    []string{"setosa", "versicolor", "virginica"},
		Probabilities: []float64{0.9847, 0.0153, 0.00001},
	})
	want := "Predicted species: setosa\n" +
		"  P(setosa) = 0.985\n" +
		"  P(versicolor) = 0.015\n" +
		"  P(virginica) = 0.000\n"
	assert.Equal(t, want, out.String())
}
