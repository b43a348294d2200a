package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"irislab/dataset"
	"irislab/db"
	"irislab/ml"
	"irislab/monitoring"
)

// ErrMalformedInput is returned for samples that are not four finite numbers.
var ErrMalformedInput = errors.New("malformed input")

// Prediction is the scored class of one sample.
type Prediction struct {
	RunID         string    `json:"run_id,omitempty"`
	Features      []float64 `json:"features"`
	Label         int       `json:"label"`
	Species       string    `json:"species"`
	ClassNames    []string  `json:"class_names"`
	Probabilities []float64 `json:"probabilities"`
}

// Confidence is the probability of the predicted class.
func (p *Prediction) Confidence() float64 {
	return p.Probabilities[p.Label]
}

// Probability returns the probability of the named class, or 0.
func (p *Prediction) Probability(species string) float64 {
	for i, name := range p.ClassNames {
		if name == species {
			return p.Probabilities[i]
		}
	}
	return 0
}

// Predictor scores single samples with the persisted pipeline.
type Predictor struct {
	Settings Settings
	Source   ArtifactSource
	Store    PredictionStore
	Metrics  *monitoring.MetricsCollector
	Logger   *zap.Logger
}

func NewPredictor(settings Settings, source ArtifactSource, logger *zap.Logger) *Predictor {
	if source == nil {
		source = FileSource{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Predictor{Settings: settings, Source: source, Logger: logger}
}

// Predict does no range checking: values far outside the training data are
// scored like any other sample.
func (p *Predictor) Predict(ctx context.Context, sample []float64) (*Prediction, error) {
	start := time.Now()
	source := sourceFrom(ctx)

	if len(sample) != dataset.FeatureCount {
		p.recordError("malformed_input")
		return nil, fmt.Errorf("%w: expected %d features, got %d", ErrMalformedInput, dataset.FeatureCount, len(sample))
	}
	for i, v := range sample {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			p.recordError("malformed_input")
			return nil, fmt.Errorf("%w: feature %d must be finite", ErrMalformedInput, i)
		}
	}
	artifact, err := p.Artifact()
	if err != nil {
		if errors.Is(err, ml.ErrArtifactNotFound) {
			p.recordError("missing_artifact")
		} else {
			p.recordError("artifact")
		}
		return nil, err
	}

	label, probs, err := artifact.Pipeline.PredictSample(sample)
	if errors.Is(err, ml.ErrNonFiniteScore) {
		p.recordError("malformed_input")
		return nil, fmt.Errorf("%w: %w", ErrMalformedInput, err)
	}
	if err != nil {
		p.recordError("predict")
		return nil, fmt.Errorf("predict: %w", err)
	}
	pred := &Prediction{
		RunID:         artifact.RunID,
		Features:      append([]float64(nil), sample...),
		Label:         label,
		Species:       artifact.ClassNames[label],
		ClassNames:    artifact.ClassNames,
		Probabilities: probs,
	}

	elapsed := time.Since(start)
	if p.Metrics != nil {
		p.Metrics.RecordPrediction(pred.Species, source, elapsed)
	}
	if p.Store != nil {
		record := db.PredictionRecord{
			RunID:      pred.RunID,
			Label:      pred.Label,
			Species:    pred.Species,
			Confidence: pred.Confidence(),
			Source:     source,
		}
		copy(record.Features[:], sample)
		if err := p.Store.SavePrediction(ctx, record); err != nil {
			p.logger().Warn("failed to record prediction", zap.Error(err))
		}
	}
	p.logger().Debug("prediction served",
		zap.String("species", pred.Species),
		zap.Float64("confidence", pred.Confidence()),
		zap.String("source", source),
		zap.Duration("latency", elapsed),
	)
	return pred, nil
}

func (p *Predictor) recordError(kind string) {
	if p.Metrics != nil {
		p.Metrics.RecordError(kind)
	}
}

// Artifact resolves the configured artifact through the predictor's source.
func (p *Predictor) Artifact() (*ml.Artifact, error) {
	return p.source().Get(p.Settings.ArtifactPath)
}

func (p *Predictor) source() ArtifactSource {
	if p.Source == nil {
		return FileSource{}
	}
	return p.Source
}

func (p *Predictor) logger() *zap.Logger {
	if p.Logger == nil {
		return zap.NewNop()
	}
	return p.Logger
}

// ParseSample converts four textual measurements into a sample.
func ParseSample(args []string) ([]float64, error) {
	if len(args) != dataset.FeatureCount {
		return nil, fmt.Errorf("%w: expected %d measurements, got %d", ErrMalformedInput, dataset.FeatureCount, len(args))
	}
	names := dataset.FeatureNames()
	sample := make([]float64, len(args))
	for i, arg := range args {
		v, err := strconv.ParseFloat(strings.TrimSpace(arg), 64)
		if err != nil {
			return nil, fmt.Errorf("%w: %s=%q is not a number", ErrMalformedInput, names[i], arg)
		}
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, fmt.Errorf("%w: %s must be finite", ErrMalformedInput, names[i])
		}
		sample[i] = v
	}
	return sample, nil
}

// WritePrediction prints the species followed by one probability line per class.
func WritePrediction(w io.Writer, p *Prediction) {
	fmt.Fprintf(w, "Predicted species: %s\n", p.Species)
	for i, name := range p.ClassNames {
		fmt.Fprintf(w, "  P(%s) = %.3f\n", name, p.Probabilities[i])
	}
}
