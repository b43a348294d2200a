package ml

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/mat"
)

const (
	// RandomState seeds every stochastic step: splitting, and the seed
	// recorded with the classifier.
	RandomState    int64   = 42
	DefaultMaxIter         = 1000
	DefaultC       float64 = 1.0
)

// Options are the hyperparameters of the standardize-then-classify pipeline.
type Options struct {
	C       float64
	MaxIter int
	Seed    int64
}

func DefaultOptions() Options {
	return Options{C: DefaultC, MaxIter: DefaultMaxIter, Seed: RandomState}
}

// Pipeline chains a StandardScaler into a LogisticRegression.
type Pipeline struct {
	Scaler     *StandardScaler     `json:"scaler"`
	Classifier *LogisticRegression `json:"classifier"`
}

// BuildPipeline returns the untrained pipeline with the fixed hyperparameters.
func BuildPipeline() *Pipeline {
	return NewPipeline(DefaultOptions())
}

func NewPipeline(opts Options) *Pipeline {
	def := DefaultOptions()
	if opts.C <= 0 {
		opts.C = def.C
	}
	if opts.MaxIter <= 0 {
		opts.MaxIter = def.MaxIter
	}
	return &Pipeline{
		Scaler:     NewStandardScaler(),
		Classifier: NewLogisticRegression(opts.C, opts.MaxIter, opts.Seed),
	}
}

func (p *Pipeline) Options() Options {
	return Options{C: p.Classifier.C, MaxIter: p.Classifier.MaxIter, Seed: p.Classifier.Seed}
}

// Clone returns an unfitted pipeline with the same hyperparameters.
func (p *Pipeline) Clone() *Pipeline {
	return &Pipeline{
		Scaler:     NewStandardScaler(),
		Classifier: p.Classifier.Unfitted(),
	}
}

func (p *Pipeline) Fit(X mat.Matrix, y []int) error {
	if err := p.Scaler.Fit(X); err != nil {
		return fmt.Errorf("fit scaler: %w", err)
	}
	scaled, err := p.Scaler.Transform(X)
	if err != nil {
		return fmt.Errorf("scale features: %w", err)
	}
	return p.Classifier.Fit(scaled, y)
}

func (p *Pipeline) PredictProba(X mat.Matrix) (*mat.Dense, error) {
	if !p.Fitted() {
		return nil, errors.New("pipeline not trained")
	}
	scaled, err := p.Scaler.Transform(X)
	if err != nil {
		return nil, err
	}
	return p.Classifier.PredictProba(scaled)
}

// Predict returns the arg-max label of every row.
func (p *Pipeline) Predict(X mat.Matrix) ([]int, error) {
	proba, err := p.PredictProba(X)
	if err != nil {
		return nil, err
	}
	rows, _ := proba.Dims()
	labels := make([]int, rows)
	for i := range labels {
		labels[i] = argmax(proba.RawRowView(i))
	}
	return labels, nil
}

// PredictSample scores one raw sample.
func (p *Pipeline) PredictSample(x []float64) (int, []float64, error) {
	if !p.Fitted() {
		return 0, nil, errors.New("pipeline not trained")
	}
	scaled, err := p.Scaler.TransformVector(x)
	if err != nil {
		return 0, nil, err
	}
	proba, err := p.Classifier.PredictVector(scaled)
	if err != nil {
		return 0, nil, err
	}
	return argmax(proba), proba, nil
}

func (p *Pipeline) Fitted() bool {
	return p.Scaler != nil && p.Classifier != nil && p.Scaler.Fitted() && p.Classifier.Fitted() &&
		len(p.Scaler.Mean) == p.Classifier.Features()
}

// argmax breaks ties toward the lowest index.
func argmax(values []float64) int {
	best := 0
	for i := 1; i < len(values); i++ {
		if values[i] > values[best] {
			best = i
		}
	}
	return best
}
