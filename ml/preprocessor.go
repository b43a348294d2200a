package ml

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// StandardScaler centers each feature on its mean and divides by its
// population standard deviation.
type StandardScaler struct {
	Mean  []float64 `json:"mean"`
	Scale []float64 `json:"scale"`
}

func NewStandardScaler() *StandardScaler {
	return &StandardScaler{}
}

func (s *StandardScaler) Fit(X mat.Matrix) error {
	rows, cols := X.Dims()
	if rows == 0 || cols == 0 {
		return errors.New("features is empty")
	}

	mean := make([]float64, cols)
	scale := make([]float64, cols)
	column := make([]float64, rows)
	for j := 0; j < cols; j++ {
		mat.Col(column, j, X)
		m, variance := stat.PopMeanVariance(column, nil)
		mean[j] = m
		scale[j] = math.Sqrt(variance)
		// constant columns pass through centered but unscaled
		if scale[j] == 0 {
			scale[j] = 1
		}
	}
	s.Mean = mean
	s.Scale = scale
	return nil
}

func (s *StandardScaler) Transform(X mat.Matrix) (*mat.Dense, error) {
	if !s.Fitted() {
		return nil, errors.New("feature stats not computed")
	}
	rows, cols := X.Dims()
	if cols != len(s.Mean) {
		return nil, fmt.Errorf("expected %d features, got %d", len(s.Mean), cols)
	}
	out := mat.NewDense(rows, cols, nil)
	out.Apply(func(_, j int, v float64) float64 {
		return (v - s.Mean[j]) / s.Scale[j]
	}, X)
	return out, nil
}

// TransformVector standardizes a single sample.
func (s *StandardScaler) TransformVector(x []float64) ([]float64, error) {
	if !s.Fitted() {
		return nil, errors.New("feature stats not computed")
	}
	if len(x) != len(s.Mean) {
		return nil, fmt.Errorf("expected %d features, got %d", len(s.Mean), len(x))
	}
	out := make([]float64, len(x))
	for j, v := range x {
		out[j] = (v - s.Mean[j]) / s.Scale[j]
	}
	return out, nil
}

func (s *StandardScaler) Fitted() bool {
	return len(s.Mean) > 0 && len(s.Mean) == len(s.Scale)
}

// FeatureStats maps each feature name to its [mean, scale] pair.
func (s *StandardScaler) FeatureStats(names []string) map[string][2]float64 {
	if !s.Fitted() {
		return nil
	}
	stats := make(map[string][2]float64, len(s.Mean))
	for j := range s.Mean {
		name := fmt.Sprintf("x%d", j)
		if j < len(names) {
			name = names[j]
		}
		stats[name] = [2]float64{s.Mean[j], s.Scale[j]}
	}
	return stats
}
