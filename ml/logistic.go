package ml

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize"
)

// ErrNonFiniteScore is returned when a sample drives a class score to NaN,
// which happens for finite inputs large enough to overflow the dot product.
var ErrNonFiniteScore = errors.New("sample produces non-finite class scores")

// LogisticRegression is a multinomial (softmax) classifier with an L2
// penalty on the coefficients, fitted with L-BFGS.
//
// The objective is sum_i -log p(y_i | x_i) + ||W||^2 / (2C); intercepts are
// not penalized. The solver starts from zero weights, so fits are fully
// determined by the data and the hyperparameters. Seed is kept with the
// fitted parameters for reproducibility records.
type LogisticRegression struct {
	C       float64 `json:"c"`
	MaxIter int     `json:"max_iter"`
	Seed    int64   `json:"seed"`
	Tol     float64 `json:"tol"`

	Coef      [][]float64 `json:"coef,omitempty"`
	Intercept []float64   `json:"intercept,omitempty"`
	NIter     int         `json:"n_iter"`
	Converged bool        `json:"converged"`
}

func NewLogisticRegression(c float64, maxIter int, seed int64) *LogisticRegression {
	return &LogisticRegression{
		C:       c,
		MaxIter: maxIter,
		Seed:    seed,
		Tol:     1e-6,
	}
}

func (m *LogisticRegression) Fit(X mat.Matrix, y []int) error {
	n, d := X.Dims()
	if n == 0 || len(y) == 0 {
		return errors.New("features or labels empty")
	}
	if n != len(y) {
		return errors.New("features and labels size mismatch")
	}
	if m.C <= 0 {
		return fmt.Errorf("regularization strength must be positive, got %v", m.C)
	}

	k := 0
	for _, label := range y {
		if label < 0 {
			return fmt.Errorf("negative label %d", label)
		}
		if label+1 > k {
			k = label + 1
		}
	}
	if k < 2 {
		return errors.New("at least two classes are required")
	}

	// design matrix with a trailing bias column
	design := mat.NewDense(n, d+1, nil)
	for i := 0; i < n; i++ {
		for j := 0; j < d; j++ {
			design.Set(i, j, X.At(i, j))
		}
		design.Set(i, d, 1)
	}

	obj := &softmaxObjective{
		design:  design,
		labels:  y,
		classes: k,
		dims:    d + 1,
		alpha:   1 / m.C,
	}

	settings := &optimize.Settings{
		GradientThreshold: m.tol(),
		MajorIterations:   m.maxIter(),
		Converger: &optimize.FunctionConverge{
			Absolute:   1e-12,
			Relative:   1e-12,
			Iterations: 25,
		},
	}
	problem := optimize.Problem{
		Func: obj.value,
		Grad: obj.gradient,
	}
	result, err := optimize.Minimize(problem, make([]float64, k*(d+1)), settings, &optimize.LBFGS{})
	if result == nil {
		if err == nil {
			err = errors.New("optimizer returned no result")
		}
		return fmt.Errorf("fit logistic regression: %w", err)
	}
	for _, v := range result.X {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return errors.New("fit logistic regression: weights diverged")
		}
	}

	m.Coef = make([][]float64, k)
	m.Intercept = make([]float64, k)
	for c := 0; c < k; c++ {
		row := result.X[c*(d+1) : (c+1)*(d+1)]
		m.Coef[c] = append([]float64(nil), row[:d]...)
		m.Intercept[c] = row[d]
	}
	m.NIter = result.Stats.MajorIterations
	m.Converged = err == nil && result.Status != optimize.IterationLimit
	return nil
}

func (m *LogisticRegression) PredictProba(X mat.Matrix) (*mat.Dense, error) {
	if !m.Fitted() {
		return nil, errors.New("model not trained")
	}
	n, d := X.Dims()
	if d != m.Features() {
		return nil, fmt.Errorf("expected %d features, got %d", m.Features(), d)
	}
	k := m.Classes()
	out := mat.NewDense(n, k, nil)
	row := make([]float64, d)
	for i := 0; i < n; i++ {
		mat.Row(row, i, X)
		proba, err := m.probabilities(row)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i, err)
		}
		out.SetRow(i, proba)
	}
	return out, nil
}

// PredictVector returns class probabilities for one standardized sample.
func (m *LogisticRegression) PredictVector(x []float64) ([]float64, error) {
	if !m.Fitted() {
		return nil, errors.New("model not trained")
	}
	if len(x) != m.Features() {
		return nil, fmt.Errorf("expected %d features, got %d", m.Features(), len(x))
	}
	return m.probabilities(x)
}

func (m *LogisticRegression) probabilities(x []float64) ([]float64, error) {
	scores := make([]float64, len(m.Coef))
	for c, coef := range m.Coef {
		scores[c] = floats.Dot(coef, x) + m.Intercept[c]
		if math.IsNaN(scores[c]) {
			return nil, ErrNonFiniteScore
		}
	}
	if top := floats.Max(scores); math.IsInf(top, 0) {
		return saturated(scores, top), nil
	}
	lse := floats.LogSumExp(scores)
	for c := range scores {
		scores[c] = math.Exp(scores[c] - lse)
	}
	return scores, nil
}

// saturated is the limit of softmax when the largest score is infinite: the
// mass is shared by the classes at +Inf, or spread evenly when every score
// is -Inf.
func saturated(scores []float64, top float64) []float64 {
	var n float64
	for _, v := range scores {
		if v == top {
			n++
		}
	}
	for c, v := range scores {
		if v == top {
			scores[c] = 1 / n
		} else {
			scores[c] = 0
		}
	}
	return scores
}

func (m *LogisticRegression) Fitted() bool {
	return len(m.Coef) > 0 && len(m.Coef) == len(m.Intercept)
}

func (m *LogisticRegression) Classes() int {
	return len(m.Coef)
}

func (m *LogisticRegression) Features() int {
	if len(m.Coef) == 0 {
		return 0
	}
	return len(m.Coef[0])
}

// Unfitted returns a copy carrying only the hyperparameters.
func (m *LogisticRegression) Unfitted() *LogisticRegression {
	return &LogisticRegression{C: m.C, MaxIter: m.MaxIter, Seed: m.Seed, Tol: m.Tol}
}

func (m *LogisticRegression) tol() float64 {
	if m.Tol <= 0 {
		return 1e-6
	}
	return m.Tol
}

func (m *LogisticRegression) maxIter() int {
	if m.MaxIter <= 0 {
		return DefaultMaxIter
	}
	return m.MaxIter
}

// softmaxObjective is the penalized negative log-likelihood over a design
// matrix whose last column is the bias.
type softmaxObjective struct {
	design  *mat.Dense
	labels  []int
	classes int
	dims    int
	alpha   float64
}

func (o *softmaxObjective) scores(w []float64) *mat.Dense {
	n, _ := o.design.Dims()
	weights := mat.NewDense(o.classes, o.dims, w)
	scores := mat.NewDense(n, o.classes, nil)
	scores.Mul(o.design, weights.T())
	return scores
}

func (o *softmaxObjective) value(w []float64) float64 {
	scores := o.scores(w)
	var loss float64
	for i, label := range o.labels {
		row := scores.RawRowView(i)
		loss += floats.LogSumExp(row) - row[label]
	}
	return loss + 0.5*o.alpha*o.penalty(w)
}

func (o *softmaxObjective) gradient(grad, w []float64) {
	scores := o.scores(w)
	// residual = softmax(scores) - onehot(labels)
	for i, label := range o.labels {
		row := scores.RawRowView(i)
		lse := floats.LogSumExp(row)
		for c := range row {
			row[c] = math.Exp(row[c] - lse)
		}
		row[label] -= 1
	}
	g := mat.NewDense(o.classes, o.dims, grad)
	g.Mul(scores.T(), o.design)
	for c := 0; c < o.classes; c++ {
		for j := 0; j < o.dims-1; j++ {
			idx := c*o.dims + j
			grad[idx] += o.alpha * w[idx]
		}
	}
}

func (o *softmaxObjective) penalty(w []float64) float64 {
	var sum float64
	for c := 0; c < o.classes; c++ {
		for j := 0; j < o.dims-1; j++ {
			v := w[c*o.dims+j]
			sum += v * v
		}
	}
	return sum
}
