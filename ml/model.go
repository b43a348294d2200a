package ml

import "gonum.org/v1/gonum/mat"

// Transformer learns per-feature statistics and maps samples through them.
type Transformer interface {
	Fit(X mat.Matrix) error
	Transform(X mat.Matrix) (*mat.Dense, error)
}

// Classifier is a probabilistic multi-class model.
type Classifier interface {
	Fit(X mat.Matrix, y []int) error
	PredictProba(X mat.Matrix) (*mat.Dense, error)
}

var (
	_ Transformer = (*StandardScaler)(nil)
	_ Classifier  = (*LogisticRegression)(nil)
	_ Classifier  = (*Pipeline)(nil)
)
