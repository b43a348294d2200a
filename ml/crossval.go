package ml

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// FoldScore is the held-out score of one fold.
type FoldScore struct {
	Fold      int     `json:"fold"`
	TrainSize int     `json:"train_size"`
	TestSize  int     `json:"test_size"`
	Accuracy  float64 `json:"accuracy"`
	F1        float64 `json:"f1_macro"`
}

// CVResult collects fold scores and their summaries.
type CVResult struct {
	Folds    []FoldScore `json:"folds"`
	Accuracy Summary     `json:"accuracy"`
	F1       Summary     `json:"f1_macro"`
}

// CrossValidate fits a fresh clone of p on every training fold and scores
// it on the matching test fold. p itself is left untouched.
func CrossValidate(p *Pipeline, X [][]float64, y []int, k int) (*CVResult, error) {
	return crossValidate(X, y, k, func(trainX *mat.Dense, trainY []int) (*Pipeline, error) {
		model := p.Clone()
		if err := model.Fit(trainX, trainY); err != nil {
			return nil, err
		}
		return model, nil
	})
}

// ScoreFolds scores an already fitted pipeline on each test fold without
// refitting. On data the pipeline was trained on this measures how well it
// remembers that data, not how it generalizes.
func ScoreFolds(p *Pipeline, X [][]float64, y []int, k int) (*CVResult, error) {
	if !p.Fitted() {
		return nil, errors.New("pipeline not trained")
	}
	return crossValidate(X, y, k, func(*mat.Dense, []int) (*Pipeline, error) {
		return p, nil
	})
}

func crossValidate(X [][]float64, y []int, k int, fit func(*mat.Dense, []int) (*Pipeline, error)) (*CVResult, error) {
	if len(X) != len(y) {
		return nil, errors.New("features and labels size mismatch")
	}
	folds, err := StratifiedKFold(y, k)
	if err != nil {
		return nil, err
	}

	result := &CVResult{Folds: make([]FoldScore, 0, k)}
	accuracies := make([]float64, 0, k)
	f1s := make([]float64, 0, k)
	for f, testIdx := range folds {
		trainIdx := Complement(len(y), testIdx)
		trainX, trainY := selectRows(X, y, trainIdx)
		testX, testY := selectRows(X, y, testIdx)

		model, err := fit(trainX, trainY)
		if err != nil {
			return nil, fmt.Errorf("fold %d: %w", f, err)
		}
		pred, err := model.Predict(testX)
		if err != nil {
			return nil, fmt.Errorf("fold %d: %w", f, err)
		}

		score := FoldScore{
			Fold:      f,
			TrainSize: len(trainIdx),
			TestSize:  len(testIdx),
			Accuracy:  Accuracy(testY, pred),
			F1:        MacroF1(testY, pred),
		}
		result.Folds = append(result.Folds, score)
		accuracies = append(accuracies, score.Accuracy)
		f1s = append(f1s, score.F1)
	}
	result.Accuracy = Summarize(accuracies)
	result.F1 = Summarize(f1s)
	return result, nil
}

func selectRows(X [][]float64, y []int, idx []int) (*mat.Dense, []int) {
	if len(idx) == 0 {
		return &mat.Dense{}, nil
	}
	cols := len(X[idx[0]])
	data := make([]float64, 0, len(idx)*cols)
	labels := make([]int, len(idx))
	for i, j := range idx {
		data = append(data, X[j]...)
		labels[i] = y[j]
	}
	return mat.NewDense(len(idx), cols, data), labels
}
