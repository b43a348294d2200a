package ml

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"irislab/dataset"
)

func TestAccuracy(t *testing.T) {
	assert.Equal(t, 0.75, Accuracy([]int{0, 1, 2, 2}, []int{0, 1, 2, 1}))
	assert.Equal(t, 0.0, Accuracy(nil, nil))
	assert.Equal(t, 0.0, Accuracy([]int{0}, []int{0, 1}))
}

func TestMacroF1(t *testing.T) {
	yTrue := []int{0, 0, 1, 1, 2, 2}
	yPred := []int{0, 0, 1, 2, 2, 2}
	// class 0: 1.0, class 1: 2/3, class 2: 0.8
	want := (1.0 + 2.0/3.0 + 0.8) / 3
	assert.InDelta(t, want, MacroF1(yTrue, yPred), 1e-12)
	assert.Equal(t, 1.0, MacroF1([]int{0, 1}, []int{0, 1}))

	// a label only ever predicted still counts, with F1 0
	assert.InDelta(t, 1.0/3.0, MacroF1([]int{0, 0}, []int{0, 1}), 1e-12)
}

func TestSummarize(t *testing.T) {
	s := Summarize([]float64{0.9, 1.0, 0.95, 0.95})
	assert.InDelta(t, 0.95, s.Mean, 1e-12)
	assert.InDelta(t, math.Sqrt(0.00125), s.Std, 1e-12)
	assert.Equal(t, "0.950 ± 0.035", s.String())
	assert.Equal(t, Summary{}, Summarize(nil))
}

func TestCrossValidateIris(t *testing.T) {
	ds := dataset.MustLoad()
	p := BuildPipeline()
	result, err := CrossValidate(p, ds.Features, ds.Labels, 5)
	require.NoError(t, err)
	require.Len(t, result.Folds, 5)
	for _, fold := range result.Folds {
		assert.Equal(t, 120, fold.TrainSize)
		assert.Equal(t, 30, fold.TestSize)
	}
	assert.Greater(t, result.Accuracy.Mean, 0.9)
	assert.Greater(t, result.F1.Mean, 0.9)
	assert.False(t, p.Fitted(), "cross-validation must not fit the template pipeline")
}

func TestScoreFolds(t *testing.T) {
	ds := dataset.MustLoad()
	_, err := ScoreFolds(BuildPipeline(), ds.Features, ds.Labels, 5)
	assert.Error(t, err)

	p, _ := fitFull(t)
	result, err := ScoreFolds(p, ds.Features, ds.Labels, 5)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, result.Accuracy.Mean, 0.95)
}
