package ml

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"
)

// Accuracy is the share of positions where the prediction equals the label.
func Accuracy(yTrue, yPred []int) float64 {
	if len(yTrue) == 0 || len(yTrue) != len(yPred) {
		return 0
	}
	var correct int
	for i := range yTrue {
		if yTrue[i] == yPred[i] {
			correct++
		}
	}
	return float64(correct) / float64(len(yTrue))
}

// MacroF1 averages the per-class F1 score, unweighted, over every label
// seen in either slice. A class with no true or predicted positives scores 0.
func MacroF1(yTrue, yPred []int) float64 {
	if len(yTrue) == 0 || len(yTrue) != len(yPred) {
		return 0
	}
	seen := make(map[int]bool)
	for i := range yTrue {
		seen[yTrue[i]] = true
		seen[yPred[i]] = true
	}
	labels := make([]int, 0, len(seen))
	for label := range seen {
		labels = append(labels, label)
	}
	sort.Ints(labels)

	var sum float64
	for _, label := range labels {
		var tp, fp, fn int
		for i := range yTrue {
			switch {
			case yPred[i] == label && yTrue[i] == label:
				tp++
			case yPred[i] == label:
				fp++
			case yTrue[i] == label:
				fn++
			}
		}
		if denom := 2*tp + fp + fn; denom > 0 {
			sum += 2 * float64(tp) / float64(denom)
		}
	}
	return sum / float64(len(labels))
}

// Summary is the mean and population standard deviation of fold scores.
type Summary struct {
	Mean float64 `json:"mean"`
	Std  float64 `json:"std"`
}

func Summarize(scores []float64) Summary {
	if len(scores) == 0 {
		return Summary{}
	}
	mean, variance := stat.PopMeanVariance(scores, nil)
	return Summary{Mean: mean, Std: math.Sqrt(variance)}
}

func (s Summary) String() string {
	return fmt.Sprintf("%.3f ± %.3f", s.Mean, s.Std)
}
