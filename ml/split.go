package ml

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sort"
)

// StratifiedSplit partitions row indices into train and test sets so that
// every class keeps its proportion. Each class contributes
// round(testRatio * classSize) rows to the test set. The same seed always
// yields the same partition.
func StratifiedSplit(labels []int, testRatio float64, seed int64) (train, test []int, err error) {
	if len(labels) == 0 {
		return nil, nil, errors.New("labels is empty")
	}
	if testRatio <= 0 || testRatio >= 1 {
		return nil, nil, fmt.Errorf("test ratio must be in (0, 1), got %v", testRatio)
	}

	rnd := rand.New(rand.NewSource(seed))
	for _, members := range groupByClass(labels) {
		rnd.Shuffle(len(members), func(i, j int) {
			members[i], members[j] = members[j], members[i]
		})
		nTest := int(math.Round(testRatio * float64(len(members))))
		if nTest == 0 && len(members) > 1 {
			nTest = 1
		}
		if nTest >= len(members) {
			nTest = len(members) - 1
		}
		test = append(test, members[:nTest]...)
		train = append(train, members[nTest:]...)
	}
	if len(train) == 0 || len(test) == 0 {
		return nil, nil, errors.New("not enough samples to split")
	}

	rnd.Shuffle(len(train), func(i, j int) { train[i], train[j] = train[j], train[i] })
	rnd.Shuffle(len(test), func(i, j int) { test[i], test[j] = test[j], test[i] })
	return train, test, nil
}

// StratifiedKFold splits positions 0..len(labels)-1 into k test folds
// without shuffling. Each class is cut into k contiguous chunks whose sizes
// differ by at most one, and chunk f of every class lands in fold f.
func StratifiedKFold(labels []int, k int) ([][]int, error) {
	if k < 2 {
		return nil, fmt.Errorf("number of folds must be at least 2, got %d", k)
	}
	if k > len(labels) {
		return nil, fmt.Errorf("cannot make %d folds from %d samples", k, len(labels))
	}

	folds := make([][]int, k)
	for _, members := range groupByClass(labels) {
		base, extra := len(members)/k, len(members)%k
		start := 0
		for f := 0; f < k; f++ {
			size := base
			if f < extra {
				size++
			}
			folds[f] = append(folds[f], members[start:start+size]...)
			start += size
		}
	}
	for f := range folds {
		if len(folds[f]) == 0 {
			return nil, fmt.Errorf("fold %d is empty", f)
		}
		sort.Ints(folds[f])
	}
	return folds, nil
}

// Complement returns 0..n-1 without the indices in excluded, ascending.
func Complement(n int, excluded []int) []int {
	skip := make(map[int]bool, len(excluded))
	for _, idx := range excluded {
		skip[idx] = true
	}
	out := make([]int, 0, n-len(excluded))
	for i := 0; i < n; i++ {
		if !skip[i] {
			out = append(out, i)
		}
	}
	return out
}

// groupByClass returns row positions per label, classes in ascending order
// and rows in their original order.
func groupByClass(labels []int) [][]int {
	byClass := make(map[int][]int)
	for i, label := range labels {
		byClass[label] = append(byClass[label], i)
	}
	classes := make([]int, 0, len(byClass))
	for label := range byClass {
		classes = append(classes, label)
	}
	sort.Ints(classes)
	groups := make([][]int, len(classes))
	for i, label := range classes {
		groups[i] = byClass[label]
	}
	return groups
}
