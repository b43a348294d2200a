package ml

import (
	"sort"
	"testing"

	"irislab/dataset"
)

func TestStratifiedSplitProportions(t *testing.T) {
	ds := dataset.MustLoad()
	train, test, err := StratifiedSplit(ds.Labels, 0.2, RandomState)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(train) != 120 || len(test) != 30 {
		t.Fatalf("expected 120/30 split, got %d/%d", len(train), len(test))
	}

	counts := make([]int, 3)
	for _, idx := range test {
		counts[ds.Labels[idx]]++
	}
	for label, count := range counts {
		if count < 9 || count > 11 {
			t.Fatalf("class %d: expected 10 ± 1 test rows, got %d", label, count)
		}
	}

	all := append(append([]int(nil), train...), test...)
	sort.Ints(all)
	for i, idx := range all {
		if idx != i {
			t.Fatalf("split does not cover every row exactly once")
		}
	}
}

func TestStratifiedSplitDeterministic(t *testing.T) {
	ds := dataset.MustLoad()
	trainA, testA, _ := StratifiedSplit(ds.Labels, 0.2, RandomState)
	trainB, testB, _ := StratifiedSplit(ds.Labels, 0.2, RandomState)
	for i := range testA {
		if testA[i] != testB[i] {
			t.Fatalf("test split differs at %d", i)
		}
	}
	for i := range trainA {
		if trainA[i] != trainB[i] {
			t.Fatalf("train split differs at %d", i)
		}
	}

	_, testC, _ := StratifiedSplit(ds.Labels, 0.2, RandomState+1)
	same := true
	for i := range testA {
		if testA[i] != testC[i] {
			same = false
			break
		}
	}
	if same {
		t.Fatal("expected a different seed to give a different split")
	}
}

func TestStratifiedSplitErrors(t *testing.T) {
	if _, _, err := StratifiedSplit(nil, 0.2, 1); err == nil {
		t.Fatal("expected error for empty labels")
	}
	for _, ratio := range []float64{0, 1, -0.5, 1.5} {
		if _, _, err := StratifiedSplit([]int{0, 1, 0, 1}, ratio, 1); err == nil {
			t.Fatalf("expected error for ratio %v", ratio)
		}
	}
	if _, _, err := StratifiedSplit([]int{0}, 0.5, 1); err == nil {
		t.Fatal("expected error for a single sample")
	}
}

func TestStratifiedKFold(t *testing.T) {
	ds := dataset.MustLoad()
	folds, err := StratifiedKFold(ds.Labels, 5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(folds) != 5 {
		t.Fatalf("expected 5 folds, got %d", len(folds))
	}
	seen := make(map[int]bool)
	for f, fold := range folds {
		if len(fold) != 30 {
			t.Fatalf("fold %d: expected 30 rows, got %d", f, len(fold))
		}
		counts := make([]int, 3)
		for _, idx := range fold {
			if seen[idx] {
				t.Fatalf("row %d appears in two folds", idx)
			}
			seen[idx] = true
			counts[ds.Labels[idx]]++
		}
		for label, count := range counts {
			if count != 10 {
				t.Fatalf("fold %d class %d: expected 10 rows, got %d", f, label, count)
			}
		}
	}
	if len(seen) != 150 {
		t.Fatalf("expected folds to cover 150 rows, got %d", len(seen))
	}
}

func TestStratifiedKFoldUneven(t *testing.T) {
	labels := []int{0, 0, 0, 1, 1, 1, 1}
	folds, err := StratifiedKFold(labels, 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(folds[0]) != 4 || len(folds[1]) != 3 {
		t.Fatalf("unexpected fold sizes: %d, %d", len(folds[0]), len(folds[1]))
	}
	if _, err := StratifiedKFold(labels, 1); err == nil {
		t.Fatal("expected error for k=1")
	}
	if _, err := StratifiedKFold(labels, 8); err == nil {
		t.Fatal("expected error for k > samples")
	}
}

func TestComplement(t *testing.T) {
	got := Complement(5, []int{1, 3})
	want := []int{0, 2, 4}
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, got)
		}
	}
}
