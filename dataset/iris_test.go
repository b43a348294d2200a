package dataset

import (
	"math"
	"testing"
)

func TestLoadShape(t *testing.T) {
	ds, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ds.Len() != SampleCount {
		t.Fatalf("expected %d samples, got %d", SampleCount, ds.Len())
	}
	for i, row := range ds.Features {
		if len(row) != FeatureCount {
			t.Fatalf("row %d: expected %d features, got %d", i, FeatureCount, len(row))
		}
	}
	counts := ds.ClassCounts()
	for label, count := range counts {
		if count != 50 {
			t.Fatalf("label %d: expected 50 samples, got %d", label, count)
		}
	}
}

func TestLoadLabelAlignment(t *testing.T) {
	ds := MustLoad()
	want := []string{"setosa", "versicolor", "virginica"}
	for i, name := range want {
		if ds.ClassNames[i] != name {
			t.Fatalf("class %d: expected %s, got %s", i, name, ds.ClassNames[i])
		}
	}
	// the table is ordered by species, 50 rows each
	for i, label := range ds.Labels {
		if label != i/50 {
			t.Fatalf("row %d: expected label %d, got %d", i, i/50, label)
		}
	}
	first := ds.Features[0]
	expected := []float64{5.1, 3.5, 1.4, 0.2}
	for j := range expected {
		if first[j] != expected[j] {
			t.Fatalf("first row feature %d: expected %v, got %v", j, expected[j], first[j])
		}
	}
}

func TestLoadColumnMeans(t *testing.T) {
	ds := MustLoad()
	means := []float64{5.8433, 3.0573, 3.758, 1.1993}
	for j, want := range means {
		var sum float64
		for _, row := range ds.Features {
			sum += row[j]
		}
		got := sum / float64(ds.Len())
		if math.Abs(got-want) > 1e-3 {
			t.Fatalf("%s mean: expected %.4f, got %.4f", featureNames[j], want, got)
		}
	}
}

func TestLoadReturnsCopies(t *testing.T) {
	a := MustLoad()
	a.Features[0][0] = 99
	a.ClassNames[0] = "changed"
	b := MustLoad()
	if b.Features[0][0] != 5.1 {
		t.Fatalf("feature table was mutated through a previous load")
	}
	if ClassNames()[0] != "setosa" {
		t.Fatalf("class names were mutated through a previous load")
	}
}

func TestSubsetAndMatrix(t *testing.T) {
	ds := MustLoad()
	sub := ds.Subset([]int{0, 50, 100})
	if sub.Len() != 3 {
		t.Fatalf("expected 3 rows, got %d", sub.Len())
	}
	if sub.Labels[0] != 0 || sub.Labels[1] != 1 || sub.Labels[2] != 2 {
		t.Fatalf("unexpected labels: %v", sub.Labels)
	}
	m := sub.Matrix()
	r, c := m.Dims()
	if r != 3 || c != FeatureCount {
		t.Fatalf("unexpected dims %dx%d", r, c)
	}
	if m.At(1, 0) != 7.0 {
		t.Fatalf("expected 7.0, got %v", m.At(1, 0))
	}
}
