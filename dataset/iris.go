// Package dataset bundles the Iris reference data used to train and check
// the classifier.
package dataset

import (
	"bytes"
	_ "embed"
	"encoding/csv"
	"errors"
	"fmt"
	"strconv"

	"gonum.org/v1/gonum/mat"
)

//go:embed iris.csv
var irisCSV []byte

const (
	SampleCount  = 150
	FeatureCount = 4
)

var featureNames = []string{"sepal_length", "sepal_width", "petal_length", "petal_width"}

var classNames = []string{"setosa", "versicolor", "virginica"}

// FeatureNames returns the column order every sample follows.
func FeatureNames() []string {
	return append([]string(nil), featureNames...)
}

// ClassNames returns the species names indexed by label value.
func ClassNames() []string {
	return append([]string(nil), classNames...)
}

// Dataset is a row-aligned feature table and label vector.
type Dataset struct {
	Features   [][]float64
	Labels     []int
	ClassNames []string
}

// Load parses the embedded Iris table. Every call returns fresh slices.
func Load() (*Dataset, error) {
	reader := csv.NewReader(bytes.NewReader(irisCSV))
	reader.FieldsPerRecord = FeatureCount + 1
	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse iris table: %w", err)
	}
	if len(records) == 0 {
		return nil, errors.New("iris table is empty")
	}

	header := records[0]
	for i, name := range featureNames {
		if header[i] != name {
			return nil, fmt.Errorf("unexpected column %d: %q, want %q", i, header[i], name)
		}
	}

	labelOf := make(map[string]int, len(classNames))
	for i, name := range classNames {
		labelOf[name] = i
	}

	ds := &Dataset{
		Features:   make([][]float64, 0, SampleCount),
		Labels:     make([]int, 0, SampleCount),
		ClassNames: ClassNames(),
	}
	for line, record := range records[1:] {
		row := make([]float64, FeatureCount)
		for j := 0; j < FeatureCount; j++ {
			value, err := strconv.ParseFloat(record[j], 64)
			if err != nil {
				return nil, fmt.Errorf("row %d column %s: %w", line+1, featureNames[j], err)
			}
			row[j] = value
		}
		label, ok := labelOf[record[FeatureCount]]
		if !ok {
			return nil, fmt.Errorf("row %d: unknown species %q", line+1, record[FeatureCount])
		}
		ds.Features = append(ds.Features, row)
		ds.Labels = append(ds.Labels, label)
	}

	if len(ds.Features) != SampleCount {
		return nil, fmt.Errorf("expected %d samples, got %d", SampleCount, len(ds.Features))
	}
	return ds, nil
}

// MustLoad is Load for callers that treat the bundled table as infallible.
func MustLoad() *Dataset {
	ds, err := Load()
	if err != nil {
		panic(err)
	}
	return ds
}

// Len returns the number of samples.
func (d *Dataset) Len() int {
	return len(d.Labels)
}

// Subset returns the rows at idx, in order. Rows are copied.
func (d *Dataset) Subset(idx []int) *Dataset {
	sub := &Dataset{
		Features:   make([][]float64, len(idx)),
		Labels:     make([]int, len(idx)),
		ClassNames: append([]string(nil), d.ClassNames...),
	}
	for i, j := range idx {
		sub.Features[i] = append([]float64(nil), d.Features[j]...)
		sub.Labels[i] = d.Labels[j]
	}
	return sub
}

// Matrix copies the feature table into a dense rows x FeatureCount matrix.
func (d *Dataset) Matrix() *mat.Dense {
	return ToMatrix(d.Features)
}

// ToMatrix copies a row slice into a dense matrix.
func ToMatrix(rows [][]float64) *mat.Dense {
	if len(rows) == 0 {
		return &mat.Dense{}
	}
	cols := len(rows[0])
	data := make([]float64, 0, len(rows)*cols)
	for _, row := range rows {
		data = append(data, row...)
	}
	return mat.NewDense(len(rows), cols, data)
}

// ClassCounts returns how many samples carry each label.
func (d *Dataset) ClassCounts() []int {
	counts := make([]int, len(d.ClassNames))
	for _, label := range d.Labels {
		counts[label]++
	}
	return counts
}
