package model

import (
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// Standardizer holds per-feature mean and std fixed at training time.
type Standardizer struct {
	Mean []float64 `json:"mean"`
	Std  []float64 `json:"std"`
}

func fitStandardizer(x mat.Matrix) Standardizer {
	r, c := x.Dims()
	s := Standardizer{Mean: make([]float64, c), Std: make([]float64, c)}
	col := make([]float64, r)
	for j := 0; j < c; j++ {
		mat.Col(col, j, x)
		mean, std := stat.PopMeanStdDev(col, nil)
		s.Mean[j] = mean
		s.Std[j] = guardStd(std)
	}
	return s
}

// transform returns a standardized copy of x.
func (s Standardizer) transform(x mat.Matrix) *mat.Dense {
	out := mat.DenseCopyOf(x)
	r, _ := out.Dims()
	for i := 0; i < r; i++ {
		row := out.RawRowView(i)
		for j := range row {
			row[j] = (row[j] - s.Mean[j]) / s.Std[j]
		}
	}
	return out
}

// constant columns keep unit scale
func guardStd(std float64) float64 {
	if std < 1e-12 || math.IsNaN(std) {
		return 1
	}
	return std
}
