package calc

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// FisherZ applies the r-to-z variance-stabilizing transform,
// atanh(r) = 0.5*log((1+r)/(1-r)). Correlations of exactly +-1 map to +-Inf.
func FisherZ(r float64) float64 {
	return math.Atanh(r)
}

// FisherZSlice transforms a correlation slice into a new z-value slice.
func FisherZSlice(r []float64) []float64 {
	z := make([]float64, len(r))
	for i, v := range r {
		z[i] = math.Atanh(v)
	}
	return z
}

// FisherZMatrix transforms a correlation matrix into a new z matrix with the
// self-correlation diagonal forced to zero.
func FisherZMatrix(r *mat.Dense) *mat.Dense {
	rows, cols := r.Dims()
	z := mat.NewDense(rows, cols, nil)

	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			z.Set(i, j, math.Atanh(r.At(i, j)))
		}
	}

	for i := 0; i < rows && i < cols; i++ {
		z.Set(i, i, 0)
	}

	return z
}
