package calc

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// ErrNoMatrices is returned when a group average is requested over nothing.
var ErrNoMatrices = errors.New("calc: no matrices to average")

// GroupMean accumulates equally sized matrices and divides by their count,
// e.g. per-subject ROI correlation matrices into a cohort mean.
func GroupMean(ms []*mat.Dense) (*mat.Dense, error) {
	if len(ms) == 0 {
		return nil, ErrNoMatrices
	}

	rows, cols := ms[0].Dims()
	acc := mat.NewDense(rows, cols, nil)

	for i, m := range ms {
		r, c := m.Dims()
		if r != rows || c != cols {
			return nil, fmt.Errorf("calc: matrix %d is %dx%d, want %dx%d", i, r, c, rows, cols)
		}
		acc.Add(acc, m)
	}

	acc.Scale(1/float64(len(ms)), acc)
	return acc, nil
}
