package filter

import (
	"gonum.org/v1/gonum/mat"

	"github.com/ZhaoyuDeng/RodentMRI-pipeline/internal/calc"
)

// Detrend removes the least-squares linear trend, mean included, from each
// column of a timepoints-by-signals matrix in place. Columns are processed in
// cutNumber chunks under the same memory discipline as Bandpass.
func Detrend(pool *calc.Pool, ts *mat.Dense, cutNumber int) {
	rows, cols := ts.Dims()
	if rows < 2 || cols == 0 {
		return
	}
	if cutNumber <= 0 {
		cutNumber = DefaultCutNumber
	}

	// Time-axis moments are shared by every column.
	n := float64(rows)
	tMean := (n - 1) / 2
	var tVar float64
	for t := 0; t < rows; t++ {
		d := float64(t) - tMean
		tVar += d * d
	}

	chunk := (cols + cutNumber - 1) / cutNumber
	for start := 0; start < cols; start += chunk {
		end := start + chunk
		if end > cols {
			end = cols
		}

		pool.Each(end-start, func(k int) {
			j := start + k

			var xMean float64
			for t := 0; t < rows; t++ {
				xMean += ts.At(t, j)
			}
			xMean /= n

			var cov float64
			for t := 0; t < rows; t++ {
				cov += (float64(t) - tMean) * (ts.At(t, j) - xMean)
			}
			slope := cov / tVar

			for t := 0; t < rows; t++ {
				fit := xMean + slope*(float64(t)-tMean)
				ts.Set(t, j, ts.At(t, j)-fit)
			}
		})
	}
}
