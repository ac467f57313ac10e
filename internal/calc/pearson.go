package calc

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// CorrMatrix computes the Pearson correlation between every pair of columns
// of a timepoints-by-signals matrix. The result is symmetric with a unit
// diagonal; zero-variance columns correlate 0 with everything.
func (p *Pool) CorrMatrix(ts *mat.Dense) *mat.Dense {
	rows, cols := ts.Dims()

	stats := p.columnStats(ts)
	guardZeroVariance(stats)

	corr := mat.NewDense(cols, cols, nil)

	p.Each(cols, func(from int) {
		for to := from; to < cols; to++ {
			var accProd float64
			for t := 0; t < rows; t++ {
				accProd += ts.At(t, from) * ts.At(t, to)
			}

			cov := (accProd / float64(rows)) - (stats[from].avg * stats[to].avg)
			pearson := clamp(cov / (stats[from].std * stats[to].std))

			corr.Set(from, to, pearson)
			corr.Set(to, from, pearson)
		}
	})

	return corr
}

// SeedCorr correlates one seed series against every column of ts. The seed
// must have one sample per matrix row.
func (p *Pool) SeedCorr(seed []float64, ts *mat.Dense) ([]float64, error) {
	rows, cols := ts.Dims()
	if len(seed) != rows {
		return nil, fmt.Errorf("calc: seed has %d timepoints but series matrix has %d", len(seed), rows)
	}

	stats := p.columnStats(ts)
	guardZeroVariance(stats)

	seedStat := seriesStat(seed)
	guarded := []statistic{seedStat}
	guardZeroVariance(guarded)
	seedStat = guarded[0]

	corr := make([]float64, cols)

	p.Each(cols, func(j int) {
		var accProd float64
		for t := 0; t < rows; t++ {
			accProd += seed[t] * ts.At(t, j)
		}

		cov := (accProd / float64(rows)) - (seedStat.avg * stats[j].avg)
		corr[j] = clamp(cov / (seedStat.std * stats[j].std))
	})

	return corr, nil
}

// clamp keeps accumulated rounding from landing a correlation outside
// [-1, 1], where atanh is undefined.
func clamp(r float64) float64 {
	switch {
	case r > 1:
		return 1
	case r < -1:
		return -1
	}
	return r
}
