package calc

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

type statistic struct {
	avg float64
	std float64
}

// columnStats collects mean and standard deviation for every column of a
// timepoints-by-signals matrix in a single pass per column.
func (p *Pool) columnStats(ts *mat.Dense) []statistic {
	rows, cols := ts.Dims()
	stats := make([]statistic, cols)

	p.Each(cols, func(j int) {
		var accVal float64
		var accSqrVal float64

		for t := 0; t < rows; t++ {
			value := ts.At(t, j)
			accVal += value
			accSqrVal += value * value
		}

		avgVal := accVal / float64(rows)
		avgSqrVal := accSqrVal / float64(rows)

		variance := avgSqrVal - (avgVal * avgVal)
		if variance < 0 {
			variance = 0
		}

		stats[j].avg = avgVal
		stats[j].std = math.Sqrt(variance)
	})

	return stats
}

// guardZeroVariance swaps a zero standard deviation for +Inf so that any
// correlation against that column divides out to 0 instead of NaN.
func guardZeroVariance(stats []statistic) {
	for i := range stats {
		if stats[i].std == 0 {
			stats[i].std = math.Inf(1)
		}
	}
}

func seriesStat(x []float64) statistic {
	var accVal float64
	var accSqrVal float64

	for _, value := range x {
		accVal += value
		accSqrVal += value * value
	}

	avgVal := accVal / float64(len(x))
	avgSqrVal := accSqrVal / float64(len(x))

	variance := avgSqrVal - (avgVal * avgVal)
	if variance < 0 {
		variance = 0
	}

	return statistic{avg: avgVal, std: math.Sqrt(variance)}
}
