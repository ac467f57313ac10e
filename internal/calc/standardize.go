package calc

import (
	"errors"

	"gonum.org/v1/gonum/stat"
)

// ErrZeroMean is returned when a map cannot be mean-scaled.
var ErrZeroMean = errors.New("calc: map mean is zero")

// ZScoreMap standardizes the values in place to zero mean and unit deviation.
// Intended for metric maps restricted to in-mask voxels.
func ZScoreMap(vals []float64) {
	if len(vals) == 0 {
		return
	}

	mean, std := stat.MeanStdDev(vals, nil)
	if std == 0 {
		for i := range vals {
			vals[i] = 0
		}
		return
	}

	for i := range vals {
		vals[i] = (vals[i] - mean) / std
	}
}

// DivideByMean scales the values in place by their mean, the "m" variant of
// ALFF and ReHo maps.
func DivideByMean(vals []float64) error {
	if len(vals) == 0 {
		return nil
	}

	mean := stat.Mean(vals, nil)
	if mean == 0 {
		return ErrZeroMean
	}

	for i := range vals {
		vals[i] /= mean
	}
	return nil
}
