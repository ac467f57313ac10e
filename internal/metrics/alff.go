// Package metrics computes voxelwise resting-state metrics from extracted
// time series.
package metrics

import (
	"errors"
	"fmt"
	"math"
	"math/cmplx"

	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/mat"

	"github.com/ZhaoyuDeng/RodentMRI-pipeline/internal/calc"
)

const defaultCutNumber = 10

var (
	// ErrBadSampling is returned for a non-positive repetition time.
	ErrBadSampling = errors.New("metrics: repetition time must be positive")

	// ErrBadBand is returned when the frequency band is not usable.
	ErrBadBand = errors.New("metrics: bad frequency band")

	// ErrTooShort is returned when the series is too short for the metric.
	ErrTooShort = errors.New("metrics: too few timepoints")
)

// ALFF computes the amplitude of low-frequency fluctuation and its
// fractional variant for every column of ts. The single-sided amplitude
// spectrum 2|X_k|/n is averaged over the band for ALFF; fALFF divides the
// band amplitude sum by the full spectrum sum with the DC bin excluded.
// Columns are processed in cutNumber chunks to bound peak memory.
func ALFF(pool *calc.Pool, ts *mat.Dense, tr, low, high float64, cutNumber int) (alff, falff []float64, err error) {
	n, cols := ts.Dims()
	if n < 3 {
		return nil, nil, fmt.Errorf("%w: %d", ErrTooShort, n)
	}
	if tr <= 0 {
		return nil, nil, fmt.Errorf("%w: %g", ErrBadSampling, tr)
	}
	if low < 0 || high <= low {
		return nil, nil, fmt.Errorf("%w: [%g, %g] Hz", ErrBadBand, low, high)
	}
	if cols == 0 {
		return nil, nil, nil
	}
	if cutNumber <= 0 {
		cutNumber = defaultCutNumber
	}
	if cutNumber > cols {
		cutNumber = cols
	}

	padded := nextPow2(n)
	half := padded / 2

	kLow := int(math.Round(low * float64(padded) * tr))
	kHigh := int(math.Round(high * float64(padded) * tr))
	if kHigh > half {
		kHigh = half
	}
	if kLow > kHigh {
		return nil, nil, fmt.Errorf("%w: [%g, %g] Hz resolves to no bins at tr %g", ErrBadBand, low, high, tr)
	}

	alff = make([]float64, cols)
	falff = make([]float64, cols)

	chunk := (cols + cutNumber - 1) / cutNumber
	pool.Each(cutNumber, func(ci int) {
		lo := ci * chunk
		hi := lo + chunk
		if hi > cols {
			hi = cols
		}
		if lo >= hi {
			return
		}

		fft := fourier.NewFFT(padded)
		seq := make([]float64, padded)
		coeff := make([]complex128, half+1)

		for j := lo; j < hi; j++ {
			for t := 0; t < n; t++ {
				seq[t] = ts.At(t, j)
			}
			for t := n; t < padded; t++ {
				seq[t] = 0
			}
			fft.Coefficients(coeff, seq)

			bandSum := 0.0
			fullSum := 0.0
			for k := 1; k <= half; k++ {
				amp := 2 * cmplx.Abs(coeff[k]) / float64(n)
				fullSum += amp
				if k >= kLow && k <= kHigh {
					bandSum += amp
				}
			}
			if kLow == 0 {
				bandSum += 2 * cmplx.Abs(coeff[0]) / float64(n)
			}

			nBand := float64(kHigh - kLow + 1)
			alff[j] = bandSum / nBand
			if fullSum > 0 {
				falff[j] = bandSum / fullSum
			}
		}
	})
	return alff, falff, nil
}

func nextPow2(n int) int {
	p := 1
	for p < n {
		p <<= 1
	}
	return p
}
