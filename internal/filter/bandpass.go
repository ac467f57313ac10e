package filter

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/mat"

	"github.com/ZhaoyuDeng/RodentMRI-pipeline/internal/calc"
)

// DefaultCutNumber is the column-chunk count used when none is configured.
// Chunking bounds peak scratch memory, it does not change results.
const DefaultCutNumber = 10

var (
	// ErrBadSampling is returned for a non-positive repetition time.
	ErrBadSampling = errors.New("filter: repetition time must be positive")

	// ErrBadBand is returned for an unusable cutoff pair.
	ErrBadBand = errors.New("filter: band cutoffs out of order")
)

// Bandpass applies a zero-phase ideal (FFT-domain) band-pass to each column
// of a timepoints-by-signals matrix in place. tr is the sampling interval in
// seconds; low and high bound the pass band in Hz. low = 0 disables the
// high-pass side; high = 0 or at least the Nyquist frequency disables the
// low-pass side.
func Bandpass(pool *calc.Pool, ts *mat.Dense, tr, low, high float64, cutNumber int) error {
	rows, cols := ts.Dims()

	if tr <= 0 {
		return ErrBadSampling
	}
	if low < 0 || high < 0 || (high > 0 && high < low) {
		return fmt.Errorf("%w: [%g, %g] Hz", ErrBadBand, low, high)
	}
	if rows < 3 || cols == 0 {
		return nil
	}
	if cutNumber <= 0 {
		cutNumber = DefaultCutNumber
	}

	nyquist := 1 / (2 * tr)
	highPass := low > 0
	lowPass := high > 0 && high < nyquist
	if !highPass && !lowPass {
		return nil
	}

	padded := nextPow2(rows)
	fft := fourier.NewFFT(padded)
	nCoeff := padded/2 + 1

	// Pass-band membership per coefficient; bin i sits at i/(padded*tr) Hz.
	keep := make([]bool, nCoeff)
	for i := 0; i < nCoeff; i++ {
		freq := float64(i) / (float64(padded) * tr)
		keep[i] = true
		if highPass && freq < low {
			keep[i] = false
		}
		if lowPass && freq > high {
			keep[i] = false
		}
	}

	chunk := (cols + cutNumber - 1) / cutNumber
	seqBuf := make([][]float64, chunk)
	coeffBuf := make([][]complex128, chunk)
	for k := 0; k < chunk; k++ {
		seqBuf[k] = make([]float64, padded)
		coeffBuf[k] = make([]complex128, nCoeff)
	}

	for start := 0; start < cols; start += chunk {
		end := start + chunk
		if end > cols {
			end = cols
		}

		pool.Each(end-start, func(k int) {
			j := start + k
			seq := seqBuf[k]
			coeff := coeffBuf[k]

			// Demean before zero-padding so the pad edges do not ring;
			// the mean returns afterwards unless the high-pass removed it.
			var mean float64
			for t := 0; t < rows; t++ {
				mean += ts.At(t, j)
			}
			mean /= float64(rows)

			for t := 0; t < rows; t++ {
				seq[t] = ts.At(t, j) - mean
			}
			for t := rows; t < padded; t++ {
				seq[t] = 0
			}

			fft.Coefficients(coeff, seq)
			for i := range coeff {
				if !keep[i] {
					coeff[i] = 0
				}
			}
			fft.Sequence(seq, coeff)

			addBack := 0.0
			if !highPass {
				addBack = mean
			}
			scale := 1 / float64(padded)
			for t := 0; t < rows; t++ {
				ts.Set(t, j, seq[t]*scale+addBack)
			}
		})
	}

	return nil
}

func nextPow2(n int) int {
	p := 1
	for p < n {
		p <<= 1
	}
	return p
}
