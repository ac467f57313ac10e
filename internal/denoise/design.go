package denoise

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"gonum.org/v1/gonum/mat"
)

// MotionModel selects how raw head-motion parameters expand into regressors.
type MotionModel string

const (
	// MotionNone includes no motion regressors.
	MotionNone MotionModel = "none"
	// MotionRaw6 uses the 6 realignment parameters as-is.
	MotionRaw6 MotionModel = "raw6"
	// MotionLag12 adds the one-sample-lagged parameters.
	MotionLag12 MotionModel = "lag12"
	// MotionSq12 adds the squared parameters.
	MotionSq12 MotionModel = "sq12"
	// MotionFriston24 is the full 24-parameter expansion: current, lagged,
	// squared, and lagged-squared.
	MotionFriston24 MotionModel = "friston24"
)

// ParseMotionModel maps a configuration string to a MotionModel. The empty
// string means no motion regressors.
func ParseMotionModel(s string) (MotionModel, error) {
	m := MotionModel(strings.ToLower(strings.TrimSpace(s)))
	switch m {
	case "":
		return MotionNone, nil
	case MotionNone, MotionRaw6, MotionLag12, MotionSq12, MotionFriston24:
		return m, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownModel, s)
}

var (
	// ErrRowMismatch is returned when covariate rows do not line up 1:1 with
	// signal timepoints.
	ErrRowMismatch = errors.New("denoise: covariate rows do not match signal rows")

	// ErrNaN is returned when a covariate carries missing values.
	ErrNaN = errors.New("denoise: covariate contains NaN")

	// ErrUnknownModel is returned for an unrecognized motion expansion.
	ErrUnknownModel = errors.New("denoise: unknown motion model")

	// ErrMotionShape is returned when the motion matrix is not timepoints by 6.
	ErrMotionShape = errors.New("denoise: motion parameters must have 6 columns")
)

// BuildDesign assembles the nuisance design matrix for n timepoints: a
// constant column, then the WM and CSF mean signals when provided, then the
// chosen motion expansion. Every entry is checked against the no-NaN
// invariant.
func BuildDesign(n int, wm, csf []float64, motion *mat.Dense, model MotionModel) (*mat.Dense, error) {
	cols := [][]float64{constant(n)}

	if wm != nil {
		if len(wm) != n {
			return nil, fmt.Errorf("%w: WM mean has %d rows, want %d", ErrRowMismatch, len(wm), n)
		}
		cols = append(cols, wm)
	}
	if csf != nil {
		if len(csf) != n {
			return nil, fmt.Errorf("%w: CSF mean has %d rows, want %d", ErrRowMismatch, len(csf), n)
		}
		cols = append(cols, csf)
	}

	if motion != nil && model != MotionNone {
		mr, mc := motion.Dims()
		if mc != 6 {
			return nil, fmt.Errorf("%w: got %d", ErrMotionShape, mc)
		}
		if mr != n {
			return nil, fmt.Errorf("%w: motion has %d rows, want %d", ErrRowMismatch, mr, n)
		}

		expanded, err := ExpandMotion(motion, model)
		if err != nil {
			return nil, err
		}
		_, ec := expanded.Dims()
		for j := 0; j < ec; j++ {
			cols = append(cols, mat.Col(nil, j, expanded))
		}
	}

	design := mat.NewDense(n, len(cols), nil)
	for j, col := range cols {
		design.SetCol(j, col)
	}

	if hasNaN(design) {
		return nil, ErrNaN
	}
	return design, nil
}

// ExpandMotion turns a timepoints-by-6 motion matrix into the regressor block
// for the given model. Lagged series start with a zero row.
func ExpandMotion(motion *mat.Dense, model MotionModel) (*mat.Dense, error) {
	n, c := motion.Dims()
	if c != 6 {
		return nil, fmt.Errorf("%w: got %d", ErrMotionShape, c)
	}

	blocks := 0
	switch model {
	case MotionRaw6:
		blocks = 1
	case MotionLag12, MotionSq12:
		blocks = 2
	case MotionFriston24:
		blocks = 4
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownModel, model)
	}

	out := mat.NewDense(n, 6*blocks, nil)
	for t := 0; t < n; t++ {
		for j := 0; j < 6; j++ {
			cur := motion.At(t, j)
			lag := 0.0
			if t > 0 {
				lag = motion.At(t-1, j)
			}

			out.Set(t, j, cur)
			switch model {
			case MotionLag12:
				out.Set(t, 6+j, lag)
			case MotionSq12:
				out.Set(t, 6+j, cur*cur)
			case MotionFriston24:
				out.Set(t, 6+j, lag)
				out.Set(t, 12+j, cur*cur)
				out.Set(t, 18+j, lag*lag)
			}
		}
	}

	return out, nil
}

func constant(n int) []float64 {
	c := make([]float64, n)
	for i := range c {
		c[i] = 1
	}
	return c
}

func hasNaN(m *mat.Dense) bool {
	r, c := m.Dims()
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			if math.IsNaN(m.At(i, j)) {
				return true
			}
		}
	}
	return false
}
