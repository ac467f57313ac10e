package scrub

import (
	"errors"
	"fmt"
	"sync"

	"gonum.org/v1/gonum/interp"
	"gonum.org/v1/gonum/mat"

	"github.com/ZhaoyuDeng/RodentMRI-pipeline/internal/calc"
)

// Method selects how flagged timepoints are handled.
type Method string

const (
	// MethodCut drops flagged frames outright.
	MethodCut Method = "cut"
	// MethodNearest copies the nearest valid frame.
	MethodNearest Method = "nearest"
	// MethodLinear interpolates linearly between valid frames.
	MethodLinear Method = "linear"
	// MethodSpline interpolates with a natural cubic spline.
	MethodSpline Method = "spline"
	// MethodPchip interpolates with a monotone piecewise cubic.
	MethodPchip Method = "pchip"
)

var (
	// ErrUnknownMethod is returned for an unsupported scrubbing method.
	ErrUnknownMethod = errors.New("scrub: unknown scrubbing method")

	// ErrMaskLength is returned when the temporal mask does not cover the
	// series rows 1:1.
	ErrMaskLength = errors.New("scrub: temporal mask length does not match timepoints")

	// ErrTooFewAnchors is returned when fewer than two valid frames remain
	// to interpolate from.
	ErrTooFewAnchors = errors.New("scrub: need at least two valid frames to interpolate")
)

// ParseMethod validates a configured method name.
func ParseMethod(s string) (Method, error) {
	switch Method(s) {
	case MethodCut, MethodNearest, MethodLinear, MethodSpline, MethodPchip:
		return Method(s), nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownMethod, s)
}

// Apply scrubs a timepoints-by-signals matrix against the keep mask. Cutting
// returns a shorter matrix; interpolation fills flagged rows in place and
// returns the input.
func Apply(pool *calc.Pool, ts *mat.Dense, keep []bool, method Method) (*mat.Dense, error) {
	switch method {
	case MethodCut:
		return Cut(ts, keep)
	case MethodNearest, MethodLinear, MethodSpline, MethodPchip:
		if err := Interpolate(pool, ts, keep, method); err != nil {
			return nil, err
		}
		return ts, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownMethod, method)
}

// Cut returns a new matrix holding only the rows whose mask entry is true.
// An all-true mask reproduces the input values unchanged.
func Cut(ts *mat.Dense, keep []bool) (*mat.Dense, error) {
	rows, cols := ts.Dims()
	if len(keep) != rows {
		return nil, fmt.Errorf("%w: mask %d, rows %d", ErrMaskLength, len(keep), rows)
	}

	kept := 0
	for _, k := range keep {
		if k {
			kept++
		}
	}

	out := mat.NewDense(kept, cols, nil)
	r := 0
	for t := 0; t < rows; t++ {
		if !keep[t] {
			continue
		}
		for j := 0; j < cols; j++ {
			out.Set(r, j, ts.At(t, j))
		}
		r++
	}

	return out, nil
}

// Interpolate rebuilds flagged rows from the valid frames, column by column.
// Flagged frames beyond the first or last valid anchor take that anchor's
// value rather than extrapolating.
func Interpolate(pool *calc.Pool, ts *mat.Dense, keep []bool, method Method) error {
	rows, cols := ts.Dims()
	if len(keep) != rows {
		return fmt.Errorf("%w: mask %d, rows %d", ErrMaskLength, len(keep), rows)
	}

	var anchors []int
	var flagged []int
	for t, k := range keep {
		if k {
			anchors = append(anchors, t)
		} else {
			flagged = append(flagged, t)
		}
	}
	if len(flagged) == 0 {
		return nil
	}
	if len(anchors) < 2 {
		return ErrTooFewAnchors
	}

	xs := make([]float64, len(anchors))
	for i, a := range anchors {
		xs[i] = float64(a)
	}
	first, last := anchors[0], anchors[len(anchors)-1]

	var errMu sync.Mutex
	var errOnce error
	pool.Each(cols, func(j int) {
		ys := make([]float64, len(anchors))
		for i, a := range anchors {
			ys[i] = ts.At(a, j)
		}

		if method == MethodNearest {
			for _, t := range flagged {
				ts.Set(t, j, ys[nearestAnchor(anchors, t)])
			}
			return
		}

		var predictor interp.FittablePredictor
		switch method {
		case MethodLinear:
			predictor = &interp.PiecewiseLinear{}
		case MethodSpline:
			predictor = &interp.NaturalCubic{}
		case MethodPchip:
			predictor = &interp.FritschButland{}
		}

		if err := predictor.Fit(xs, ys); err != nil {
			errMu.Lock()
			if errOnce == nil {
				errOnce = fmt.Errorf("scrub: interpolation fit: %w", err)
			}
			errMu.Unlock()
			return
		}

		for _, t := range flagged {
			switch {
			case t < first:
				ts.Set(t, j, ys[0])
			case t > last:
				ts.Set(t, j, ys[len(ys)-1])
			default:
				ts.Set(t, j, predictor.Predict(float64(t)))
			}
		}
	})

	return errOnce
}

// nearestAnchor finds the anchor index closest to t, preferring the earlier
// anchor on ties.
func nearestAnchor(anchors []int, t int) int {
	best := 0
	bestDist := abs(anchors[0] - t)
	for i := 1; i < len(anchors); i++ {
		d := abs(anchors[i] - t)
		if d < bestDist {
			best = i
			bestDist = d
		}
	}
	return best
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
