package scrub

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// DefaultHeadRadius converts rotational motion (radians) to an arc-length
// displacement in mm, per the Power framewise-displacement convention.
const DefaultHeadRadius = 50.0

// ErrMotionShape is returned when motion parameters are not timepoints by 6.
var ErrMotionShape = errors.New("scrub: motion parameters must have 6 columns")

// ErrTooFewFrames is returned when the motion trace cannot form a single
// frame difference.
var ErrTooFewFrames = errors.New("scrub: framewise displacement needs at least 2 frames")

// FD computes framewise displacement from a timepoints-by-6 motion matrix
// (3 translations in mm, then 3 rotations in radians): the absolute first
// differences summed, with rotations scaled by the head radius. The first
// frame's difference is the zero vector by convention, so FD[0] = 0.
func FD(motion *mat.Dense, headRadius float64) ([]float64, error) {
	n, c := motion.Dims()
	if c != 6 {
		return nil, fmt.Errorf("%w: got %d", ErrMotionShape, c)
	}
	if n < 2 {
		return nil, fmt.Errorf("%w: got %d", ErrTooFewFrames, n)
	}
	if headRadius <= 0 {
		headRadius = DefaultHeadRadius
	}

	fd := make([]float64, n)
	for t := 1; t < n; t++ {
		var trans, rot float64
		for j := 0; j < 3; j++ {
			d := motion.At(t, j) - motion.At(t-1, j)
			if d < 0 {
				d = -d
			}
			trans += d
		}
		for j := 3; j < 6; j++ {
			d := motion.At(t, j) - motion.At(t-1, j)
			if d < 0 {
				d = -d
			}
			rot += d
		}
		fd[t] = trans + headRadius*rot
	}

	return fd, nil
}

// TemporalMask marks the frames to keep: true where FD stays at or below the
// threshold. The first frame is always kept.
func TemporalMask(fd []float64, threshold float64) []bool {
	keep := make([]bool, len(fd))
	for i, v := range fd {
		keep[i] = v <= threshold
	}
	if len(keep) > 0 {
		keep[0] = true
	}
	return keep
}
