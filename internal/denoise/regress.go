package denoise

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// rcond bounds the singular values kept by the pseudo-inverse solve, relative
// to the largest one. Collinear motion regressors therefore resolve to the
// minimum-norm solution instead of depending on backend behavior.
const rcond = 1e-12

// ErrDegenerateDesign is returned when the design has no usable singular value.
var ErrDegenerateDesign = errors.New("denoise: design matrix is degenerate")

// Regress removes the design's ordinary-least-squares fit from every signal
// column in place. With addMeanBack the constant column's contribution is
// excluded from the subtraction, so column means survive the cleanup.
func Regress(signal, design *mat.Dense, addMeanBack bool) error {
	n, _ := signal.Dims()
	dn, _ := design.Dims()
	if dn != n {
		return fmt.Errorf("%w: design has %d rows, signal has %d", ErrRowMismatch, dn, n)
	}

	beta, err := solvePinv(design, signal)
	if err != nil {
		return err
	}

	var fitted mat.Dense
	fitted.Mul(design, beta)

	if addMeanBack {
		// fitted minus the constant column's share, i.e. only the
		// non-constant covariates are subtracted.
		constCol := design.Slice(0, n, 0, 1)
		constBeta := beta.Slice(0, 1, 0, betaCols(beta))

		var constPart mat.Dense
		constPart.Mul(constCol, constBeta)
		fitted.Sub(&fitted, &constPart)
	}

	signal.Sub(signal, &fitted)
	return nil
}

// solvePinv computes pinv(x)*y through a thin SVD, zeroing singular values
// below rcond times the largest.
func solvePinv(x, y *mat.Dense) (*mat.Dense, error) {
	var svd mat.SVD
	if ok := svd.Factorize(x, mat.SVDThin); !ok {
		return nil, ErrDegenerateDesign
	}

	sv := svd.Values(nil)
	if len(sv) == 0 || sv[0] == 0 {
		return nil, ErrDegenerateDesign
	}
	tol := rcond * sv[0]

	var u, v mat.Dense
	svd.UTo(&u)
	svd.VTo(&v)

	// w = S^+ U' y, then beta = V w.
	var w mat.Dense
	w.Mul(u.T(), y)
	for i, s := range sv {
		scale := 0.0
		if s > tol {
			scale = 1 / s
		}
		row := w.RawRowView(i)
		for j := range row {
			row[j] *= scale
		}
	}

	var beta mat.Dense
	beta.Mul(&v, &w)
	return &beta, nil
}

func betaCols(b *mat.Dense) int {
	_, c := b.Dims()
	return c
}
