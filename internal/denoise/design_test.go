package denoise

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func TestParseMotionModel(t *testing.T) {
	tests := []struct {
		in      string
		want    MotionModel
		wantErr bool
	}{
		{"", MotionNone, false},
		{"none", MotionNone, false},
		{"raw6", MotionRaw6, false},
		{"lag12", MotionLag12, false},
		{"sq12", MotionSq12, false},
		{"friston24", MotionFriston24, false},
		{"Friston24", MotionFriston24, false},
		{"  raw6  ", MotionRaw6, false},
		{"raw24", "", true},
		{"bogus", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseMotionModel(tt.in)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrUnknownModel)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestExpandMotion_Widths(t *testing.T) {
	motion := mat.NewDense(5, 6, nil)

	tests := []struct {
		model MotionModel
		cols  int
	}{
		{MotionRaw6, 6},
		{MotionLag12, 12},
		{MotionSq12, 12},
		{MotionFriston24, 24},
	}

	for _, tt := range tests {
		t.Run(string(tt.model), func(t *testing.T) {
			out, err := ExpandMotion(motion, tt.model)
			require.NoError(t, err)
			r, c := out.Dims()
			assert.Equal(t, 5, r)
			assert.Equal(t, tt.cols, c)
		})
	}
}

func TestExpandMotion_Friston24Values(t *testing.T) {
	motion := mat.NewDense(3, 6, nil)
	for t0 := 0; t0 < 3; t0++ {
		for j := 0; j < 6; j++ {
			motion.Set(t0, j, float64(t0+1)+0.1*float64(j))
		}
	}

	out, err := ExpandMotion(motion, MotionFriston24)
	require.NoError(t, err)

	for j := 0; j < 6; j++ {
		// Lagged blocks start with a zero row.
		assert.Zero(t, out.At(0, 6+j), "lag column %d row 0", j)
		assert.Zero(t, out.At(0, 18+j), "lag-squared column %d row 0", j)
	}

	for t0 := 0; t0 < 3; t0++ {
		for j := 0; j < 6; j++ {
			cur := motion.At(t0, j)
			assert.Equal(t, cur, out.At(t0, j))
			assert.InDelta(t, cur*cur, out.At(t0, 12+j), 1e-15)
			if t0 > 0 {
				lag := motion.At(t0-1, j)
				assert.Equal(t, lag, out.At(t0, 6+j))
				assert.InDelta(t, lag*lag, out.At(t0, 18+j), 1e-15)
			}
		}
	}
}

func TestExpandMotion_Errors(t *testing.T) {
	narrow := mat.NewDense(4, 5, nil)
	_, err := ExpandMotion(narrow, MotionRaw6)
	assert.ErrorIs(t, err, ErrMotionShape)

	motion := mat.NewDense(4, 6, nil)
	_, err = ExpandMotion(motion, MotionModel("raw24"))
	assert.ErrorIs(t, err, ErrUnknownModel)
}

func TestBuildDesign_Layout(t *testing.T) {
	n := 4
	wm := []float64{1, 2, 3, 4}
	csf := []float64{5, 6, 7, 8}

	design, err := BuildDesign(n, wm, csf, nil, MotionNone)
	require.NoError(t, err)

	r, c := design.Dims()
	assert.Equal(t, n, r)
	assert.Equal(t, 3, c)

	for i := 0; i < n; i++ {
		assert.Equal(t, 1.0, design.At(i, 0), "constant column")
		assert.Equal(t, wm[i], design.At(i, 1))
		assert.Equal(t, csf[i], design.At(i, 2))
	}
}

func TestBuildDesign_WithMotion(t *testing.T) {
	n := 4
	motion := mat.NewDense(n, 6, nil)
	for i := 0; i < n; i++ {
		for j := 0; j < 6; j++ {
			motion.Set(i, j, float64(i*6+j))
		}
	}

	design, err := BuildDesign(n, nil, nil, motion, MotionFriston24)
	require.NoError(t, err)

	_, c := design.Dims()
	assert.Equal(t, 1+24, c)
	assert.Equal(t, motion.At(2, 3), design.At(2, 1+3))
}

func TestBuildDesign_MotionIgnoredForNoneModel(t *testing.T) {
	motion := mat.NewDense(4, 6, nil)
	design, err := BuildDesign(4, nil, nil, motion, MotionNone)
	require.NoError(t, err)

	_, c := design.Dims()
	assert.Equal(t, 1, c)
}

func TestBuildDesign_Errors(t *testing.T) {
	n := 4
	good := []float64{1, 2, 3, 4}

	_, err := BuildDesign(n, []float64{1, 2, 3}, nil, nil, MotionNone)
	assert.ErrorIs(t, err, ErrRowMismatch, "short WM series")

	_, err = BuildDesign(n, nil, []float64{1, 2}, nil, MotionNone)
	assert.ErrorIs(t, err, ErrRowMismatch, "short CSF series")

	_, err = BuildDesign(n, []float64{1, math.NaN(), 3, 4}, nil, nil, MotionNone)
	assert.ErrorIs(t, err, ErrNaN, "NaN in WM series")

	narrow := mat.NewDense(n, 5, nil)
	_, err = BuildDesign(n, good, nil, narrow, MotionRaw6)
	assert.ErrorIs(t, err, ErrMotionShape, "5-column motion")

	short := mat.NewDense(n-1, 6, nil)
	_, err = BuildDesign(n, good, nil, short, MotionRaw6)
	assert.ErrorIs(t, err, ErrRowMismatch, "short motion")
}
