package denoise

import (
	"errors"
	"math"
	"math/rand"
	"testing"

	"gonum.org/v1/gonum/mat"
)

// demeanedDesign builds a constant column plus k random zero-mean covariates.
func demeanedDesign(rng *rand.Rand, n, k int) *mat.Dense {
	design := mat.NewDense(n, 1+k, nil)
	for i := 0; i < n; i++ {
		design.Set(i, 0, 1)
	}
	for j := 1; j <= k; j++ {
		col := make([]float64, n)
		sum := 0.0
		for i := range col {
			col[i] = rng.NormFloat64()
			sum += col[i]
		}
		mean := sum / float64(n)
		for i := range col {
			col[i] -= mean
		}
		design.SetCol(j, col)
	}
	return design
}

func colMean(m *mat.Dense, j int) float64 {
	r, _ := m.Dims()
	sum := 0.0
	for i := 0; i < r; i++ {
		sum += m.At(i, j)
	}
	return sum / float64(r)
}

func TestRegress_RemovesExactFit(t *testing.T) {
	rng := rand.New(rand.NewSource(21))
	n := 60

	design := demeanedDesign(rng, n, 3)
	beta := mat.NewDense(4, 2, []float64{
		2, -1,
		0.5, 3,
		-1.5, 0.25,
		4, -2,
	})

	var signal mat.Dense
	signal.Mul(design, beta)

	if err := Regress(&signal, design, false); err != nil {
		t.Fatalf("Regress failed: %v", err)
	}

	r, c := signal.Dims()
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			if math.Abs(signal.At(i, j)) > 1e-9 {
				t.Fatalf("residual(%d,%d) = %v, want 0 for an exact fit", i, j, signal.At(i, j))
			}
		}
	}
}

func TestRegress_ResidualOrthogonalToCovariates(t *testing.T) {
	rng := rand.New(rand.NewSource(22))
	n := 80

	design := demeanedDesign(rng, n, 3)
	signal := mat.NewDense(n, 2, nil)
	for i := 0; i < n; i++ {
		for j := 0; j < 2; j++ {
			signal.Set(i, j, 10+rng.NormFloat64())
		}
	}

	if err := Regress(signal, design, true); err != nil {
		t.Fatalf("Regress failed: %v", err)
	}

	_, dc := design.Dims()
	_, sc := signal.Dims()
	for j := 1; j < dc; j++ {
		for k := 0; k < sc; k++ {
			dot := 0.0
			for i := 0; i < n; i++ {
				dot += design.At(i, j) * signal.At(i, k)
			}
			if math.Abs(dot) > 1e-8 {
				t.Errorf("covariate %d x signal %d inner product = %v, want ~0", j, k, dot)
			}
		}
	}
}

func TestRegress_AddMeanBackPreservesColumnMeans(t *testing.T) {
	rng := rand.New(rand.NewSource(23))
	n := 80

	design := demeanedDesign(rng, n, 4)
	signal := mat.NewDense(n, 3, nil)
	for i := 0; i < n; i++ {
		for j := 0; j < 3; j++ {
			signal.Set(i, j, 100*float64(j+1)+rng.NormFloat64())
		}
	}

	wantMeans := []float64{colMean(signal, 0), colMean(signal, 1), colMean(signal, 2)}

	if err := Regress(signal, design, true); err != nil {
		t.Fatalf("Regress failed: %v", err)
	}

	for j, want := range wantMeans {
		got := colMean(signal, j)
		if math.Abs(got-want) > 1e-9 {
			t.Errorf("column %d mean = %v, want %v preserved", j, got, want)
		}
	}
}

func TestRegress_WithoutAddMeanBackZeroesMeans(t *testing.T) {
	rng := rand.New(rand.NewSource(24))
	n := 60

	design := demeanedDesign(rng, n, 2)
	signal := mat.NewDense(n, 1, nil)
	for i := 0; i < n; i++ {
		signal.Set(i, 0, 50+rng.NormFloat64())
	}

	if err := Regress(signal, design, false); err != nil {
		t.Fatalf("Regress failed: %v", err)
	}

	if got := colMean(signal, 0); math.Abs(got) > 1e-9 {
		t.Errorf("residual mean = %v, want 0 when the constant is regressed out", got)
	}
}

func TestRegress_RankDeficientDesign(t *testing.T) {
	rng := rand.New(rand.NewSource(25))
	n := 50

	design := demeanedDesign(rng, n, 2)
	// Duplicate the last covariate; the pseudo-inverse must still solve.
	dup := mat.NewDense(n, 4, nil)
	for i := 0; i < n; i++ {
		dup.Set(i, 0, design.At(i, 0))
		dup.Set(i, 1, design.At(i, 1))
		dup.Set(i, 2, design.At(i, 2))
		dup.Set(i, 3, design.At(i, 2))
	}

	signal := mat.NewDense(n, 1, nil)
	for i := 0; i < n; i++ {
		signal.Set(i, 0, rng.NormFloat64())
	}

	if err := Regress(signal, dup, false); err != nil {
		t.Fatalf("Regress failed on a rank-deficient design: %v", err)
	}

	for j := 1; j < 4; j++ {
		dot := 0.0
		for i := 0; i < n; i++ {
			dot += dup.At(i, j) * signal.At(i, 0)
		}
		if math.Abs(dot) > 1e-8 {
			t.Errorf("covariate %d inner product = %v, want ~0", j, dot)
		}
	}
}

func TestRegress_RowMismatch(t *testing.T) {
	signal := mat.NewDense(10, 1, nil)
	design := mat.NewDense(9, 2, nil)

	if err := Regress(signal, design, false); !errors.Is(err, ErrRowMismatch) {
		t.Fatalf("error = %v, want ErrRowMismatch", err)
	}
}
