package calc

import (
	"errors"
	"math"
	"testing"

	"gonum.org/v1/gonum/stat"
)

func TestZScoreMap(t *testing.T) {
	vals := []float64{4, 8, 6, 2, 10}
	ZScoreMap(vals)

	mean, std := stat.MeanStdDev(vals, nil)
	if math.Abs(mean) > 1e-12 {
		t.Errorf("mean after z-scoring = %v, want 0", mean)
	}
	if math.Abs(std-1) > 1e-12 {
		t.Errorf("deviation after z-scoring = %v, want 1", std)
	}
}

func TestZScoreMap_ConstantBecomesZero(t *testing.T) {
	vals := []float64{3, 3, 3}
	ZScoreMap(vals)

	for i, v := range vals {
		if v != 0 {
			t.Errorf("vals[%d] = %v, want 0", i, v)
		}
	}
}

func TestZScoreMap_Empty(t *testing.T) {
	ZScoreMap(nil) // must not panic
}

func TestDivideByMean(t *testing.T) {
	vals := []float64{1, 2, 3}
	if err := DivideByMean(vals); err != nil {
		t.Fatalf("DivideByMean failed: %v", err)
	}

	want := []float64{0.5, 1, 1.5}
	for i := range vals {
		if math.Abs(vals[i]-want[i]) > 1e-15 {
			t.Errorf("vals[%d] = %v, want %v", i, vals[i], want[i])
		}
	}

	mean := stat.Mean(vals, nil)
	if math.Abs(mean-1) > 1e-15 {
		t.Errorf("mean after scaling = %v, want 1", mean)
	}
}

func TestDivideByMean_ZeroMean(t *testing.T) {
	vals := []float64{-1, 1}
	if err := DivideByMean(vals); !errors.Is(err, ErrZeroMean) {
		t.Fatalf("error = %v, want ErrZeroMean", err)
	}
}
