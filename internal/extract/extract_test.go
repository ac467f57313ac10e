package extract

import (
	"bytes"
	"encoding/binary"
	"errors"
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"gonum.org/v1/gonum/mat"

	"github.com/ZhaoyuDeng/RodentMRI-pipeline/internal/calc"
	"github.com/ZhaoyuDeng/RodentMRI-pipeline/internal/roi"
	"github.com/ZhaoyuDeng/RodentMRI-pipeline/internal/vol"
)

// writeVolume writes a little-endian float32 NIfTI-1 file filled from val.
func writeVolume(t *testing.T, path string, nx, ny, nz, nt int, val func(x, y, z, tp int) float64) {
	t.Helper()

	h := vol.Header{
		SizeOfHdr: 348,
		DataType:  16,
		BitPix:    32,
		VoxOffset: 352,
		SclSlope:  1,
		XYZTUnits: 2 | 8,
		Magic:     [4]byte{'n', '+', '1', 0},
	}
	h.Dim = [8]int16{3, int16(nx), int16(ny), int16(nz), 1, 1, 1, 1}
	if nt > 1 {
		h.Dim[0] = 4
		h.Dim[4] = int16(nt)
	}
	h.PixDim = [8]float32{1, 1, 1, 1, 2, 0, 0, 0}

	var buf bytes.Buffer
	if err := binary.Write(&buf, binary.LittleEndian, h); err != nil {
		t.Fatalf("encode header: %v", err)
	}
	buf.Write([]byte{0, 0, 0, 0})
	for tp := 0; tp < nt; tp++ {
		for z := 0; z < nz; z++ {
			for y := 0; y < ny; y++ {
				for x := 0; x < nx; x++ {
					if err := binary.Write(&buf, binary.LittleEndian, float32(val(x, y, z, tp))); err != nil {
						t.Fatalf("encode data: %v", err)
					}
				}
			}
		}
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func TestParseSummary(t *testing.T) {
	for _, tt := range []struct {
		in   string
		want Summary
	}{
		{"", SummaryMean},
		{"mean", SummaryMean},
		{"Mean", SummaryMean},
		{"sum", SummarySum},
		{"pca", SummaryPCA},
	} {
		got, err := ParseSummary(tt.in)
		if err != nil {
			t.Errorf("ParseSummary(%q) failed: %v", tt.in, err)
		}
		if got != tt.want {
			t.Errorf("ParseSummary(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}

	if _, err := ParseSummary("median"); !errors.Is(err, ErrUnknownSummary) {
		t.Errorf("error = %v, want ErrUnknownSummary", err)
	}
}

func TestSummaryString(t *testing.T) {
	if SummaryPCA.String() != "pca" || SummaryMean.String() != "mean" || SummarySum.String() != "sum" {
		t.Error("summary names do not round trip")
	}
}

func TestFromAtlas_MeanAndSum(t *testing.T) {
	path := filepath.Join(t.TempDir(), "func.nii")
	writeVolume(t, path, 3, 1, 1, 4, func(x, y, z, tp int) float64 {
		return float64(10*x + tp)
	})

	v, err := vol.Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	atlas := &vol.Mask{
		NX: 3, NY: 1, NZ: 1,
		Voxels: []vol.Voxel{{X: 0}, {X: 1}, {X: 2}},
		Values: []float64{1, 1, 2},
		Labels: []float64{1, 2},
	}

	tab, err := FromAtlas(calc.NewPool(2), v, atlas, SummaryMean)
	if err != nil {
		t.Fatalf("FromAtlas failed: %v", err)
	}

	if len(tab.Names) != 2 || tab.Names[0] != "roi_1" || tab.Names[1] != "roi_2" {
		t.Errorf("names = %v, want [roi_1 roi_2]", tab.Names)
	}
	if tab.NVoxels[0] != 2 || tab.NVoxels[1] != 1 {
		t.Errorf("voxel counts = %v, want [2 1]", tab.NVoxels)
	}
	if tab.Labels[0] != 1 || tab.Labels[1] != 2 {
		t.Errorf("labels = %v, want [1 2]", tab.Labels)
	}

	for tp := 0; tp < 4; tp++ {
		// Label 1 covers x = 0 and x = 1, so the mean is 5 + tp.
		if got := tab.Data.At(tp, 0); math.Abs(got-float64(5+tp)) > 1e-9 {
			t.Errorf("mean roi_1 at %d = %v, want %d", tp, got, 5+tp)
		}
		if got := tab.Data.At(tp, 1); math.Abs(got-float64(20+tp)) > 1e-9 {
			t.Errorf("mean roi_2 at %d = %v, want %d", tp, got, 20+tp)
		}
	}

	sums, err := FromAtlas(calc.NewPool(2), v, atlas, SummarySum)
	if err != nil {
		t.Fatalf("FromAtlas failed: %v", err)
	}
	for tp := 0; tp < 4; tp++ {
		if got := sums.Data.At(tp, 0); math.Abs(got-float64(10+2*tp)) > 1e-9 {
			t.Errorf("sum roi_1 at %d = %v, want %d", tp, got, 10+2*tp)
		}
	}
}

func TestFromAtlas_PCARecoversRankOneStructure(t *testing.T) {
	// Four voxels carrying exact float32 multiples of one zero-mean series.
	base := []float64{1, -1, 2, -2, 0.5, -0.5}
	coeff := []float64{1, 2, 0.5, 1.5}

	path := filepath.Join(t.TempDir(), "func.nii")
	writeVolume(t, path, 4, 1, 1, len(base), func(x, y, z, tp int) float64 {
		return coeff[x] * base[tp]
	})

	v, err := vol.Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	atlas := &vol.Mask{
		NX: 4, NY: 1, NZ: 1,
		Voxels: []vol.Voxel{{X: 0}, {X: 1}, {X: 2}, {X: 3}},
		Values: []float64{1, 1, 1, 1},
		Labels: []float64{1},
	}

	tab, err := FromAtlas(calc.NewPool(1), v, atlas, SummaryPCA)
	if err != nil {
		t.Fatalf("FromAtlas failed: %v", err)
	}

	// The leading component of a rank-one region is base scaled by the voxel
	// coefficient norm, sign-aligned with the (positive) region mean.
	norm := 0.0
	for _, c := range coeff {
		norm += c * c
	}
	norm = math.Sqrt(norm)

	for tp := range base {
		want := base[tp] * norm
		if got := tab.Data.At(tp, 0); math.Abs(got-want) > 1e-9 {
			t.Errorf("pc[%d] = %v, want %v", tp, got, want)
		}
	}
}

func TestFromAtlas_PCANeedsTimeAxis(t *testing.T) {
	path := filepath.Join(t.TempDir(), "anat.nii")
	writeVolume(t, path, 2, 2, 1, 1, func(x, y, z, tp int) float64 { return 1 })

	v, err := vol.Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	atlas := &vol.Mask{
		NX: 2, NY: 2, NZ: 1,
		Voxels: []vol.Voxel{{X: 0}, {X: 1}},
		Values: []float64{1, 1},
		Labels: []float64{1},
	}

	if _, err := FromAtlas(calc.NewPool(1), v, atlas, SummaryPCA); !errors.Is(err, ErrPCANeedsTime) {
		t.Fatalf("error = %v, want ErrPCANeedsTime", err)
	}
}

func TestFromAtlas_GridMismatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "func.nii")
	writeVolume(t, path, 3, 1, 1, 2, func(x, y, z, tp int) float64 { return 1 })

	v, err := vol.Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	atlas := &vol.Mask{
		NX: 4, NY: 1, NZ: 1,
		Voxels: []vol.Voxel{{X: 0}},
		Values: []float64{1},
		Labels: []float64{1},
	}

	if _, err := FromAtlas(calc.NewPool(1), v, atlas, SummaryMean); !errors.Is(err, vol.ErrDimMismatch) {
		t.Fatalf("error = %v, want ErrDimMismatch", err)
	}
}

func TestRegionSeries_SeriesPassthrough(t *testing.T) {
	r := &roi.Region{Name: "seed", Series: []float64{1, 2, 3}}

	got, err := RegionSeries(nil, r, SummaryMean)
	if err != nil {
		t.Fatalf("RegionSeries failed: %v", err)
	}

	got[0] = 99
	if r.Series[0] != 1 {
		t.Error("returned series aliases the region's own slice")
	}
}

func TestRegionSeries_MaskMean(t *testing.T) {
	path := filepath.Join(t.TempDir(), "func.nii")
	writeVolume(t, path, 2, 1, 1, 3, func(x, y, z, tp int) float64 {
		return float64(x*4 + tp)
	})

	v, err := vol.Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	m, err := vol.NewMaskFromVoxels(2, 1, 1, []vol.Voxel{{X: 0}, {X: 1}})
	if err != nil {
		t.Fatalf("mask: %v", err)
	}

	series, err := RegionSeries(v, &roi.Region{Name: "roi", Mask: m}, SummaryMean)
	if err != nil {
		t.Fatalf("RegionSeries failed: %v", err)
	}

	for tp := 0; tp < 3; tp++ {
		want := float64(2 + tp)
		if math.Abs(series[tp]-want) > 1e-9 {
			t.Errorf("series[%d] = %v, want %v", tp, series[tp], want)
		}
	}
}

func TestRegionSeries_SeedToSelfCorrelation(t *testing.T) {
	rng := rand.New(rand.NewSource(61))
	path := filepath.Join(t.TempDir(), "func.nii")
	writeVolume(t, path, 4, 4, 4, 50, func(x, y, z, tp int) float64 {
		return rng.NormFloat64()
	})

	v, err := vol.Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	// 2x2x2 block of 8 voxels.
	var voxels []vol.Voxel
	for z := 1; z <= 2; z++ {
		for y := 1; y <= 2; y++ {
			for x := 1; x <= 2; x++ {
				voxels = append(voxels, vol.Voxel{X: x, Y: y, Z: z})
			}
		}
	}
	m, err := vol.NewMaskFromVoxels(4, 4, 4, voxels)
	if err != nil {
		t.Fatalf("mask: %v", err)
	}

	seed, err := RegionSeries(v, &roi.Region{Name: "seed", Mask: m}, SummaryMean)
	if err != nil {
		t.Fatalf("RegionSeries failed: %v", err)
	}

	// Correlating the seed against its own mean series must give 1.
	ts, err := v.SeriesMatrix(m)
	if err != nil {
		t.Fatalf("SeriesMatrix failed: %v", err)
	}
	nt, nv := ts.Dims()
	self := make([]float64, nt)
	for tp := 0; tp < nt; tp++ {
		sum := 0.0
		for j := 0; j < nv; j++ {
			sum += ts.At(tp, j)
		}
		self[tp] = sum / float64(nv)
	}

	corr, err := calc.NewPool(2).SeedCorr(seed, mat.NewDense(nt, 1, self))
	if err != nil {
		t.Fatalf("SeedCorr failed: %v", err)
	}
	if math.Abs(corr[0]-1) > 1e-10 {
		t.Errorf("seed-to-self correlation = %v, want 1 within 1e-10", corr[0])
	}

	// The z value saturates at or a few ulp below r = 1; NaN means the
	// clamp failed.
	z := calc.FisherZSlice(corr)
	if math.IsNaN(z[0]) || z[0] < 15 {
		t.Errorf("seed-to-self z = %v, want saturated or +Inf", z[0])
	}
}
