package pipeline

import (
	"bytes"
	"encoding/binary"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"gonum.org/v1/gonum/mat"

	"github.com/ZhaoyuDeng/RodentMRI-pipeline/internal/config"
	pio "github.com/ZhaoyuDeng/RodentMRI-pipeline/internal/io"
	"github.com/ZhaoyuDeng/RodentMRI-pipeline/internal/vol"
)

// writeVolume writes a little-endian float32 NIfTI-1 file filled from val.
func writeVolume(t *testing.T, path string, nx, ny, nz int, val func(x, y, z int) float64) {
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
	h.PixDim = [8]float32{1, 1, 1, 1, 2, 0, 0, 0}

	var buf bytes.Buffer
	if err := binary.Write(&buf, binary.LittleEndian, h); err != nil {
		t.Fatalf("encode header: %v", err)
	}
	buf.Write([]byte{0, 0, 0, 0})
	for z := 0; z < nz; z++ {
		for y := 0; y < ny; y++ {
			for x := 0; x < nx; x++ {
				if err := binary.Write(&buf, binary.LittleEndian, float32(val(x, y, z))); err != nil {
					t.Fatalf("encode data: %v", err)
				}
			}
		}
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

// groupSubject creates a subject directory with a deriv/ under the root.
func groupSubject(t *testing.T, root, id string) Subject {
	t.Helper()
	dir := filepath.Join(root, id)
	if err := os.MkdirAll(filepath.Join(dir, "deriv"), 0o755); err != nil {
		t.Fatal(err)
	}
	return Subject{ID: id, Dir: dir, Func: filepath.Join(dir, "rest", "rest.nii")}
}

func TestGroupMatrices(t *testing.T) {
	root := t.TempDir()
	cfg := config.Default()
	cfg.Data.Root = root
	cfg.ALFF.Enabled = false
	cfg.ReHo.Enabled = false

	names := []string{"roi_1", "roi_2"}
	rMats := []*mat.Dense{
		mat.NewDense(2, 2, []float64{1, 0.2, 0.2, 1}),
		mat.NewDense(2, 2, []float64{1, 0.6, 0.6, 1}),
	}
	zMats := []*mat.Dense{
		mat.NewDense(2, 2, []float64{0, 0.3, 0.3, 0}),
		mat.NewDense(2, 2, []float64{0, 0.5, 0.5, 0}),
	}

	var subjects []Subject
	for i, id := range []string{"sub-01", "sub-02"} {
		s := groupSubject(t, root, id)
		a := Layout(s, cfg)
		if err := pio.WriteNpy(a.FCMatRNpy, rMats[i]); err != nil {
			t.Fatal(err)
		}
		if err := pio.WriteNpy(a.FCMatZNpy, zMats[i]); err != nil {
			t.Fatal(err)
		}
		if err := pio.WriteSeriesTSV(a.Series, names, mat.NewDense(3, 2, []float64{
			1, 2, 3, 4, 5, 6,
		})); err != nil {
			t.Fatal(err)
		}
		subjects = append(subjects, s)
	}
	// A subject without outputs is skipped, not fatal.
	subjects = append(subjects, groupSubject(t, root, "sub-03"))

	e := NewEnv(cfg, quietLogger(), false, false)
	if err := Group(e, subjects); err != nil {
		t.Fatalf("Group failed: %v", err)
	}

	rMean, err := pio.ReadNpy(filepath.Join(root, "results", "group_fcmat_r.npy"))
	if err != nil {
		t.Fatalf("read group r matrix: %v", err)
	}
	wantR := mat.NewDense(2, 2, []float64{1, 0.4, 0.4, 1})
	if !mat.EqualApprox(rMean, wantR, 1e-12) {
		t.Errorf("group r mean:\n%v\nwant:\n%v", mat.Formatted(rMean), mat.Formatted(wantR))
	}

	zMean, err := pio.ReadNpy(filepath.Join(root, "results", "group_fcmat_z.npy"))
	if err != nil {
		t.Fatalf("read group z matrix: %v", err)
	}
	wantZ := mat.NewDense(2, 2, []float64{0, 0.4, 0.4, 0})
	if !mat.EqualApprox(zMean, wantZ, 1e-12) {
		t.Errorf("group z mean:\n%v\nwant:\n%v", mat.Formatted(zMean), mat.Formatted(wantZ))
	}

	data, err := os.ReadFile(filepath.Join(root, "results", "group_fcmat_r.tsv"))
	if err != nil {
		t.Fatalf("read group r tsv: %v", err)
	}
	if !strings.HasPrefix(string(data), "roi\troi_1\troi_2\n") {
		t.Errorf("group tsv header = %q", strings.SplitN(string(data), "\n", 2)[0])
	}
}

func TestGroupNoInputs(t *testing.T) {
	root := t.TempDir()
	cfg := config.Default()
	cfg.Data.Root = root
	cfg.ALFF.Enabled = false
	cfg.ReHo.Enabled = false

	subjects := []Subject{groupSubject(t, root, "sub-01")}
	e := NewEnv(cfg, quietLogger(), false, false)

	if err := Group(e, subjects); !errors.Is(err, ErrNoGroupInputs) {
		t.Fatalf("got %v, want ErrNoGroupInputs", err)
	}
}

func TestGroupMaps(t *testing.T) {
	root := t.TempDir()
	maskPath := filepath.Join(root, "mask.nii")
	writeVolume(t, maskPath, 2, 2, 1, func(x, y, z int) float64 {
		if x == 1 && y == 1 {
			return 0
		}
		return 1
	})

	cfg := config.Default()
	cfg.Data.Root = root
	cfg.Space.BrainMask = maskPath
	cfg.FC.Matrix = false
	cfg.ALFF.Enabled = false

	m, err := vol.LoadBinaryMask(maskPath, cfg.Space.MaskThreshold)
	if err != nil {
		t.Fatalf("load mask: %v", err)
	}
	if len(m.Voxels) != 3 {
		t.Fatalf("mask has %d voxels, want 3", len(m.Voxels))
	}

	vals := [][]float64{{1, 2, 3}, {3, 4, 5}}
	var subjects []Subject
	for i, id := range []string{"sub-01", "sub-02"} {
		s := groupSubject(t, root, id)
		path := filepath.Join(Layout(s, cfg).Deriv, "zreho.nii")
		if err := vol.Write3DMap(path, maskPath, m, vals[i]); err != nil {
			t.Fatal(err)
		}
		subjects = append(subjects, s)
	}

	e := NewEnv(cfg, quietLogger(), false, false)
	if err := Group(e, subjects); err != nil {
		t.Fatalf("Group failed: %v", err)
	}

	v, err := vol.Load(filepath.Join(root, "results", "group_zreho.nii"))
	if err != nil {
		t.Fatalf("load group map: %v", err)
	}
	sm, err := v.SeriesMatrix(m)
	if err != nil {
		t.Fatal(err)
	}
	got := mat.Row(nil, 0, sm)
	want := []float64{2, 3, 4}
	for j := range want {
		if diff := got[j] - want[j]; diff > 1e-6 || diff < -1e-6 {
			t.Errorf("group map voxel %d = %g, want %g", j, got[j], want[j])
		}
	}
}
