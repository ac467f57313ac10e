package vol

import (
	"fmt"
	"os"
	"strings"

	"github.com/KyungWonPark/nifti"
	"gonum.org/v1/gonum/mat"
)

// Volume is a NIfTI image loaded into memory together with its parsed header.
type Volume struct {
	Path   string
	Header Header
	NX     int
	NY     int
	NZ     int
	NT     int

	img nifti.Nifti1Image
}

// Load reads a .nii or .nii.gz volume. The header is validated before the
// image data is touched.
func Load(path string) (*Volume, error) {
	h, _, err := ReadHeaderFile(path)
	if err != nil {
		return nil, err
	}

	plain, cleanup, err := ensurePlainNii(path)
	if err != nil {
		return nil, err
	}
	defer cleanup()

	v := &Volume{Path: path, Header: h}
	v.NX, v.NY, v.NZ = h.SpatialDims()
	v.NT = h.Timepoints()
	v.img.LoadImage(plain, true)
	return v, nil
}

// At returns the value at voxel (x, y, z) and timepoint t.
func (v *Volume) At(x, y, z, t int) float64 {
	return float64(v.img.GetAt(uint32(x), uint32(y), uint32(z), uint32(t)))
}

// CheckGrid fails when the volume's spatial dimensions differ from the mask's.
func (v *Volume) CheckGrid(m *Mask) error {
	if v.NX != m.NX || v.NY != m.NY || v.NZ != m.NZ {
		return fmt.Errorf("%w: volume %dx%dx%d, mask %dx%dx%d (%s)",
			ErrDimMismatch, v.NX, v.NY, v.NZ, m.NX, m.NY, m.NZ, v.Path)
	}
	return nil
}

// SeriesMatrix extracts the in-mask time series as a timepoints x voxels
// matrix, columns following the mask's voxel order.
func (v *Volume) SeriesMatrix(m *Mask) (*mat.Dense, error) {
	if err := v.CheckGrid(m); err != nil {
		return nil, err
	}

	ts := mat.NewDense(v.NT, len(m.Voxels), nil)
	for j, vx := range m.Voxels {
		for t := 0; t < v.NT; t++ {
			ts.Set(t, j, v.At(vx.X, vx.Y, vx.Z, t))
		}
	}
	return ts, nil
}

// VoxelSeries returns the full time course of a single voxel.
func (v *Volume) VoxelSeries(vx Voxel) []float64 {
	s := make([]float64, v.NT)
	for t := 0; t < v.NT; t++ {
		s[t] = v.At(vx.X, vx.Y, vx.Z, t)
	}
	return s
}

// Write3DMap writes a 3D statistical map, taking header geometry from the
// reference volume. Voxels outside the mask are left at zero.
func Write3DMap(dst, ref string, m *Mask, vals []float64) error {
	if len(vals) != len(m.Voxels) {
		return fmt.Errorf("vol: map has %d values for %d mask voxels", len(vals), len(m.Voxels))
	}

	return writeImg(dst, ref, m.NX, m.NY, m.NZ, 1, func(set setter) {
		for j, vx := range m.Voxels {
			set(vx.X, vx.Y, vx.Z, 0, vals[j])
		}
	})
}

// Write4D writes a timepoints x voxels matrix back into a 4D volume shaped
// like the reference. Voxels outside the mask are left at zero.
func Write4D(dst, ref string, m *Mask, ts *mat.Dense) error {
	nt, nv := ts.Dims()
	if nv != len(m.Voxels) {
		return fmt.Errorf("vol: series has %d columns for %d mask voxels", nv, len(m.Voxels))
	}

	return writeImg(dst, ref, m.NX, m.NY, m.NZ, nt, func(set setter) {
		for j, vx := range m.Voxels {
			for t := 0; t < nt; t++ {
				set(vx.X, vx.Y, vx.Z, t, ts.At(t, j))
			}
		}
	})
}

// WriteMeanVolume writes the temporal mean of a 4D scan as a 3D volume with
// the scan's own header geometry, the usual registration target proxy.
func WriteMeanVolume(dst, src string) error {
	v, err := Load(src)
	if err != nil {
		return err
	}
	return writeImg(dst, src, v.NX, v.NY, v.NZ, 1, func(set setter) {
		for z := 0; z < v.NZ; z++ {
			for y := 0; y < v.NY; y++ {
				for x := 0; x < v.NX; x++ {
					sum := 0.0
					for t := 0; t < v.NT; t++ {
						sum += v.At(x, y, z, t)
					}
					set(x, y, z, 0, sum/float64(v.NT))
				}
			}
		}
	})
}

type setter func(x, y, z, t int, val float64)

// writeImg allocates an image of the requested shape carrying the reference
// volume's header, lets fill populate it, and saves it. The write is verified
// afterwards because the underlying writer does not report errors.
func writeImg(dst, ref string, nx, ny, nz, nt int, fill func(set setter)) error {
	if _, _, err := ReadHeaderFile(ref); err != nil {
		return err
	}
	plain, cleanup, err := ensurePlainNii(ref)
	if err != nil {
		return err
	}
	defer cleanup()

	img := nifti.NewImg(nx, ny, nz, nt)
	var header nifti.Nifti1Header
	header.LoadHeader(plain)
	img.SetNewHeader(header)
	img.SetHeaderDim2(nx, ny, nz, nt)

	fill(func(x, y, z, t int, val float64) {
		img.SetAt(uint32(x), uint32(y), uint32(z), uint32(t), float32(val))
	})

	out := dst
	tmpOut := ""
	if strings.HasSuffix(dst, ".gz") {
		tmp, err := os.CreateTemp("", "ratfmri-*.nii")
		if err != nil {
			return fmt.Errorf("vol: save %s: %w", dst, err)
		}
		tmpOut = tmp.Name()
		tmp.Close()
		defer os.Remove(tmpOut)
		out = tmpOut
	}

	img.Save(out)
	if _, err := os.Stat(out); err != nil {
		return fmt.Errorf("vol: save %s: %w", dst, err)
	}

	if tmpOut == "" {
		return nil
	}
	raw, err := readMaybeGzip(tmpOut)
	if err != nil {
		return fmt.Errorf("vol: save %s: %w", dst, err)
	}
	return writeMaybeGzip(dst, raw)
}

// ensurePlainNii hands back a path the image reader can open directly,
// decompressing to a temporary file when needed. The cleanup function removes
// the temporary file and is safe to call unconditionally.
func ensurePlainNii(path string) (string, func(), error) {
	if !strings.HasSuffix(path, ".gz") {
		return path, func() {}, nil
	}

	raw, err := readMaybeGzip(path)
	if err != nil {
		return "", nil, err
	}
	tmp, err := os.CreateTemp("", "ratfmri-*.nii")
	if err != nil {
		return "", nil, fmt.Errorf("vol: unpack %s: %w", path, err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return "", nil, fmt.Errorf("vol: unpack %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return "", nil, fmt.Errorf("vol: unpack %s: %w", path, err)
	}
	return tmpPath, func() { os.Remove(tmpPath) }, nil
}
