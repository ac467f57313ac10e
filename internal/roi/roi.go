// Package roi resolves region-of-interest definitions into voxel sets or
// seed time courses.
package roi

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/golang/geo/r3"

	"github.com/ZhaoyuDeng/RodentMRI-pipeline/internal/vol"
)

// Kind discriminates the ways a region can be specified.
type Kind int

const (
	// KindMask selects the nonzero voxels of a 3D volume.
	KindMask Kind = iota + 1
	// KindSeries uses an already extracted time course as the seed.
	KindSeries
	// KindSphere selects voxels within a radius of a world coordinate.
	KindSphere
)

var (
	// ErrUnknownFormat is returned for a definition file whose extension
	// is not recognized.
	ErrUnknownFormat = errors.New("roi: unknown definition file format")

	// ErrEmptySeries is returned when a seed series file has no samples.
	ErrEmptySeries = errors.New("roi: seed series file is empty")
)

// Definition is one region specification. The fields beyond Kind and Name
// that are meaningful depend on Kind.
type Definition struct {
	Kind   Kind
	Name   string
	Path   string
	Center r3.Vector
	Radius float64
}

// Region is a resolved definition: a ready seed series, or a voxel mask on
// the data grid.
type Region struct {
	Name   string
	Series []float64
	Mask   *vol.Mask
}

// FromFile builds a definition from a file path, dispatching on extension.
// Volumes (.nii, .nii.gz, .img, .hdr) become masks, text files (.txt, .1d)
// become seed series.
func FromFile(name, path string) (Definition, error) {
	lower := strings.ToLower(path)
	var kind Kind
	switch {
	case strings.HasSuffix(lower, ".nii"), strings.HasSuffix(lower, ".nii.gz"),
		strings.HasSuffix(lower, ".img"), strings.HasSuffix(lower, ".hdr"):
		kind = KindMask
	case strings.HasSuffix(lower, ".txt"), strings.HasSuffix(lower, ".1d"):
		kind = KindSeries
	default:
		return Definition{}, fmt.Errorf("%w: %s", ErrUnknownFormat, path)
	}

	if name == "" {
		name = baseName(path)
	}
	return Definition{Kind: kind, Name: name, Path: path}, nil
}

// Sphere builds a spherical definition from a world-space center in mm and a
// radius in mm.
func Sphere(name string, center r3.Vector, radius float64) (Definition, error) {
	if radius <= 0 {
		return Definition{}, fmt.Errorf("roi: sphere radius must be positive, got %g", radius)
	}
	if name == "" {
		name = fmt.Sprintf("sphere_%g_%g_%g_r%g", center.X, center.Y, center.Z, radius)
	}
	return Definition{Kind: KindSphere, Name: name, Center: center, Radius: radius}, nil
}

// ParseSphere parses the "x,y,z,radius" flag form.
func ParseSphere(name, s string) (Definition, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return Definition{}, fmt.Errorf("roi: sphere spec %q wants x,y,z,radius", s)
	}
	var nums [4]float64
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return Definition{}, fmt.Errorf("roi: sphere spec %q: %w", s, err)
		}
		nums[i] = v
	}
	return Sphere(name, r3.Vector{X: nums[0], Y: nums[1], Z: nums[2]}, nums[3])
}

// Resolve turns a definition into a region on the grid described by hdr.
// Resolution happens once per subject; downstream code only sees voxel sets
// and series.
func Resolve(def Definition, hdr vol.Header) (*Region, error) {
	switch def.Kind {
	case KindMask:
		m, err := vol.LoadLabelMask(def.Path)
		if err != nil {
			return nil, err
		}
		nx, ny, nz := hdr.SpatialDims()
		if m.NX != nx || m.NY != ny || m.NZ != nz {
			return nil, fmt.Errorf("%w: roi %s is %dx%dx%d, data is %dx%dx%d",
				vol.ErrDimMismatch, def.Name, m.NX, m.NY, m.NZ, nx, ny, nz)
		}
		return &Region{Name: def.Name, Mask: m}, nil

	case KindSeries:
		series, err := readSeriesFile(def.Path)
		if err != nil {
			return nil, err
		}
		return &Region{Name: def.Name, Series: series}, nil

	case KindSphere:
		m, err := sphereMask(def, hdr)
		if err != nil {
			return nil, err
		}
		return &Region{Name: def.Name, Mask: m}, nil
	}
	return nil, fmt.Errorf("roi: definition %q has no kind", def.Name)
}

// sphereMask collects the voxels whose world coordinates fall within the
// sphere, using the header affine.
func sphereMask(def Definition, hdr vol.Header) (*vol.Mask, error) {
	nx, ny, nz := hdr.SpatialDims()
	affine := hdr.Affine()

	var voxels []vol.Voxel
	for z := 0; z < nz; z++ {
		for y := 0; y < ny; y++ {
			for x := 0; x < nx; x++ {
				world := applyAffine(affine, float64(x), float64(y), float64(z))
				if world.Sub(def.Center).Norm() <= def.Radius {
					voxels = append(voxels, vol.Voxel{X: x, Y: y, Z: z})
				}
			}
		}
	}

	m, err := vol.NewMaskFromVoxels(nx, ny, nz, voxels)
	if err != nil {
		return nil, fmt.Errorf("roi: sphere %s covers no voxels: %w", def.Name, err)
	}
	return m, nil
}

func applyAffine(a [3][4]float64, x, y, z float64) r3.Vector {
	return r3.Vector{
		X: a[0][0]*x + a[0][1]*y + a[0][2]*z + a[0][3],
		Y: a[1][0]*x + a[1][1]*y + a[1][2]*z + a[1][3],
		Z: a[2][0]*x + a[2][1]*y + a[2][2]*z + a[2][3],
	}
}

// readSeriesFile reads one float per line, skipping blank lines.
func readSeriesFile(path string) ([]float64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("roi: open series: %w", err)
	}
	defer f.Close()

	var series []float64
	sc := bufio.NewScanner(f)
	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" {
			continue
		}
		v, err := strconv.ParseFloat(strings.Fields(text)[0], 64)
		if err != nil {
			return nil, fmt.Errorf("roi: %s line %d: %w", path, line, err)
		}
		series = append(series, v)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("roi: read series: %w", err)
	}
	if len(series) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrEmptySeries, path)
	}
	return series, nil
}

func baseName(path string) string {
	base := filepath.Base(path)
	base = strings.TrimSuffix(base, ".gz")
	return strings.TrimSuffix(base, filepath.Ext(base))
}
