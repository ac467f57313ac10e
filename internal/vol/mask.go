package vol

import (
	"errors"
	"fmt"
	"math"
	"sort"
)

// Voxel is a coordinate on the spatial grid.
type Voxel struct {
	X int
	Y int
	Z int
}

// Mask is a set of labeled voxels on a fixed spatial grid. Voxels follow
// storage order, x varying fastest, and Values carries the label of each
// voxel in parallel.
type Mask struct {
	Path   string
	NX     int
	NY     int
	NZ     int
	Voxels []Voxel
	Values []float64
	Labels []float64
}

var (
	// ErrMaskNot3D is returned when a mask file has a time axis.
	ErrMaskNot3D = errors.New("vol: mask must be a 3D volume")

	// ErrEmptyMask is returned when no voxel survives the mask criterion.
	ErrEmptyMask = errors.New("vol: mask selects no voxels")
)

// LoadLabelMask reads a 3D volume and keeps every voxel with a finite
// non-zero value, recording the distinct labels in ascending order. NaN and
// infinite voxels are treated as background.
func LoadLabelMask(path string) (*Mask, error) {
	return loadMask(path, func(val float64) (float64, bool) {
		if val == 0 || math.IsNaN(val) || math.IsInf(val, 0) {
			return 0, false
		}
		return val, true
	})
}

// LoadBinaryMask reads a 3D volume and keeps every voxel at or above the
// threshold, collapsing all labels to 1. Probabilistic masks produced by
// warping are binarized this way.
func LoadBinaryMask(path string, threshold float64) (*Mask, error) {
	return loadMask(path, func(val float64) (float64, bool) {
		if math.IsNaN(val) || math.IsInf(val, 0) || val < threshold {
			return 0, false
		}
		return 1, true
	})
}

func loadMask(path string, keep func(float64) (float64, bool)) (*Mask, error) {
	v, err := Load(path)
	if err != nil {
		return nil, err
	}
	if v.NT > 1 {
		return nil, fmt.Errorf("%w: %s has %d timepoints", ErrMaskNot3D, path, v.NT)
	}

	m := &Mask{Path: path, NX: v.NX, NY: v.NY, NZ: v.NZ}
	seen := make(map[float64]bool)
	for z := 0; z < v.NZ; z++ {
		for y := 0; y < v.NY; y++ {
			for x := 0; x < v.NX; x++ {
				label, ok := keep(v.At(x, y, z, 0))
				if !ok {
					continue
				}
				m.Voxels = append(m.Voxels, Voxel{X: x, Y: y, Z: z})
				m.Values = append(m.Values, label)
				seen[label] = true
			}
		}
	}
	if len(m.Voxels) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrEmptyMask, path)
	}

	for label := range seen {
		m.Labels = append(m.Labels, label)
	}
	sort.Float64s(m.Labels)
	return m, nil
}

// NewMaskFromVoxels builds an in-memory binary mask from an explicit voxel
// set, deduplicating and dropping coordinates outside the grid.
func NewMaskFromVoxels(nx, ny, nz int, voxels []Voxel) (*Mask, error) {
	m := &Mask{NX: nx, NY: ny, NZ: nz, Labels: []float64{1}}
	seen := make(map[Voxel]bool)
	for _, vx := range voxels {
		if vx.X < 0 || vx.X >= nx || vx.Y < 0 || vx.Y >= ny || vx.Z < 0 || vx.Z >= nz {
			continue
		}
		if seen[vx] {
			continue
		}
		seen[vx] = true
		m.Voxels = append(m.Voxels, vx)
		m.Values = append(m.Values, 1)
	}
	if len(m.Voxels) == 0 {
		return nil, ErrEmptyMask
	}

	sort.Slice(m.Voxels, func(i, j int) bool {
		a, b := m.Voxels[i], m.Voxels[j]
		if a.Z != b.Z {
			return a.Z < b.Z
		}
		if a.Y != b.Y {
			return a.Y < b.Y
		}
		return a.X < b.X
	})
	return m, nil
}

// LabelIndices returns the positions within Voxels carrying the given label.
func (m *Mask) LabelIndices(label float64) []int {
	var idx []int
	for i, val := range m.Values {
		if val == label {
			idx = append(idx, i)
		}
	}
	return idx
}

// LabelVoxels returns the voxels carrying the given label.
func (m *Mask) LabelVoxels(label float64) []Voxel {
	var vs []Voxel
	for i, val := range m.Values {
		if val == label {
			vs = append(vs, m.Voxels[i])
		}
	}
	return vs
}
