package metrics

import (
	"fmt"
	"sort"

	"gonum.org/v1/gonum/mat"

	"github.com/ZhaoyuDeng/RodentMRI-pipeline/internal/calc"
	"github.com/ZhaoyuDeng/RodentMRI-pipeline/internal/vol"
)

// ErrBadNeighborhood is returned for a cluster size other than 7, 19 or 27.
var ErrBadNeighborhood = fmt.Errorf("metrics: neighborhood must be 7, 19 or 27")

// ReHo computes regional homogeneity for every mask voxel: Kendall's
// coefficient of concordance between the voxel's ranked series and those of
// its in-mask neighbors. nbhd selects the cluster shape, 7 (faces), 19
// (faces and edges) or 27 (full cube). Ties receive average ranks; no tie
// correction is applied to W. A voxel with no in-mask neighbor gets 0.
func ReHo(pool *calc.Pool, ts *mat.Dense, m *vol.Mask, nbhd int) ([]float64, error) {
	offsets, err := neighborOffsets(nbhd)
	if err != nil {
		return nil, err
	}

	n, cols := ts.Dims()
	if n < 2 {
		return nil, fmt.Errorf("%w: %d", ErrTooShort, n)
	}
	if cols != len(m.Voxels) {
		return nil, fmt.Errorf("metrics: series has %d columns for %d mask voxels", cols, len(m.Voxels))
	}

	ranks := rankColumns(pool, ts)

	index := make(map[vol.Voxel]int, len(m.Voxels))
	for i, vx := range m.Voxels {
		index[vx] = i
	}

	w := make([]float64, cols)
	pool.Each(cols, func(i int) {
		vx := m.Voxels[i]
		members := make([]int, 0, nbhd)
		for _, off := range offsets {
			nb := vol.Voxel{X: vx.X + off[0], Y: vx.Y + off[1], Z: vx.Z + off[2]}
			if j, ok := index[nb]; ok {
				members = append(members, j)
			}
		}
		if len(members) < 2 {
			return
		}
		w[i] = kendallW(ranks, members, n)
	})
	return w, nil
}

// kendallW evaluates W = 12*S / (m^2 * (n^3 - n)) over the rank columns in
// members.
func kendallW(ranks *mat.Dense, members []int, n int) float64 {
	m := float64(len(members))
	mean := m * (float64(n) + 1) / 2

	s := 0.0
	for t := 0; t < n; t++ {
		sum := 0.0
		for _, j := range members {
			sum += ranks.At(t, j)
		}
		d := sum - mean
		s += d * d
	}
	nf := float64(n)
	return 12 * s / (m * m * (nf*nf*nf - nf))
}

// rankColumns replaces each column with its temporal ranks, 1-based, ties
// averaged.
func rankColumns(pool *calc.Pool, ts *mat.Dense) *mat.Dense {
	n, cols := ts.Dims()
	ranks := mat.NewDense(n, cols, nil)

	pool.Each(cols, func(j int) {
		idx := make([]int, n)
		for t := range idx {
			idx[t] = t
		}
		sort.Slice(idx, func(a, b int) bool {
			return ts.At(idx[a], j) < ts.At(idx[b], j)
		})

		for lo := 0; lo < n; {
			hi := lo + 1
			for hi < n && ts.At(idx[hi], j) == ts.At(idx[lo], j) {
				hi++
			}
			avg := float64(lo+hi+1) / 2
			for k := lo; k < hi; k++ {
				ranks.Set(idx[k], j, avg)
			}
			lo = hi
		}
	})
	return ranks
}

func neighborOffsets(nbhd int) ([][3]int, error) {
	var maxL1 int
	switch nbhd {
	case 7:
		maxL1 = 1
	case 19:
		maxL1 = 2
	case 27:
		maxL1 = 3
	default:
		return nil, fmt.Errorf("%w: got %d", ErrBadNeighborhood, nbhd)
	}

	var offs [][3]int
	for dz := -1; dz <= 1; dz++ {
		for dy := -1; dy <= 1; dy++ {
			for dx := -1; dx <= 1; dx++ {
				if abs(dx)+abs(dy)+abs(dz) <= maxL1 {
					offs = append(offs, [3]int{dx, dy, dz})
				}
			}
		}
	}
	return offs, nil
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
