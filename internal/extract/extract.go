// Package extract reduces 4D volumes to per-region representative time
// series.
package extract

import (
	"errors"
	"fmt"
	"strings"

	"gonum.org/v1/gonum/mat"

	"github.com/ZhaoyuDeng/RodentMRI-pipeline/internal/calc"
	"github.com/ZhaoyuDeng/RodentMRI-pipeline/internal/roi"
	"github.com/ZhaoyuDeng/RodentMRI-pipeline/internal/vol"
)

// Summary selects how a region's voxels collapse to one series.
type Summary int

const (
	// SummaryMean averages the voxel series.
	SummaryMean Summary = iota + 1
	// SummarySum totals the voxel series.
	SummarySum
	// SummaryPCA takes the first principal component of the region,
	// sign-aligned with the region mean.
	SummaryPCA
)

var (
	// ErrUnknownSummary is returned for an unrecognized summary name.
	ErrUnknownSummary = errors.New("extract: unknown summary method")

	// ErrPCANeedsTime is returned when a PCA summary is asked of data
	// without a usable time axis.
	ErrPCANeedsTime = errors.New("extract: pca summary needs at least 2 timepoints")
)

// ParseSummary maps a configuration string to a Summary.
func ParseSummary(s string) (Summary, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "mean":
		return SummaryMean, nil
	case "sum":
		return SummarySum, nil
	case "pca":
		return SummaryPCA, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownSummary, s)
}

func (s Summary) String() string {
	switch s {
	case SummaryMean:
		return "mean"
	case SummarySum:
		return "sum"
	case SummaryPCA:
		return "pca"
	}
	return fmt.Sprintf("summary(%d)", int(s))
}

// Table holds extracted series, one column per region, with the ordering
// metadata needed to interpret downstream matrices.
type Table struct {
	Names   []string
	Labels  []float64
	NVoxels []int
	Data    *mat.Dense
}

// FromAtlas extracts one summary series per atlas label, columns ordered by
// ascending label. Labels are processed in parallel.
func FromAtlas(pool *calc.Pool, v *vol.Volume, atlas *vol.Mask, summary Summary) (*Table, error) {
	if err := v.CheckGrid(atlas); err != nil {
		return nil, err
	}
	if summary == SummaryPCA && v.NT < 2 {
		return nil, fmt.Errorf("%w: %s", ErrPCANeedsTime, v.Path)
	}

	n := len(atlas.Labels)
	tab := &Table{
		Names:   make([]string, n),
		Labels:  make([]float64, n),
		NVoxels: make([]int, n),
		Data:    mat.NewDense(v.NT, n, nil),
	}

	var firstErr error
	errs := make([]error, n)
	pool.Each(n, func(i int) {
		label := atlas.Labels[i]
		voxels := atlas.LabelVoxels(label)
		tab.Names[i] = fmt.Sprintf("roi_%g", label)
		tab.Labels[i] = label
		tab.NVoxels[i] = len(voxels)

		series, err := summarize(regionMatrix(v, voxels), summary)
		if err != nil {
			errs[i] = fmt.Errorf("label %g: %w", label, err)
			return
		}
		for t := 0; t < v.NT; t++ {
			tab.Data.Set(t, i, series[t])
		}
	})
	for _, err := range errs {
		if err != nil {
			firstErr = err
			break
		}
	}
	if firstErr != nil {
		return nil, firstErr
	}
	return tab, nil
}

// RegionSeries summarizes a resolved region against the volume. Regions
// defined as explicit series are returned as-is.
func RegionSeries(v *vol.Volume, r *roi.Region, summary Summary) ([]float64, error) {
	if r.Series != nil {
		out := make([]float64, len(r.Series))
		copy(out, r.Series)
		return out, nil
	}
	if err := v.CheckGrid(r.Mask); err != nil {
		return nil, err
	}
	if summary == SummaryPCA && v.NT < 2 {
		return nil, fmt.Errorf("%w: %s", ErrPCANeedsTime, v.Path)
	}
	series, err := summarize(regionMatrix(v, r.Mask.Voxels), summary)
	if err != nil {
		return nil, fmt.Errorf("region %s: %w", r.Name, err)
	}
	return series, nil
}

// regionMatrix gathers the voxel series of a region as timepoints x voxels.
func regionMatrix(v *vol.Volume, voxels []vol.Voxel) *mat.Dense {
	r := mat.NewDense(v.NT, len(voxels), nil)
	for j, vx := range voxels {
		for t := 0; t < v.NT; t++ {
			r.Set(t, j, v.At(vx.X, vx.Y, vx.Z, t))
		}
	}
	return r
}

func summarize(region *mat.Dense, summary Summary) ([]float64, error) {
	nt, nv := region.Dims()
	switch summary {
	case SummaryMean, SummarySum:
		out := make([]float64, nt)
		for t := 0; t < nt; t++ {
			sum := 0.0
			for j := 0; j < nv; j++ {
				sum += region.At(t, j)
			}
			if summary == SummaryMean {
				sum /= float64(nv)
			}
			out[t] = sum
		}
		return out, nil

	case SummaryPCA:
		return firstComponent(region)
	}
	return nil, fmt.Errorf("%w: %v", ErrUnknownSummary, summary)
}

// firstComponent computes the leading principal component time course of the
// region, sign-aligned so it correlates positively with the region mean.
func firstComponent(region *mat.Dense) ([]float64, error) {
	nt, nv := region.Dims()
	if nt < 2 {
		return nil, ErrPCANeedsTime
	}

	meanSeries := make([]float64, nt)
	for t := 0; t < nt; t++ {
		sum := 0.0
		for j := 0; j < nv; j++ {
			sum += region.At(t, j)
		}
		meanSeries[t] = sum / float64(nv)
	}

	centered := mat.NewDense(nt, nv, nil)
	for j := 0; j < nv; j++ {
		colMean := 0.0
		for t := 0; t < nt; t++ {
			colMean += region.At(t, j)
		}
		colMean /= float64(nt)
		for t := 0; t < nt; t++ {
			centered.Set(t, j, region.At(t, j)-colMean)
		}
	}

	var svd mat.SVD
	if ok := svd.Factorize(centered, mat.SVDThin); !ok {
		return nil, errors.New("extract: svd did not converge")
	}
	var u mat.Dense
	svd.UTo(&u)
	sigma := svd.Values(nil)

	pc := make([]float64, nt)
	dot := 0.0
	for t := 0; t < nt; t++ {
		pc[t] = u.At(t, 0) * sigma[0]
		dot += pc[t] * meanSeries[t]
	}
	if dot < 0 {
		for t := range pc {
			pc[t] = -pc[t]
		}
	}
	return pc, nil
}
