package pipeline

import (
	"context"
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/ZhaoyuDeng/RodentMRI-pipeline/internal/calc"
	"github.com/ZhaoyuDeng/RodentMRI-pipeline/internal/denoise"
	"github.com/ZhaoyuDeng/RodentMRI-pipeline/internal/extract"
	"github.com/ZhaoyuDeng/RodentMRI-pipeline/internal/filter"
	pio "github.com/ZhaoyuDeng/RodentMRI-pipeline/internal/io"
	"github.com/ZhaoyuDeng/RodentMRI-pipeline/internal/roi"
	"github.com/ZhaoyuDeng/RodentMRI-pipeline/internal/scrub"
	"github.com/ZhaoyuDeng/RodentMRI-pipeline/internal/vol"
)

func (e *Env) cutNumber() int {
	if e.Cfg.Run.CutNumber > 0 {
		return e.Cfg.Run.CutNumber
	}
	return filter.DefaultCutNumber
}

// brainMask loads the template-space brain mask, binarized at the
// configured threshold.
func (e *Env) brainMask() (*vol.Mask, error) {
	if err := require(e.Cfg.Space.BrainMask, "space.brain_mask"); err != nil {
		return nil, err
	}
	return vol.LoadBinaryMask(e.Cfg.Space.BrainMask, e.Cfg.Space.MaskThreshold)
}

// stageFD derives framewise displacement and the keep mask from the
// realignment parameters. It runs whenever realignment did, scrubbing or
// not, since mean FD is a standard quality check.
func stageFD(ctx context.Context, e *Env, s Subject, a Artifacts) error {
	motion, err := pio.ReadMotion(a.Motion, e.Cfg.Denoise.MotionOrder)
	if err != nil {
		return err
	}
	fd, err := scrub.FD(motion, e.Cfg.Scrub.HeadRadius)
	if err != nil {
		return err
	}
	if err := pio.WriteFloatColumn(a.FD, fd); err != nil {
		return err
	}
	keep := scrub.TemporalMask(fd, e.Cfg.Scrub.FDThreshold)
	return pio.WriteTemporalMask(a.TemporalMask, keep)
}

// stageDenoise removes nuisance signals voxelwise: linear trend, then an
// OLS fit of the configured regressors.
func stageDenoise(ctx context.Context, e *Env, s Subject, a Artifacts) error {
	m, err := e.brainMask()
	if err != nil {
		return err
	}
	v, err := vol.Load(a.Smoothed)
	if err != nil {
		return err
	}
	ts, err := v.SeriesMatrix(m)
	if err != nil {
		return err
	}

	if e.Cfg.Denoise.Detrend {
		filter.Detrend(e.Pool, ts, e.cutNumber())
	}

	var wm, csf []float64
	if e.Cfg.Denoise.WM && e.Cfg.Space.WMMask != "" {
		wm, err = e.tissueMean(v, e.Cfg.Space.WMMask, "wm")
		if err != nil {
			return err
		}
	}
	if e.Cfg.Denoise.CSF && e.Cfg.Space.CSFMask != "" {
		csf, err = e.tissueMean(v, e.Cfg.Space.CSFMask, "csf")
		if err != nil {
			return err
		}
	}

	model, err := denoise.ParseMotionModel(e.Cfg.Denoise.MotionModel)
	if err != nil {
		return err
	}
	var motion *mat.Dense
	if model != denoise.MotionNone {
		motion, err = pio.ReadMotion(a.Motion, e.Cfg.Denoise.MotionOrder)
		if err != nil {
			return fmt.Errorf("pipeline: motion regressors: %w", err)
		}
	}

	design, err := denoise.BuildDesign(v.NT, wm, csf, motion, model)
	if err != nil {
		return err
	}
	if err := denoise.Regress(ts, design, e.Cfg.Denoise.AddMeanBack); err != nil {
		return err
	}

	return vol.Write4D(a.Cleaned, a.Smoothed, m, ts)
}

// tissueMean extracts the mean series of a tissue mask from the warped
// volume.
func (e *Env) tissueMean(v *vol.Volume, maskPath, name string) ([]float64, error) {
	m, err := vol.LoadBinaryMask(maskPath, e.Cfg.Space.MaskThreshold)
	if err != nil {
		return nil, err
	}
	region := &roi.Region{Name: name, Mask: m}
	return extract.RegionSeries(v, region, extract.SummaryMean)
}

// stageFilter band-passes every voxel series inside the brain mask.
func stageFilter(ctx context.Context, e *Env, s Subject, a Artifacts) error {
	m, err := e.brainMask()
	if err != nil {
		return err
	}
	v, err := vol.Load(a.Cleaned)
	if err != nil {
		return err
	}
	ts, err := v.SeriesMatrix(m)
	if err != nil {
		return err
	}
	tr, err := e.trFor(a.Cleaned)
	if err != nil {
		return err
	}

	if err := filter.Bandpass(e.Pool, ts, tr, e.Cfg.Filter.Low, e.Cfg.Filter.High, e.cutNumber()); err != nil {
		return err
	}
	return vol.Write4D(a.Filtered, a.Cleaned, m, ts)
}

// temporalMask reads the FD stage's keep mask back, checking its length
// against the series.
func temporalMask(path string, want int) ([]bool, error) {
	vals, err := pio.ReadFloatColumn(path)
	if err != nil {
		return nil, err
	}
	if len(vals) != want {
		return nil, fmt.Errorf("pipeline: temporal mask %s has %d frames, data has %d", path, len(vals), want)
	}
	keep := make([]bool, len(vals))
	for i, v := range vals {
		keep[i] = v != 0
	}
	return keep, nil
}

// scrubSeries applies the configured censoring to a single series.
func scrubSeries(pool *calc.Pool, series []float64, keep []bool, method scrub.Method) ([]float64, error) {
	m := mat.NewDense(len(series), 1, append([]float64(nil), series...))
	out, err := scrub.Apply(pool, m, keep, method)
	if err != nil {
		return nil, err
	}
	rows, _ := out.Dims()
	res := make([]float64, rows)
	for t := 0; t < rows; t++ {
		res[t] = out.At(t, 0)
	}
	return res, nil
}
