package pipeline

import (
	"context"
	"errors"

	"github.com/ZhaoyuDeng/RodentMRI-pipeline/internal/calc"
	"github.com/ZhaoyuDeng/RodentMRI-pipeline/internal/extract"
	pio "github.com/ZhaoyuDeng/RodentMRI-pipeline/internal/io"
	"github.com/ZhaoyuDeng/RodentMRI-pipeline/internal/metrics"
	"github.com/ZhaoyuDeng/RodentMRI-pipeline/internal/roi"
	"github.com/ZhaoyuDeng/RodentMRI-pipeline/internal/scrub"
	"github.com/ZhaoyuDeng/RodentMRI-pipeline/internal/vol"
)

// stageExtract reduces the processed scan to one series per atlas region,
// censoring flagged frames when scrubbing is on.
func stageExtract(ctx context.Context, e *Env, s Subject, a Artifacts) error {
	atlas, err := vol.LoadLabelMask(e.Cfg.Space.Atlas)
	if err != nil {
		return err
	}
	v, err := vol.Load(a.Filtered)
	if err != nil {
		return err
	}
	summary, err := extract.ParseSummary(e.Cfg.Extract.Summary)
	if err != nil {
		return err
	}

	tab, err := extract.FromAtlas(e.Pool, v, atlas, summary)
	if err != nil {
		return err
	}

	if e.Cfg.Scrub.Enabled {
		keep, err := temporalMask(a.TemporalMask, v.NT)
		if err != nil {
			return err
		}
		method, err := scrub.ParseMethod(e.Cfg.Scrub.Method)
		if err != nil {
			return err
		}
		tab.Data, err = scrub.Apply(e.Pool, tab.Data, keep, method)
		if err != nil {
			return err
		}
	}

	if err := pio.WriteSeriesTSV(a.Series, tab.Names, tab.Data); err != nil {
		return err
	}
	if err := pio.WriteNpy(a.SeriesNpy, tab.Data); err != nil {
		return err
	}
	return pio.WriteOrderKey(a.OrderKey, tab.Names, tab.Labels, tab.NVoxels)
}

// stageFC computes the ROI correlation matrix and the seed-to-voxel maps,
// with Fisher z variants of both.
func stageFC(ctx context.Context, e *Env, s Subject, a Artifacts) error {
	if e.Cfg.FC.Matrix {
		if err := require(e.Cfg.Space.Atlas, "space.atlas"); err != nil {
			return err
		}
		names, data, err := pio.ReadSeriesTSV(a.Series)
		if err != nil {
			return err
		}

		r := e.Pool.CorrMatrix(data)
		z := calc.FisherZMatrix(r)
		if err := pio.WriteLabeledMatrix(a.FCMatR, names, r); err != nil {
			return err
		}
		if err := pio.WriteLabeledMatrix(a.FCMatZ, names, z); err != nil {
			return err
		}
		if err := pio.WriteNpy(a.FCMatRNpy, r); err != nil {
			return err
		}
		if err := pio.WriteNpy(a.FCMatZNpy, z); err != nil {
			return err
		}
	}

	if e.Cfg.FC.Voxelwise {
		if err := e.seedMaps(ctx, a); err != nil {
			return err
		}
	}
	return nil
}

func (e *Env) seedMaps(ctx context.Context, a Artifacts) error {
	defs, err := e.Cfg.FC.Definitions()
	if err != nil {
		return err
	}
	if len(defs) == 0 {
		return errors.New("pipeline: fc.voxelwise needs at least one seed")
	}

	m, err := e.brainMask()
	if err != nil {
		return err
	}
	v, err := vol.Load(a.Filtered)
	if err != nil {
		return err
	}
	ts, err := v.SeriesMatrix(m)
	if err != nil {
		return err
	}
	summary, err := extract.ParseSummary(e.Cfg.Extract.Summary)
	if err != nil {
		return err
	}

	var keep []bool
	var method scrub.Method
	if e.Cfg.Scrub.Enabled {
		if keep, err = temporalMask(a.TemporalMask, v.NT); err != nil {
			return err
		}
		if method, err = scrub.ParseMethod(e.Cfg.Scrub.Method); err != nil {
			return err
		}
		if ts, err = scrub.Apply(e.Pool, ts, keep, method); err != nil {
			return err
		}
	}

	for _, def := range defs {
		region, err := roi.Resolve(def, v.Header)
		if err != nil {
			return err
		}
		seed, err := extract.RegionSeries(v, region, summary)
		if err != nil {
			return err
		}
		if e.Cfg.Scrub.Enabled {
			if seed, err = scrubSeries(e.Pool, seed, keep, method); err != nil {
				return err
			}
		}

		rvals, err := e.Pool.SeedCorr(seed, ts)
		if err != nil {
			return err
		}
		zvals := calc.FisherZSlice(rvals)

		rPath, zPath := a.SeedMapPaths(region.Name)
		if err := vol.Write3DMap(rPath, a.Filtered, m, rvals); err != nil {
			return err
		}
		if err := vol.Write3DMap(zPath, a.Filtered, m, zvals); err != nil {
			return err
		}
	}
	return nil
}

// stageALFF computes the amplitude maps from the cleaned, unfiltered scan,
// where the full low-frequency spectrum is still present.
func stageALFF(ctx context.Context, e *Env, s Subject, a Artifacts) error {
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

	alff, falff, err := metrics.ALFF(e.Pool, ts, tr, e.Cfg.ALFF.Low, e.Cfg.ALFF.High, e.cutNumber())
	if err != nil {
		return err
	}
	if err := e.writeMetricMaps(a.ALFF, a.Cleaned, m, alff); err != nil {
		return err
	}
	return e.writeMetricMaps(a.FALFF, a.Cleaned, m, falff)
}

// stageReHo computes regional homogeneity from the filtered scan.
func stageReHo(ctx context.Context, e *Env, s Subject, a Artifacts) error {
	m, err := e.brainMask()
	if err != nil {
		return err
	}
	v, err := vol.Load(a.Filtered)
	if err != nil {
		return err
	}
	ts, err := v.SeriesMatrix(m)
	if err != nil {
		return err
	}

	w, err := metrics.ReHo(e.Pool, ts, m, e.Cfg.ReHo.Neighborhood)
	if err != nil {
		return err
	}
	return e.writeMetricMaps(a.ReHo, a.Filtered, m, w)
}

// writeMetricMaps writes a metric map plus its mean-normalized (m) and
// z-scored (z) variants within the mask.
func (e *Env) writeMetricMaps(path, ref string, m *vol.Mask, vals []float64) error {
	if err := vol.Write3DMap(path, ref, m, vals); err != nil {
		return err
	}
	mPath, zPath := StandardizedPaths(path)

	mVals := append([]float64(nil), vals...)
	if err := calc.DivideByMean(mVals); err != nil {
		e.Log.WithError(err).WithField("map", path).Warn("skipping mean-normalized map")
	} else if err := vol.Write3DMap(mPath, ref, m, mVals); err != nil {
		return err
	}

	zVals := append([]float64(nil), vals...)
	calc.ZScoreMap(zVals)
	return vol.Write3DMap(zPath, ref, m, zVals)
}
