package pipeline

import (
	"context"
	"fmt"

	"github.com/ZhaoyuDeng/RodentMRI-pipeline/internal/tools"
	"github.com/ZhaoyuDeng/RodentMRI-pipeline/internal/vol"
)

// require returns an error naming a missing configuration field.
func require(value, field string) error {
	if value == "" {
		return fmt.Errorf("pipeline: %s is not set", field)
	}
	return nil
}

// trFor resolves the repetition time in seconds: configuration first, then
// the volume header.
func (e *Env) trFor(path string) (float64, error) {
	if e.Cfg.Data.TR > 0 {
		return e.Cfg.Data.TR, nil
	}
	h, _, err := vol.ReadHeaderFile(path)
	if err != nil {
		return 0, err
	}
	if tr := h.TR(); tr > 0 {
		return tr, nil
	}
	return 0, fmt.Errorf("pipeline: %s has no repetition time in its header; set data.tr", path)
}

// stageScale rewrites the header geometry by the voxel scale factor. It
// always runs, which also normalizes the chain to an uncompressed volume.
func stageScale(ctx context.Context, e *Env, s Subject, a Artifacts) error {
	return vol.ScaleVoxelSize(s.Func, a.Scaled, e.Cfg.Data.VoxelScale)
}

func stageSliceTime(ctx context.Context, e *Env, s Subject, a Artifacts) error {
	tr, err := e.trFor(a.Scaled)
	if err != nil {
		return err
	}
	return e.Tools.SliceTime(ctx, a.Scaled, a.SliceTime, tr,
		e.Cfg.Preproc.Interleaved, e.Cfg.Preproc.Reversed)
}

func stageRealign(ctx context.Context, e *Env, s Subject, a Artifacts) error {
	// mcflirt takes the output basename and writes <base>.nii and
	// <base>.par.
	return e.Tools.Realign(ctx, a.SliceTime, stripVolumeExt(a.Realigned))
}

// stageRegister estimates the subject-to-template warp from the temporal
// mean image, then resamples the whole series into template space.
func stageRegister(ctx context.Context, e *Env, s Subject, a Artifacts) error {
	if err := require(e.Cfg.Space.Template, "space.template"); err != nil {
		return err
	}

	if err := vol.WriteMeanVolume(a.Mean, a.Realigned); err != nil {
		return err
	}
	if err := e.Tools.RegisterSyN(ctx, e.Cfg.Space.Template, a.Mean,
		a.XfmPrefix, e.Cfg.Preproc.Transform); err != nil {
		return err
	}
	return e.Tools.ApplyTransforms(ctx, a.Realigned, e.Cfg.Space.Template, a.Warped,
		true, "Linear",
		a.XfmPrefix+tools.WarpSuffix,
		a.XfmPrefix+tools.AffineSuffix,
	)
}

func stageSmooth(ctx context.Context, e *Env, s Subject, a Artifacts) error {
	return e.Tools.Smooth(ctx, a.Warped, a.Smoothed, e.Cfg.Preproc.SmoothSigma)
}
