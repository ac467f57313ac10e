package tools

import (
	"context"
)

// RegisterSyN registers moving onto fixed with antsRegistrationSyNQuick.sh.
// The tool writes <outPrefix>1Warp.nii.gz and <outPrefix>0GenericAffine.mat,
// the transform chain ApplyTransforms expects.
func (r *Runner) RegisterSyN(ctx context.Context, fixed, moving, outPrefix, transform string) error {
	return r.Run(ctx, ToolANTsRegister,
		"-d", "3",
		"-f", fixed,
		"-m", moving,
		"-o", outPrefix,
		"-t", transform,
	)
}

// Warp and affine suffixes produced by RegisterSyN.
const (
	WarpSuffix   = "1Warp.nii.gz"
	AffineSuffix = "0GenericAffine.mat"
)

// InverseWarpSuffix is the reverse-direction warp, used to pull template
// space masks into native space.
const InverseWarpSuffix = "1InverseWarp.nii.gz"

// ApplyTransforms resamples in onto the grid of ref through the given
// transform chain. series selects time-series mode for 4D inputs. interp
// names the interpolator, e.g. Linear or NearestNeighbor for label volumes.
func (r *Runner) ApplyTransforms(ctx context.Context, in, ref, out string, series bool, interp string, transforms ...string) error {
	args := []string{
		"-d", "3",
		"-i", in,
		"-r", ref,
		"-o", out,
	}
	if series {
		args = append(args, "-e", "3")
	}
	if interp != "" {
		args = append(args, "-n", interp)
	}
	for _, t := range transforms {
		args = append(args, "-t", t)
	}
	return r.Run(ctx, ToolANTsApply, args...)
}
