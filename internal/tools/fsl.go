package tools

import (
	"context"
	"strconv"
)

// SliceTime corrects slice acquisition timing with slicetimer. interleaved
// selects odd-even order and reversed selects foot-to-head order.
func (r *Runner) SliceTime(ctx context.Context, in, out string, tr float64, interleaved, reversed bool) error {
	args := []string{
		"-i", in,
		"-o", out,
		"-r", strconv.FormatFloat(tr, 'g', -1, 64),
	}
	if interleaved {
		args = append(args, "--odd")
	}
	if reversed {
		args = append(args, "--down")
	}
	return r.Run(ctx, ToolSliceTimer, args...)
}

// Realign motion-corrects a 4D scan with mcflirt, writing <out>.par with the
// 6 realignment parameters per timepoint.
func (r *Runner) Realign(ctx context.Context, in, out string) error {
	return r.Run(ctx, ToolMCFLIRT,
		"-in", in,
		"-out", out,
		"-plots",
	)
}

// Smooth applies a Gaussian kernel of the given sigma in mm with fslmaths.
func (r *Runner) Smooth(ctx context.Context, in, out string, sigma float64) error {
	return r.Run(ctx, ToolFSLMaths,
		in,
		"-s", strconv.FormatFloat(sigma, 'g', -1, 64),
		out,
	)
}
