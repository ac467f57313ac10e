package pipeline

import (
	"path/filepath"
	"strings"

	"github.com/ZhaoyuDeng/RodentMRI-pipeline/internal/config"
)

// Stage prefixes, prepended to the scan file name as each volume stage
// completes. With every stage enabled a fully processed scan is named
// fcgwras<original>.
const (
	PrefixScaled    = "s"
	PrefixSliceTime = "a"
	PrefixRealigned = "r"
	PrefixWarped    = "w"
	PrefixSmoothed  = "g"
	PrefixCleaned   = "c"
	PrefixFiltered  = "f"
)

// derivDir is the per-subject directory for non-volume artifacts: motion
// traces, extracted series, matrices and metric maps.
const derivDir = "deriv"

// prefixed returns the input file name with one more prefix letter, in the
// same directory.
func prefixed(path, prefix string) string {
	dir, base := filepath.Split(path)
	return filepath.Join(dir, prefix+base)
}

// stripVolumeExt removes .nii or .nii.gz.
func stripVolumeExt(path string) string {
	path = strings.TrimSuffix(path, ".gz")
	return strings.TrimSuffix(path, ".nii")
}

// Artifacts resolves every path a subject's run reads and writes. Volume
// fields name the chain state after their stage; a disabled stage leaves the
// name unchanged, so downstream stages always read the right input.
type Artifacts struct {
	Scaled    string
	SliceTime string
	Realigned string
	Warped    string
	Smoothed  string
	Cleaned   string
	Filtered  string

	Motion    string
	Mean      string
	XfmPrefix string
	Deriv     string

	FD           string
	TemporalMask string

	Series    string
	SeriesNpy string
	OrderKey  string

	FCMatR    string
	FCMatZ    string
	FCMatRNpy string
	FCMatZNpy string

	ALFF  string
	FALFF string
	ReHo  string
}

// Layout derives a subject's artifact paths from its functional scan and the
// enabled stages. The scale stage always runs and always writes an
// uncompressed volume, so the rest of the chain has a stable extension.
func Layout(s Subject, cfg config.Config) Artifacts {
	a := Artifacts{Deriv: filepath.Join(s.Dir, derivDir)}

	cur := prefixed(stripVolumeExt(s.Func)+".nii", PrefixScaled)
	a.Scaled = cur
	if cfg.Preproc.SliceTiming {
		cur = prefixed(cur, PrefixSliceTime)
	}
	a.SliceTime = cur
	if cfg.Preproc.Realign {
		cur = prefixed(cur, PrefixRealigned)
	}
	a.Realigned = cur
	if cfg.Preproc.Register {
		cur = prefixed(cur, PrefixWarped)
	}
	a.Warped = cur
	if cfg.Preproc.Smooth {
		cur = prefixed(cur, PrefixSmoothed)
	}
	a.Smoothed = cur
	cur = prefixed(cur, PrefixCleaned)
	a.Cleaned = cur
	if cfg.Filter.Enabled {
		cur = prefixed(cur, PrefixFiltered)
	}
	a.Filtered = cur

	// mcflirt writes <out>.par next to its output volume.
	a.Motion = stripVolumeExt(a.Realigned) + ".par"
	a.Mean = filepath.Join(a.Deriv, "mean_func.nii")
	a.XfmPrefix = filepath.Join(a.Deriv, "xfm_"+s.ID+"_")

	a.FD = filepath.Join(a.Deriv, "fd.txt")
	a.TemporalMask = filepath.Join(a.Deriv, "temporal_mask.txt")
	a.Series = filepath.Join(a.Deriv, "roi_series.tsv")
	a.SeriesNpy = filepath.Join(a.Deriv, "roi_series.npy")
	a.OrderKey = filepath.Join(a.Deriv, "roi_order.tsv")
	a.FCMatR = filepath.Join(a.Deriv, "fcmat_r.tsv")
	a.FCMatZ = filepath.Join(a.Deriv, "fcmat_z.tsv")
	a.FCMatRNpy = filepath.Join(a.Deriv, "fcmat_r.npy")
	a.FCMatZNpy = filepath.Join(a.Deriv, "fcmat_z.npy")
	a.ALFF = filepath.Join(a.Deriv, "alff.nii")
	a.FALFF = filepath.Join(a.Deriv, "falff.nii")
	a.ReHo = filepath.Join(a.Deriv, "reho.nii")
	return a
}

// SeedMapPaths returns the voxelwise r and z map paths for one seed.
func (a Artifacts) SeedMapPaths(seed string) (rmap, zmap string) {
	rmap = filepath.Join(a.Deriv, "fc_"+seed+"_r.nii")
	zmap = filepath.Join(a.Deriv, "fc_"+seed+"_z.nii")
	return rmap, zmap
}

// StandardizedPaths returns the m- and z-normalized variants of a metric
// map, mirroring its name.
func StandardizedPaths(mapPath string) (mPath, zPath string) {
	dir, base := filepath.Split(mapPath)
	return filepath.Join(dir, "m"+base), filepath.Join(dir, "z"+base)
}
