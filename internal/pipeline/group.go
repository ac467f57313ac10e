package pipeline

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gonum.org/v1/gonum/mat"

	"github.com/ZhaoyuDeng/RodentMRI-pipeline/internal/calc"
	pio "github.com/ZhaoyuDeng/RodentMRI-pipeline/internal/io"
	"github.com/ZhaoyuDeng/RodentMRI-pipeline/internal/vol"
)

// ErrNoGroupInputs is returned when no subject contributed to a group mean.
var ErrNoGroupInputs = errors.New("pipeline: no subject outputs to aggregate")

// Group averages per-subject outputs into the results directory: the
// correlation matrices in both r and z form, and the z-scored metric maps.
// Subjects missing an output are skipped with a warning.
func Group(e *Env, subjects []Subject) error {
	if err := os.MkdirAll(e.ResultsDir(), 0o755); err != nil {
		return fmt.Errorf("pipeline: results dir: %w", err)
	}

	if e.Cfg.FC.Matrix {
		if err := e.groupMatrices(subjects); err != nil {
			return err
		}
	}

	var maps []string
	if e.Cfg.ALFF.Enabled {
		maps = append(maps, "zalff.nii", "zfalff.nii")
	}
	if e.Cfg.ReHo.Enabled {
		maps = append(maps, "zreho.nii")
	}
	for _, name := range maps {
		if err := e.groupMap(subjects, name); err != nil {
			return err
		}
	}
	return nil
}

func (e *Env) groupMatrices(subjects []Subject) error {
	var rs, zs []*mat.Dense
	var names []string

	for _, s := range subjects {
		a := Layout(s, e.Cfg)
		r, err := pio.ReadNpy(a.FCMatRNpy)
		if err != nil {
			e.Log.WithField("subject", s.ID).WithError(err).Warn("no correlation matrix, skipping in group mean")
			continue
		}
		z, err := pio.ReadNpy(a.FCMatZNpy)
		if err != nil {
			e.Log.WithField("subject", s.ID).WithError(err).Warn("no z matrix, skipping in group mean")
			continue
		}
		if names == nil {
			if names, _, err = pio.ReadSeriesTSV(a.Series); err != nil {
				e.Log.WithField("subject", s.ID).WithError(err).Warn("no series table, skipping in group mean")
				continue
			}
		}
		rs = append(rs, r)
		zs = append(zs, z)
	}
	if len(rs) == 0 {
		return fmt.Errorf("%w: correlation matrices", ErrNoGroupInputs)
	}

	rMean, err := calc.GroupMean(rs)
	if err != nil {
		return err
	}
	zMean, err := calc.GroupMean(zs)
	if err != nil {
		return err
	}

	dir := e.ResultsDir()
	if err := pio.WriteLabeledMatrix(filepath.Join(dir, "group_fcmat_r.tsv"), names, rMean); err != nil {
		return err
	}
	if err := pio.WriteLabeledMatrix(filepath.Join(dir, "group_fcmat_z.tsv"), names, zMean); err != nil {
		return err
	}
	if err := pio.WriteNpy(filepath.Join(dir, "group_fcmat_r.npy"), rMean); err != nil {
		return err
	}
	return pio.WriteNpy(filepath.Join(dir, "group_fcmat_z.npy"), zMean)
}

// groupMap averages one named metric map across subjects on the brain mask
// grid.
func (e *Env) groupMap(subjects []Subject, name string) error {
	m, err := e.brainMask()
	if err != nil {
		return err
	}

	var rows []*mat.Dense
	ref := ""
	for _, s := range subjects {
		path := filepath.Join(Layout(s, e.Cfg).Deriv, name)
		v, err := vol.Load(path)
		if err != nil {
			e.Log.WithField("subject", s.ID).WithError(err).Warnf("no %s, skipping in group mean", name)
			continue
		}
		row, err := v.SeriesMatrix(m)
		if err != nil {
			return err
		}
		rows = append(rows, row)
		if ref == "" {
			ref = path
		}
	}
	if len(rows) == 0 {
		return fmt.Errorf("%w: %s", ErrNoGroupInputs, name)
	}

	mean, err := calc.GroupMean(rows)
	if err != nil {
		return err
	}
	return vol.Write3DMap(filepath.Join(e.ResultsDir(), "group_"+name), ref, m, mat.Row(nil, 0, mean))
}
