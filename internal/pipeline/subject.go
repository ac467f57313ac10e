// Package pipeline wires the preprocessing and metric stages into per-subject
// runs over a study directory.
package pipeline

import (
	"errors"
	"fmt"
	"path/filepath"
	"sort"

	"github.com/ZhaoyuDeng/RodentMRI-pipeline/internal/config"
)

var (
	// ErrNoSubjects is returned when the subject glob matches nothing.
	ErrNoSubjects = errors.New("pipeline: no subject directories found")

	// ErrNoFunctional is returned when a subject has no resting scan.
	ErrNoFunctional = errors.New("pipeline: no functional scan found")
)

// Subject is one animal's scan session. Func is empty when discovery found
// the directory but no resting scan; the run records that as a failure.
type Subject struct {
	ID   string
	Dir  string
	Func string
}

// Discover lists subjects under the data root, sorted by ID. A subject
// directory without a matching functional scan is still listed so the run
// can report it.
func Discover(cfg config.Config) ([]Subject, error) {
	if cfg.Data.Root == "" {
		return nil, config.ErrNoDataRoot
	}

	dirs, err := filepath.Glob(filepath.Join(cfg.Data.Root, cfg.Data.SubjectGlob))
	if err != nil {
		return nil, fmt.Errorf("pipeline: subject glob: %w", err)
	}
	if len(dirs) == 0 {
		return nil, fmt.Errorf("%w: %s/%s", ErrNoSubjects, cfg.Data.Root, cfg.Data.SubjectGlob)
	}
	sort.Strings(dirs)

	subjects := make([]Subject, 0, len(dirs))
	for _, dir := range dirs {
		s := Subject{ID: filepath.Base(dir), Dir: dir}

		matches, err := filepath.Glob(filepath.Join(dir, cfg.Data.FuncPattern))
		if err != nil {
			return nil, fmt.Errorf("pipeline: functional glob: %w", err)
		}
		if len(matches) > 0 {
			sort.Strings(matches)
			s.Func = matches[0]
		}
		subjects = append(subjects, s)
	}
	return subjects, nil
}
