package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/ZhaoyuDeng/RodentMRI-pipeline/internal/calc"
	"github.com/ZhaoyuDeng/RodentMRI-pipeline/internal/config"
	"github.com/ZhaoyuDeng/RodentMRI-pipeline/internal/tools"
)

// Env carries everything stages need: configuration, the external tool
// runner, the worker pool for matrix math, and the logger.
type Env struct {
	Cfg   config.Config
	Tools *tools.Runner
	Pool  *calc.Pool
	Log   *logrus.Logger
	Force bool
}

// NewEnv builds a run environment. Subject-level concurrency and the
// within-subject worker pool split the available CPUs between them.
func NewEnv(cfg config.Config, log *logrus.Logger, dryRun, force bool) *Env {
	workers := runtime.NumCPU() / jobCount(cfg)
	if workers < 1 {
		workers = 1
	}
	return &Env{
		Cfg: cfg,
		Tools: &tools.Runner{
			Log:      log,
			DryRun:   dryRun,
			ExtraEnv: []string{"FSLOUTPUTTYPE=NIFTI"},
		},
		Pool:  calc.NewPool(workers),
		Log:   log,
		Force: force,
	}
}

func jobCount(cfg config.Config) int {
	if cfg.Run.Jobs < 1 {
		return 1
	}
	return cfg.Run.Jobs
}

// ResultsDir is where group-level outputs and run reports land.
func (e *Env) ResultsDir() string {
	return filepath.Join(e.Cfg.Data.Root, e.Cfg.Run.ResultsDir)
}

// Stage is one step of a subject's run.
type Stage struct {
	Name string
	// Skip reports whether configuration disables the stage.
	Skip func(cfg config.Config) bool
	// Done lists the outputs whose presence lets the stage be skipped.
	Done func(a Artifacts) []string
	Run  func(ctx context.Context, e *Env, s Subject, a Artifacts) error
}

// ErrUnknownStage is returned when a stage name does not exist.
var ErrUnknownStage = errors.New("pipeline: unknown stage")

// Stages returns the per-subject stages in execution order.
func Stages() []Stage {
	return []Stage{
		{
			Name: "scale",
			Done: func(a Artifacts) []string { return []string{a.Scaled} },
			Run:  stageScale,
		},
		{
			Name: "slicetime",
			Skip: func(c config.Config) bool { return !c.Preproc.SliceTiming },
			Done: func(a Artifacts) []string { return []string{a.SliceTime} },
			Run:  stageSliceTime,
		},
		{
			Name: "realign",
			Skip: func(c config.Config) bool { return !c.Preproc.Realign },
			Done: func(a Artifacts) []string { return []string{a.Realigned, a.Motion} },
			Run:  stageRealign,
		},
		{
			Name: "register",
			Skip: func(c config.Config) bool { return !c.Preproc.Register },
			Done: func(a Artifacts) []string { return []string{a.Warped} },
			Run:  stageRegister,
		},
		{
			Name: "smooth",
			Skip: func(c config.Config) bool { return !c.Preproc.Smooth },
			Done: func(a Artifacts) []string { return []string{a.Smoothed} },
			Run:  stageSmooth,
		},
		{
			Name: "fd",
			Skip: func(c config.Config) bool { return !c.Preproc.Realign },
			Done: func(a Artifacts) []string { return []string{a.FD, a.TemporalMask} },
			Run:  stageFD,
		},
		{
			Name: "denoise",
			Done: func(a Artifacts) []string { return []string{a.Cleaned} },
			Run:  stageDenoise,
		},
		{
			Name: "filter",
			Skip: func(c config.Config) bool { return !c.Filter.Enabled },
			Done: func(a Artifacts) []string { return []string{a.Filtered} },
			Run:  stageFilter,
		},
		{
			Name: "extract",
			Skip: func(c config.Config) bool { return c.Space.Atlas == "" },
			Done: func(a Artifacts) []string { return []string{a.Series, a.SeriesNpy, a.OrderKey} },
			Run:  stageExtract,
		},
		{
			Name: "fc",
			Skip: func(c config.Config) bool { return !c.FC.Matrix && !c.FC.Voxelwise },
			Run:  stageFC,
		},
		{
			Name: "alff",
			Skip: func(c config.Config) bool { return !c.ALFF.Enabled },
			Done: func(a Artifacts) []string { return []string{a.ALFF, a.FALFF} },
			Run:  stageALFF,
		},
		{
			Name: "reho",
			Skip: func(c config.Config) bool { return !c.ReHo.Enabled },
			Done: func(a Artifacts) []string { return []string{a.ReHo} },
			Run:  stageReHo,
		},
	}
}

// StageNames lists the stages run executes, in order.
func StageNames() []string {
	stages := Stages()
	names := make([]string, len(stages))
	for i, st := range stages {
		names[i] = st.Name
	}
	return names
}

// Result records one stage attempt for one subject.
type Result struct {
	Subject  string
	Stage    string
	Skipped  bool
	Err      error
	Duration time.Duration
}

// RunSubject executes all enabled stages for one subject, stopping at the
// first failure since later stages read earlier outputs.
func RunSubject(ctx context.Context, e *Env, s Subject) []Result {
	return runStages(ctx, e, s, Stages())
}

// RunOne executes a single named stage for one subject.
func RunOne(ctx context.Context, e *Env, s Subject, name string) ([]Result, error) {
	for _, st := range Stages() {
		if st.Name == name {
			return runStages(ctx, e, s, []Stage{st}), nil
		}
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownStage, name)
}

func runStages(ctx context.Context, e *Env, s Subject, stages []Stage) []Result {
	log := e.Log.WithField("subject", s.ID)

	if s.Func == "" {
		err := fmt.Errorf("%w: %s/%s", ErrNoFunctional, s.Dir, e.Cfg.Data.FuncPattern)
		log.WithError(err).Error("discovery failed")
		return []Result{{Subject: s.ID, Stage: "discover", Err: err}}
	}

	a := Layout(s, e.Cfg)
	if err := os.MkdirAll(a.Deriv, 0o755); err != nil {
		return []Result{{Subject: s.ID, Stage: "discover", Err: fmt.Errorf("pipeline: %w", err)}}
	}

	var results []Result
	for _, st := range stages {
		if st.Skip != nil && st.Skip(e.Cfg) {
			continue
		}
		if err := ctx.Err(); err != nil {
			results = append(results, Result{Subject: s.ID, Stage: st.Name, Err: err})
			break
		}
		if !e.Force && st.Done != nil && allExist(st.Done(a)) {
			log.WithField("stage", st.Name).Info("outputs present, skipping")
			results = append(results, Result{Subject: s.ID, Stage: st.Name, Skipped: true})
			continue
		}
		if e.Tools.DryRun {
			log.WithField("stage", st.Name).Info("dry-run: would run")
			results = append(results, Result{Subject: s.ID, Stage: st.Name, Skipped: true})
			continue
		}

		start := time.Now()
		err := st.Run(ctx, e, s, a)
		r := Result{Subject: s.ID, Stage: st.Name, Err: err, Duration: time.Since(start)}
		results = append(results, r)

		if err != nil {
			log.WithField("stage", st.Name).WithError(err).Error("stage failed")
			break
		}
		log.WithFields(logrus.Fields{
			"stage": st.Name,
			"took":  r.Duration.Round(time.Millisecond).String(),
		}).Info("stage done")
	}
	return results
}

// RunAll processes subjects concurrently, up to run.jobs at a time. A
// subject's failure does not stop the others.
func RunAll(ctx context.Context, e *Env, subjects []Subject) []Result {
	var mu sync.Mutex
	var all []Result

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(jobCount(e.Cfg))
	for _, s := range subjects {
		s := s
		g.Go(func() error {
			rs := RunSubject(ctx, e, s)
			mu.Lock()
			all = append(all, rs...)
			mu.Unlock()
			return nil
		})
	}
	g.Wait()

	sort.SliceStable(all, func(i, j int) bool { return all[i].Subject < all[j].Subject })
	return all
}

// FailedSubjects returns the IDs of subjects with at least one failing
// stage, sorted.
func FailedSubjects(results []Result) []string {
	seen := make(map[string]bool)
	for _, r := range results {
		if r.Err != nil {
			seen[r.Subject] = true
		}
	}
	ids := make([]string, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func allExist(paths []string) bool {
	for _, p := range paths {
		if _, err := os.Stat(p); err != nil {
			return false
		}
	}
	return true
}
