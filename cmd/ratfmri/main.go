// Command ratfmri preprocesses rodent resting-state fMRI studies and
// computes connectivity and fluctuation metrics.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/ZhaoyuDeng/RodentMRI-pipeline/internal/config"
	"github.com/ZhaoyuDeng/RodentMRI-pipeline/internal/pipeline"
)

var (
	cfgFile    string
	logLevel   string
	jobsFlag   int
	forceFlag  bool
	dryRunFlag bool
)

var rootCmd = &cobra.Command{
	Use:   "ratfmri",
	Short: "Rodent resting-state fMRI preprocessing and metrics",
	Long: `ratfmri takes raw rodent resting-state scans through header upscaling,
slice timing correction, realignment, template registration, smoothing,
nuisance regression, band-pass filtering and motion scrubbing, then
computes ROI connectivity matrices, seed maps, ALFF/fALFF and ReHo.

Stage outputs are cached: a stage whose outputs already exist is skipped
unless --force is given.

Exit codes:
  0 - everything completed
  1 - one or more subjects failed
  2 - configuration or environment error`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(2)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "ratfmri.yaml", "pipeline configuration file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level: debug, info, warn or error")
	rootCmd.PersistentFlags().IntVar(&jobsFlag, "jobs", 0, "subjects to process concurrently (overrides run.jobs)")
	rootCmd.PersistentFlags().BoolVar(&forceFlag, "force", false, "recompute outputs that already exist")
	rootCmd.PersistentFlags().BoolVar(&dryRunFlag, "dry-run", false, "log what would run without executing")
}

func newLogger() *logrus.Logger {
	log := logrus.StandardLogger()
	if lvl, err := logrus.ParseLevel(logLevel); err == nil {
		log.SetLevel(lvl)
	}
	return log
}

// setup loads the configuration, builds the run environment and discovers
// subjects, optionally narrowed to the IDs given on the command line.
func setup(args []string) (*pipeline.Env, []pipeline.Subject, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, nil, err
	}
	if jobsFlag > 0 {
		cfg.Run.Jobs = jobsFlag
	}

	env := pipeline.NewEnv(cfg, newLogger(), dryRunFlag, forceFlag)
	subjects, err := pipeline.Discover(cfg)
	if err != nil {
		return nil, nil, err
	}
	if len(args) > 0 {
		subjects, err = filterSubjects(subjects, args)
		if err != nil {
			return nil, nil, err
		}
	}
	return env, subjects, nil
}

func filterSubjects(subjects []pipeline.Subject, ids []string) ([]pipeline.Subject, error) {
	byID := make(map[string]pipeline.Subject, len(subjects))
	for _, s := range subjects {
		byID[s.ID] = s
	}

	out := make([]pipeline.Subject, 0, len(ids))
	for _, id := range ids {
		s, ok := byID[id]
		if !ok {
			return nil, fmt.Errorf("unknown subject %q", id)
		}
		out = append(out, s)
	}
	return out, nil
}

// summarize prints the per-subject outcome and returns the process exit
// code.
func summarize(results []pipeline.Result) int {
	green := color.New(color.FgGreen).SprintFunc()
	red := color.New(color.FgRed).SprintFunc()

	var ok, skipped, failed int
	for _, r := range results {
		switch {
		case r.Err != nil:
			failed++
		case r.Skipped:
			skipped++
		default:
			ok++
		}
	}
	fmt.Printf("\n%d stages ok, %d skipped, %d failed\n", ok, skipped, failed)

	failedIDs := pipeline.FailedSubjects(results)
	if len(failedIDs) == 0 {
		fmt.Printf("%s all subjects completed\n", green("✓"))
		return 0
	}

	for _, id := range failedIDs {
		fmt.Printf("%s %s\n", red("✗"), id)
		for _, r := range results {
			if r.Subject == id && r.Err != nil {
				fmt.Printf("    %s: %v\n", r.Stage, r.Err)
			}
		}
	}
	return 1
}

func exitOn(code int) {
	if code != 0 {
		os.Exit(code)
	}
}

func fatal(err error) {
	fmt.Fprintln(os.Stderr, "Error:", err)
	os.Exit(2)
}

// stageCommand builds a subcommand that runs a fixed list of stages for each
// selected subject.
func stageCommand(use, short string, stages ...string) *cobra.Command {
	return &cobra.Command{
		Use:   use + " [subject...]",
		Short: short,
		Run: func(cmd *cobra.Command, args []string) {
			env, subjects, err := setup(args)
			if err != nil {
				fatal(err)
			}

			var results []pipeline.Result
			for _, s := range subjects {
				for _, name := range stages {
					rs, err := pipeline.RunOne(cmd.Context(), env, s, name)
					if err != nil {
						fatal(err)
					}
					results = append(results, rs...)
					if len(rs) > 0 && rs[len(rs)-1].Err != nil {
						break
					}
				}
			}
			exitOn(summarize(results))
		},
	}
}
