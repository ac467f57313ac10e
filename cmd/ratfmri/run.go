package main

import (
	"github.com/spf13/cobra"

	"github.com/ZhaoyuDeng/RodentMRI-pipeline/internal/pipeline"
)

var runCmd = &cobra.Command{
	Use:   "run [subject...]",
	Short: "Run the full pipeline over the study",
	Long: `Run every enabled stage for every subject, then aggregate group
outputs. Subjects are processed concurrently up to run.jobs; stages within
a subject run in order and stop at the first failure. Pass subject IDs to
restrict the run.`,
	Run: func(cmd *cobra.Command, args []string) {
		env, subjects, err := setup(args)
		if err != nil {
			fatal(err)
		}

		results := pipeline.RunAll(cmd.Context(), env, subjects)

		rep := pipeline.BuildReport(env, subjects, results)
		if err := pipeline.WriteReport(env.ResultsDir(), rep); err != nil {
			env.Log.WithError(err).Error("writing run report")
		}

		if !dryRunFlag && len(pipeline.FailedSubjects(results)) == 0 {
			if err := pipeline.Group(env, subjects); err != nil {
				env.Log.WithError(err).Warn("group aggregation failed")
			}
		}

		exitOn(summarize(results))
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
}
