package main

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/ZhaoyuDeng/RodentMRI-pipeline/internal/pipeline"
)

var groupCmd = &cobra.Command{
	Use:   "group [subject...]",
	Short: "Aggregate per-subject matrices and maps into group averages",
	Long: `Average the Fisher z connectivity matrices and the standardized
ALFF, fALFF and ReHo maps across subjects. Subjects whose outputs are
missing are skipped with a warning; pass subject IDs to restrict the set.`,
	Run: func(cmd *cobra.Command, args []string) {
		env, subjects, err := setup(args)
		if err != nil {
			fatal(err)
		}

		if err := pipeline.Group(env, subjects); err != nil {
			fmt.Fprintln(os.Stderr, "Error:", err)
			os.Exit(1)
		}

		green := color.New(color.FgGreen).SprintFunc()
		fmt.Printf("%s group outputs written to %s\n", green("✓"), env.ResultsDir())
	},
}

func init() {
	rootCmd.AddCommand(groupCmd)
}
