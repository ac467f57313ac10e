package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/ZhaoyuDeng/RodentMRI-pipeline/internal/config"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a default configuration file",
	Long: `Write the default configuration to the --config path, refusing to
overwrite an existing file. Edit data.root and the space.* references
before running.`,
	Run: func(cmd *cobra.Command, args []string) {
		if err := config.WriteDefault(cfgFile); err != nil {
			fatal(err)
		}

		green := color.New(color.FgGreen).SprintFunc()
		fmt.Printf("%s Wrote %s\n\n", green("✓"), cfgFile)
		fmt.Println("Next steps:")
		fmt.Printf("  1. Point data.root at the study directory\n")
		fmt.Printf("  2. Fill in the space.* template, masks and atlas\n")
		fmt.Printf("  3. ratfmri doctor\n")
		fmt.Printf("  4. ratfmri run\n")
	},
}

func init() {
	rootCmd.AddCommand(initCmd)
}
