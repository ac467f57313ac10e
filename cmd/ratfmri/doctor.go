package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/ZhaoyuDeng/RodentMRI-pipeline/internal/config"
	"github.com/ZhaoyuDeng/RodentMRI-pipeline/internal/pipeline"
	"github.com/ZhaoyuDeng/RodentMRI-pipeline/internal/tools"
	"github.com/ZhaoyuDeng/RodentMRI-pipeline/internal/vol"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check configuration, study layout and external tools",
	Long: `Run health checks against the configured study before starting a run.

This command checks:
- Configuration file loads and validates
- Data root exists and subjects are discovered
- Template-space reference volumes are readable NIfTI on one grid
- The repetition time is resolvable
- External tools needed by the enabled stages are on PATH

Exit codes:
  0 - All checks passed
  1 - One or more checks failed
  2 - Configuration cannot be loaded`,
	Run: func(cmd *cobra.Command, args []string) {
		verbose, _ := cmd.Flags().GetBool("verbose")

		green := color.New(color.FgGreen).SprintFunc()
		red := color.New(color.FgRed).SprintFunc()
		yellow := color.New(color.FgYellow).SprintFunc()
		cyan := color.New(color.FgCyan).SprintFunc()

		fmt.Printf("Checking ratfmri environment...\n\n")

		var failures []string
		var warnings []string

		// Check 1: configuration
		fmt.Printf("%s Configuration\n", cyan("→"))
		cfg, err := config.Load(cfgFile)
		if err != nil {
			fmt.Printf("  %s %v\n", red("✗"), err)
			fmt.Printf("\n%s Fix the configuration before running any other check.\n", red("✗"))
			os.Exit(2)
		}
		fmt.Printf("  %s Loaded %s\n", green("✓"), cfgFile)

		// Check 2: study layout
		fmt.Printf("%s Study layout\n", cyan("→"))
		if cfg.Data.Root == "" {
			failures = append(failures, "data.root is not set")
			fmt.Printf("  %s data.root is not set\n", red("✗"))
		} else if info, err := os.Stat(cfg.Data.Root); err != nil || !info.IsDir() {
			failures = append(failures, fmt.Sprintf("data.root %s is not a directory", cfg.Data.Root))
			fmt.Printf("  %s data.root %s is not a directory\n", red("✗"), cfg.Data.Root)
		} else {
			fmt.Printf("  %s Data root: %s\n", green("✓"), cfg.Data.Root)

			subjects, err := pipeline.Discover(cfg)
			if err != nil {
				failures = append(failures, fmt.Sprintf("subject discovery: %v", err))
				fmt.Printf("  %s No subjects match %s\n", red("✗"), cfg.Data.SubjectGlob)
			} else {
				var missing int
				for _, s := range subjects {
					if s.Func == "" {
						missing++
						if verbose {
							fmt.Printf("    %s has no scan matching %s\n", s.ID, cfg.Data.FuncPattern)
						}
					}
				}
				fmt.Printf("  %s Found %d subject(s)\n", green("✓"), len(subjects))
				if missing > 0 {
					warnings = append(warnings, fmt.Sprintf("%d subject(s) have no functional scan", missing))
					fmt.Printf("  %s %d subject(s) have no scan matching %s\n", yellow("⚠"), missing, cfg.Data.FuncPattern)
				}

				// Check 3: repetition time
				fmt.Printf("%s Repetition time\n", cyan("→"))
				switch {
				case cfg.Data.TR > 0:
					fmt.Printf("  %s Fixed at %g s\n", green("✓"), cfg.Data.TR)
				case firstFunc(subjects) == "":
					fmt.Printf("  %s No scan available to read the TR from\n", yellow("⚠"))
					warnings = append(warnings, "TR unchecked: no functional scan found")
				default:
					hdr, _, err := vol.ReadHeaderFile(firstFunc(subjects))
					switch {
					case err != nil:
						failures = append(failures, fmt.Sprintf("cannot read %s: %v", firstFunc(subjects), err))
						fmt.Printf("  %s Cannot read %s\n", red("✗"), firstFunc(subjects))
					case hdr.TR() <= 0:
						failures = append(failures, "TR missing from headers; set data.tr")
						fmt.Printf("  %s Headers carry no usable TR; set data.tr\n", red("✗"))
					default:
						fmt.Printf("  %s From headers: %g s\n", green("✓"), hdr.TR())
					}
				}
			}
		}

		// Check 4: reference volumes
		fmt.Printf("%s Reference volumes\n", cyan("→"))
		refs := []struct {
			key, path string
			needed    bool
			why       string
		}{
			{"space.brain_mask", cfg.Space.BrainMask, true, "every analysis stage"},
			{"space.template", cfg.Space.Template, cfg.Preproc.Register, "preproc.register"},
			{"space.wm_mask", cfg.Space.WMMask, cfg.Denoise.WM, "denoise.wm"},
			{"space.csf_mask", cfg.Space.CSFMask, cfg.Denoise.CSF, "denoise.csf"},
			{"space.atlas", cfg.Space.Atlas, cfg.FC.Matrix, "fc.matrix"},
		}
		var gridRef *vol.Header
		for _, ref := range refs {
			if ref.path == "" {
				if ref.needed {
					failures = append(failures, fmt.Sprintf("%s is not set (needed by %s)", ref.key, ref.why))
					fmt.Printf("  %s %s is not set (needed by %s)\n", red("✗"), ref.key, ref.why)
				} else if verbose {
					fmt.Printf("    %s not set, not needed\n", ref.key)
				}
				continue
			}
			hdr, _, err := vol.ReadHeaderFile(ref.path)
			if err != nil {
				failures = append(failures, fmt.Sprintf("%s: %v", ref.key, err))
				fmt.Printf("  %s %s is not readable NIfTI: %s\n", red("✗"), ref.key, ref.path)
				if verbose {
					fmt.Printf("    Error: %v\n", err)
				}
				continue
			}
			nx, ny, nz := hdr.SpatialDims()
			fmt.Printf("  %s %s: %s", green("✓"), ref.key, ref.path)
			if verbose {
				fmt.Printf(" (%dx%dx%d)", nx, ny, nz)
			}
			fmt.Println()

			if gridRef == nil {
				h := hdr
				gridRef = &h
			} else if err := vol.CheckSameGrid(*gridRef, hdr); err != nil {
				failures = append(failures, fmt.Sprintf("%s is on a different grid: %v", ref.key, err))
				fmt.Printf("  %s %s is on a different grid than %s\n", red("✗"), ref.key, refs[0].key)
			}
		}

		// Check 5: external tools
		fmt.Printf("%s External tools\n", cyan("→"))
		needed := neededTools(cfg)
		if len(needed) == 0 {
			fmt.Printf("  %s No external tools required by the enabled stages\n", green("✓"))
		}
		for _, name := range needed {
			path, err := tools.Which(name)
			if err != nil {
				failures = append(failures, fmt.Sprintf("%s not found on PATH", name))
				fmt.Printf("  %s %s not found on PATH\n", red("✗"), name)
				continue
			}
			fmt.Printf("  %s %s", green("✓"), name)
			if verbose {
				fmt.Printf(" (%s)", path)
			}
			fmt.Println()
		}

		// Summary
		fmt.Printf("\n%s\n", strings.Repeat("─", 60))

		if len(failures) == 0 && len(warnings) == 0 {
			fmt.Printf("%s All checks passed! The study is ready to run.\n", green("✓"))
			os.Exit(0)
		}

		if len(failures) > 0 {
			fmt.Printf("\n%s Failures (%d):\n", red("✗"), len(failures))
			for _, f := range failures {
				fmt.Printf("  • %s\n", f)
			}
		}
		if len(warnings) > 0 {
			fmt.Printf("\n%s Warnings (%d):\n", yellow("⚠"), len(warnings))
			for _, w := range warnings {
				fmt.Printf("  • %s\n", w)
			}
		}

		if len(failures) > 0 {
			fmt.Printf("\n%s The pipeline will not run cleanly. Address the failures above.\n", red("✗"))
			os.Exit(1)
		}
		fmt.Printf("\n%s The pipeline should run, but some warnings were detected.\n", green("✓"))
		os.Exit(0)
	},
}

func init() {
	doctorCmd.Flags().BoolP("verbose", "v", false, "Show detailed diagnostic information")
	rootCmd.AddCommand(doctorCmd)
}

// neededTools lists the external programs the enabled stages will call.
func neededTools(cfg config.Config) []string {
	var need []string
	if cfg.Preproc.SliceTiming {
		need = append(need, tools.ToolSliceTimer)
	}
	if cfg.Preproc.Realign {
		need = append(need, tools.ToolMCFLIRT)
	}
	if cfg.Preproc.Register {
		need = append(need, tools.ToolANTsRegister, tools.ToolANTsApply)
	}
	if cfg.Preproc.Smooth {
		need = append(need, tools.ToolFSLMaths)
	}
	return need
}

func firstFunc(subjects []pipeline.Subject) string {
	for _, s := range subjects {
		if s.Func != "" {
			return s.Func
		}
	}
	return ""
}
