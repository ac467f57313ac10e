// Package tools drives the external neuroimaging programs the pipeline
// orchestrates. Every invocation is a checked subprocess: a non-zero exit
// fails the stage with the tool's output attached.
package tools

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/sirupsen/logrus"
)

// Names of the external programs the preprocessing stages call.
const (
	ToolSliceTimer   = "slicetimer"
	ToolMCFLIRT      = "mcflirt"
	ToolFSLMaths     = "fslmaths"
	ToolANTsRegister = "antsRegistrationSyNQuick.sh"
	ToolANTsApply    = "antsApplyTransforms"
)

// Required lists every external tool a full run may need.
func Required() []string {
	return []string{
		ToolSliceTimer,
		ToolMCFLIRT,
		ToolFSLMaths,
		ToolANTsRegister,
		ToolANTsApply,
	}
}

// Runner executes external tools. The zero value is usable; DryRun logs
// commands without executing them. ExtraEnv entries are appended to the
// inherited environment, e.g. to pin FSLOUTPUTTYPE.
type Runner struct {
	Log      *logrus.Logger
	DryRun   bool
	ExtraEnv []string
}

func (r *Runner) logger() *logrus.Logger {
	if r.Log != nil {
		return r.Log
	}
	return logrus.StandardLogger()
}

// Run executes one tool and waits for it. Cancelling the context kills the
// process.
func (r *Runner) Run(ctx context.Context, name string, args ...string) error {
	log := r.logger().WithFields(logrus.Fields{
		"tool": name,
		"args": strings.Join(args, " "),
	})
	if r.DryRun {
		log.Info("dry-run: skipping")
		return nil
	}
	log.Debug("running")

	cmd := exec.CommandContext(ctx, name, args...)
	if len(r.ExtraEnv) > 0 {
		cmd.Env = append(os.Environ(), r.ExtraEnv...)
	}
	output, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("tools: %s failed: %w (output: %s)", name, err, strings.TrimSpace(string(output)))
	}
	return nil
}

// Which resolves a tool on PATH.
func Which(name string) (string, error) {
	path, err := exec.LookPath(name)
	if err != nil {
		return "", fmt.Errorf("tools: %s not found on PATH: %w", name, err)
	}
	return path, nil
}
