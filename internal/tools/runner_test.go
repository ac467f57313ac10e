package tools

import (
	"context"
	"io"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
)

func quietRunner(dryRun bool) *Runner {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return &Runner{Log: log, DryRun: dryRun}
}

func TestRunDryRun(t *testing.T) {
	r := quietRunner(true)
	if err := r.Run(context.Background(), "no-such-tool-anywhere"); err != nil {
		t.Fatalf("dry run executed the tool: %v", err)
	}
}

func TestRunMissingTool(t *testing.T) {
	r := quietRunner(false)
	err := r.Run(context.Background(), "no-such-tool-anywhere")
	if err == nil {
		t.Fatal("expected an error for a missing tool")
	}
	if !strings.Contains(err.Error(), "no-such-tool-anywhere") {
		t.Errorf("error does not name the tool: %v", err)
	}
}

func TestRunFailureCarriesOutput(t *testing.T) {
	r := quietRunner(false)
	err := r.Run(context.Background(), "sh", "-c", "echo boom >&2; exit 3")
	if err == nil {
		t.Fatal("expected an error for a non-zero exit")
	}
	if !strings.Contains(err.Error(), "boom") {
		t.Errorf("error does not carry the tool output: %v", err)
	}
}

func TestRunSuccess(t *testing.T) {
	r := quietRunner(false)
	if err := r.Run(context.Background(), "sh", "-c", "exit 0"); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
}

func TestRunCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	r := quietRunner(false)
	if err := r.Run(ctx, "sh", "-c", "sleep 5"); err == nil {
		t.Fatal("expected an error for a cancelled context")
	}
}

func TestWhich(t *testing.T) {
	path, err := Which("sh")
	if err != nil {
		t.Fatalf("Which(sh) failed: %v", err)
	}
	if path == "" {
		t.Fatal("Which(sh) returned an empty path")
	}

	if _, err := Which("no-such-tool-anywhere"); err == nil {
		t.Fatal("expected an error for a missing tool")
	}
}

func TestRequiredNamesEveryStageTool(t *testing.T) {
	want := map[string]bool{
		ToolSliceTimer:   true,
		ToolMCFLIRT:      true,
		ToolFSLMaths:     true,
		ToolANTsRegister: true,
		ToolANTsApply:    true,
	}
	got := Required()
	if len(got) != len(want) {
		t.Fatalf("Required() has %d tools, want %d", len(got), len(want))
	}
	for _, name := range got {
		if !want[name] {
			t.Errorf("unexpected tool %q", name)
		}
	}
}
