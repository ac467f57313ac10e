package pipeline

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// Report is the machine-readable run summary.
type Report struct {
	GeneratedAt time.Time     `json:"generated_at"`
	DataRoot    string        `json:"data_root"`
	Subjects    int           `json:"subjects"`
	Failed      []string      `json:"failed_subjects"`
	Stages      []StageResult `json:"stages"`
}

// StageResult is one stage attempt in the report.
type StageResult struct {
	Subject string  `json:"subject"`
	Stage   string  `json:"stage"`
	Status  string  `json:"status"`
	Error   string  `json:"error,omitempty"`
	Seconds float64 `json:"seconds"`
}

// Stage statuses in the report.
const (
	StatusOK      = "ok"
	StatusSkipped = "skipped"
	StatusFailed  = "failed"
)

// BuildReport summarizes a run.
func BuildReport(e *Env, subjects []Subject, results []Result) Report {
	rep := Report{
		GeneratedAt: time.Now().UTC(),
		DataRoot:    e.Cfg.Data.Root,
		Subjects:    len(subjects),
		Failed:      FailedSubjects(results),
	}
	for _, r := range results {
		sr := StageResult{
			Subject: r.Subject,
			Stage:   r.Stage,
			Status:  StatusOK,
			Seconds: r.Duration.Seconds(),
		}
		if r.Skipped {
			sr.Status = StatusSkipped
		}
		if r.Err != nil {
			sr.Status = StatusFailed
			sr.Error = r.Err.Error()
		}
		rep.Stages = append(rep.Stages, sr)
	}
	return rep
}

// WriteReport writes the run summary as report.json and report.tsv in dir.
func WriteReport(dir string, rep Report) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("pipeline: report dir: %w", err)
	}

	jsonPath := filepath.Join(dir, "report.json")
	data, err := json.MarshalIndent(rep, "", "  ")
	if err != nil {
		return fmt.Errorf("pipeline: marshal report: %w", err)
	}
	if err := os.WriteFile(jsonPath, data, 0o644); err != nil {
		return fmt.Errorf("pipeline: write %s: %w", jsonPath, err)
	}

	tsvPath := filepath.Join(dir, "report.tsv")
	f, err := os.Create(tsvPath)
	if err != nil {
		return fmt.Errorf("pipeline: write %s: %w", tsvPath, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	w.Comma = '\t'
	if err := w.Write([]string{"subject", "stage", "status", "seconds", "error"}); err != nil {
		return fmt.Errorf("pipeline: write %s: %w", tsvPath, err)
	}
	for _, sr := range rep.Stages {
		record := []string{
			sr.Subject,
			sr.Stage,
			sr.Status,
			strconv.FormatFloat(sr.Seconds, 'f', 3, 64),
			sr.Error,
		}
		if err := w.Write(record); err != nil {
			return fmt.Errorf("pipeline: write %s: %w", tsvPath, err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("pipeline: write %s: %w", tsvPath, err)
	}
	return f.Close()
}
