package report

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"goldtest/internal/run"
)

// JSONReport is the machine-readable run report.
type JSONReport struct {
	RunID    string       `json:"run_id"`
	Suite    string       `json:"suite"`
	Started  time.Time    `json:"started"`
	Duration string       `json:"duration"`
	Passed   int          `json:"passed"`
	Failed   int          `json:"failed"`
	New      int          `json:"new"`
	Skipped  int          `json:"skipped"`
	Errors   int          `json:"errors"`
	Blessed  int          `json:"blessed"`
	Cases    []JSONResult `json:"cases"`
}

// JSONResult is one case in the JSON report.
type JSONResult struct {
	Name     string `json:"name"`
	Outcome  string `json:"outcome"`
	Message  string `json:"message,omitempty"`
	ExitCode int    `json:"exit_code"`
	Duration string `json:"duration"`
	Diff     string `json:"diff,omitempty"`
}

// WriteJSON writes the run summary as indented JSON.
func WriteJSON(w io.Writer, summary *run.Summary) error {
	rep := JSONReport{
		RunID:    summary.RunID,
		Suite:    summary.Suite,
		Started:  summary.Started,
		Duration: summary.Duration.String(),
		Passed:   summary.Passed,
		Failed:   summary.Failed,
		New:      summary.New,
		Skipped:  summary.Skipped,
		Errors:   summary.Errors,
		Blessed:  summary.Blessed,
	}

	for _, res := range summary.Results {
		jr := JSONResult{
			Name:     res.Case.Name,
			Outcome:  string(res.Outcome),
			Message:  res.Message,
			ExitCode: res.ExitCode,
			Duration: res.Duration.String(),
		}
		if res.StderrDiff != nil && !res.StderrDiff.Equal {
			jr.Diff = res.StderrDiff.Unified(res.Case.Golden, "captured stderr")
		}
		rep.Cases = append(rep.Cases, jr)
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(rep); err != nil {
		return fmt.Errorf("encode JSON report: %w", err)
	}
	return nil
}
