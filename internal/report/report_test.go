package report

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"goldtest/internal/compare"
	"goldtest/internal/run"
	"goldtest/internal/suite"
)

func sampleSummary() *run.Summary {
	engine := compare.NewEngine()
	return &run.Summary{
		RunID:    "run-1",
		Suite:    "rustc-ui",
		Duration: 1234 * time.Millisecond,
		Passed:   1,
		Failed:   1,
		Results: []run.CaseResult{
			{
				Case:    suite.Case{Name: "tests/ui/ok.rs"},
				Outcome: run.OutcomePass,
			},
			{
				Case:       suite.Case{Name: "tests/ui/drift.rs", Golden: "tests/ui/drift.stderr"},
				Outcome:    run.OutcomeFail,
				StderrDiff: engine.Compare("error: old\n", "error: new\n"),
			},
		},
	}
}

func TestRenderPlain(t *testing.T) {
	var buf bytes.Buffer
	r := NewRenderer(&buf)
	r.NoColor = true

	r.Render(sampleSummary())
	out := buf.String()

	if strings.Contains(out, "tests/ui/ok.rs") {
		t.Error("Passing case shown without verbose")
	}
	for _, want := range []string{"FAIL tests/ui/drift.rs", "-error: old", "+error: new", "1 passed", "1 failed"} {
		if !strings.Contains(out, want) {
			t.Errorf("Report missing %q:\n%s", want, out)
		}
	}
}

func TestRenderVerboseShowsPasses(t *testing.T) {
	var buf bytes.Buffer
	r := NewRenderer(&buf)
	r.NoColor = true
	r.Verbose = true

	r.Render(sampleSummary())
	if !strings.Contains(buf.String(), "PASS tests/ui/ok.rs") {
		t.Error("Verbose report should list passing cases")
	}
}

func TestWriteJSON(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteJSON(&buf, sampleSummary()); err != nil {
		t.Fatalf("WriteJSON failed: %v", err)
	}

	var rep JSONReport
	if err := json.Unmarshal(buf.Bytes(), &rep); err != nil {
		t.Fatalf("Report is not valid JSON: %v", err)
	}
	if rep.RunID != "run-1" || rep.Failed != 1 {
		t.Errorf("JSON fields mismatch: %+v", rep)
	}
	if len(rep.Cases) != 2 {
		t.Fatalf("Expected 2 cases, got %d", len(rep.Cases))
	}
	if rep.Cases[1].Diff == "" {
		t.Error("Failing case should carry a diff")
	}
}
