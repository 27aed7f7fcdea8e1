package history

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"goldtest/internal/run"
	"goldtest/internal/suite"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func summaryAt(id string, started time.Time, results []run.CaseResult) *run.Summary {
	s := &run.Summary{
		RunID:    id,
		Suite:    "ui",
		Started:  started,
		Duration: 500 * time.Millisecond,
		Results:  results,
	}
	for _, r := range results {
		switch r.Outcome {
		case run.OutcomePass:
			s.Passed++
		case run.OutcomeFail:
			s.Failed++
		}
	}
	return s
}

func TestRecordAndRecentRuns(t *testing.T) {
	s := newTestStore(t)
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, s.Record(summaryAt("run-1", base, []run.CaseResult{
		{Case: suite.Case{Name: "a.rs"}, Outcome: run.OutcomePass},
	})))
	require.NoError(t, s.Record(summaryAt("run-2", base.Add(time.Hour), []run.CaseResult{
		{Case: suite.Case{Name: "a.rs"}, Outcome: run.OutcomeFail, Message: "diff"},
	})))

	runs, err := s.RecentRuns(10)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "run-2", runs[0].ID) // newest first
	assert.Equal(t, 1, runs[0].Failed)
	assert.Equal(t, 1, runs[1].Passed)
	assert.Equal(t, 500*time.Millisecond, runs[0].Duration)
}

func TestCaseHistory(t *testing.T) {
	s := newTestStore(t)
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	for i, outcome := range []run.Outcome{run.OutcomePass, run.OutcomeFail, run.OutcomePass} {
		require.NoError(t, s.Record(summaryAt(
			"run-"+string(rune('a'+i)), base.Add(time.Duration(i)*time.Hour),
			[]run.CaseResult{{Case: suite.Case{Name: "flappy.rs"}, Outcome: outcome}},
		)))
	}

	hist, err := s.CaseHistory("flappy.rs", 2)
	require.NoError(t, err)
	require.Len(t, hist, 2)
	assert.Equal(t, "pass", hist[0].Outcome)
	assert.Equal(t, "fail", hist[1].Outcome)

	none, err := s.CaseHistory("unknown.rs", 5)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestFlakyCases(t *testing.T) {
	s := newTestStore(t)
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	outcomes := [][]run.Outcome{
		{run.OutcomePass, run.OutcomePass}, // steady.rs always passes
		{run.OutcomePass, run.OutcomeFail}, // flappy.rs alternates
		{run.OutcomePass, run.OutcomePass},
	}
	for i, pair := range outcomes {
		require.NoError(t, s.Record(summaryAt(
			"run-"+string(rune('a'+i)), base.Add(time.Duration(i)*time.Hour),
			[]run.CaseResult{
				{Case: suite.Case{Name: "steady.rs"}, Outcome: pair[0]},
				{Case: suite.Case{Name: "flappy.rs"}, Outcome: pair[1]},
			},
		)))
	}

	flaky, err := s.FlakyCases(10)
	require.NoError(t, err)
	require.Len(t, flaky, 1)
	assert.Equal(t, "flappy.rs", flaky[0].Name)
	assert.Equal(t, 2, flaky[0].Passes)
	assert.Equal(t, 1, flaky[0].Fails)
}

func TestPrune(t *testing.T) {
	s := newTestStore(t)
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		require.NoError(t, s.Record(summaryAt(
			"run-"+string(rune('a'+i)), base.Add(time.Duration(i)*time.Hour),
			[]run.CaseResult{{Case: suite.Case{Name: "a.rs"}, Outcome: run.OutcomePass}},
		)))
	}

	require.NoError(t, s.Prune(2))

	runs, err := s.RecentRuns(10)
	require.NoError(t, err)
	assert.Len(t, runs, 2)
	assert.Equal(t, "run-e", runs[0].ID)

	// Case rows for pruned runs are gone too.
	hist, err := s.CaseHistory("a.rs", 10)
	require.NoError(t, err)
	assert.Len(t, hist, 2)
}
