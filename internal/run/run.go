// Package run executes a suite: each case's source program goes through
// the tool under test, captured stderr is normalized and compared against
// the case's golden file, and the outcomes are aggregated into a Summary.
package run

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"goldtest/internal/compare"
	"goldtest/internal/config"
	"goldtest/internal/gold"
	"goldtest/internal/logging"
	"goldtest/internal/normalize"
	"goldtest/internal/suite"
	"goldtest/internal/toolexec"
)

// Mode selects what happens on mismatch.
type Mode int

const (
	// ModeCheck reports mismatches as failures. Goldens are never written.
	ModeCheck Mode = iota

	// ModeBless rewrites goldens from captured output.
	ModeBless

	// ModePending stores captured output as pending snapshots for review.
	ModePending
)

// Outcome classifies a single case result.
type Outcome string

const (
	OutcomePass    Outcome = "pass"
	OutcomeFail    Outcome = "fail"
	OutcomeNew     Outcome = "new"     // No golden existed for the case
	OutcomeSkip    Outcome = "skip"    // Case skipped by directive
	OutcomeError   Outcome = "error"   // Harness infrastructure failure
	OutcomeTimeout Outcome = "timeout" // Tool killed by the deadline
	OutcomeBlessed Outcome = "blessed" // Golden written in bless mode
)

// CaseResult is the outcome of one case.
type CaseResult struct {
	Case    suite.Case
	Outcome Outcome

	// Message explains non-pass outcomes (skip reason, exec error,
	// exit-code mismatch).
	Message string

	// StderrDiff and StdoutDiff are set when the respective stream
	// mismatched. Nil when the stream matched or was not checked.
	StderrDiff *compare.Diff
	StdoutDiff *compare.Diff

	// Actual holds the normalized captured streams, for blessing and
	// reporting.
	ActualStderr string
	ActualStdout string

	ExitCode int
	Duration time.Duration
}

// Failed reports whether the result should fail the run in check mode.
func (r CaseResult) Failed() bool {
	switch r.Outcome {
	case OutcomeFail, OutcomeNew, OutcomeError, OutcomeTimeout:
		return true
	}
	return false
}

// Summary aggregates a whole run.
type Summary struct {
	RunID    string
	Suite    string
	Mode     Mode
	Started  time.Time
	Duration time.Duration
	Results  []CaseResult

	Passed  int
	Failed  int
	New     int
	Skipped int
	Errors  int
	Blessed int
}

// Ok reports whether the run should exit zero.
func (s *Summary) Ok() bool {
	return s.Failed == 0 && s.New == 0 && s.Errors == 0
}

// Runner coordinates case execution.
type Runner struct {
	cfg      *config.Config
	executor toolexec.Executor
	norm     *normalize.Normalizer
	engine   *compare.Engine
	workers  int
}

// New builds a Runner. The executor is injectable for tests.
func New(cfg *config.Config, executor toolexec.Executor, norm *normalize.Normalizer) *Runner {
	workers := cfg.Execution.Workers
	if workers < 1 {
		workers = 1
	}
	return &Runner{
		cfg:      cfg,
		executor: executor,
		norm:     norm,
		engine:   compare.NewEngine(),
		workers:  workers,
	}
}

// Run executes the given cases and returns the Summary. Case order in
// Results matches the input order regardless of scheduling.
func (r *Runner) Run(ctx context.Context, cases []suite.Case, mode Mode) (*Summary, error) {
	summary := &Summary{
		RunID:   uuid.NewString(),
		Suite:   r.cfg.Name,
		Mode:    mode,
		Started: time.Now(),
		Results: make([]CaseResult, len(cases)),
	}

	logging.Harness("Run %s: %d cases, %d workers, mode=%d", summary.RunID, len(cases), r.workers, mode)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.workers)

	for i, c := range cases {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			summary.Results[i] = r.runCase(gctx, c, mode)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("run aborted: %w", err)
	}

	summary.Duration = time.Since(summary.Started)
	for _, res := range summary.Results {
		switch res.Outcome {
		case OutcomePass:
			summary.Passed++
		case OutcomeFail, OutcomeTimeout:
			summary.Failed++
		case OutcomeNew:
			summary.New++
		case OutcomeSkip:
			summary.Skipped++
		case OutcomeError:
			summary.Errors++
		case OutcomeBlessed:
			summary.Blessed++
		}
	}

	logging.Harness("Run %s finished: %d passed, %d failed, %d new, %d skipped, %d errors, %d blessed",
		summary.RunID, summary.Passed, summary.Failed, summary.New, summary.Skipped, summary.Errors, summary.Blessed)

	return summary, nil
}

// runCase executes one case end to end.
func (r *Runner) runCase(ctx context.Context, c suite.Case, mode Mode) CaseResult {
	result := CaseResult{Case: c}

	if reason := c.Directives.SkipReason(); reason != "" {
		result.Outcome = OutcomeSkip
		result.Message = reason
		return result
	}

	norm := r.norm
	if len(c.Directives.Normalize) > 0 {
		var err error
		norm, err = r.norm.WithRules(c.Directives.Normalize)
		if err != nil {
			result.Outcome = OutcomeError
			result.Message = err.Error()
			return result
		}
	}

	res := r.executor.Execute(ctx, r.buildCommand(c))
	result.Duration = res.Duration
	result.ExitCode = res.ExitCode

	if res.Infra() {
		result.Outcome = OutcomeError
		result.Message = res.Err.Error()
		return result
	}
	if res.TimedOut {
		result.Outcome = OutcomeTimeout
		result.Message = "tool killed by timeout"
		return result
	}

	result.ActualStderr = norm.Apply(res.Stderr)
	result.ActualStdout = norm.Apply(res.Stdout)

	if mode == ModeBless {
		return r.bless(c, result)
	}
	if mode == ModePending {
		return r.pend(c, norm, result)
	}

	return r.check(c, norm, result)
}

// buildCommand assembles the tool invocation for a case. Per-case args
// replace the suite-level args entirely; the source path is always the
// final argument.
func (r *Runner) buildCommand(c suite.Case) toolexec.Command {
	args := r.cfg.Tool.Args
	if c.Directives.Args != nil {
		args = c.Directives.Args
	}
	full := make([]string, 0, len(args)+1)
	full = append(full, args...)
	full = append(full, c.Source)

	env := make([]string, 0, len(r.cfg.Tool.Env)+len(c.Directives.Env))
	env = append(env, r.cfg.Tool.Env...)
	env = append(env, c.Directives.Env...)

	return toolexec.Command{
		Binary:  r.cfg.Tool.Binary,
		Args:    full,
		Env:     env,
		Stdin:   c.Directives.Stdin,
		Timeout: c.Directives.Timeout,
	}
}

// check compares captured output against goldens.
func (r *Runner) check(c suite.Case, norm *normalize.Normalizer, result CaseResult) CaseResult {
	// Exit code first: a matching message from a crashing tool is still
	// a regression.
	if result.ExitCode != c.Directives.ExitCode {
		result.Outcome = OutcomeFail
		result.Message = fmt.Sprintf("exit code %d, expected %d", result.ExitCode, c.Directives.ExitCode)
	}

	golden, ok, err := gold.Load(c.Golden)
	if err != nil {
		result.Outcome = OutcomeError
		result.Message = err.Error()
		return result
	}
	if !ok {
		result.Outcome = OutcomeNew
		result.StderrDiff = r.engine.CompareMissing(result.ActualStderr)
		if result.Message == "" {
			result.Message = "no golden file; run bless to create it"
		}
		return result
	}

	diff := r.engine.Compare(norm.Golden(golden), result.ActualStderr)
	if !diff.Equal {
		result.Outcome = OutcomeFail
		result.StderrDiff = diff
	}

	if c.HasStdoutGolden || c.Directives.CheckStdout {
		stdoutGolden, ok, err := gold.Load(c.StdoutGolden)
		if err != nil {
			result.Outcome = OutcomeError
			result.Message = err.Error()
			return result
		}
		if !ok {
			stdoutGolden = ""
		}
		sd := r.engine.Compare(norm.Golden(stdoutGolden), result.ActualStdout)
		if !sd.Equal {
			result.Outcome = OutcomeFail
			result.StdoutDiff = sd
		}
	}

	if result.Outcome == "" {
		result.Outcome = OutcomePass
	}
	return result
}

// bless writes captured output over the goldens. Matching cases pass
// untouched so bless output shows what actually changed.
func (r *Runner) bless(c suite.Case, result CaseResult) CaseResult {
	golden, ok, err := gold.Load(c.Golden)
	if err == nil && ok && golden == result.ActualStderr && !c.Directives.CheckStdout && !c.HasStdoutGolden {
		result.Outcome = OutcomePass
		return result
	}

	if err := gold.Write(c.Golden, result.ActualStderr); err != nil {
		result.Outcome = OutcomeError
		result.Message = err.Error()
		return result
	}
	if c.HasStdoutGolden || c.Directives.CheckStdout {
		if err := gold.Write(c.StdoutGolden, result.ActualStdout); err != nil {
			result.Outcome = OutcomeError
			result.Message = err.Error()
			return result
		}
	}

	result.Outcome = OutcomeBlessed
	return result
}

// pend runs a normal check but stores mismatching output as pending
// snapshots instead of failing silently.
func (r *Runner) pend(c suite.Case, norm *normalize.Normalizer, result CaseResult) CaseResult {
	result = r.check(c, norm, result)
	if result.Outcome == OutcomeFail || result.Outcome == OutcomeNew {
		if result.StderrDiff != nil {
			if err := gold.WritePending(c.Golden, result.ActualStderr); err != nil {
				result.Outcome = OutcomeError
				result.Message = err.Error()
				return result
			}
		}
		if result.StdoutDiff != nil {
			if err := gold.WritePending(c.StdoutGolden, result.ActualStdout); err != nil {
				result.Outcome = OutcomeError
				result.Message = err.Error()
				return result
			}
		}
	}
	return result
}
