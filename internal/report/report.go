// Package report renders run summaries for the terminal and as JSON for
// machine consumption.
package report

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"goldtest/internal/compare"
	"goldtest/internal/run"
)

// Color palette shared with the review TUI.
var (
	ColorPass   = lipgloss.Color("42")  // green
	ColorFail   = lipgloss.Color("196") // red
	ColorNew    = lipgloss.Color("220") // yellow
	ColorSkip   = lipgloss.Color("245") // grey
	ColorHeader = lipgloss.Color("63")  // violet
)

var (
	passStyle   = lipgloss.NewStyle().Foreground(ColorPass).Bold(true)
	failStyle   = lipgloss.NewStyle().Foreground(ColorFail).Bold(true)
	newStyle    = lipgloss.NewStyle().Foreground(ColorNew).Bold(true)
	skipStyle   = lipgloss.NewStyle().Foreground(ColorSkip)
	headerStyle = lipgloss.NewStyle().Foreground(ColorHeader).Bold(true)
	mutedStyle  = lipgloss.NewStyle().Foreground(ColorSkip)
	addedStyle  = lipgloss.NewStyle().Foreground(ColorPass)
	removedSt   = lipgloss.NewStyle().Foreground(ColorFail)
)

// Renderer writes human-readable reports.
type Renderer struct {
	w io.Writer

	// Verbose includes passing cases in the listing.
	Verbose bool

	// NoColor disables styling (also effective when the writer is not a
	// terminal; lipgloss degrades on its own, this forces it).
	NoColor bool
}

// NewRenderer creates a Renderer writing to w.
func NewRenderer(w io.Writer) *Renderer {
	return &Renderer{w: w}
}

func (r *Renderer) style(s lipgloss.Style, text string) string {
	if r.NoColor {
		return text
	}
	return s.Render(text)
}

// Render writes the full run report: per-case lines, diffs for failures,
// and the summary footer.
func (r *Renderer) Render(summary *run.Summary) {
	for _, res := range summary.Results {
		r.renderCase(res)
	}
	r.renderFooter(summary)
}

func (r *Renderer) renderCase(res run.CaseResult) {
	switch res.Outcome {
	case run.OutcomePass:
		if r.Verbose {
			fmt.Fprintf(r.w, "%s %s\n", r.style(passStyle, "PASS"), res.Case.Name)
		}

	case run.OutcomeSkip:
		fmt.Fprintf(r.w, "%s %s (%s)\n", r.style(skipStyle, "SKIP"), res.Case.Name, res.Message)

	case run.OutcomeBlessed:
		fmt.Fprintf(r.w, "%s %s\n", r.style(newStyle, "BLESS"), res.Case.Name)

	case run.OutcomeNew:
		fmt.Fprintf(r.w, "%s %s: %s\n", r.style(newStyle, "NEW"), res.Case.Name, res.Message)
		r.renderDiff(res.StderrDiff, res.Case.Golden, "captured stderr")

	case run.OutcomeError:
		fmt.Fprintf(r.w, "%s %s: %s\n", r.style(failStyle, "ERROR"), res.Case.Name, res.Message)

	case run.OutcomeTimeout:
		fmt.Fprintf(r.w, "%s %s: %s\n", r.style(failStyle, "TIMEOUT"), res.Case.Name, res.Message)

	case run.OutcomeFail:
		line := fmt.Sprintf("%s %s", r.style(failStyle, "FAIL"), res.Case.Name)
		if res.Message != "" {
			line += ": " + res.Message
		}
		fmt.Fprintln(r.w, line)
		r.renderDiff(res.StderrDiff, res.Case.Golden, "captured stderr")
		r.renderDiff(res.StdoutDiff, res.Case.StdoutGolden, "captured stdout")
	}
}

func (r *Renderer) renderDiff(d *compare.Diff, goldenPath, label string) {
	if d == nil || d.Equal {
		return
	}

	unified := d.Unified(goldenPath, label)
	for _, line := range strings.Split(strings.TrimRight(unified, "\n"), "\n") {
		switch {
		case strings.HasPrefix(line, "+"):
			fmt.Fprintf(r.w, "    %s\n", r.style(addedStyle, line))
		case strings.HasPrefix(line, "-"):
			fmt.Fprintf(r.w, "    %s\n", r.style(removedSt, line))
		case strings.HasPrefix(line, "@@"):
			fmt.Fprintf(r.w, "    %s\n", r.style(mutedStyle, line))
		default:
			fmt.Fprintf(r.w, "    %s\n", line)
		}
	}
}

func (r *Renderer) renderFooter(summary *run.Summary) {
	parts := []string{
		r.style(passStyle, fmt.Sprintf("%d passed", summary.Passed)),
	}
	if summary.Failed > 0 {
		parts = append(parts, r.style(failStyle, fmt.Sprintf("%d failed", summary.Failed)))
	}
	if summary.New > 0 {
		parts = append(parts, r.style(newStyle, fmt.Sprintf("%d new", summary.New)))
	}
	if summary.Blessed > 0 {
		parts = append(parts, r.style(newStyle, fmt.Sprintf("%d blessed", summary.Blessed)))
	}
	if summary.Errors > 0 {
		parts = append(parts, r.style(failStyle, fmt.Sprintf("%d errors", summary.Errors)))
	}
	if summary.Skipped > 0 {
		parts = append(parts, r.style(skipStyle, fmt.Sprintf("%d skipped", summary.Skipped)))
	}

	fmt.Fprintf(r.w, "\n%s %s in %s\n",
		r.style(headerStyle, summary.Suite+":"),
		strings.Join(parts, ", "),
		summary.Duration.Round(1_000_000), // ms resolution
	)
}
