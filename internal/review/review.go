// Package review provides the interactive pending-snapshot review
// screen. Each pending snapshot is shown as a diff against the
// current golden file and can be accepted or rejected one at a time.
package review

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"goldtest/internal/compare"
	"goldtest/internal/gold"
	"goldtest/internal/logging"
)

// Decision records what the reviewer chose for one snapshot.
type Decision int

const (
	DecisionPending Decision = iota
	DecisionAccepted
	DecisionRejected
)

// Item is one pending snapshot up for review.
type Item struct {
	GoldenPath string
	Name       string // Path relative to the suite root
	HasGolden  bool
	Diff       *compare.Diff
	Decision   Decision
}

// LoadItems collects pending snapshots under the given roots and
// diffs each against its golden file.
func LoadItems(suiteRoot string, roots ...string) ([]*Item, error) {
	var abs []string
	for _, r := range roots {
		abs = append(abs, filepath.Join(suiteRoot, r))
	}

	pendings, err := gold.FindPending(abs...)
	if err != nil {
		return nil, fmt.Errorf("scanning for pending snapshots: %w", err)
	}

	engine := compare.NewEngine()
	items := make([]*Item, 0, len(pendings))
	for _, goldenPath := range pendings {
		pendingContent, err := os.ReadFile(gold.PendingPath(goldenPath))
		if err != nil {
			return nil, fmt.Errorf("reading pending snapshot for %s: %w", goldenPath, err)
		}

		golden, hasGolden, err := gold.Load(goldenPath)
		if err != nil {
			return nil, err
		}

		var diff *compare.Diff
		if hasGolden {
			diff = engine.Compare(golden, string(pendingContent))
		} else {
			diff = engine.CompareMissing(string(pendingContent))
		}

		name, err := filepath.Rel(suiteRoot, goldenPath)
		if err != nil {
			name = goldenPath
		}

		items = append(items, &Item{
			GoldenPath: goldenPath,
			Name:       filepath.ToSlash(name),
			HasGolden:  hasGolden,
			Diff:       diff,
		})
	}

	logging.Bless("Loaded %d pending snapshots for review", len(items))
	return items, nil
}

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("63"))
	acceptStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("42"))
	rejectStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("196"))
	mutedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	addStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	delStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
)

// Model is the bubbletea model for the review screen.
type Model struct {
	items    []*Item
	index    int
	viewport viewport.Model
	width    int
	height   int
	done     bool
	err      error

	// Swappable for tests.
	promote func(goldenPath string) error
	reject  func(goldenPath string) error
}

// NewModel creates a review model over the given items.
func NewModel(items []*Item) Model {
	vp := viewport.New(80, 20)
	m := Model{
		items:    items,
		viewport: vp,
		width:    80,
		height:   24,
		promote:  gold.Promote,
		reject:   gold.Reject,
	}
	m.refresh()
	return m
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return nil
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.viewport.Width = msg.Width
		m.viewport.Height = msg.Height - 6
		m.refresh()
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			m.done = true
			return m, tea.Quit

		case "y", "a":
			if err := m.decide(DecisionAccepted); err != nil {
				m.err = err
				m.done = true
				return m, tea.Quit
			}
			return m.advance()

		case "n", "r":
			if err := m.decide(DecisionRejected); err != nil {
				m.err = err
				m.done = true
				return m, tea.Quit
			}
			return m.advance()

		case "right", "l", "tab":
			if m.index < len(m.items)-1 {
				m.index++
				m.refresh()
			}
			return m, nil

		case "left", "h":
			if m.index > 0 {
				m.index--
				m.refresh()
			}
			return m, nil
		}
	}

	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	return m, cmd
}

// decide applies the reviewer's choice to the current item.
func (m *Model) decide(d Decision) error {
	if m.index >= len(m.items) {
		return nil
	}
	item := m.items[m.index]
	if item.Decision != DecisionPending {
		return nil
	}

	var err error
	switch d {
	case DecisionAccepted:
		err = m.promote(item.GoldenPath)
		logging.Bless("Accepted snapshot for %s", item.Name)
	case DecisionRejected:
		err = m.reject(item.GoldenPath)
		logging.Bless("Rejected snapshot for %s", item.Name)
	}
	if err != nil {
		return fmt.Errorf("%s: %w", item.Name, err)
	}
	item.Decision = d
	return nil
}

// advance moves to the next undecided item, quitting when none remain.
func (m Model) advance() (tea.Model, tea.Cmd) {
	for i := m.index + 1; i < len(m.items); i++ {
		if m.items[i].Decision == DecisionPending {
			m.index = i
			m.refresh()
			return m, nil
		}
	}
	for i := 0; i < len(m.items); i++ {
		if m.items[i].Decision == DecisionPending {
			m.index = i
			m.refresh()
			return m, nil
		}
	}
	m.done = true
	return m, tea.Quit
}

// refresh rewrites the viewport content for the current item.
func (m *Model) refresh() {
	if len(m.items) == 0 || m.index >= len(m.items) {
		m.viewport.SetContent(mutedStyle.Render("No pending snapshots to review."))
		return
	}
	item := m.items[m.index]
	m.viewport.SetContent(m.renderDiff(item))
	m.viewport.GotoTop()
}

func (m *Model) renderDiff(item *Item) string {
	var sb strings.Builder

	label := "actual"
	unified := item.Diff.Unified(item.GoldenPath, label)
	for _, line := range strings.Split(unified, "\n") {
		switch {
		case strings.HasPrefix(line, "+++"), strings.HasPrefix(line, "---"):
			sb.WriteString(mutedStyle.Render(line))
		case strings.HasPrefix(line, "@@"):
			sb.WriteString(headerStyle.Render(line))
		case strings.HasPrefix(line, "+"):
			sb.WriteString(addStyle.Render(line))
		case strings.HasPrefix(line, "-"):
			sb.WriteString(delStyle.Render(line))
		default:
			sb.WriteString(line)
		}
		sb.WriteString("\n")
	}
	return sb.String()
}

// View implements tea.Model.
func (m Model) View() string {
	if len(m.items) == 0 {
		return mutedStyle.Render("No pending snapshots to review.") + "\n"
	}

	item := m.items[m.index]

	status := mutedStyle.Render("pending")
	switch item.Decision {
	case DecisionAccepted:
		status = acceptStyle.Render("accepted")
	case DecisionRejected:
		status = rejectStyle.Render("rejected")
	}

	kind := "changed"
	if !item.HasGolden {
		kind = "new"
	}

	header := headerStyle.Render(fmt.Sprintf("Snapshot %d/%d: %s", m.index+1, len(m.items), item.Name))
	sub := mutedStyle.Render(kind+" golden  ") + status
	controls := mutedStyle.Render("[y] accept  [n] reject  [←/→] prev/next  [q] quit")

	return header + "\n" + sub + "\n\n" + m.viewport.View() + "\n\n" + controls + "\n"
}

// Summary counts the decisions made during review.
func (m Model) Summary() (accepted, rejected, pending int) {
	for _, item := range m.items {
		switch item.Decision {
		case DecisionAccepted:
			accepted++
		case DecisionRejected:
			rejected++
		default:
			pending++
		}
	}
	return
}

// Err returns any error hit while applying a decision.
func (m Model) Err() error {
	return m.err
}

// Run drives the review screen to completion on the caller's
// terminal and reports the decision counts.
func Run(items []*Item) (accepted, rejected, pending int, err error) {
	m := NewModel(items)
	p := tea.NewProgram(m, tea.WithAltScreen())
	final, err := p.Run()
	if err != nil {
		return 0, 0, 0, err
	}
	fm := final.(Model)
	if fm.Err() != nil {
		return 0, 0, 0, fm.Err()
	}
	accepted, rejected, pending = fm.Summary()
	return accepted, rejected, pending, nil
}
