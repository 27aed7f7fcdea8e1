package compare

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestCompareEqual(t *testing.T) {
	e := NewEngine()

	d := e.Compare("error: boom\n", "error: boom\n")
	if !d.Equal {
		t.Fatal("Expected equal")
	}
	if len(d.Hunks) != 0 {
		t.Errorf("Equal diff should have no hunks, got %d", len(d.Hunks))
	}
}

func TestCompareSingleChangedLine(t *testing.T) {
	e := NewEngine()

	golden := "error[E0001]: first\n  --> $DIR/a.rs:1:1\nnote: help text\n"
	actual := "error[E0002]: first\n  --> $DIR/a.rs:1:1\nnote: help text\n"

	d := e.Compare(golden, actual)
	if d.Equal {
		t.Fatal("Expected mismatch")
	}
	if len(d.Hunks) != 1 {
		t.Fatalf("Expected 1 hunk, got %d", len(d.Hunks))
	}

	added, removed := d.Stats()
	if added != 1 || removed != 1 {
		t.Errorf("Expected 1 added / 1 removed, got %d/%d", added, removed)
	}

	var got []Line
	for _, line := range d.Hunks[0].Lines {
		if line.Type != LineContext {
			got = append(got, line)
		}
	}
	want := []Line{
		{LineNum: 1, Content: "error[E0001]: first", Type: LineRemoved},
		{LineNum: 1, Content: "error[E0002]: first", Type: LineAdded},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Change lines mismatch (-want +got):\n%s", diff)
	}
}

func TestCompareMissingGolden(t *testing.T) {
	e := NewEngine()

	d := e.CompareMissing("warning: unreachable pattern\n")
	if d.Equal {
		t.Fatal("Missing golden must not compare equal")
	}
	if !d.GoldenMissing {
		t.Error("Expected GoldenMissing")
	}
	added, removed := d.Stats()
	if added != 1 || removed != 0 {
		t.Errorf("Expected all-added diff, got %d/%d", added, removed)
	}
}

func TestCompareSeparateHunks(t *testing.T) {
	e := NewEngine()

	// Two changes separated by enough context to split the hunks.
	var g, a strings.Builder
	for i := 0; i < 20; i++ {
		line := "context line\n"
		if i == 2 {
			g.WriteString("golden first\n")
			a.WriteString("actual first\n")
			continue
		}
		if i == 17 {
			g.WriteString("golden second\n")
			a.WriteString("actual second\n")
			continue
		}
		g.WriteString(line)
		a.WriteString(line)
	}

	d := e.Compare(g.String(), a.String())
	if len(d.Hunks) != 2 {
		t.Fatalf("Expected 2 hunks, got %d", len(d.Hunks))
	}
}

func TestUnifiedRendering(t *testing.T) {
	e := NewEngine()

	d := e.Compare("old line\n", "new line\n")
	out := d.Unified("tests/a.stderr", "actual stderr")

	for _, want := range []string{
		"--- tests/a.stderr",
		"+++ actual stderr",
		"-old line",
		"+new line",
		"@@ ",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("Unified output missing %q:\n%s", want, out)
		}
	}

	if eq := e.Compare("same\n", "same\n"); eq.Unified("a", "b") != "" {
		t.Error("Equal diff should render empty")
	}
}

func TestCompareCacheReturnsSameResult(t *testing.T) {
	e := NewEngine()

	d1 := e.Compare("a\nb\n", "a\nc\n")
	d2 := e.Compare("a\nb\n", "a\nc\n")
	if diff := cmp.Diff(d1.Hunks, d2.Hunks); diff != "" {
		t.Errorf("Cached result differs (-first +second):\n%s", diff)
	}
}
