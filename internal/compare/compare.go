// Package compare decides whether captured output matches a golden file
// and, when it does not, computes a line-level diff for reporting. The
// match itself is byte equality; the diff engine only runs on mismatch.
package compare

import (
	"strings"
	"sync"

	"github.com/sergi/go-diff/diffmatchpatch"
)

// LineType classifies a diff line.
type LineType int

const (
	LineContext LineType = iota // Unchanged context line
	LineAdded                   // Present in actual, missing from golden
	LineRemoved                 // Present in golden, missing from actual
)

// Line is a single line in the diff.
type Line struct {
	LineNum int
	Content string
	Type    LineType
}

// Hunk is a group of changes with surrounding context.
type Hunk struct {
	OldStart int
	OldCount int
	NewStart int
	NewCount int
	Lines    []Line
}

// Diff is the outcome of comparing golden content against actual output.
type Diff struct {
	// Equal is the byte-for-byte verdict.
	Equal bool

	// GoldenMissing means no golden file existed for the case.
	GoldenMissing bool

	Hunks []Hunk
}

// Engine computes line diffs with caching for repeated input pairs
// (watch mode re-compares the same outputs often).
type Engine struct {
	dmp     *diffmatchpatch.DiffMatchPatch
	cache   sync.Map
	context int
}

type cacheKey struct {
	oldHash uint64
	newHash uint64
}

// NewEngine creates a diff engine with three lines of hunk context.
func NewEngine() *Engine {
	dmp := diffmatchpatch.New()
	dmp.DiffTimeout = 0 // Accuracy over speed; diagnostics are small
	return &Engine{dmp: dmp, context: 3}
}

// Compare checks actual output against golden content.
func (e *Engine) Compare(golden, actual string) *Diff {
	if golden == actual {
		return &Diff{Equal: true}
	}

	key := cacheKey{oldHash: fnv1a(golden), newHash: fnv1a(actual)}
	if cached, ok := e.cache.Load(key); ok {
		if d, ok := cached.(*Diff); ok {
			return d
		}
	}

	a, b, lineArray := e.dmp.DiffLinesToChars(golden, actual)
	diffs := e.dmp.DiffMain(a, b, false)
	diffs = e.dmp.DiffCleanupSemantic(diffs)
	diffs = e.dmp.DiffCharsToLines(diffs, lineArray)

	d := &Diff{Hunks: e.toHunks(diffs)}
	e.cache.Store(key, d)
	return d
}

// CompareMissing builds the diff for a case with no golden file: every
// actual line is an addition.
func (e *Engine) CompareMissing(actual string) *Diff {
	d := e.Compare("", actual)
	return &Diff{Equal: false, GoldenMissing: true, Hunks: d.Hunks}
}

// operation is a single line op derived from the char-level diffs.
type operation struct {
	typ     LineType
	oldLine int
	newLine int
	content string
}

func (e *Engine) toHunks(diffs []diffmatchpatch.Diff) []Hunk {
	ops := e.toOperations(diffs)
	if len(ops) == 0 {
		return nil
	}
	return e.group(ops)
}

func (e *Engine) toOperations(diffs []diffmatchpatch.Diff) []operation {
	ops := make([]operation, 0)
	oldLine, newLine := 0, 0

	for _, diff := range diffs {
		lines := strings.Split(diff.Text, "\n")
		if len(lines) == 1 && lines[0] == "" && diff.Type != diffmatchpatch.DiffEqual {
			continue
		}
		// Drop the trailing empty element from the split.
		if len(lines) > 0 && lines[len(lines)-1] == "" {
			lines = lines[:len(lines)-1]
		}

		for _, line := range lines {
			switch diff.Type {
			case diffmatchpatch.DiffEqual:
				ops = append(ops, operation{typ: LineContext, oldLine: oldLine, newLine: newLine, content: line})
				oldLine++
				newLine++
			case diffmatchpatch.DiffDelete:
				ops = append(ops, operation{typ: LineRemoved, oldLine: oldLine, newLine: -1, content: line})
				oldLine++
			case diffmatchpatch.DiffInsert:
				ops = append(ops, operation{typ: LineAdded, oldLine: -1, newLine: newLine, content: line})
				newLine++
			}
		}
	}

	return ops
}

func (e *Engine) group(ops []operation) []Hunk {
	hunks := make([]Hunk, 0)
	var current *Hunk
	lastChangeIdx := -1

	for i, op := range ops {
		isChange := op.typ != LineContext

		if isChange {
			if current == nil {
				current = &Hunk{Lines: make([]Line, 0)}

				start := i - e.context
				if start < 0 {
					start = 0
				}
				for j := start; j < i; j++ {
					if ops[j].typ == LineContext {
						current.Lines = append(current.Lines, Line{
							LineNum: ops[j].oldLine + 1,
							Content: ops[j].content,
							Type:    LineContext,
						})
					}
				}

				current.OldStart = ops[start].oldLine + 1
				current.NewStart = ops[start].newLine + 1
				if ops[start].oldLine < 0 {
					current.OldStart = 0
				}
				if ops[start].newLine < 0 {
					current.NewStart = 0
				}
			}
			lastChangeIdx = i
		}

		if current != nil {
			lineNum := op.oldLine + 1
			if op.typ == LineAdded {
				lineNum = op.newLine + 1
			}
			current.Lines = append(current.Lines, Line{LineNum: lineNum, Content: op.content, Type: op.typ})

			if op.typ == LineContext && i-lastChangeIdx > e.context {
				trimTo := len(current.Lines) - (i - lastChangeIdx - e.context)
				if trimTo > 0 && trimTo < len(current.Lines) {
					current.Lines = current.Lines[:trimTo]
				}
				countHunk(current)
				hunks = append(hunks, *current)
				current = nil
			}
		}
	}

	if current != nil && len(current.Lines) > 0 {
		countHunk(current)
		hunks = append(hunks, *current)
	}

	return hunks
}

func countHunk(hunk *Hunk) {
	for _, line := range hunk.Lines {
		if line.Type == LineRemoved || line.Type == LineContext {
			hunk.OldCount++
		}
		if line.Type == LineAdded || line.Type == LineContext {
			hunk.NewCount++
		}
	}
}

// fnv1a computes an FNV-1a hash for the diff cache.
func fnv1a(s string) uint64 {
	const (
		offset64 = 14695981039346656037
		prime64  = 1099511628211
	)
	h := uint64(offset64)
	for i := 0; i < len(s); i++ {
		h ^= uint64(s[i])
		h *= prime64
	}
	return h
}

// ClearCache discards cached diffs.
func (e *Engine) ClearCache() {
	e.cache = sync.Map{}
}
