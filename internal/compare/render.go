package compare

import (
	"fmt"
	"strings"
)

// Unified renders the diff as unified-diff text with the conventional
// golden/actual labels. Returns "" for an equal diff.
func (d *Diff) Unified(goldenPath, actualLabel string) string {
	if d.Equal {
		return ""
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "--- %s\n", goldenPath)
	fmt.Fprintf(&sb, "+++ %s\n", actualLabel)

	for _, hunk := range d.Hunks {
		fmt.Fprintf(&sb, "@@ -%d,%d +%d,%d @@\n", hunk.OldStart, hunk.OldCount, hunk.NewStart, hunk.NewCount)
		for _, line := range hunk.Lines {
			switch line.Type {
			case LineAdded:
				sb.WriteString("+")
			case LineRemoved:
				sb.WriteString("-")
			default:
				sb.WriteString(" ")
			}
			sb.WriteString(line.Content)
			sb.WriteString("\n")
		}
	}

	return sb.String()
}

// Stats returns the number of added and removed lines across all hunks.
func (d *Diff) Stats() (added, removed int) {
	for _, hunk := range d.Hunks {
		for _, line := range hunk.Lines {
			switch line.Type {
			case LineAdded:
				added++
			case LineRemoved:
				removed++
			}
		}
	}
	return added, removed
}
