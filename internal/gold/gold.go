// Package gold reads and writes golden expectation files. Goldens are
// opaque bytes; they are only ever rewritten by an explicit bless or an
// accepted review, never by a checking run. Writes are atomic (temp file
// plus rename) so an interrupted bless cannot leave a half-written
// expectation behind.
package gold

import (
	"fmt"
	"os"
	"path/filepath"

	"goldtest/internal/fastcopy"
	"goldtest/internal/logging"
)

// PendingSuffix marks a captured snapshot awaiting review, stored next
// to the golden it would replace.
const PendingSuffix = ".pending"

// Load reads a golden file. Missing files are reported via the ok return
// rather than an error, since new cases legitimately have no golden yet.
func Load(path string) (content string, ok bool, err error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("read golden %s: %w", path, err)
	}
	return string(data), true, nil
}

// Write atomically replaces (or creates) a golden file with content.
func Write(path, content string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create golden directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp*")
	if err != nil {
		return fmt.Errorf("create temp golden: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.WriteString(content); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write temp golden: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close temp golden: %w", err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("chmod temp golden: %w", err)
	}

	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("rename golden into place: %w", err)
	}

	logging.Bless("Wrote golden %s (%d bytes)", path, len(content))
	return nil
}

// WritePending stores captured output as a pending snapshot beside the
// golden, for later interactive review.
func WritePending(goldenPath, content string) error {
	return Write(goldenPath+PendingSuffix, content)
}

// PendingPath returns the pending snapshot path for a golden.
func PendingPath(goldenPath string) string {
	return goldenPath + PendingSuffix
}

// HasPending reports whether a pending snapshot exists for the golden.
func HasPending(goldenPath string) bool {
	_, err := os.Stat(PendingPath(goldenPath))
	return err == nil
}

// Promote accepts a pending snapshot: the pending file's content becomes
// the golden and the pending file is removed.
func Promote(goldenPath string) error {
	pending := PendingPath(goldenPath)

	if _, err := fastcopy.Copy(pending, goldenPath); err != nil {
		return fmt.Errorf("promote %s: %w", pending, err)
	}
	if err := os.Remove(pending); err != nil {
		return fmt.Errorf("remove pending %s: %w", pending, err)
	}

	logging.Bless("Promoted %s -> %s", pending, goldenPath)
	return nil
}

// Reject discards a pending snapshot.
func Reject(goldenPath string) error {
	pending := PendingPath(goldenPath)
	if err := os.Remove(pending); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove pending %s: %w", pending, err)
	}
	logging.Bless("Rejected pending %s", pending)
	return nil
}

// FindPending walks the given roots and returns the golden paths that
// have pending snapshots waiting for review.
func FindPending(roots ...string) ([]string, error) {
	var out []string
	for _, root := range roots {
		err := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
			if err != nil {
				return err
			}
			if info.IsDir() {
				return nil
			}
			if filepath.Ext(path) == PendingSuffix {
				out = append(out, path[:len(path)-len(PendingSuffix)])
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("scan pending under %s: %w", root, err)
		}
	}
	return out, nil
}
