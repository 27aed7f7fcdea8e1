// Package suite discovers test cases: source programs paired by naming
// convention with golden expectation files. A program tests/ui/cast.rs
// expects its diagnostics in tests/ui/cast.stderr (and optionally its
// stdout in tests/ui/cast.stdout).
package suite

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"goldtest/internal/config"
	"goldtest/internal/logging"
)

// Case is one discovered test: a source program plus its expectations.
type Case struct {
	// Name is the source path relative to the suite root, unique within
	// the suite.
	Name string

	// Source is the absolute path of the test program.
	Source string

	// Golden is the absolute path of the expected-stderr file. The file
	// may not exist yet for new cases.
	Golden string

	// StdoutGolden is the absolute path of the expected-stdout file.
	// Only checked when the file exists or the case asks for it.
	StdoutGolden string

	// HasGolden and HasStdoutGolden record whether the files existed at
	// discovery time.
	HasGolden       bool
	HasStdoutGolden bool

	// Directives are the parsed //@ header settings.
	Directives Directives
}

// Suite is the discovered set of cases plus any bookkeeping findings.
type Suite struct {
	Root  string
	Cases []Case

	// OrphanGoldens are golden files with no companion source program.
	OrphanGoldens []string
}

// Discover walks the configured roots under suiteRoot and builds the
// case list. Cases come back sorted by name for stable run order.
func Discover(suiteRoot string, cfg *config.Config) (*Suite, error) {
	timer := logging.StartTimer(logging.CategoryHarness, "suite discovery")
	defer timer.Stop()

	absRoot, err := filepath.Abs(suiteRoot)
	if err != nil {
		return nil, fmt.Errorf("resolve suite root: %w", err)
	}

	s := &Suite{Root: absRoot}
	sources := make(map[string]bool)
	var goldens []string

	for _, root := range cfg.Suite.Roots {
		dir := filepath.Join(absRoot, root)
		if _, err := os.Stat(dir); os.IsNotExist(err) {
			logging.Harness("Suite root %s does not exist, skipping", dir)
			continue
		}

		err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				return nil
			}

			switch {
			case isSource(path, cfg.Suite.SourceExtensions):
				sources[path] = true
				c, err := buildCase(absRoot, path, cfg)
				if err != nil {
					return fmt.Errorf("case %s: %w", path, err)
				}
				s.Cases = append(s.Cases, c)

			case strings.HasSuffix(path, cfg.Suite.GoldenSuffix):
				goldens = append(goldens, path)
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("walk %s: %w", dir, err)
		}
	}

	// A golden is an orphan when no discovered source claims it.
	claimed := make(map[string]bool, len(s.Cases))
	for _, c := range s.Cases {
		claimed[c.Golden] = true
	}
	for _, g := range goldens {
		if !claimed[g] {
			rel, _ := filepath.Rel(absRoot, g)
			s.OrphanGoldens = append(s.OrphanGoldens, rel)
		}
	}

	sort.Slice(s.Cases, func(i, j int) bool { return s.Cases[i].Name < s.Cases[j].Name })
	sort.Strings(s.OrphanGoldens)

	logging.Harness("Discovered %d cases, %d orphan goldens", len(s.Cases), len(s.OrphanGoldens))
	return s, nil
}

func isSource(path string, exts []string) bool {
	ext := filepath.Ext(path)
	for _, e := range exts {
		if ext == e {
			return true
		}
	}
	return false
}

func buildCase(absRoot, source string, cfg *config.Config) (Case, error) {
	rel, err := filepath.Rel(absRoot, source)
	if err != nil {
		return Case{}, err
	}

	base := strings.TrimSuffix(source, filepath.Ext(source))
	c := Case{
		Name:         filepath.ToSlash(rel),
		Source:       source,
		Golden:       base + cfg.Suite.GoldenSuffix,
		StdoutGolden: base + cfg.Suite.StdoutSuffix,
	}

	if _, err := os.Stat(c.Golden); err == nil {
		c.HasGolden = true
	}
	if _, err := os.Stat(c.StdoutGolden); err == nil {
		c.HasStdoutGolden = true
	}

	data, err := os.ReadFile(source)
	if err != nil {
		return Case{}, fmt.Errorf("read source: %w", err)
	}
	c.Directives, err = ParseDirectives(string(data), cfg.Suite.DirectivePrefix)
	if err != nil {
		return Case{}, err
	}

	return c, nil
}

// FindCase returns the case whose name matches, or whose source or
// golden path resolves to the given file path. Used by watch mode to
// map a changed file back to its case.
func (s *Suite) FindCase(path string) (Case, bool) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return Case{}, false
	}
	for _, c := range s.Cases {
		if c.Source == abs || c.Golden == abs || c.StdoutGolden == abs || c.Name == filepath.ToSlash(path) {
			return c, true
		}
	}
	return Case{}, false
}

// Filter returns the cases whose name contains any of the given
// substrings. An empty filter returns all cases.
func (s *Suite) Filter(patterns []string) []Case {
	if len(patterns) == 0 {
		return s.Cases
	}
	var out []Case
	for _, c := range s.Cases {
		for _, p := range patterns {
			if strings.Contains(c.Name, p) {
				out = append(out, c)
				break
			}
		}
	}
	return out
}
