// Package normalize rewrites captured tool output into the stable form
// stored in golden files. Machine-specific text (absolute paths, temp
// directories) becomes placeholders so goldens compare byte-for-byte on
// any machine.
//
// Normalization must be deterministic: the same rules run in the same
// order at check time and at bless time.
package normalize

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"

	"goldtest/internal/config"
)

// Placeholders substituted for machine-specific paths.
const (
	DirPlaceholder    = "$DIR"
	TmpDirPlaceholder = "$TMPDIR"
)

// Normalizer applies placeholder substitution and user rules.
type Normalizer struct {
	suiteRoot string
	tmpDir    string

	crlf     bool
	trimWS   bool
	compiled []compiledRule
}

type compiledRule struct {
	re          *regexp.Regexp
	replacement string
}

// New builds a Normalizer for a suite. suiteRoot and tmpDir should be
// absolute paths; extra rules come from the config and are applied in
// order after the built-in path placeholders.
func New(suiteRoot, tmpDir string, cfg config.NormalizeConfig) (*Normalizer, error) {
	n := &Normalizer{
		suiteRoot: filepath.Clean(suiteRoot),
		tmpDir:    filepath.Clean(tmpDir),
		crlf:      cfg.CRLF,
		trimWS:    cfg.TrimTrailingSpace,
	}

	for i, rule := range cfg.Rules {
		re, err := regexp.Compile(rule.Pattern)
		if err != nil {
			return nil, fmt.Errorf("normalize rule %d (%q): %w", i, rule.Pattern, err)
		}
		n.compiled = append(n.compiled, compiledRule{re: re, replacement: rule.Replacement})
	}

	return n, nil
}

// WithRules returns a copy of the Normalizer with extra per-case rules
// appended. The receiver is not modified.
func (n *Normalizer) WithRules(rules []config.ReplaceRule) (*Normalizer, error) {
	if len(rules) == 0 {
		return n, nil
	}
	clone := *n
	clone.compiled = append([]compiledRule(nil), n.compiled...)
	for i, rule := range rules {
		re, err := regexp.Compile(rule.Pattern)
		if err != nil {
			return nil, fmt.Errorf("case normalize rule %d (%q): %w", i, rule.Pattern, err)
		}
		clone.compiled = append(clone.compiled, compiledRule{re: re, replacement: rule.Replacement})
	}
	return &clone, nil
}

// Apply normalizes captured output.
func (n *Normalizer) Apply(text string) string {
	if n.crlf {
		text = strings.ReplaceAll(text, "\r\n", "\n")
	}

	// Path placeholders. The suite root is replaced before the temp dir
	// in case one nests inside the other; both slash forms are handled
	// so Windows tool output normalizes too.
	text = replacePath(text, n.suiteRoot, DirPlaceholder)
	text = replacePath(text, n.tmpDir, TmpDirPlaceholder)

	for _, rule := range n.compiled {
		text = rule.re.ReplaceAllString(text, rule.replacement)
	}

	if n.trimWS {
		text = trimTrailingSpace(text)
	}

	return text
}

// Golden normalizes the golden file side. Only line endings are touched;
// golden content is otherwise opaque bytes.
func (n *Normalizer) Golden(text string) string {
	if n.crlf {
		text = strings.ReplaceAll(text, "\r\n", "\n")
	}
	return text
}

func replacePath(text, path, placeholder string) string {
	if path == "" || path == "." {
		return text
	}
	text = strings.ReplaceAll(text, path, placeholder)
	if alt := filepath.ToSlash(path); alt != path {
		text = strings.ReplaceAll(text, alt, placeholder)
	}
	return text
}

func trimTrailingSpace(text string) string {
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRight(line, " \t")
	}
	return strings.Join(lines, "\n")
}
