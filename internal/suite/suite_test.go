package suite

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"goldtest/internal/config"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("MkdirAll failed: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
}

func TestDiscover(t *testing.T) {
	root := t.TempDir()
	cfg := config.DefaultConfig()

	writeFile(t, filepath.Join(root, "tests", "ui", "unstable.rs"), "fn main() {}\n")
	writeFile(t, filepath.Join(root, "tests", "ui", "unstable.stderr"), "error[E0658]: unstable\n")
	writeFile(t, filepath.Join(root, "tests", "ui", "new_case.rs"), "fn main() {}\n")
	writeFile(t, filepath.Join(root, "tests", "ui", "orphan.stderr"), "stale\n")
	writeFile(t, filepath.Join(root, "tests", "README.md"), "not a test\n")

	s, err := Discover(root, cfg)
	if err != nil {
		t.Fatalf("Discover failed: %v", err)
	}

	if len(s.Cases) != 2 {
		t.Fatalf("Expected 2 cases, got %d", len(s.Cases))
	}
	// Sorted by name.
	if s.Cases[0].Name != "tests/ui/new_case.rs" {
		t.Errorf("Expected new_case first, got %s", s.Cases[0].Name)
	}
	if s.Cases[0].HasGolden {
		t.Error("new_case should have no golden")
	}
	if !s.Cases[1].HasGolden {
		t.Error("unstable should have a golden")
	}

	if len(s.OrphanGoldens) != 1 || s.OrphanGoldens[0] != filepath.ToSlash(filepath.Join("tests", "ui", "orphan.stderr")) {
		t.Errorf("Orphan goldens mismatch: %v", s.OrphanGoldens)
	}
}

func TestDiscoverMissingRootIsNotFatal(t *testing.T) {
	root := t.TempDir()
	cfg := config.DefaultConfig()
	cfg.Suite.Roots = []string{"absent"}

	s, err := Discover(root, cfg)
	if err != nil {
		t.Fatalf("Discover failed: %v", err)
	}
	if len(s.Cases) != 0 {
		t.Errorf("Expected no cases, got %d", len(s.Cases))
	}
}

func TestFindCase(t *testing.T) {
	root := t.TempDir()
	cfg := config.DefaultConfig()
	writeFile(t, filepath.Join(root, "tests", "a.rs"), "fn main() {}\n")

	s, err := Discover(root, cfg)
	if err != nil {
		t.Fatalf("Discover failed: %v", err)
	}

	if _, ok := s.FindCase(filepath.Join(root, "tests", "a.rs")); !ok {
		t.Error("FindCase by source path failed")
	}
	if _, ok := s.FindCase(filepath.Join(root, "tests", "a.stderr")); !ok {
		t.Error("FindCase by golden path failed")
	}
	if _, ok := s.FindCase(filepath.Join(root, "tests", "b.rs")); ok {
		t.Error("FindCase matched a nonexistent file")
	}
}

func TestFilter(t *testing.T) {
	s := &Suite{Cases: []Case{
		{Name: "tests/ui/cast.rs"},
		{Name: "tests/ui/unreachable.rs"},
		{Name: "tests/lints/shadow.rs"},
	}}

	if got := s.Filter(nil); len(got) != 3 {
		t.Errorf("Empty filter should return all, got %d", len(got))
	}
	if got := s.Filter([]string{"lints"}); len(got) != 1 || got[0].Name != "tests/lints/shadow.rs" {
		t.Errorf("Filter mismatch: %v", got)
	}
	if got := s.Filter([]string{"cast", "shadow"}); len(got) != 2 {
		t.Errorf("Multi-pattern filter mismatch: %d", len(got))
	}
}

func TestParseDirectives(t *testing.T) {
	source := `//@ args: --edition 2021 --crate-type lib
//@ exit-code: 101
//@ env: RUST_BACKTRACE=0
//@ env: NO_COLOR=1
//@ timeout: 2m
//@ normalize: "0x[0-9a-f]+" -> "$ADDR"
fn main() { 0u8 as *const u8; }
`
	d, err := ParseDirectives(source, "//@")
	if err != nil {
		t.Fatalf("ParseDirectives failed: %v", err)
	}

	if len(d.Args) != 4 || d.Args[0] != "--edition" {
		t.Errorf("Args mismatch: %v", d.Args)
	}
	if d.ExitCode != 101 {
		t.Errorf("Expected exit code 101, got %d", d.ExitCode)
	}
	if len(d.Env) != 2 || d.Env[1] != "NO_COLOR=1" {
		t.Errorf("Env mismatch: %v", d.Env)
	}
	if d.Timeout != 2*time.Minute {
		t.Errorf("Timeout mismatch: %v", d.Timeout)
	}
	if len(d.Normalize) != 1 || d.Normalize[0].Pattern != "0x[0-9a-f]+" {
		t.Errorf("Normalize mismatch: %v", d.Normalize)
	}
}

func TestParseDirectivesDefaults(t *testing.T) {
	d, err := ParseDirectives("fn main() {}\n", "//@")
	if err != nil {
		t.Fatalf("ParseDirectives failed: %v", err)
	}
	if d.ExitCode != DefaultExitCode {
		t.Errorf("Expected default exit code %d, got %d", DefaultExitCode, d.ExitCode)
	}
}

func TestParseDirectivesErrors(t *testing.T) {
	cases := map[string]string{
		"unknown key":   "//@ wat: 1\n",
		"bad exit code": "//@ exit-code: one\n",
		"bad env":       "//@ env: NOVALUE\n",
		"bad timeout":   "//@ timeout: fast\n",
		"bad normalize": "//@ normalize: pattern -> replacement\n",
		"missing colon": "//@ just words\n",
	}
	for name, src := range cases {
		if _, err := ParseDirectives(src, "//@"); err == nil {
			t.Errorf("%s: expected error", name)
		}
	}
}

func TestSkipReason(t *testing.T) {
	if r := (Directives{Skip: "flaky on CI"}).SkipReason(); r != "flaky on CI" {
		t.Errorf("Skip reason mismatch: %q", r)
	}
	if r := (Directives{OnlyOS: []string{runtime.GOOS}}).SkipReason(); r != "" {
		t.Errorf("Expected no skip on matching OS, got %q", r)
	}
	if r := (Directives{OnlyOS: []string{"plan9"}}).SkipReason(); r == "" {
		t.Error("Expected skip on non-matching OS")
	}
}
