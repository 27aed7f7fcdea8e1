package suite

import (
	"fmt"
	"regexp"
	"runtime"
	"strconv"
	"strings"
	"time"

	"goldtest/internal/config"
)

// Directives are per-case settings parsed from //@ header lines in the
// test source. Example:
//
//	//@ args: --edition 2021 --crate-type lib
//	//@ exit-code: 1
//	//@ env: RUST_BACKTRACE=0
//	//@ only-os: linux darwin
//	//@ normalize: "0x[0-9a-f]+" -> "$$ADDR"
//
// Normalize replacements use regexp expansion syntax: $1 references a
// capture group, $$ is a literal dollar sign.
type Directives struct {
	// Args replace the config-level tool arguments for this case. The
	// source file path is still appended.
	Args []string

	// ExitCode is the expected tool exit code. Defaults to 1: these are
	// suites of erroneous programs, the tool is expected to reject them.
	ExitCode int

	// Stdin is piped to the tool.
	Stdin string

	// Env adds KEY=VALUE pairs for this case.
	Env []string

	// Timeout overrides the suite default for this case.
	Timeout time.Duration

	// Skip marks the case skipped; the value is the reason.
	Skip string

	// OnlyOS restricts the case to the named GOOS values.
	OnlyOS []string

	// CheckStdout forces stdout comparison even without a .stdout file.
	CheckStdout bool

	// Normalize holds extra per-case normalization rules.
	Normalize []config.ReplaceRule
}

// DefaultExitCode is expected when a case carries no exit-code directive.
const DefaultExitCode = 1

var normalizeRe = regexp.MustCompile(`^"(.*)"\s*->\s*"(.*)"$`)

// ParseDirectives extracts //@ directives from source text. Unknown keys
// are an error so typos fail loudly instead of silently passing.
func ParseDirectives(source, prefix string) (Directives, error) {
	d := Directives{ExitCode: DefaultExitCode}
	if prefix == "" {
		return d, nil
	}

	for lineNum, line := range strings.Split(source, "\n") {
		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, prefix) {
			continue
		}

		body := strings.TrimSpace(strings.TrimPrefix(line, prefix))
		key, value, ok := strings.Cut(body, ":")
		if !ok {
			return d, fmt.Errorf("line %d: malformed directive %q", lineNum+1, line)
		}
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)

		switch key {
		case "args":
			d.Args = strings.Fields(value)

		case "exit-code":
			code, err := strconv.Atoi(value)
			if err != nil {
				return d, fmt.Errorf("line %d: bad exit-code %q", lineNum+1, value)
			}
			d.ExitCode = code

		case "stdin":
			d.Stdin = value

		case "env":
			if !strings.Contains(value, "=") {
				return d, fmt.Errorf("line %d: env directive needs KEY=VALUE, got %q", lineNum+1, value)
			}
			d.Env = append(d.Env, value)

		case "timeout":
			t, err := time.ParseDuration(value)
			if err != nil {
				return d, fmt.Errorf("line %d: bad timeout %q", lineNum+1, value)
			}
			d.Timeout = t

		case "skip":
			if value == "" {
				value = "skipped"
			}
			d.Skip = value

		case "only-os":
			d.OnlyOS = strings.Fields(value)

		case "check-stdout":
			d.CheckStdout = value == "" || value == "true"

		case "normalize":
			m := normalizeRe.FindStringSubmatch(value)
			if m == nil {
				return d, fmt.Errorf(`line %d: normalize directive must be "pattern" -> "replacement"`, lineNum+1)
			}
			d.Normalize = append(d.Normalize, config.ReplaceRule{Pattern: m[1], Replacement: m[2]})

		default:
			return d, fmt.Errorf("line %d: unknown directive %q", lineNum+1, key)
		}
	}

	return d, nil
}

// SkipReason returns a non-empty reason when the case should not run on
// this host.
func (d Directives) SkipReason() string {
	if d.Skip != "" {
		return d.Skip
	}
	if len(d.OnlyOS) > 0 {
		for _, goos := range d.OnlyOS {
			if goos == runtime.GOOS {
				return ""
			}
		}
		return fmt.Sprintf("requires one of %v", d.OnlyOS)
	}
	return ""
}
