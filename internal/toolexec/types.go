// Package toolexec runs the tool under test and captures its output.
// It is the only layer that touches os/exec; everything above it works
// with Command and Result values.
//
// The key contract: a tool that runs and exits non-zero is a successful
// execution. Result.Err is reserved for infrastructure failures (binary
// missing, spawn failure). Exit codes are test data, not errors.
package toolexec

import (
	"context"
	"time"
)

// Command specifies a single invocation of the tool under test.
type Command struct {
	// Binary is the executable to run.
	Binary string

	// Args are the command-line arguments.
	Args []string

	// Dir is the working directory. Empty means the executor default.
	Dir string

	// Env lists extra KEY=VALUE pairs, merged over the allowed host
	// environment.
	Env []string

	// Stdin provides input to the tool's standard input.
	Stdin string

	// Timeout bounds the invocation. Zero means the executor default.
	Timeout time.Duration
}

// CommandString returns the full command line for display and logging.
func (c Command) CommandString() string {
	s := c.Binary
	for _, arg := range c.Args {
		s += " " + arg
	}
	return s
}

// Result is the captured outcome of one tool invocation.
type Result struct {
	// ExitCode is the tool's exit code (-1 if it never ran or was killed).
	ExitCode int

	// Stdout and Stderr are the captured streams.
	Stdout string
	Stderr string

	// Duration is how long the tool ran.
	Duration time.Duration

	// TimedOut indicates the tool was killed by the timeout.
	TimedOut bool

	// Truncated indicates output exceeded the capture limit.
	Truncated bool

	// TruncatedBytes counts discarded output bytes.
	TruncatedBytes int64

	// Err holds an infrastructure-level failure. When set, the other
	// fields are not meaningful for comparison.
	Err error
}

// Infra reports whether the execution infrastructure failed (as opposed
// to the tool running and producing output).
func (r *Result) Infra() bool {
	return r.Err != nil
}

// Executor abstracts tool execution so the runner can be tested with a
// stub.
type Executor interface {
	Execute(ctx context.Context, cmd Command) *Result
}

// Config controls a DirectExecutor.
type Config struct {
	// DefaultDir is used when Command.Dir is empty.
	DefaultDir string

	// DefaultTimeout is used when Command.Timeout is zero.
	DefaultTimeout time.Duration

	// MaxOutputBytes caps each captured stream.
	MaxOutputBytes int64

	// AllowedEnv lists host environment variables passed through.
	AllowedEnv []string
}

// DefaultConfig returns sensible executor defaults.
func DefaultConfig() Config {
	return Config{
		DefaultDir:     ".",
		DefaultTimeout: 30 * time.Second,
		MaxOutputBytes: 10 * 1024 * 1024, // 10MB
		AllowedEnv:     []string{"PATH", "HOME", "USER", "LANG", "LC_ALL", "TMPDIR"},
	}
}
