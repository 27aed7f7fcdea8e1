package toolexec

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"time"

	"goldtest/internal/logging"
)

// DirectExecutor executes commands directly on the host using os/exec.
type DirectExecutor struct {
	config Config
}

// NewDirectExecutor creates an executor with default config.
func NewDirectExecutor() *DirectExecutor {
	return NewDirectExecutorWithConfig(DefaultConfig())
}

// NewDirectExecutorWithConfig creates an executor with custom config.
func NewDirectExecutorWithConfig(config Config) *DirectExecutor {
	logging.RunnerDebug("Creating DirectExecutor: timeout=%s, maxOutput=%d bytes",
		config.DefaultTimeout, config.MaxOutputBytes)
	return &DirectExecutor{config: config}
}

// Execute runs the tool and captures its output. The returned Result is
// never nil; infrastructure failures are reported in Result.Err.
func (e *DirectExecutor) Execute(ctx context.Context, cmd Command) *Result {
	timer := logging.StartTimer(logging.CategoryRunner, "tool execution")
	defer timer.Stop()

	result := &Result{ExitCode: -1}

	if cmd.Binary == "" {
		result.Err = fmt.Errorf("binary is required")
		return result
	}

	logging.Runner("Executing: %s", cmd.CommandString())

	timeout := cmd.Timeout
	if timeout == 0 {
		timeout = e.config.DefaultTimeout
	}
	execCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	dir := cmd.Dir
	if dir == "" {
		dir = e.config.DefaultDir
	}

	execCmd := exec.CommandContext(execCtx, cmd.Binary, cmd.Args...)
	execCmd.Dir = dir
	execCmd.Env = e.buildEnvironment(cmd.Env)

	if cmd.Stdin != "" {
		execCmd.Stdin = strings.NewReader(cmd.Stdin)
	}

	var stdoutBuf, stderrBuf bytes.Buffer
	stdoutLimited := &limitedWriter{w: &stdoutBuf, max: e.config.MaxOutputBytes}
	stderrLimited := &limitedWriter{w: &stderrBuf, max: e.config.MaxOutputBytes}
	execCmd.Stdout = stdoutLimited
	execCmd.Stderr = stderrLimited

	start := time.Now()
	err := execCmd.Run()
	result.Duration = time.Since(start)

	result.Stdout = stdoutBuf.String()
	result.Stderr = stderrBuf.String()

	if stdoutLimited.truncated || stderrLimited.truncated {
		result.Truncated = true
		result.TruncatedBytes = stdoutLimited.discarded + stderrLimited.discarded
		logging.RunnerWarn("Output truncated: %d bytes discarded", result.TruncatedBytes)
	}

	switch {
	case err == nil:
		result.ExitCode = 0

	case execCtx.Err() == context.DeadlineExceeded:
		result.TimedOut = true
		logging.RunnerWarn("Tool killed after %s: %s", timeout, cmd.Binary)

	case execCtx.Err() == context.Canceled:
		result.Err = context.Canceled

	default:
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			// The tool ran; the exit code is data for the harness.
			result.ExitCode = exitErr.ExitCode()
			logging.RunnerDebug("Tool exited non-zero: %s -> %d", cmd.Binary, result.ExitCode)
		} else {
			result.Err = err
			logging.RunnerWarn("Tool failed to run: %s - %v", cmd.Binary, err)
		}
	}

	logging.RunnerDebug("Completed: %s -> exit=%d, duration=%s, stderr=%d bytes",
		cmd.Binary, result.ExitCode, result.Duration, len(result.Stderr))

	return result
}

// buildEnvironment creates the environment variable list from the
// allowlist plus command-specific entries.
func (e *DirectExecutor) buildEnvironment(cmdEnv []string) []string {
	env := make([]string, 0, len(e.config.AllowedEnv)+len(cmdEnv))
	for _, key := range e.config.AllowedEnv {
		if val := os.Getenv(key); val != "" {
			env = append(env, fmt.Sprintf("%s=%s", key, val))
		}
	}
	return append(env, cmdEnv...)
}

// limitedWriter is an io.Writer that limits total bytes written.
type limitedWriter struct {
	w         io.Writer
	max       int64
	written   int64
	truncated bool
	discarded int64
}

func (lw *limitedWriter) Write(p []byte) (int, error) {
	n := len(p)

	if lw.written >= lw.max {
		lw.truncated = true
		lw.discarded += int64(n)
		return n, nil // Pretend we wrote it
	}

	remaining := lw.max - lw.written
	if int64(n) > remaining {
		lw.truncated = true
		toWrite := p[:remaining]
		lw.discarded += int64(n) - remaining
		written, err := lw.w.Write(toWrite)
		lw.written += int64(written)
		return n, err // Return original length to avoid "short write" errors
	}

	written, err := lw.w.Write(p)
	lw.written += int64(written)
	return written, err
}
