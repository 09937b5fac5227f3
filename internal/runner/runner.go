// Package runner launches external processes and reports how they ended.
//
// Every pipeline stage shells out through the same Runner, so a failed
// launch and a non-zero exit are handled identically: both come back as a
// Result with a non-zero ExitCode. Standard output is discarded and
// standard error is captured for diagnostics.
package runner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"strings"
)

// LaunchFailureCode is the exit code recorded when a process could not be
// started at all.
const LaunchFailureCode = 1

// Command is one external process invocation.
type Command struct {
	Name string   // executable, resolved through PATH
	Args []string // arguments, not including Name
	Dir  string   // working directory
}

// String renders the command line the way a shell user would type it.
func (c Command) String() string {
	if len(c.Args) == 0 {
		return c.Name
	}
	return c.Name + " " + strings.Join(c.Args, " ")
}

// Result is the outcome of running a Command.
type Result struct {
	ExitCode  int
	Stderr    string
	LaunchErr error // non-nil when the process never started
}

// OK reports whether the process ran and exited zero.
func (r Result) OK() bool {
	return r.ExitCode == 0 && r.LaunchErr == nil
}

// Diagnostics returns the text worth showing for a failed command: the
// launch error if there was one, otherwise the captured stderr.
func (r Result) Diagnostics() string {
	if r.LaunchErr != nil {
		return fmt.Sprintf("An error occurred: %v", r.LaunchErr)
	}
	return r.Stderr
}

// Runner runs external commands to completion.
type Runner interface {
	Run(ctx context.Context, cmd Command) Result
}

// ExecRunner runs commands with os/exec.
//
// The context is checked before launch only. Once started, a process runs
// until it exits; no timeout is imposed.
type ExecRunner struct {
	Logger *slog.Logger
	Stdout io.Writer // defaults to io.Discard
}

var _ Runner = (*ExecRunner)(nil)

// NewExecRunner creates an ExecRunner. A nil logger discards logs.
func NewExecRunner(logger *slog.Logger) *ExecRunner {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &ExecRunner{Logger: logger}
}

// Run implements Runner.
func (r *ExecRunner) Run(ctx context.Context, cmd Command) Result {
	logger := r.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	if err := ctx.Err(); err != nil {
		logger.Warn("command not started", "cmd", cmd.String(), "error", err)
		return Result{ExitCode: LaunchFailureCode, LaunchErr: err}
	}

	stdout := r.Stdout
	if stdout == nil {
		stdout = io.Discard
	}

	var stderr bytes.Buffer
	c := exec.Command(cmd.Name, cmd.Args...)
	c.Dir = cmd.Dir
	c.Stdout = stdout
	c.Stderr = &stderr

	logger.Debug("running command", "cmd", cmd.String(), "dir", cmd.Dir)
	err := c.Run()

	result := Result{Stderr: stderr.String()}
	var exitErr *exec.ExitError
	switch {
	case err == nil:
	case errors.As(err, &exitErr):
		result.ExitCode = exitErr.ExitCode()
		if result.ExitCode <= 0 {
			// Killed by a signal.
			result.ExitCode = LaunchFailureCode
		}
	default:
		result.ExitCode = LaunchFailureCode
		result.LaunchErr = err
	}

	logger.Debug("command finished", "cmd", cmd.String(), "exit_code", result.ExitCode)
	return result
}
