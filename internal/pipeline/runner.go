package pipeline

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os/exec"
)

// Result is the outcome of an external command
type Result struct {
	ExitCode int
	Stderr   string
}

// Runner executes external tools
type Runner interface {
	Run(ctx context.Context, dir, name string, args ...string) (Result, error)
}

// Commander interface for testing
type Commander interface {
	Run() error
}

// ExecRunner runs commands with os/exec
type ExecRunner struct {
	// Stdout and Stderr, when set, receive a copy of the command output
	Stdout io.Writer
	Stderr io.Writer

	execCommand func(ctx context.Context, dir string, stdout, stderr io.Writer, name string, args ...string) Commander
}

// NewExecRunner creates a runner that discards command output
func NewExecRunner() *ExecRunner {
	return &ExecRunner{
		execCommand: func(ctx context.Context, dir string, stdout, stderr io.Writer, name string, args ...string) Commander {
			cmd := exec.CommandContext(ctx, name, args...)
			cmd.Dir = dir
			cmd.Stdout = stdout
			cmd.Stderr = stderr
			return cmd
		},
	}
}

// Run executes name in dir. A non-zero exit status is reported in the
// result, not as an error; the error is reserved for commands that could
// not be started at all.
func (r *ExecRunner) Run(ctx context.Context, dir, name string, args ...string) (Result, error) {
	var stderr bytes.Buffer

	errOut := io.Writer(&stderr)
	if r.Stderr != nil {
		errOut = io.MultiWriter(&stderr, r.Stderr)
	}

	stdout := r.Stdout
	if stdout == nil {
		stdout = io.Discard
	}

	err := r.execCommand(ctx, dir, stdout, errOut, name, args...).Run()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return Result{ExitCode: exitErr.ExitCode(), Stderr: stderr.String()}, nil
		}

		return Result{ExitCode: -1, Stderr: stderr.String()}, err
	}

	return Result{Stderr: stderr.String()}, nil
}
