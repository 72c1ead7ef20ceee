package terraform

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
)

// Result is the captured outcome of a single terraform invocation.
type Result struct {
	ExitCode int
	Stdout   string
	Stderr   string
}

func (r Result) Success() bool {
	return r.ExitCode == 0
}

type Command struct {
	Dir  string
	Env  []string
	Name string
	Args []string
	// Quiet suppresses streaming of the command output, e.g. for machine-readable output.
	Quiet bool
}

type Runner interface {
	Run(ctx context.Context, cmd Command) (Result, error)
}

type execRunner struct {
	output io.Writer
}

// NewExecRunner returns a Runner backed by os/exec. When output is not nil the
// command's stdout and stderr are streamed to it while being captured.
func NewExecRunner(output io.Writer) Runner {
	return &execRunner{output: output}
}

func (r *execRunner) Run(ctx context.Context, c Command) (Result, error) {
	var stdout, stderr bytes.Buffer

	cmd := exec.CommandContext(ctx, c.Name, c.Args...)
	cmd.Dir = c.Dir
	cmd.Env = append(os.Environ(), c.Env...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if r.output != nil && !c.Quiet {
		cmd.Stdout = io.MultiWriter(&stdout, r.output)
		cmd.Stderr = io.MultiWriter(&stderr, r.output)
	}

	err := cmd.Run()
	result := Result{
		Stdout: stdout.String(),
		Stderr: stderr.String(),
	}
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			result.ExitCode = exitErr.ExitCode()
			return result, nil
		}
		return result, fmt.Errorf("failed to run %s: %w", c.Name, err)
	}
	return result, nil
}
