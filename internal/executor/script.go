package executor

import (
	"bytes"
	"context"
	"os/exec"
	"path/filepath"
	"strings"
)

// scriptStep runs an externally discovered step script as a subprocess with
// the merged environment, blocking until it exits or the step context is
// cancelled. Stdout and stderr are merged into one diagnostic stream.
type scriptStep struct {
	name string
	path string
}

func (s *scriptStep) Name() string { return s.name }

func (s *scriptStep) Run(ctx context.Context, ec *Context) (string, error) {
	var argv []string
	switch filepath.Ext(s.path) {
	case ".py":
		argv = []string{"python3", s.path}
	default:
		argv = []string{"bash", s.path}
	}

	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Dir = ec.WorkingDir
	cmd.Env = ec.Env

	var combined bytes.Buffer
	cmd.Stdout = &combined
	cmd.Stderr = &combined

	err := cmd.Run()
	output := strings.TrimRight(combined.String(), "\n")

	if err != nil {
		if ctx.Err() != nil {
			// Timeout/cancel is reported by the caller via the context.
			return output, ctx.Err()
		}
		exitCode := 1
		if exitErr, ok := err.(*exec.ExitError); ok {
			exitCode = exitErr.ExitCode()
		}
		return output, &StepExecutionError{Step: s.name, ExitCode: exitCode, Output: output}
	}

	return output, nil
}
