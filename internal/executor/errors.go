package executor

import (
	"fmt"
	"time"
)

// StepNotFoundError means a step name resolved to neither a built-in nor an
// external script. Never retried.
type StepNotFoundError struct {
	Step string
}

func (e *StepNotFoundError) Error() string {
	return fmt.Sprintf("step %q not found", e.Step)
}

// StepTimeoutError means a step exceeded its execution bound.
type StepTimeoutError struct {
	Step    string
	Timeout time.Duration
}

func (e *StepTimeoutError) Error() string {
	return fmt.Sprintf("step %q timed out after %s", e.Step, e.Timeout)
}

// StepExecutionError means a step ran and failed. Output carries the step's
// captured diagnostic text.
type StepExecutionError struct {
	Step     string
	ExitCode int
	Output   string
}

func (e *StepExecutionError) Error() string {
	if e.Output != "" {
		return fmt.Sprintf("step %q failed (exit %d): %s", e.Step, e.ExitCode, e.Output)
	}
	return fmt.Sprintf("step %q failed (exit %d)", e.Step, e.ExitCode)
}
