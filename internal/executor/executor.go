package executor

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/calebhart/ratchet/internal/artifacts"
	"github.com/calebhart/ratchet/internal/config"
	"github.com/calebhart/ratchet/internal/models"
	"github.com/calebhart/ratchet/internal/prompts"
	"github.com/calebhart/ratchet/internal/session"
	"github.com/calebhart/ratchet/internal/storage"
	"github.com/calebhart/ratchet/internal/worktree"
)

type StepStatus string

const (
	StepStatusPending   StepStatus = "pending"
	StepStatusRunning   StepStatus = "running"
	StepStatusCompleted StepStatus = "completed"
	StepStatusFailed    StepStatus = "failed"
	StepStatusTimedOut  StepStatus = "timed_out"
)

// StepResult records one step's terminal state.
type StepResult struct {
	Index    int
	Name     string
	Status   StepStatus
	Output   string
	ExitCode int
	Duration time.Duration
}

// Result is the outcome of one command invocation.
type Result struct {
	EventID     int64
	SessionID   string
	ArtifactDir string
	Status      models.EventStatus
	Steps       []StepResult
}

// Executor drives the per-command state machine: strictly sequential steps,
// a durable event per invocation, and a log artifact per executed step.
type Executor struct {
	cfg       *config.Config
	store     *storage.Storage
	artifacts *artifacts.Store
	worktrees *worktree.Manager
	sessions  *session.Manager
	prompts   *prompts.Assembler
}

func New(cfg *config.Config, store *storage.Storage, artifactStore *artifacts.Store) *Executor {
	e := &Executor{
		cfg:       cfg,
		store:     store,
		artifacts: artifactStore,
		worktrees: worktree.NewManager(cfg.PlumPath),
		sessions:  session.NewManager(cfg.PotsPath),
	}
	return e
}

// SetPromptAssembler wires the assembler used by the assemble-prompt step.
func (e *Executor) SetPromptAssembler(a *prompts.Assembler) {
	e.prompts = a
}

// Execute runs a resolved command against a project. args must already be
// validated with defaults applied. The command-level timeout bounds the whole
// step sequence; each step additionally gets its own per-step bound.
func (e *Executor) Execute(ctx context.Context, cmd *models.CommandDefinition, projectPath string, args map[string]string) (*Result, error) {
	// An unreachable store is fatal before any step runs.
	if err := e.store.Ping(); err != nil {
		return nil, err
	}

	ec, err := BuildContext(e.cfg, e.artifacts, cmd, projectPath, args)
	if err != nil {
		return nil, err
	}

	eventID, err := e.store.StartEvent(&models.Event{
		Command:       cmd.Name,
		ProjectPath:   ec.ProjectPath,
		SessionID:     ec.SessionID,
		ArtifactsPath: ec.ArtifactDir,
		Metadata:      map[string]any{"category": cmd.Category},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to start event: %w", err)
	}
	ec.EventID = eventID
	ec.Env = append(ec.Env, fmt.Sprintf("RATCHET_EVENT_ID=%d", eventID))

	result := &Result{
		EventID:     eventID,
		SessionID:   ec.SessionID,
		ArtifactDir: ec.ArtifactDir,
	}

	commandTimeout := e.cfg.CommandTimeout
	if cmd.Timeout > 0 {
		commandTimeout = time.Duration(cmd.Timeout) * time.Second
	}
	cmdCtx, cancel := context.WithTimeout(ctx, commandTimeout)
	defer cancel()

	registry := NewRegistry(e.builtins(), e.cfg.StepDirs(ec.ProjectPath))

	steps := cmd.AllSteps()
	for i, name := range steps {
		res, stepErr := e.runStep(cmdCtx, registry, ec, i+1, name, ec.StepTimeout)
		result.Steps = append(result.Steps, res)

		if logErr := e.storeStepLog(ec, res); logErr != nil {
			stepErr = errors.Join(stepErr, logErr)
		}

		if stepErr != nil {
			// Remaining steps are abandoned; the event is finalized before
			// any cleanup runs so cleanup failures cannot alter the outcome.
			message := fmt.Sprintf("step %q failed: %s", name, diagnostic(res, stepErr))
			exitCode := res.ExitCode
			if exitCode == 0 {
				exitCode = 1
			}
			if endErr := e.store.EndEvent(eventID, models.EventStatusFailed, exitCode, message); endErr != nil {
				stepErr = errors.Join(stepErr, endErr)
			}
			result.Status = models.EventStatusFailed

			e.runCleanup(ec, registry, result)
			return result, stepErr
		}
	}

	if err := e.store.EndEvent(eventID, models.EventStatusCompleted, 0, ""); err != nil {
		return result, fmt.Errorf("failed to finalize event: %w", err)
	}
	result.Status = models.EventStatusCompleted
	return result, nil
}

// runStep resolves and executes one step, classifying the terminal state.
func (e *Executor) runStep(parent context.Context, registry *Registry, ec *Context, index int, name string, timeout time.Duration) (StepResult, error) {
	res := StepResult{Index: index, Name: name, Status: StepStatusPending}

	step, err := registry.Resolve(name)
	if err != nil {
		res.Status = StepStatusFailed
		res.ExitCode = 1
		res.Output = err.Error()
		return res, err
	}

	stepCtx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	res.Status = StepStatusRunning
	start := time.Now()
	output, runErr := step.Run(stepCtx, ec)
	res.Duration = time.Since(start)
	res.Output = output

	if runErr != nil {
		if stepCtx.Err() == context.DeadlineExceeded {
			res.Status = StepStatusTimedOut
			res.ExitCode = 1
			return res, &StepTimeoutError{Step: name, Timeout: timeout}
		}

		res.Status = StepStatusFailed
		var execErr *StepExecutionError
		if errors.As(runErr, &execErr) {
			res.ExitCode = execErr.ExitCode
			return res, runErr
		}
		res.ExitCode = 1
		if output == "" {
			res.Output = runErr.Error()
		}
		return res, &StepExecutionError{Step: name, ExitCode: 1, Output: runErr.Error()}
	}

	res.Status = StepStatusCompleted
	return res, nil
}

// storeStepLog persists a step's merged output as a log artifact, success or
// failure. Post-hoc diagnosis depends on these.
func (e *Executor) storeStepLog(ec *Context, res StepResult) error {
	name := fmt.Sprintf("step-%02d-%s.log", res.Index, res.Name)
	content := res.Output
	if content == "" {
		content = "(no output)"
	}

	path, size, err := e.artifacts.StoreContent(ec.ArtifactDir, content, name, models.ArtifactLog)
	if err != nil {
		return fmt.Errorf("failed to store step log: %w", err)
	}

	_, err = e.store.StoreArtifact(&models.Artifact{
		EventID: ec.EventID,
		Type:    models.ArtifactLog,
		Name:    name,
		Description: fmt.Sprintf("step %d (%s) status=%s exit=%d duration=%s",
			res.Index, res.Name, res.Status, res.ExitCode, res.Duration.Round(time.Millisecond)),
		FilePath: path,
		FileSize: size,
	})
	if err != nil {
		return fmt.Errorf("failed to record step log artifact: %w", err)
	}
	return nil
}

// runCleanup executes cleanup_on_failure best-effort after the event has been
// finalized. Cleanup failures are recorded as log artifacts but never change
// the command's outcome and never propagate.
func (e *Executor) runCleanup(ec *Context, registry *Registry, result *Result) {
	for i, name := range ec.Command.CleanupOnFailure {
		ctx, cancel := context.WithTimeout(context.Background(), e.cfg.CleanupTimeout)
		res, _ := e.runStep(ctx, registry, ec, len(result.Steps)+i+1, name, e.cfg.CleanupTimeout)
		cancel()

		res.Name = "cleanup-" + res.Name
		result.Steps = append(result.Steps, res)
		_ = e.storeStepLog(ec, res)
	}
}

// DryRun renders the execution plan without creating an event.
func (e *Executor) DryRun(cmd *models.CommandDefinition, projectPath string, args map[string]string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Dry run for command: %s\n", cmd.Name)
	fmt.Fprintf(&b, "Description: %s\n", cmd.Description)
	fmt.Fprintf(&b, "Project path: %s\n", projectPath)
	if len(args) > 0 {
		fmt.Fprintf(&b, "Arguments: %v\n", args)
	}

	steps := cmd.AllSteps()
	fmt.Fprintf(&b, "\nSteps to execute (%d):\n", len(steps))
	for i, step := range steps {
		fmt.Fprintf(&b, "  %d. %s\n", i+1, step)
	}

	if len(cmd.CleanupOnFailure) > 0 {
		b.WriteString("\nCleanup steps on failure:\n")
		for _, step := range cmd.CleanupOnFailure {
			fmt.Fprintf(&b, "  - %s\n", step)
		}
	}

	return b.String()
}

func diagnostic(res StepResult, err error) string {
	if res.Output != "" {
		return res.Output
	}
	return err.Error()
}
