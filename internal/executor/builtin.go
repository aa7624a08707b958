package executor

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/calebhart/ratchet/internal/models"
	"github.com/calebhart/ratchet/internal/prompts"
)

// builtins maps the step names every installation carries. Project-local
// scripts never shadow these.
func (e *Executor) builtins() map[string]StepFunc {
	return map[string]StepFunc{
		"setup-environment":      e.stepSetupEnvironment,
		"validate-prerequisites": e.stepValidatePrerequisites,
		"create-worktree":        e.stepCreateWorktree,
		"start-session":          e.stepStartSession,
		"gather-context":         e.stepGatherContext,
		"assemble-prompt":        e.stepAssemblePrompt,
		"store-artifacts":        e.stepStoreArtifacts,
		"cleanup":                e.stepCleanup,
	}
}

func (e *Executor) stepSetupEnvironment(ctx context.Context, ec *Context) (string, error) {
	if _, err := os.Stat(ec.WorkingDir); err != nil {
		return "", fmt.Errorf("working directory not accessible: %w", err)
	}
	if _, err := os.Stat(ec.ArtifactDir); err != nil {
		return "", fmt.Errorf("artifact directory not accessible: %w", err)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "session: %s\n", ec.SessionID)
	fmt.Fprintf(&b, "project: %s\n", ec.ProjectPath)
	fmt.Fprintf(&b, "working directory: %s\n", ec.WorkingDir)
	fmt.Fprintf(&b, "artifact directory: %s\n", ec.ArtifactDir)
	return b.String(), nil
}

// stepValidatePrerequisites checks what the rest of the sequence will need.
// All problems are collected before failing so the operator fixes them in one
// pass.
func (e *Executor) stepValidatePrerequisites(ctx context.Context, ec *Context) (string, error) {
	var issues []string

	if _, err := os.Stat(filepath.Join(ec.ProjectPath, ".git")); err != nil {
		issues = append(issues, "project is not a git repository")
	}

	steps := ec.Command.AllSteps()
	// Plum brings its own git; the fallback path needs git directly.
	if containsStep(steps, "create-worktree") && !e.worktrees.Available() {
		if _, err := exec.LookPath("git"); err != nil {
			issues = append(issues, "git not found in PATH")
		}
	}
	if containsStep(steps, "start-session") && !e.sessions.Available() {
		issues = append(issues, "no terminal session manager available (pots or tmux)")
	}

	if len(issues) > 0 {
		return strings.Join(issues, "\n"), fmt.Errorf("prerequisites not met: %s", strings.Join(issues, "; "))
	}
	return "all prerequisites satisfied", nil
}

func (e *Executor) stepCreateWorktree(ctx context.Context, ec *Context) (string, error) {
	branch := ec.Args["branch_name"]
	if branch == "" {
		branch = fmt.Sprintf("ratchet/%s-%d", ec.Command.Name, time.Now().Unix())
	}

	path, err := e.worktrees.Create(ec.ProjectPath, branch)
	if err != nil {
		return "", err
	}

	ec.WorktreePath = path
	ec.BranchName = branch
	ec.WorkingDir = path
	if err := e.store.SetEventWorktree(ec.EventID, branch); err != nil {
		return "", err
	}

	return fmt.Sprintf("worktree created at %s on branch %s", path, branch), nil
}

func (e *Executor) stepStartSession(ctx context.Context, ec *Context) (string, error) {
	handle, err := e.sessions.Create(ec.WorkingDir, ec.SessionID)
	if err != nil {
		return "", err
	}
	ec.SessionHandle = handle

	_, err = e.store.CreateSession(&models.Session{
		Name:         ec.SessionID,
		ProjectPath:  ec.ProjectPath,
		WorktreeName: ec.BranchName,
		Handle:       handle,
		Status:       models.SessionStatusActive,
	})
	if err != nil {
		return "", err
	}

	return fmt.Sprintf("session started: %s", handle), nil
}

// stepGatherContext snapshots the project's git state into a spec artifact so
// later steps and prompt templates see a consistent view.
func (e *Executor) stepGatherContext(ctx context.Context, ec *Context) (string, error) {
	info := map[string]any{
		"command":      ec.Command.Name,
		"project_path": ec.ProjectPath,
		"project_name": ec.ProjectName,
		"session_id":   ec.SessionID,
		"gathered_at":  time.Now().UTC().Format(time.RFC3339),
	}

	branchCmd := exec.CommandContext(ctx, "git", "branch", "--show-current")
	branchCmd.Dir = ec.ProjectPath
	if out, err := branchCmd.Output(); err == nil {
		info["current_branch"] = strings.TrimSpace(string(out))
	}
	if ec.WorktreePath != "" {
		info["worktree_path"] = ec.WorktreePath
		info["worktree_branch"] = ec.BranchName
	}
	if trees, err := e.worktrees.List(ec.ProjectPath); err == nil && len(trees) > 0 {
		info["worktrees"] = trees
	}
	if len(ec.Args) > 0 {
		info["arguments"] = ec.Args
	}

	data, err := json.MarshalIndent(info, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to encode context: %w", err)
	}

	path, size, err := e.artifacts.StoreContent(ec.ArtifactDir, string(data), "context.json", models.ArtifactSpec)
	if err != nil {
		return "", err
	}
	_, err = e.store.StoreArtifact(&models.Artifact{
		EventID:     ec.EventID,
		Type:        models.ArtifactSpec,
		Name:        "context.json",
		Description: "gathered project context",
		FilePath:    path,
		FileSize:    size,
	})
	if err != nil {
		return "", err
	}

	return "context gathered: " + path, nil
}

func (e *Executor) stepAssemblePrompt(ctx context.Context, ec *Context) (string, error) {
	if e.prompts == nil {
		return "", fmt.Errorf("prompt assembler not configured")
	}

	template := ec.Args["template"]
	if template == "" {
		template = "task"
	}

	extra := map[string]string{"branch": ec.BranchName}
	for k, v := range ec.Args {
		extra[k] = v
	}

	path, err := e.prompts.Assemble(template, prompts.Vars{
		EventID:     ec.EventID,
		SessionID:   ec.SessionID,
		ProjectName: ec.ProjectName,
		CommandName: ec.Command.Name,
		ArtifactDir: ec.ArtifactDir,
		Extra:       extra,
	})
	if err != nil {
		return "", err
	}

	return "prompt assembled: " + path, nil
}

// stepStoreArtifacts registers the session's metadata files in the database so
// history queries can find them without walking the filesystem.
func (e *Executor) stepStoreArtifacts(ctx context.Context, ec *Context) (string, error) {
	var stored []string
	for _, name := range []string{"session.info", "manifest.txt"} {
		path := filepath.Join(ec.ArtifactDir, name)
		info, err := os.Stat(path)
		if err != nil {
			continue
		}
		_, err = e.store.StoreArtifact(&models.Artifact{
			EventID:     ec.EventID,
			Type:        models.ArtifactConfig,
			Name:        name,
			Description: "session metadata",
			FilePath:    path,
			FileSize:    info.Size(),
		})
		if err != nil {
			return "", err
		}
		stored = append(stored, name)
	}

	if len(stored) == 0 {
		return "no metadata files to register", nil
	}
	return "registered: " + strings.Join(stored, ", "), nil
}

// stepCleanup detaches or kills the terminal session, optionally removes the
// created worktree, and clears scratch files. Usable both as a trailing step
// and under cleanup_on_failure.
func (e *Executor) stepCleanup(ctx context.Context, ec *Context) (string, error) {
	var b strings.Builder

	if ec.SessionHandle != "" {
		if ec.Args["kill_session"] == "true" {
			if err := e.sessions.Kill(ec.SessionHandle); err != nil {
				fmt.Fprintf(&b, "failed to kill session: %v\n", err)
			} else if err := e.store.SetSessionStatus(ec.SessionID, models.SessionStatusKilled); err != nil {
				fmt.Fprintf(&b, "failed to record killed session: %v\n", err)
			} else {
				fmt.Fprintf(&b, "session %s killed\n", ec.SessionID)
			}
		} else if err := e.store.SetSessionStatus(ec.SessionID, models.SessionStatusDetached); err != nil {
			fmt.Fprintf(&b, "failed to detach session record: %v\n", err)
		} else {
			fmt.Fprintf(&b, "session %s detached\n", ec.SessionID)
		}
	}

	if ec.WorktreePath != "" && ec.Args["remove_worktree"] == "true" {
		if err := e.worktrees.Remove(ec.ProjectPath, ec.WorktreePath); err != nil {
			fmt.Fprintf(&b, "failed to remove worktree: %v\n", err)
		} else {
			fmt.Fprintf(&b, "worktree %s removed\n", ec.WorktreePath)
		}
	}

	tempDir := filepath.Join(ec.ArtifactDir, string(models.ArtifactTemp))
	entries, err := os.ReadDir(tempDir)
	if err == nil {
		for _, entry := range entries {
			if err := os.RemoveAll(filepath.Join(tempDir, entry.Name())); err == nil {
				fmt.Fprintf(&b, "removed temp file %s\n", entry.Name())
			}
		}
	}

	if b.Len() == 0 {
		return "nothing to clean up", nil
	}
	return b.String(), nil
}

func containsStep(steps []string, name string) bool {
	for _, s := range steps {
		if s == name {
			return true
		}
	}
	return false
}
