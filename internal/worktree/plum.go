// Package worktree shells out to the plum worktree manager. The tool is a
// black box here: we invoke it, parse its output, and fall back to plain git
// when it is absent.
package worktree

import (
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"
)

type Manager struct {
	plumPath string
}

// NewManager probes for the plum executable. An explicit path wins; otherwise
// PATH is searched. A zero path means plain git fallback.
func NewManager(plumPath string) *Manager {
	if plumPath == "" {
		if found, err := exec.LookPath("plum"); err == nil {
			plumPath = found
		}
	}
	return &Manager{plumPath: plumPath}
}

func (m *Manager) Available() bool {
	return m.plumPath != ""
}

// Create makes a new worktree for projectPath on branchName and returns its
// path.
func (m *Manager) Create(projectPath, branchName string) (string, error) {
	if m.plumPath != "" {
		return m.createWithPlum(projectPath, branchName)
	}
	return m.createWithGit(projectPath, branchName)
}

func (m *Manager) createWithPlum(projectPath, branchName string) (string, error) {
	cmd := exec.Command(m.plumPath, "create", branchName)
	cmd.Dir = projectPath
	output, err := cmd.CombinedOutput()
	if err != nil {
		return "", fmt.Errorf("plum create failed: %s", strings.TrimSpace(string(output)))
	}

	for _, line := range strings.Split(string(output), "\n") {
		if idx := strings.Index(line, "Worktree created at:"); idx >= 0 {
			return strings.TrimSpace(line[idx+len("Worktree created at:"):]), nil
		}
	}

	// Plum's conventional layout when the path is not echoed.
	fallback := filepath.Join(filepath.Dir(projectPath), "worktrees", branchName)
	return fallback, nil
}

func (m *Manager) createWithGit(projectPath, branchName string) (string, error) {
	worktreePath := filepath.Join(filepath.Dir(projectPath), "worktrees", branchName)

	cmd := exec.Command("git", "worktree", "add", "-b", branchName, worktreePath)
	cmd.Dir = projectPath
	if output, err := cmd.CombinedOutput(); err != nil {
		return "", fmt.Errorf("git worktree add failed: %s", strings.TrimSpace(string(output)))
	}

	return worktreePath, nil
}

// List returns the worktree paths known for the project.
func (m *Manager) List(projectPath string) ([]string, error) {
	var cmd *exec.Cmd
	if m.plumPath != "" {
		cmd = exec.Command(m.plumPath, "list")
	} else {
		cmd = exec.Command("git", "worktree", "list", "--porcelain")
	}
	cmd.Dir = projectPath

	output, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("worktree list failed: %w", err)
	}

	var paths []string
	for _, line := range strings.Split(string(output), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if strings.HasPrefix(line, "worktree ") {
			line = strings.TrimPrefix(line, "worktree ")
		} else if m.plumPath == "" {
			continue
		} else {
			line = strings.Fields(line)[0]
		}
		paths = append(paths, line)
	}
	return paths, nil
}

// Remove deletes a worktree, best-effort.
func (m *Manager) Remove(projectPath, worktreePath string) error {
	var cmd *exec.Cmd
	if m.plumPath != "" {
		cmd = exec.Command(m.plumPath, "remove", worktreePath)
	} else {
		cmd = exec.Command("git", "worktree", "remove", "--force", worktreePath)
	}
	cmd.Dir = projectPath
	if output, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("worktree remove failed: %s", strings.TrimSpace(string(output)))
	}
	return nil
}
