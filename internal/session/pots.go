// Package session shells out to the pots terminal-session manager, falling
// back to tmux directly when pots is absent.
package session

import (
	"fmt"
	"os/exec"
	"strings"
)

type Manager struct {
	potsPath string
}

func NewManager(potsPath string) *Manager {
	if potsPath == "" {
		if found, err := exec.LookPath("pots"); err == nil {
			potsPath = found
		}
	}
	return &Manager{potsPath: potsPath}
}

func (m *Manager) Available() bool {
	if m.potsPath != "" {
		return true
	}
	_, err := exec.LookPath("tmux")
	return err == nil
}

// Create starts a detached terminal session bound to workingDir and returns
// the external handle.
func (m *Manager) Create(workingDir, label string) (string, error) {
	if m.potsPath != "" {
		cmd := exec.Command(m.potsPath, "create", label)
		cmd.Dir = workingDir
		output, err := cmd.CombinedOutput()
		if err != nil {
			return "", fmt.Errorf("pots create failed: %s", strings.TrimSpace(string(output)))
		}
		handle := strings.TrimSpace(string(output))
		if handle == "" {
			handle = label
		}
		return handle, nil
	}

	cmd := exec.Command("tmux", "new-session", "-d", "-s", label, "-c", workingDir)
	if output, err := cmd.CombinedOutput(); err != nil {
		return "", fmt.Errorf("tmux new-session failed: %s", strings.TrimSpace(string(output)))
	}
	return label, nil
}

// Kill terminates a session, best-effort.
func (m *Manager) Kill(handle string) error {
	var cmd *exec.Cmd
	if m.potsPath != "" {
		cmd = exec.Command(m.potsPath, "kill", handle)
	} else {
		cmd = exec.Command("tmux", "kill-session", "-t", handle)
	}
	if output, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("session kill failed: %s", strings.TrimSpace(string(output)))
	}
	return nil
}
