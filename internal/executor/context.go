package executor

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/calebhart/ratchet/internal/artifacts"
	"github.com/calebhart/ratchet/internal/config"
	"github.com/calebhart/ratchet/internal/models"
)

// Context is the execution state threaded through every step of one command
// invocation. One command runs single-threaded, so steps mutate it freely to
// pass values forward (worktree path, session handle).
type Context struct {
	Command     *models.CommandDefinition
	ProjectPath string
	ProjectName string
	SessionID   string
	ArtifactDir string
	Args        map[string]string
	Env         []string
	WorkingDir  string
	StepTimeout time.Duration

	EventID       int64
	WorktreePath  string
	BranchName    string
	SessionHandle string
}

// NewSessionID derives an invocation-unique session identifier. The uuid
// suffix keeps concurrent invocations on one host from colliding; the
// timestamp keeps the artifact tree sortable.
func NewSessionID(projectName string) string {
	return fmt.Sprintf("%s-%d-%s", projectName, time.Now().Unix(), uuid.NewString()[:8])
}

// BuildContext derives the session id, creates the artifact directory tree
// with its initial metadata record, and merges the environment.
func BuildContext(cfg *config.Config, store *artifacts.Store, cmd *models.CommandDefinition, projectPath string, args map[string]string) (*Context, error) {
	absProject, err := filepath.Abs(projectPath)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve project path: %w", err)
	}

	projectName := filepath.Base(absProject)
	sessionID := NewSessionID(projectName)

	artifactDir, err := store.CreateSessionDir(projectName, sessionID, cmd.Name)
	if err != nil {
		return nil, err
	}

	workingDir := cmd.WorkingDirectory
	if workingDir == "" {
		workingDir = absProject
	}

	ec := &Context{
		Command:     cmd,
		ProjectPath: absProject,
		ProjectName: projectName,
		SessionID:   sessionID,
		ArtifactDir: artifactDir,
		Args:        args,
		WorkingDir:  workingDir,
		StepTimeout: cfg.StepTimeout,
	}
	ec.Env = mergeEnv(ec)
	return ec, nil
}

// mergeEnv layers: process environment, then definition environment, then one
// derived entry per supplied argument, then the standard context entries.
func mergeEnv(ec *Context) []string {
	env := os.Environ()

	for k, v := range ec.Command.Environment {
		env = append(env, k+"="+v)
	}
	for k, v := range ec.Args {
		env = append(env, "RATCHET_ARG_"+envKey(k)+"="+v)
	}

	env = append(env,
		"RATCHET_COMMAND="+ec.Command.Name,
		"RATCHET_PROJECT_PATH="+ec.ProjectPath,
		"RATCHET_PROJECT_NAME="+ec.ProjectName,
		"RATCHET_SESSION_ID="+ec.SessionID,
		"RATCHET_ARTIFACT_DIR="+ec.ArtifactDir,
		"RATCHET_WORKING_DIR="+ec.WorkingDir,
	)
	return env
}

func envKey(name string) string {
	key := strings.ToUpper(name)
	return strings.Map(func(r rune) rune {
		if (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			return r
		}
		return '_'
	}, key)
}
