package executor

import (
	"context"
	"os"
	"path/filepath"

	"github.com/calebhart/ratchet/internal/luastep"
)

// StepFunc is the signature shared by every built-in step.
type StepFunc func(ctx context.Context, ec *Context) (string, error)

// Step is one unit of execution, built-in or externally scripted.
type Step interface {
	Name() string
	Run(ctx context.Context, ec *Context) (string, error)
}

// Registry resolves step names. Built-ins win; otherwise the step directories
// are searched in order (project-local first) for .sh, .py, and .lua scripts.
type Registry struct {
	builtins map[string]StepFunc
	stepDirs []string
}

func NewRegistry(builtins map[string]StepFunc, stepDirs []string) *Registry {
	return &Registry{builtins: builtins, stepDirs: stepDirs}
}

// Resolve maps a step name to an implementation, or StepNotFoundError.
func (r *Registry) Resolve(name string) (Step, error) {
	if fn, ok := r.builtins[name]; ok {
		return &builtinStep{name: name, fn: fn}, nil
	}

	for _, dir := range r.stepDirs {
		for _, ext := range []string{".sh", ".py", ".lua"} {
			path := filepath.Join(dir, name+ext)
			if info, err := os.Stat(path); err != nil || info.IsDir() {
				continue
			}
			if luastep.IsLuaStep(path) {
				return &luaStep{name: name, path: path}, nil
			}
			return &scriptStep{name: name, path: path}, nil
		}
	}

	return nil, &StepNotFoundError{Step: name}
}

type builtinStep struct {
	name string
	fn   StepFunc
}

func (s *builtinStep) Name() string { return s.name }

func (s *builtinStep) Run(ctx context.Context, ec *Context) (string, error) {
	return s.fn(ctx, ec)
}

type luaStep struct {
	name string
	path string
}

func (s *luaStep) Name() string { return s.name }

func (s *luaStep) Run(ctx context.Context, ec *Context) (string, error) {
	vars := map[string]string{
		"command":      ec.Command.Name,
		"project_path": ec.ProjectPath,
		"project_name": ec.ProjectName,
		"session_id":   ec.SessionID,
		"artifact_dir": ec.ArtifactDir,
		"working_dir":  ec.WorkingDir,
	}
	for k, v := range ec.Args {
		vars["arg_"+k] = v
	}
	return luastep.Run(ctx, s.path, vars)
}
