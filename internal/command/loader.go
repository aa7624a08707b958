package command

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/calebhart/ratchet/internal/models"
)

// Loader reads workflow command definitions from a list of directories,
// project directory first. Loaded definitions are cached by name.
type Loader struct {
	dirs  []string
	cache map[string]*models.CommandDefinition
}

func NewLoader(dirs []string) *Loader {
	return &Loader{
		dirs:  dirs,
		cache: make(map[string]*models.CommandDefinition),
	}
}

// Load returns the fully resolved definition for name, following the
// inheritance chain. A missing command is a ConfigError.
func (l *Loader) Load(name string) (*models.CommandDefinition, error) {
	raw, err := l.loadRaw(name)
	if err != nil {
		return nil, err
	}
	resolved, err := Resolve(raw, l.loadRaw)
	if err != nil {
		return nil, err
	}
	if err := validate(resolved); err != nil {
		return nil, err
	}
	return resolved, nil
}

// loadRaw parses one definition file without resolving inheritance.
func (l *Loader) loadRaw(name string) (*models.CommandDefinition, error) {
	if cmd, ok := l.cache[name]; ok {
		return cmd, nil
	}

	for _, dir := range l.dirs {
		for _, ext := range []string{".yaml", ".yml"} {
			path := filepath.Join(dir, name+ext)
			data, err := os.ReadFile(path)
			if err != nil {
				continue
			}
			cmd, err := parse(data)
			if err != nil {
				return nil, &ConfigError{Command: name, Reason: err.Error()}
			}
			if cmd.Name == "" {
				cmd.Name = name
			}
			l.cache[name] = cmd
			return cmd, nil
		}
	}

	return nil, &ConfigError{Command: name, Reason: "not found"}
}

// Discover loads every definition found in the search path. Files that fail
// to parse are skipped; a project definition shadows a user one of the same
// name.
func (l *Loader) Discover() ([]*models.CommandDefinition, error) {
	seen := make(map[string]*models.CommandDefinition)
	var names []string

	for _, dir := range l.dirs {
		entries, err := os.ReadDir(dir)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, err
		}
		for _, entry := range entries {
			if entry.IsDir() {
				continue
			}
			base := entry.Name()
			if !strings.HasSuffix(base, ".yaml") && !strings.HasSuffix(base, ".yml") {
				continue
			}
			name := strings.TrimSuffix(strings.TrimSuffix(base, ".yaml"), ".yml")
			if _, ok := seen[name]; ok {
				continue
			}
			cmd, err := l.Load(name)
			if err != nil {
				continue
			}
			seen[name] = cmd
			names = append(names, name)
		}
	}

	sort.Strings(names)
	commands := make([]*models.CommandDefinition, 0, len(names))
	for _, name := range names {
		commands = append(commands, seen[name])
	}
	return commands, nil
}

func parse(data []byte) (*models.CommandDefinition, error) {
	// Catch `steps: not-a-list` before the typed unmarshal so the error names
	// the field instead of surfacing a yaml type mismatch.
	var shape struct {
		Steps yaml.Node `yaml:"steps"`
	}
	if err := yaml.Unmarshal(data, &shape); err != nil {
		return nil, err
	}
	if shape.Steps.Kind != 0 && shape.Steps.Kind != yaml.SequenceNode {
		return nil, fmt.Errorf("steps must be a sequence")
	}

	var cmd models.CommandDefinition
	if err := yaml.Unmarshal(data, &cmd); err != nil {
		return nil, err
	}
	return &cmd, nil
}

// validate enforces the post-resolution invariants.
func validate(cmd *models.CommandDefinition) error {
	if cmd.Name == "" {
		return &ConfigError{Reason: "name is required"}
	}
	if cmd.Description == "" {
		return &ConfigError{Command: cmd.Name, Reason: "description is required"}
	}
	if len(cmd.Steps) == 0 {
		return &ConfigError{Command: cmd.Name, Reason: "steps must be a non-empty sequence"}
	}
	if cmd.Extends != "" {
		return &ConfigError{Command: cmd.Name, Reason: "unresolved base reference " + cmd.Extends}
	}
	for _, arg := range cmd.Arguments {
		switch arg.Type {
		case "", "string", "integer", "boolean":
		default:
			return &ConfigError{Command: cmd.Name, Reason: fmt.Sprintf("argument %q has unknown type %q", arg.Name, arg.Type)}
		}
	}
	return nil
}
