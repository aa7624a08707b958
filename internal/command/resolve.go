package command

import (
	"github.com/calebhart/ratchet/internal/models"
)

// maxChainDepth caps inheritance traversal as a backstop; cycles are caught
// by the visited set well before this.
const maxChainDepth = 32

// Resolve walks the inheritance chain of cmd and returns a definition with no
// remaining base reference. lookup loads a base definition by name. A cyclic
// or missing base is a ConfigError; resolution never loops indefinitely.
func Resolve(cmd *models.CommandDefinition, lookup func(name string) (*models.CommandDefinition, error)) (*models.CommandDefinition, error) {
	resolved := cloneDefinition(cmd)

	visited := map[string]bool{cmd.Name: true}
	for depth := 0; resolved.Extends != ""; depth++ {
		if depth >= maxChainDepth {
			return nil, &ConfigError{Command: cmd.Name, Reason: "inheritance chain too deep"}
		}
		baseName := resolved.Extends
		if visited[baseName] {
			return nil, &ConfigError{Command: cmd.Name, Reason: "inheritance cycle through " + baseName}
		}
		visited[baseName] = true

		base, err := lookup(baseName)
		if err != nil {
			return nil, err
		}

		merged := merge(resolved, base)
		merged.Extends = base.Extends
		resolved = merged
	}

	return resolved, nil
}

// merge applies the derived-over-base policy: scalars are overridden when the
// derived document sets them, list fields are replaced wholesale when
// non-empty (never concatenated), environment maps merge key-wise with
// derived values winning.
func merge(derived, base *models.CommandDefinition) *models.CommandDefinition {
	out := cloneDefinition(base)

	out.Name = derived.Name
	if derived.Description != "" {
		out.Description = derived.Description
	}
	if derived.Category != "" {
		out.Category = derived.Category
	}
	if derived.WorkingDirectory != "" {
		out.WorkingDirectory = derived.WorkingDirectory
	}
	if derived.Timeout != 0 {
		out.Timeout = derived.Timeout
	}

	if len(derived.Arguments) > 0 {
		out.Arguments = append([]models.Argument(nil), derived.Arguments...)
	}
	if len(derived.PreSteps) > 0 {
		out.PreSteps = append([]string(nil), derived.PreSteps...)
	}
	if len(derived.Steps) > 0 {
		out.Steps = append([]string(nil), derived.Steps...)
	}
	if len(derived.PostSteps) > 0 {
		out.PostSteps = append([]string(nil), derived.PostSteps...)
	}
	if len(derived.CleanupOnFailure) > 0 {
		out.CleanupOnFailure = append([]string(nil), derived.CleanupOnFailure...)
	}

	if len(derived.Environment) > 0 {
		if out.Environment == nil {
			out.Environment = make(map[string]string, len(derived.Environment))
		}
		for k, v := range derived.Environment {
			out.Environment[k] = v
		}
	}

	return out
}

func cloneDefinition(cmd *models.CommandDefinition) *models.CommandDefinition {
	out := *cmd
	out.Arguments = append([]models.Argument(nil), cmd.Arguments...)
	out.PreSteps = append([]string(nil), cmd.PreSteps...)
	out.Steps = append([]string(nil), cmd.Steps...)
	out.PostSteps = append([]string(nil), cmd.PostSteps...)
	out.CleanupOnFailure = append([]string(nil), cmd.CleanupOnFailure...)
	if cmd.Environment != nil {
		out.Environment = make(map[string]string, len(cmd.Environment))
		for k, v := range cmd.Environment {
			out.Environment[k] = v
		}
	}
	return &out
}
