package command

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/calebhart/ratchet/internal/models"
)

func lookupFrom(defs map[string]*models.CommandDefinition) func(string) (*models.CommandDefinition, error) {
	return func(name string) (*models.CommandDefinition, error) {
		if def, ok := defs[name]; ok {
			return def, nil
		}
		return nil, fmt.Errorf("base %q not found", name)
	}
}

func TestResolveInheritance(t *testing.T) {
	base := &models.CommandDefinition{
		Name:        "base-task",
		Description: "Base workflow",
		Category:    "general",
		Environment: map[string]string{"LOG_LEVEL": "info", "MODE": "base"},
		PreSteps:    []string{"setup-environment"},
		Steps:       []string{"base-step"},
		Timeout:     600,
	}
	derived := &models.CommandDefinition{
		Name:        "feature",
		Extends:     "base-task",
		Description: "Feature workflow",
		Environment: map[string]string{"MODE": "feature"},
		Steps:       []string{"feature-step-1", "feature-step-2"},
	}

	resolved, err := Resolve(derived, lookupFrom(map[string]*models.CommandDefinition{"base-task": base}))
	require.NoError(t, err)

	assert.Equal(t, "feature", resolved.Name)
	assert.Empty(t, resolved.Extends)
	assert.Equal(t, "Feature workflow", resolved.Description)

	// Scalars not set by the derived document come from the base.
	assert.Equal(t, "general", resolved.Category)
	assert.Equal(t, 600, resolved.Timeout)

	// Lists replace wholesale, never concatenate.
	assert.Equal(t, []string{"feature-step-1", "feature-step-2"}, resolved.Steps)
	assert.Equal(t, []string{"setup-environment"}, resolved.PreSteps)

	// Environment maps merge key-wise with derived values winning.
	assert.Equal(t, "feature", resolved.Environment["MODE"])
	assert.Equal(t, "info", resolved.Environment["LOG_LEVEL"])
}

func TestResolveChain(t *testing.T) {
	defs := map[string]*models.CommandDefinition{
		"grandparent": {
			Name:        "grandparent",
			Description: "Root",
			Category:    "root-category",
			Steps:       []string{"root-step"},
		},
		"parent": {
			Name:        "parent",
			Extends:     "grandparent",
			Description: "Middle",
		},
	}
	child := &models.CommandDefinition{
		Name:    "child",
		Extends: "parent",
	}

	resolved, err := Resolve(child, lookupFrom(defs))
	require.NoError(t, err)

	assert.Equal(t, "child", resolved.Name)
	assert.Equal(t, "Middle", resolved.Description)
	assert.Equal(t, "root-category", resolved.Category)
	assert.Equal(t, []string{"root-step"}, resolved.Steps)
}

func TestResolveIsDeterministicAndIdempotent(t *testing.T) {
	defs := map[string]*models.CommandDefinition{
		"base": {
			Name:        "base",
			Description: "Base",
			Environment: map[string]string{"A": "1", "B": "2"},
			Steps:       []string{"s1"},
		},
	}
	derived := &models.CommandDefinition{
		Name:        "top",
		Extends:     "base",
		Environment: map[string]string{"B": "override"},
	}

	first, err := Resolve(derived, lookupFrom(defs))
	require.NoError(t, err)
	second, err := Resolve(derived, lookupFrom(defs))
	require.NoError(t, err)
	assert.Equal(t, first, second)

	// Resolving an already resolved definition changes nothing.
	again, err := Resolve(first, lookupFrom(defs))
	require.NoError(t, err)
	assert.Equal(t, first, again)
}

func TestResolveCycle(t *testing.T) {
	defs := map[string]*models.CommandDefinition{
		"a": {Name: "a", Extends: "b"},
		"b": {Name: "b", Extends: "a"},
	}

	_, err := Resolve(defs["a"], lookupFrom(defs))
	var cfgErr *ConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.Contains(t, cfgErr.Reason, "cycle")
}

func TestResolveSelfCycle(t *testing.T) {
	def := &models.CommandDefinition{Name: "loop", Extends: "loop"}

	_, err := Resolve(def, lookupFrom(map[string]*models.CommandDefinition{"loop": def}))
	var cfgErr *ConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.Contains(t, cfgErr.Reason, "cycle")
}

func TestResolveMissingBase(t *testing.T) {
	def := &models.CommandDefinition{Name: "orphan", Extends: "ghost"}

	_, err := Resolve(def, lookupFrom(nil))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ghost")
}

func TestResolveDoesNotMutateInput(t *testing.T) {
	base := &models.CommandDefinition{
		Name:        "base",
		Description: "Base",
		Environment: map[string]string{"K": "base"},
		Steps:       []string{"s1"},
	}
	derived := &models.CommandDefinition{
		Name:        "top",
		Extends:     "base",
		Environment: map[string]string{"K": "top"},
	}

	_, err := Resolve(derived, lookupFrom(map[string]*models.CommandDefinition{"base": base}))
	require.NoError(t, err)

	assert.Equal(t, "base", base.Environment["K"])
	assert.Equal(t, "base", derived.Extends)
}
