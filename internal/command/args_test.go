package command

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/calebhart/ratchet/internal/models"
)

func TestValidateArgsAppliesDefaults(t *testing.T) {
	cmd := &models.CommandDefinition{
		Name: "task",
		Arguments: []models.Argument{
			{Name: "template", Default: "task"},
			{Name: "objective", Required: true},
		},
	}

	out, err := ValidateArgs(cmd, map[string]string{"objective": "fix the parser"})
	require.NoError(t, err)
	assert.Equal(t, "task", out["template"])
	assert.Equal(t, "fix the parser", out["objective"])
}

func TestValidateArgsCollectsAllProblems(t *testing.T) {
	cmd := &models.CommandDefinition{
		Name: "task",
		Arguments: []models.Argument{
			{Name: "a", Required: true},
			{Name: "b", Required: true},
			{Name: "count", Type: "integer"},
		},
	}

	_, err := ValidateArgs(cmd, map[string]string{"count": "three"})
	var argErr *ArgumentError
	require.ErrorAs(t, err, &argErr)

	// Both missing arguments and the bad value are reported together.
	assert.Equal(t, []string{"a", "b"}, argErr.Missing)
	require.Len(t, argErr.Invalid, 1)
	assert.Contains(t, argErr.Invalid[0], "count")
	assert.Contains(t, err.Error(), `required argument "a" missing`)
	assert.Contains(t, err.Error(), `required argument "b" missing`)
}

func TestValidateArgsTypeChecks(t *testing.T) {
	cmd := &models.CommandDefinition{
		Name: "task",
		Arguments: []models.Argument{
			{Name: "count", Type: "integer"},
			{Name: "force", Type: "boolean"},
		},
	}

	t.Run("valid values", func(t *testing.T) {
		out, err := ValidateArgs(cmd, map[string]string{"count": "42", "force": "true"})
		require.NoError(t, err)
		assert.Equal(t, "42", out["count"])
		assert.Equal(t, "true", out["force"])
	})

	t.Run("invalid boolean", func(t *testing.T) {
		_, err := ValidateArgs(cmd, map[string]string{"force": "maybe"})
		var argErr *ArgumentError
		require.ErrorAs(t, err, &argErr)
		assert.Contains(t, argErr.Invalid[0], "boolean")
	})
}

func TestValidateArgsPassesUnknownKeys(t *testing.T) {
	cmd := &models.CommandDefinition{Name: "task"}

	out, err := ValidateArgs(cmd, map[string]string{"extra": "value"})
	require.NoError(t, err)
	assert.Equal(t, "value", out["extra"])
}

func TestValidateArgsRequiredWithDefault(t *testing.T) {
	// A default satisfies a required argument.
	cmd := &models.CommandDefinition{
		Name: "task",
		Arguments: []models.Argument{
			{Name: "mode", Required: true, Default: "fast"},
		},
	}

	out, err := ValidateArgs(cmd, nil)
	require.NoError(t, err)
	assert.Equal(t, "fast", out["mode"])
}

func TestParsePairs(t *testing.T) {
	out, err := ParsePairs([]string{"key=value", "empty=", "eq=a=b"})
	require.NoError(t, err)
	assert.Equal(t, "value", out["key"])
	assert.Equal(t, "", out["empty"])
	assert.Equal(t, "a=b", out["eq"])
}

func TestParsePairsRejectsBareTokens(t *testing.T) {
	_, err := ParsePairs([]string{"good=1", "bad", "=nokey"})
	var argErr *ArgumentError
	require.ErrorAs(t, err, &argErr)
	assert.Len(t, argErr.Invalid, 2)
}
