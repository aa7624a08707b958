package luastep

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeScript(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "step.lua")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestRunCollectsLogsAndReturn(t *testing.T) {
	path := writeScript(t, `
function step(ctx)
  log("starting for " .. ctx.project_name)
  log("session " .. ctx.session_id)
  return "done"
end
`)

	output, err := Run(context.Background(), path, map[string]string{
		"project_name": "myproject",
		"session_id":   "myproject-1-abc",
	})
	require.NoError(t, err)
	assert.Equal(t, "starting for myproject\nsession myproject-1-abc\ndone", output)
}

func TestRunFail(t *testing.T) {
	path := writeScript(t, `
function step(ctx)
  log("before failure")
  fail("missing precondition")
end
`)

	output, err := Run(context.Background(), path, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing precondition")
	assert.Contains(t, output, "before failure")
}

func TestRunRequiresStepFunction(t *testing.T) {
	path := writeScript(t, `local x = 1`)

	_, err := Run(context.Background(), path, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "'step' function")
}

func TestRunSyntaxError(t *testing.T) {
	path := writeScript(t, `function step( this is not lua`)

	_, err := Run(context.Background(), path, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to load")
}

func TestRunSandbox(t *testing.T) {
	tests := []struct {
		name   string
		script string
	}{
		{"no os library", `function step(ctx) return os.getenv("HOME") end`},
		{"no io library", `function step(ctx) return io.open("/etc/passwd") end`},
		{"no loadstring", `function step(ctx) return loadstring("return 1")() end`},
		{"no math.random", `function step(ctx) return tostring(math.random()) end`},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			path := writeScript(t, tc.script)
			_, err := Run(context.Background(), path, nil)
			assert.Error(t, err)
		})
	}
}

func TestRunCancellation(t *testing.T) {
	path := writeScript(t, `
function step(ctx)
  while true do end
end
`)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Run(ctx, path, nil)
	assert.Error(t, err)
}

func TestRunMissingScript(t *testing.T) {
	_, err := Run(context.Background(), filepath.Join(t.TempDir(), "ghost.lua"), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read")
}

func TestIsLuaStep(t *testing.T) {
	assert.True(t, IsLuaStep("steps/check.lua"))
	assert.False(t, IsLuaStep("steps/check.sh"))
}
