package prompts

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/calebhart/ratchet/internal/artifacts"
	"github.com/calebhart/ratchet/internal/models"
	"github.com/calebhart/ratchet/internal/storage"
)

func newTestAssembler(t *testing.T, templateDirs []string) (*Assembler, *storage.Storage, *artifacts.Store) {
	t.Helper()

	store, err := storage.New(filepath.Join(t.TempDir(), "ratchet.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	artifactStore, err := artifacts.New(t.TempDir())
	require.NoError(t, err)

	return NewAssembler(store, artifactStore, templateDirs), store, artifactStore
}

func TestAssembleSubstitutesPlaceholders(t *testing.T) {
	templateDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(templateDir, "greeting.md"),
		[]byte("# {{command}} on {{project_name}}\n\nObjective: {{objective}}\n"), 0644))

	assembler, _, artifactStore := newTestAssembler(t, []string{templateDir})

	_, err := artifactStore.CreateSessionDir("proj", "proj-1-a", "task")
	require.NoError(t, err)

	path, err := assembler.Assemble("greeting", Vars{
		SessionID:   "proj-1-a",
		ProjectName: "proj",
		CommandName: "task",
		Extra:       map[string]string{"objective": "ship it"},
	})
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "# task on proj\n\nObjective: ship it\n", string(data))
}

func TestAssembleLeavesUnknownPlaceholders(t *testing.T) {
	templateDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(templateDir, "partial.md"),
		[]byte("{{command}} needs {{mystery_value}}"), 0644))

	assembler, _, artifactStore := newTestAssembler(t, []string{templateDir})
	_, err := artifactStore.CreateSessionDir("proj", "proj-2-b", "task")
	require.NoError(t, err)

	path, err := assembler.Assemble("partial", Vars{
		SessionID:   "proj-2-b",
		ProjectName: "proj",
		CommandName: "task",
	})
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "task needs {{mystery_value}}", string(data))
}

func TestAssembleRecordsArtifactAndHistory(t *testing.T) {
	assembler, store, artifactStore := newTestAssembler(t, nil)

	_, err := artifactStore.CreateSessionDir("proj", "proj-3-c", "task")
	require.NoError(t, err)

	eventID, err := store.StartEvent(&models.Event{
		Command:       "task",
		ProjectPath:   "/tmp/proj",
		SessionID:     "proj-3-c",
		ArtifactsPath: "/tmp/artifacts",
	})
	require.NoError(t, err)

	path, err := assembler.Assemble("task", Vars{
		EventID:     eventID,
		SessionID:   "proj-3-c",
		ProjectName: "proj",
		CommandName: "task",
	})
	require.NoError(t, err)
	assert.Contains(t, path, filepath.Join("proj-3-c", "prompt", "task.md"))

	arts, err := store.ArtifactsForEvent(eventID)
	require.NoError(t, err)
	require.Len(t, arts, 1)
	assert.Equal(t, models.ArtifactPrompt, arts[0].Type)
	assert.Equal(t, "task.md", arts[0].Name)
}

func TestAssembleProjectTemplateShadowsBuiltin(t *testing.T) {
	templateDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(templateDir, "task.md"),
		[]byte("custom task template"), 0644))

	assembler, _, artifactStore := newTestAssembler(t, []string{templateDir})
	_, err := artifactStore.CreateSessionDir("proj", "proj-4-d", "task")
	require.NoError(t, err)

	path, err := assembler.Assemble("task", Vars{
		SessionID:   "proj-4-d",
		ProjectName: "proj",
		CommandName: "task",
	})
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "custom task template", string(data))
}

func TestAssembleUnknownTemplate(t *testing.T) {
	assembler, _, _ := newTestAssembler(t, nil)

	_, err := assembler.Assemble("no-such-template", Vars{SessionID: "x", ProjectName: "p"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestListIncludesBuiltins(t *testing.T) {
	templateDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(templateDir, "task.md"), []byte("shadow"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(templateDir, "custom.md"), []byte("mine"), 0644))

	assembler, _, _ := newTestAssembler(t, []string{templateDir})

	names := assembler.List()
	assert.Contains(t, names, "task")
	assert.Contains(t, names, "code-review")
	assert.Contains(t, names, "custom")

	seen := map[string]int{}
	for _, n := range names {
		seen[n]++
	}
	assert.Equal(t, 1, seen["task"])
}
