// Package prompts assembles AI-agent prompt documents from templates with
// double-brace placeholders. Placeholders without a value are left verbatim:
// a partially resolved prompt is more useful for diagnosis than a hard error,
// and downstream agents treat stray braces as literal text.
package prompts

import (
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"regexp"

	"github.com/calebhart/ratchet/internal/artifacts"
	"github.com/calebhart/ratchet/internal/models"
	"github.com/calebhart/ratchet/internal/storage"
)

//go:embed templates/*.md
var builtinTemplates embed.FS

var placeholderPattern = regexp.MustCompile(`\{\{([a-zA-Z0-9_-]+)\}\}`)

// Vars carries the standard substitution values for one assembly.
type Vars struct {
	EventID     int64
	SessionID   string
	ProjectName string
	CommandName string
	ArtifactDir string
	Extra       map[string]string
}

// Assembler renders templates and persists the results as prompt artifacts.
type Assembler struct {
	store        *storage.Storage
	artifacts    *artifacts.Store
	templateDirs []string
}

func NewAssembler(store *storage.Storage, artifactStore *artifacts.Store, templateDirs []string) *Assembler {
	return &Assembler{
		store:        store,
		artifacts:    artifactStore,
		templateDirs: templateDirs,
	}
}

// Assemble loads templateName, substitutes placeholders, persists the result
// as a prompt artifact in the session directory, and appends a history row.
// Returns the stored file path.
func (a *Assembler) Assemble(templateName string, vars Vars) (string, error) {
	template, err := a.loadTemplate(templateName)
	if err != nil {
		return "", err
	}

	rendered := a.render(template, vars)

	name := templateName + ".md"
	sessionDir := a.artifacts.SessionDir(vars.ProjectName, vars.SessionID)
	path, size, err := a.artifacts.StoreContent(sessionDir, rendered, name, models.ArtifactPrompt)
	if err != nil {
		return "", fmt.Errorf("failed to persist prompt: %w", err)
	}

	if vars.EventID > 0 {
		_, err = a.store.StoreArtifact(&models.Artifact{
			EventID:     vars.EventID,
			Type:        models.ArtifactPrompt,
			Name:        name,
			Description: "assembled from template " + templateName,
			FilePath:    path,
			FileSize:    size,
		})
		if err != nil {
			return "", err
		}
	}

	if err := a.store.RecordPromptUsage(vars.EventID, vars.SessionID, templateName, path); err != nil {
		return "", err
	}

	return path, nil
}

// render substitutes every known placeholder; unknown ones stay as-is.
func (a *Assembler) render(template string, vars Vars) string {
	values := map[string]string{
		"session_id":   vars.SessionID,
		"project_name": vars.ProjectName,
		"command":      vars.CommandName,
		"artifact_dir": vars.ArtifactDir,
	}
	for k, v := range vars.Extra {
		values[k] = v
	}

	return placeholderPattern.ReplaceAllStringFunc(template, func(match string) string {
		key := placeholderPattern.FindStringSubmatch(match)[1]
		if value, ok := values[key]; ok {
			return value
		}
		return match
	})
}

// loadTemplate searches the template directories (project first), then the
// embedded defaults.
func (a *Assembler) loadTemplate(name string) (string, error) {
	for _, dir := range a.templateDirs {
		data, err := os.ReadFile(filepath.Join(dir, name+".md"))
		if err == nil {
			return string(data), nil
		}
	}

	data, err := builtinTemplates.ReadFile("templates/" + name + ".md")
	if err != nil {
		return "", fmt.Errorf("prompt template %q not found", name)
	}
	return string(data), nil
}

// List returns the available template names, duplicates removed.
func (a *Assembler) List() []string {
	seen := make(map[string]bool)
	var names []string

	add := func(base string) {
		name := base[:len(base)-len(".md")]
		if !seen[name] {
			seen[name] = true
			names = append(names, name)
		}
	}

	for _, dir := range a.templateDirs {
		entries, err := os.ReadDir(dir)
		if err != nil {
			continue
		}
		for _, entry := range entries {
			if !entry.IsDir() && filepath.Ext(entry.Name()) == ".md" {
				add(entry.Name())
			}
		}
	}

	entries, err := builtinTemplates.ReadDir("templates")
	if err == nil {
		for _, entry := range entries {
			add(entry.Name())
		}
	}

	return names
}
