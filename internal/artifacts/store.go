package artifacts

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/calebhart/ratchet/internal/models"
)

// Store manages the on-disk artifact tree. Layout:
//
//	<base>/<project-name>/<session-id>/<type>/<file>
//
// with a session.info metadata record and a manifest listing every stored
// artifact at the session root.
type Store struct {
	baseDir string
}

func New(baseDir string) (*Store, error) {
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create artifact base directory: %w", err)
	}
	return &Store{baseDir: baseDir}, nil
}

// SessionDir returns the artifact directory for a project/session pair
// without creating it.
func (s *Store) SessionDir(projectName, sessionID string) string {
	return filepath.Join(s.baseDir, projectName, sessionID)
}

// CreateSessionDir builds the per-type directory tree for a session and
// writes the initial session.info record. The record is written to a
// temporary file and renamed into place so no reader ever observes a partial
// write.
func (s *Store) CreateSessionDir(projectName, sessionID, commandName string) (string, error) {
	sessionDir := s.SessionDir(projectName, sessionID)
	for _, t := range models.ArtifactTypes {
		if err := os.MkdirAll(filepath.Join(sessionDir, string(t)), 0755); err != nil {
			return "", fmt.Errorf("failed to create artifact directory: %w", err)
		}
	}

	info := fmt.Sprintf("Session: %s\nCommand: %s\nProject: %s\nCreated: %s\n",
		sessionID, commandName, projectName, time.Now().UTC().Format(time.RFC3339))
	if err := writeFileAtomic(filepath.Join(sessionDir, "session.info"), []byte(info)); err != nil {
		return "", fmt.Errorf("failed to write session metadata: %w", err)
	}

	return sessionDir, nil
}

// StoreContent writes text content into the session's type partition and
// appends a manifest entry. Returns the stored path and size.
func (s *Store) StoreContent(sessionDir, content, name string, artifactType models.ArtifactType) (string, int64, error) {
	targetDir := filepath.Join(sessionDir, string(artifactType))
	if err := os.MkdirAll(targetDir, 0755); err != nil {
		return "", 0, err
	}

	targetPath := filepath.Join(targetDir, name)
	if err := os.WriteFile(targetPath, []byte(content), 0644); err != nil {
		return "", 0, fmt.Errorf("failed to store artifact content: %w", err)
	}

	if err := s.appendManifest(sessionDir, artifactType, name); err != nil {
		return "", 0, err
	}
	return targetPath, int64(len(content)), nil
}

// StoreFile copies a source file into the session's type partition and
// appends a manifest entry. Returns the stored path and size.
func (s *Store) StoreFile(sessionDir, sourcePath, name string, artifactType models.ArtifactType) (string, int64, error) {
	targetDir := filepath.Join(sessionDir, string(artifactType))
	if err := os.MkdirAll(targetDir, 0755); err != nil {
		return "", 0, err
	}

	if name == "" {
		name = filepath.Base(sourcePath)
	}
	targetPath := filepath.Join(targetDir, name)

	size, err := copyFile(sourcePath, targetPath)
	if err != nil {
		return "", 0, fmt.Errorf("failed to copy artifact: %w", err)
	}

	if err := s.appendManifest(sessionDir, artifactType, name); err != nil {
		return "", 0, err
	}
	return targetPath, size, nil
}

// appendManifest adds one line to the session manifest. The manifest is an
// append-only text index readable without the database.
func (s *Store) appendManifest(sessionDir string, artifactType models.ArtifactType, name string) error {
	f, err := os.OpenFile(filepath.Join(sessionDir, "manifest.txt"), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	defer f.Close()

	_, err = fmt.Fprintf(f, "%s\t%s\t%s\n", time.Now().UTC().Format(time.RFC3339), artifactType, name)
	return err
}

// CleanupOlderThan deletes session directories whose contents are all older
// than the age threshold, then removes empty project directories. Returns the
// number of sessions removed.
func (s *Store) CleanupOlderThan(age time.Duration) (int, error) {
	cutoff := time.Now().Add(-age)
	removed := 0

	projects, err := os.ReadDir(s.baseDir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, err
	}

	for _, project := range projects {
		if !project.IsDir() {
			continue
		}
		projectDir := filepath.Join(s.baseDir, project.Name())

		sessions, err := os.ReadDir(projectDir)
		if err != nil {
			continue
		}
		for _, session := range sessions {
			if !session.IsDir() {
				continue
			}
			sessionDir := filepath.Join(projectDir, session.Name())
			info, err := os.Stat(sessionDir)
			if err != nil || info.ModTime().After(cutoff) {
				continue
			}
			if err := os.RemoveAll(sessionDir); err != nil {
				return removed, fmt.Errorf("failed to remove %s: %w", sessionDir, err)
			}
			removed++
		}

		// Drop the project directory if the sweep emptied it.
		if remaining, err := os.ReadDir(projectDir); err == nil && len(remaining) == 0 {
			os.Remove(projectDir)
		}
	}

	return removed, nil
}

func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return err
	}
	return os.Rename(tmpPath, path)
}

func copyFile(src, dst string) (int64, error) {
	in, err := os.Open(src)
	if err != nil {
		return 0, err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return 0, err
	}
	defer out.Close()

	return io.Copy(out, in)
}
