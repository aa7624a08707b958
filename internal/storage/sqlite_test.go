package storage

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/calebhart/ratchet/internal/models"
)

func newTestStorage(t *testing.T) *Storage {
	t.Helper()
	s, err := New(filepath.Join(t.TempDir(), "ratchet.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func startTestEvent(t *testing.T, s *Storage, command, sessionID string) int64 {
	t.Helper()
	id, err := s.StartEvent(&models.Event{
		Command:       command,
		ProjectPath:   "/tmp/project",
		SessionID:     sessionID,
		ArtifactsPath: "/tmp/artifacts/" + sessionID,
	})
	require.NoError(t, err)
	return id
}

func TestStartAndEndEvent(t *testing.T) {
	s := newTestStorage(t)

	id := startTestEvent(t, s, "deploy", "project-100-abc")

	ev, err := s.GetEvent(id)
	require.NoError(t, err)
	assert.Equal(t, models.EventStatusRunning, ev.Status)
	assert.Equal(t, "deploy", ev.Command)
	assert.Nil(t, ev.ExitCode)
	assert.Nil(t, ev.EndTime)

	require.NoError(t, s.EndEvent(id, models.EventStatusCompleted, 0, ""))

	ev, err = s.GetEvent(id)
	require.NoError(t, err)
	assert.Equal(t, models.EventStatusCompleted, ev.Status)
	require.NotNil(t, ev.ExitCode)
	assert.Equal(t, 0, *ev.ExitCode)
	assert.NotNil(t, ev.EndTime)
	assert.Empty(t, ev.ErrorMessage)
}

func TestEndEventIsFinal(t *testing.T) {
	s := newTestStorage(t)

	id := startTestEvent(t, s, "deploy", "project-101-abc")
	require.NoError(t, s.EndEvent(id, models.EventStatusFailed, 2, "step failed"))

	// A second finalization must not overwrite the terminal state.
	require.NoError(t, s.EndEvent(id, models.EventStatusCompleted, 0, ""))

	ev, err := s.GetEvent(id)
	require.NoError(t, err)
	assert.Equal(t, models.EventStatusFailed, ev.Status)
	require.NotNil(t, ev.ExitCode)
	assert.Equal(t, 2, *ev.ExitCode)
	assert.Equal(t, "step failed", ev.ErrorMessage)
}

func TestEventMetadataRoundTrip(t *testing.T) {
	s := newTestStorage(t)

	id, err := s.StartEvent(&models.Event{
		Command:       "review",
		ProjectPath:   "/tmp/project",
		SessionID:     "project-102-abc",
		ArtifactsPath: "/tmp/artifacts",
		Metadata:      map[string]any{"category": "quality"},
	})
	require.NoError(t, err)

	ev, err := s.GetEvent(id)
	require.NoError(t, err)
	assert.Equal(t, "quality", ev.Metadata["category"])
}

func TestRecentAndRunningEvents(t *testing.T) {
	s := newTestStorage(t)

	first := startTestEvent(t, s, "one", "p-1-a")
	second := startTestEvent(t, s, "two", "p-2-b")
	require.NoError(t, s.EndEvent(first, models.EventStatusCompleted, 0, ""))

	running, err := s.RunningEvents()
	require.NoError(t, err)
	require.Len(t, running, 1)
	assert.Equal(t, second, running[0].ID)

	recent, err := s.RecentEvents(10)
	require.NoError(t, err)
	assert.Len(t, recent, 2)

	limited, err := s.RecentEvents(1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestReconcileStale(t *testing.T) {
	s := newTestStorage(t)

	stale := startTestEvent(t, s, "old", "p-3-c")
	fresh := startTestEvent(t, s, "new", "p-4-d")

	// Age the first event past the threshold.
	_, err := s.db.Exec(`UPDATE events SET start_time = ? WHERE id = ?`,
		time.Now().UTC().Add(-48*time.Hour), stale)
	require.NoError(t, err)

	n, err := s.ReconcileStale(24 * time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	ev, err := s.GetEvent(stale)
	require.NoError(t, err)
	assert.Equal(t, models.EventStatusFailed, ev.Status)
	assert.Contains(t, ev.ErrorMessage, "no longer running")

	ev, err = s.GetEvent(fresh)
	require.NoError(t, err)
	assert.Equal(t, models.EventStatusRunning, ev.Status)
}

func TestArtifactsForEvent(t *testing.T) {
	s := newTestStorage(t)

	id := startTestEvent(t, s, "task", "p-5-e")

	for _, name := range []string{"step-01-setup.log", "context.json"} {
		_, err := s.StoreArtifact(&models.Artifact{
			EventID:  id,
			Type:     models.ArtifactLog,
			Name:     name,
			FilePath: "/tmp/" + name,
			FileSize: 12,
		})
		require.NoError(t, err)
	}

	arts, err := s.ArtifactsForEvent(id)
	require.NoError(t, err)
	require.Len(t, arts, 2)
	assert.Equal(t, "step-01-setup.log", arts[0].Name)
	assert.Equal(t, "context.json", arts[1].Name)
}

func TestDeleteEventRemovesArtifacts(t *testing.T) {
	s := newTestStorage(t)

	id := startTestEvent(t, s, "task", "p-6-f")
	_, err := s.StoreArtifact(&models.Artifact{
		EventID:  id,
		Type:     models.ArtifactLog,
		Name:     "step-01.log",
		FilePath: "/tmp/step-01.log",
	})
	require.NoError(t, err)

	require.NoError(t, s.DeleteEvent(id))

	_, err = s.GetEvent(id)
	assert.Error(t, err)

	arts, err := s.ArtifactsForEvent(id)
	require.NoError(t, err)
	assert.Empty(t, arts)
}

func TestSessionLifecycle(t *testing.T) {
	s := newTestStorage(t)

	_, err := s.CreateSession(&models.Session{
		Name:        "project-7-g",
		ProjectPath: "/tmp/project",
		Handle:      "tmux:project-7-g",
	})
	require.NoError(t, err)

	sess, err := s.GetSession("project-7-g")
	require.NoError(t, err)
	assert.Equal(t, models.SessionStatusActive, sess.Status)
	assert.Equal(t, "tmux:project-7-g", sess.Handle)

	require.NoError(t, s.SetSessionStatus("project-7-g", models.SessionStatusDetached))

	sess, err = s.GetSession("project-7-g")
	require.NoError(t, err)
	assert.Equal(t, models.SessionStatusDetached, sess.Status)
}

func TestRecordPromptUsage(t *testing.T) {
	s := newTestStorage(t)

	id := startTestEvent(t, s, "task", "p-8-h")
	require.NoError(t, s.RecordPromptUsage(id, "p-8-h", "task", "/tmp/prompt/task.md"))

	// Rows without an owning event are allowed.
	require.NoError(t, s.RecordPromptUsage(0, "p-8-h", "code-review", "/tmp/prompt/code-review.md"))

	var count int
	require.NoError(t, s.db.QueryRow(`SELECT COUNT(*) FROM prompt_history`).Scan(&count))
	assert.Equal(t, 2, count)
}
