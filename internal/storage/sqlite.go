package storage

import (
	"database/sql"
	_ "embed"
	"encoding/json"
	"fmt"
	"time"

	"github.com/calebhart/ratchet/internal/models"
	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var schemaSQL string

// UnavailableError marks the event store as unreachable. Execution aborts
// before any step runs when it occurs.
type UnavailableError struct {
	Err error
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("event store unavailable: %v", e.Err)
}

func (e *UnavailableError) Unwrap() error { return e.Err }

type Storage struct {
	db *sql.DB
}

func New(dbPath string) (*Storage, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, &UnavailableError{Err: err}
	}

	// The store is shared by independent command processes; a busy timeout
	// lets writers block briefly instead of erroring on contention.
	for _, pragma := range []string{
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, &UnavailableError{Err: err}
		}
	}

	s := &Storage{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, &UnavailableError{Err: err}
	}

	return s, nil
}

func (s *Storage) Close() error {
	return s.db.Close()
}

func (s *Storage) migrate() error {
	_, err := s.db.Exec(schemaSQL)
	return err
}

// Ping verifies the store is reachable before a command starts.
func (s *Storage) Ping() error {
	if err := s.db.Ping(); err != nil {
		return &UnavailableError{Err: err}
	}
	return nil
}

// StartEvent inserts a running event row and returns its identifier.
func (s *Storage) StartEvent(ev *models.Event) (int64, error) {
	metadata, err := json.Marshal(ev.Metadata)
	if err != nil {
		return 0, err
	}
	if ev.Metadata == nil {
		metadata = []byte("{}")
	}

	result, err := s.db.Exec(
		`INSERT INTO events (command, project_path, worktree_name, session_id, artifacts_path, status, metadata, start_time)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		ev.Command, ev.ProjectPath, nullString(ev.WorktreeName), ev.SessionID,
		ev.ArtifactsPath, models.EventStatusRunning, string(metadata), time.Now().UTC(),
	)
	if err != nil {
		return 0, err
	}
	return result.LastInsertId()
}

// EndEvent finalizes an event. The WHERE clause only matches rows still in
// the running state, so a second finalization is a no-op.
func (s *Storage) EndEvent(id int64, status models.EventStatus, exitCode int, errorMessage string) error {
	_, err := s.db.Exec(
		`UPDATE events SET status = ?, exit_code = ?, error_message = ?, end_time = ?
		 WHERE id = ? AND status = ?`,
		status, exitCode, nullString(errorMessage), time.Now().UTC(), id, models.EventStatusRunning,
	)
	return err
}

// SetEventWorktree records the worktree a running event is operating in.
func (s *Storage) SetEventWorktree(id int64, worktreeName string) error {
	_, err := s.db.Exec(`UPDATE events SET worktree_name = ? WHERE id = ?`, worktreeName, id)
	return err
}

func (s *Storage) GetEvent(id int64) (*models.Event, error) {
	row := s.db.QueryRow(
		`SELECT id, command, project_path, worktree_name, session_id, artifacts_path,
		        status, exit_code, error_message, metadata, start_time, end_time
		 FROM events WHERE id = ?`, id,
	)
	return scanEvent(row)
}

// RecentEvents returns events ordered by start time descending, newest first.
func (s *Storage) RecentEvents(limit int) ([]*models.Event, error) {
	rows, err := s.db.Query(
		`SELECT id, command, project_path, worktree_name, session_id, artifacts_path,
		        status, exit_code, error_message, metadata, start_time, end_time
		 FROM events ORDER BY start_time DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanEvents(rows)
}

// RunningEvents returns events still in the running state.
func (s *Storage) RunningEvents() ([]*models.Event, error) {
	rows, err := s.db.Query(
		`SELECT id, command, project_path, worktree_name, session_id, artifacts_path,
		        status, exit_code, error_message, metadata, start_time, end_time
		 FROM events WHERE status = ? ORDER BY start_time DESC`,
		models.EventStatusRunning,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanEvents(rows)
}

// ReconcileStale reclassifies running events older than threshold as failed.
// An interrupted process leaves its event running forever otherwise.
func (s *Storage) ReconcileStale(threshold time.Duration) (int64, error) {
	cutoff := time.Now().UTC().Add(-threshold)
	result, err := s.db.Exec(
		`UPDATE events SET status = ?, exit_code = 1, error_message = ?, end_time = ?
		 WHERE status = ? AND start_time < ?`,
		models.EventStatusFailed, "reclassified as failed: process no longer running",
		time.Now().UTC(), models.EventStatusRunning, cutoff,
	)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// StoreArtifact inserts an artifact row owned by an event.
func (s *Storage) StoreArtifact(a *models.Artifact) (int64, error) {
	result, err := s.db.Exec(
		`INSERT INTO artifacts (event_id, artifact_type, name, description, file_path, file_size)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		a.EventID, a.Type, a.Name, nullString(a.Description), a.FilePath, a.FileSize,
	)
	if err != nil {
		return 0, err
	}
	return result.LastInsertId()
}

// ArtifactsForEvent returns the artifacts owned by an event, oldest first.
func (s *Storage) ArtifactsForEvent(eventID int64) ([]*models.Artifact, error) {
	rows, err := s.db.Query(
		`SELECT id, event_id, artifact_type, name, description, file_path, file_size, created_at
		 FROM artifacts WHERE event_id = ? ORDER BY id`, eventID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var artifacts []*models.Artifact
	for rows.Next() {
		var a models.Artifact
		var description sql.NullString
		if err := rows.Scan(&a.ID, &a.EventID, &a.Type, &a.Name, &description, &a.FilePath, &a.FileSize, &a.CreatedAt); err != nil {
			return nil, err
		}
		if description.Valid {
			a.Description = description.String
		}
		artifacts = append(artifacts, &a)
	}
	return artifacts, rows.Err()
}

// DeleteEvent removes an event and, via the schema cascade, its artifacts.
func (s *Storage) DeleteEvent(id int64) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM artifacts WHERE event_id = ?`, id); err != nil {
		return err
	}
	if _, err := tx.Exec(`DELETE FROM events WHERE id = ?`, id); err != nil {
		return err
	}

	return tx.Commit()
}

// CreateSession records an external session handle.
func (s *Storage) CreateSession(sess *models.Session) (int64, error) {
	result, err := s.db.Exec(
		`INSERT INTO sessions (name, project_path, worktree_name, handle, status)
		 VALUES (?, ?, ?, ?, ?)`,
		sess.Name, sess.ProjectPath, nullString(sess.WorktreeName), nullString(sess.Handle),
		models.SessionStatusActive,
	)
	if err != nil {
		return 0, err
	}
	return result.LastInsertId()
}

// SetSessionStatus updates a session's lifecycle state and activity time.
func (s *Storage) SetSessionStatus(name string, status models.SessionStatus) error {
	_, err := s.db.Exec(
		`UPDATE sessions SET status = ?, last_activity = ? WHERE name = ?`,
		status, time.Now().UTC(), name,
	)
	return err
}

func (s *Storage) GetSession(name string) (*models.Session, error) {
	row := s.db.QueryRow(
		`SELECT id, name, project_path, worktree_name, handle, status, created_at, last_activity
		 FROM sessions WHERE name = ?`, name,
	)

	var sess models.Session
	var worktree, handle sql.NullString
	err := row.Scan(&sess.ID, &sess.Name, &sess.ProjectPath, &worktree, &handle,
		&sess.Status, &sess.CreatedAt, &sess.LastActivity)
	if err != nil {
		return nil, err
	}
	if worktree.Valid {
		sess.WorktreeName = worktree.String
	}
	if handle.Valid {
		sess.Handle = handle.String
	}
	return &sess, nil
}

// RecordPromptUsage appends a prompt assembly to the history log.
func (s *Storage) RecordPromptUsage(eventID int64, sessionID, templateName, filePath string) error {
	var event any
	if eventID > 0 {
		event = eventID
	}
	_, err := s.db.Exec(
		`INSERT INTO prompt_history (event_id, session_id, template_name, file_path)
		 VALUES (?, ?, ?, ?)`,
		event, sessionID, templateName, filePath,
	)
	return err
}

func scanEvent(row *sql.Row) (*models.Event, error) {
	var ev models.Event
	var worktree, errorMessage, metadata sql.NullString
	var exitCode sql.NullInt64
	var endTime sql.NullTime

	err := row.Scan(&ev.ID, &ev.Command, &ev.ProjectPath, &worktree, &ev.SessionID,
		&ev.ArtifactsPath, &ev.Status, &exitCode, &errorMessage, &metadata,
		&ev.StartTime, &endTime)
	if err != nil {
		return nil, err
	}
	applyNullable(&ev, worktree, errorMessage, metadata, exitCode, endTime)
	return &ev, nil
}

func scanEvents(rows *sql.Rows) ([]*models.Event, error) {
	var events []*models.Event
	for rows.Next() {
		var ev models.Event
		var worktree, errorMessage, metadata sql.NullString
		var exitCode sql.NullInt64
		var endTime sql.NullTime

		err := rows.Scan(&ev.ID, &ev.Command, &ev.ProjectPath, &worktree, &ev.SessionID,
			&ev.ArtifactsPath, &ev.Status, &exitCode, &errorMessage, &metadata,
			&ev.StartTime, &endTime)
		if err != nil {
			return nil, err
		}
		applyNullable(&ev, worktree, errorMessage, metadata, exitCode, endTime)
		events = append(events, &ev)
	}
	return events, rows.Err()
}

func applyNullable(ev *models.Event, worktree, errorMessage, metadata sql.NullString, exitCode sql.NullInt64, endTime sql.NullTime) {
	if worktree.Valid {
		ev.WorktreeName = worktree.String
	}
	if errorMessage.Valid {
		ev.ErrorMessage = errorMessage.String
	}
	if metadata.Valid && metadata.String != "" {
		var m map[string]any
		if err := json.Unmarshal([]byte(metadata.String), &m); err == nil {
			ev.Metadata = m
		}
	}
	if exitCode.Valid {
		code := int(exitCode.Int64)
		ev.ExitCode = &code
	}
	if endTime.Valid {
		ev.EndTime = &endTime.Time
	}
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
