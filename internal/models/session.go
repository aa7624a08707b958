package models

import "time"

type SessionStatus string

const (
	SessionStatusActive   SessionStatus = "active"
	SessionStatusDetached SessionStatus = "detached"
	SessionStatusKilled   SessionStatus = "killed"
)

// Session records a handle to an external terminal session. Events reference
// sessions by name only; deleting an event never deletes the session row.
type Session struct {
	ID           int64
	Name         string
	ProjectPath  string
	WorktreeName string
	Handle       string
	Status       SessionStatus
	CreatedAt    time.Time
	LastActivity time.Time
}
