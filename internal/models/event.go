package models

import "time"

type EventStatus string

const (
	EventStatusRunning   EventStatus = "running"
	EventStatusCompleted EventStatus = "completed"
	EventStatusFailed    EventStatus = "failed"
	EventStatusCancelled EventStatus = "cancelled"
)

// Event is the durable lifecycle record of one command invocation.
type Event struct {
	ID            int64
	Command       string
	ProjectPath   string
	WorktreeName  string
	SessionID     string
	ArtifactsPath string
	Status        EventStatus
	ExitCode      *int
	ErrorMessage  string
	Metadata      map[string]any
	StartTime     time.Time
	EndTime       *time.Time
}

type ArtifactType string

const (
	ArtifactSpec     ArtifactType = "spec"
	ArtifactLog      ArtifactType = "log"
	ArtifactOutput   ArtifactType = "output"
	ArtifactPrompt   ArtifactType = "prompt"
	ArtifactAnalysis ArtifactType = "analysis"
	ArtifactPlan     ArtifactType = "plan"
	ArtifactConfig   ArtifactType = "config"
	ArtifactTemp     ArtifactType = "temp"
)

// ArtifactTypes lists every partition created under a session directory.
var ArtifactTypes = []ArtifactType{
	ArtifactSpec, ArtifactLog, ArtifactOutput, ArtifactPrompt,
	ArtifactAnalysis, ArtifactPlan, ArtifactConfig, ArtifactTemp,
}

// Artifact is a file produced during execution, owned by its event.
type Artifact struct {
	ID          int64
	EventID     int64
	Type        ArtifactType
	Name        string
	Description string
	FilePath    string
	FileSize    int64
	CreatedAt   time.Time
}
