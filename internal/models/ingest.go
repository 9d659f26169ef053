package models

import "time"

// Ingest source names used in run records and progress events
const (
	IngestSourceDirectory = "directory"
	IngestSourceMailbox   = "mailbox"
	IngestSourceGitHub    = "github"
	IngestSourceURL       = "url"
	IngestSourceAPI       = "api"
)

// IngestRun records one pass over an ingest source
type IngestRun struct {
	ID          string    `json:"id"`     // run_{uuid}
	Source      string    `json:"source"` // directory, mailbox, github, url, api
	StartedAt   time.Time `json:"started_at"`
	CompletedAt time.Time `json:"completed_at"`
	FilesSeen   int       `json:"files_seen"`
	Documents   int       `json:"documents"`
	Chunks      int       `json:"chunks"`
	Failures    int       `json:"failures"`
	LastError   string    `json:"last_error,omitempty"`
}
