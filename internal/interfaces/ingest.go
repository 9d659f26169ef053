package interfaces

import (
	"context"

	"github.com/ternarybob/responsum/internal/models"
)

// IngestService converts external content into stored, embedded chunks
type IngestService interface {
	// IngestFile ingests a single file from disk
	IngestFile(ctx context.Context, path string) (*models.Document, error)

	// IngestText ingests raw text content under a source label
	IngestText(ctx context.Context, title, text, sourceLabel string) (*models.Document, error)

	// IngestURL fetches a web page and ingests its content
	IngestURL(ctx context.Context, url string) (*models.Document, error)

	// ScanInputDir processes all pending files in the configured input directory
	ScanInputDir(ctx context.Context) (*models.IngestRun, error)

	// PollMailbox ingests unread messages from the configured IMAP mailbox
	PollMailbox(ctx context.Context) (*models.IngestRun, error)

	// SyncGitHub ingests markdown files from the configured GitHub repository
	SyncGitHub(ctx context.Context) (*models.IngestRun, error)

	// LastRun returns the most recent ingest run for a source, if any
	LastRun(source string) (*models.IngestRun, bool)
}
