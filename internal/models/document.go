package models

import (
	"time"
)

// Source types for ingested documents
const (
	SourceTypeFile    = "file"
	SourceTypeURL     = "url"
	SourceTypeMailbox = "mailbox"
	SourceTypeGitHub  = "github"
	SourceTypeAPI     = "api"
)

// Document represents a normalized document from any ingest source
// PRIMARY CONTENT FORMAT: Markdown (ContentMarkdown field)
type Document struct {
	// Identity
	ID          string `json:"id"`           // doc_{uuid}
	SourceType  string `json:"source_type"`  // file, url, mailbox, github, api
	SourceID    string `json:"source_id"`    // Original identifier from the source (path, URL, message ID)
	SourceLabel string `json:"source_label"` // Label surfaced in answer citations (file basename, URL, subject)

	// Content (markdown-first)
	Title           string `json:"title"`
	ContentMarkdown string `json:"content_markdown"` // PRIMARY CONTENT: Markdown format
	ContentText     string `json:"content_text"`     // Plain text used for chunking and embedding

	// Metadata (source-specific data, e.g. front matter fields)
	Metadata map[string]interface{} `json:"metadata"`
	URL      string                 `json:"url"` // Link to original where applicable

	// Indexing
	ChunkCount int `json:"chunk_count"`

	// Timestamps
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Chunk is one embeddable slice of a document
type Chunk struct {
	ID          string    `json:"id"`           // chunk_{uuid}
	DocumentID  string    `json:"document_id"`  // Owning document
	Index       int       `json:"index"`        // Position within the document, 0-based
	Text        string    `json:"text"`         // Chunk text, embedded and injected into prompts
	SourceLabel string    `json:"source_label"` // Copied from the document for citation
	Embedding   []float32 `json:"embedding,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// RetrievedChunk pairs a chunk with its similarity to the query
type RetrievedChunk struct {
	Chunk *Chunk
	Score float64
}

// Label returns the citation label for the chunk, or "Unknown" when none was recorded
func (r RetrievedChunk) Label() string {
	if r.Chunk == nil || r.Chunk.SourceLabel == "" {
		return "Unknown"
	}
	return r.Chunk.SourceLabel
}

// DocumentStats summarizes the indexed corpus
type DocumentStats struct {
	TotalDocuments int            `json:"total_documents"`
	TotalChunks    int            `json:"total_chunks"`
	EmbeddedChunks int            `json:"embedded_chunks"`
	BySource       map[string]int `json:"by_source"`
	LastUpdated    time.Time      `json:"last_updated"`
}
