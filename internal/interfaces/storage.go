package interfaces

import (
	"context"
	"errors"

	"github.com/ternarybob/responsum/internal/models"
)

// ErrDocumentNotFound is returned when a document id does not exist in storage
var ErrDocumentNotFound = errors.New("document not found")

// ListOptions controls document listing
type ListOptions struct {
	SourceType string // Filter by source type, empty = all
	Limit      int    // Max results, 0 = no limit
	Offset     int    // Results to skip
}

// DocumentStorage - interface for normalized document persistence
type DocumentStorage interface {
	// CRUD operations
	SaveDocument(doc *models.Document) error
	GetDocument(id string) (*models.Document, error)
	GetDocumentBySource(sourceType, sourceID string) (*models.Document, error)
	DeleteDocument(id string) error

	// List operations
	ListDocuments(opts *ListOptions) ([]*models.Document, error)

	// Search operations
	FullTextSearch(query string, limit int) ([]*models.Document, error)

	// Stats operations
	CountDocuments() (int, error)
	CountDocumentsBySource(sourceType string) (int, error)
	GetStats() (*models.DocumentStats, error)

	// Bulk operations
	ClearAll() error
}

// ChunkStorage - interface for chunk and embedding persistence
type ChunkStorage interface {
	// CRUD operations
	SaveChunk(chunk *models.Chunk) error
	SaveChunks(chunks []*models.Chunk) error
	GetChunk(id string) (*models.Chunk, error)
	GetChunksByDocument(documentID string) ([]*models.Chunk, error)
	DeleteChunksByDocument(documentID string) error

	// ForEachChunk streams every stored chunk through fn without loading the
	// full set into memory. fn returning an error aborts the scan.
	ForEachChunk(fn func(chunk *models.Chunk) error) error

	// Stats operations
	CountChunks() (int, error)
	CountEmbedded() (int, error)

	// Bulk operations
	ClearAll() error
}

// StorageManager - composite interface for all storage operations
type StorageManager interface {
	DocumentStorage() DocumentStorage
	ChunkStorage() ChunkStorage
	KeyValueStorage() KeyValueStorage
	DB() interface{}

	// LoadVariablesFromFiles seeds the key/value store from variables.toml
	// files under dirPath (API keys, secrets)
	LoadVariablesFromFiles(ctx context.Context, dirPath string) error

	// LoadEnvFile seeds the key/value store from a .env file. Values here
	// take precedence over TOML variables.
	LoadEnvFile(ctx context.Context, filePath string) error

	// RunValueLogGC triggers one round of Badger value-log garbage collection
	RunValueLogGC(discardRatio float64) error

	Close() error
}
