package badger

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/responsum/internal/common"
	"github.com/ternarybob/responsum/internal/interfaces"
	"github.com/ternarybob/responsum/internal/models"
)

// setupTestDB creates a test database and returns a cleanup function
func setupTestDB(t *testing.T) (*BadgerDB, func()) {
	config := &common.BadgerConfig{
		Path: t.TempDir(),
	}

	logger := arbor.NewLogger()
	db, err := NewBadgerDB(logger, config)
	require.NoError(t, err)

	cleanup := func() {
		db.Close()
	}

	return db, cleanup
}

func testDocument(id, sourceType, title, content string) *models.Document {
	return &models.Document{
		ID:              id,
		SourceType:      sourceType,
		SourceID:        "src-" + id,
		SourceLabel:     title,
		Title:           title,
		ContentMarkdown: content,
		ContentText:     content,
	}
}

func TestDocumentStorage_SaveAndGet(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	storage := NewDocumentStorage(db, arbor.NewLogger())

	doc := testDocument("doc-1", models.SourceTypeFile, "redis.md", "Redis listens on port 6379.")
	require.NoError(t, storage.SaveDocument(doc))

	assert.False(t, doc.CreatedAt.IsZero())
	assert.False(t, doc.UpdatedAt.IsZero())

	got, err := storage.GetDocument("doc-1")
	require.NoError(t, err)
	assert.Equal(t, "redis.md", got.Title)
	assert.Equal(t, "Redis listens on port 6379.", got.ContentMarkdown)
	assert.Equal(t, models.SourceTypeFile, got.SourceType)
}

func TestDocumentStorage_SaveRequiresID(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	storage := NewDocumentStorage(db, arbor.NewLogger())

	err := storage.SaveDocument(&models.Document{Title: "no id"})
	assert.Error(t, err)
}

func TestDocumentStorage_SavePreservesCreatedAt(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	storage := NewDocumentStorage(db, arbor.NewLogger())

	doc := testDocument("doc-1", models.SourceTypeFile, "a.md", "first")
	require.NoError(t, storage.SaveDocument(doc))
	created := doc.CreatedAt

	time.Sleep(10 * time.Millisecond)
	doc.ContentMarkdown = "second"
	require.NoError(t, storage.SaveDocument(doc))

	got, err := storage.GetDocument("doc-1")
	require.NoError(t, err)
	assert.Equal(t, created.Unix(), got.CreatedAt.Unix())
	assert.True(t, got.UpdatedAt.After(got.CreatedAt))
}

func TestDocumentStorage_GetBySource(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	storage := NewDocumentStorage(db, arbor.NewLogger())

	doc := testDocument("doc-1", models.SourceTypeURL, "page", "web content")
	doc.SourceID = "https://example.com/page"
	require.NoError(t, storage.SaveDocument(doc))

	got, err := storage.GetDocumentBySource(models.SourceTypeURL, "https://example.com/page")
	require.NoError(t, err)
	assert.Equal(t, "doc-1", got.ID)

	_, err = storage.GetDocumentBySource(models.SourceTypeURL, "https://example.com/missing")
	assert.Error(t, err)
}

func TestDocumentStorage_DeleteIsIdempotent(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	storage := NewDocumentStorage(db, arbor.NewLogger())

	doc := testDocument("doc-1", models.SourceTypeFile, "a.md", "content")
	require.NoError(t, storage.SaveDocument(doc))

	require.NoError(t, storage.DeleteDocument("doc-1"))
	require.NoError(t, storage.DeleteDocument("doc-1"))

	_, err := storage.GetDocument("doc-1")
	assert.Error(t, err)
}

func TestDocumentStorage_FullTextSearch(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	storage := NewDocumentStorage(db, arbor.NewLogger())

	require.NoError(t, storage.SaveDocument(testDocument("doc-1", models.SourceTypeFile, "redis.md", "Redis is an in-memory store.")))
	require.NoError(t, storage.SaveDocument(testDocument("doc-2", models.SourceTypeFile, "postgres.md", "PostgreSQL is a relational database.")))

	// Case-insensitive match on content
	docs, err := storage.FullTextSearch("REDIS", 10)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "doc-1", docs[0].ID)

	// Regex metacharacters in the query are treated literally
	docs, err = storage.FullTextSearch("C++ (advanced)", 10)
	require.NoError(t, err)
	assert.Len(t, docs, 0)
}

func TestDocumentStorage_ListFiltersBySourceType(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	storage := NewDocumentStorage(db, arbor.NewLogger())

	require.NoError(t, storage.SaveDocument(testDocument("doc-1", models.SourceTypeFile, "a.md", "a")))
	require.NoError(t, storage.SaveDocument(testDocument("doc-2", models.SourceTypeURL, "b", "b")))
	require.NoError(t, storage.SaveDocument(testDocument("doc-3", models.SourceTypeFile, "c.md", "c")))

	docs, err := storage.ListDocuments(&interfaces.ListOptions{SourceType: models.SourceTypeFile})
	require.NoError(t, err)
	assert.Len(t, docs, 2)

	docs, err = storage.ListDocuments(nil)
	require.NoError(t, err)
	assert.Len(t, docs, 3)

	docs, err = storage.ListDocuments(&interfaces.ListOptions{Limit: 1})
	require.NoError(t, err)
	assert.Len(t, docs, 1)
}

func TestDocumentStorage_Stats(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	logger := arbor.NewLogger()
	docStorage := NewDocumentStorage(db, logger)
	chunkStorage := NewChunkStorage(db, logger)

	require.NoError(t, docStorage.SaveDocument(testDocument("doc-1", models.SourceTypeFile, "a.md", "a")))
	require.NoError(t, docStorage.SaveDocument(testDocument("doc-2", models.SourceTypeURL, "b", "b")))

	require.NoError(t, chunkStorage.SaveChunk(&models.Chunk{
		ID:         "chunk-1",
		DocumentID: "doc-1",
		Text:       "a",
		Embedding:  []float32{0.1, 0.2},
	}))
	require.NoError(t, chunkStorage.SaveChunk(&models.Chunk{
		ID:         "chunk-2",
		DocumentID: "doc-1",
		Text:       "b",
	}))

	stats, err := docStorage.GetStats()
	require.NoError(t, err)
	assert.Equal(t, 2, stats.TotalDocuments)
	assert.Equal(t, 2, stats.TotalChunks)
	assert.Equal(t, 1, stats.EmbeddedChunks)
	assert.Equal(t, 1, stats.BySource[models.SourceTypeFile])
	assert.Equal(t, 1, stats.BySource[models.SourceTypeURL])
	assert.False(t, stats.LastUpdated.IsZero())
}

func TestDocumentStorage_ClearAll(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	storage := NewDocumentStorage(db, arbor.NewLogger())

	require.NoError(t, storage.SaveDocument(testDocument("doc-1", models.SourceTypeFile, "a.md", "a")))
	require.NoError(t, storage.SaveDocument(testDocument("doc-2", models.SourceTypeFile, "b.md", "b")))

	require.NoError(t, storage.ClearAll())

	count, err := storage.CountDocuments()
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}
