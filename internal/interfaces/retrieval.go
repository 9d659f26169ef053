package interfaces

import (
	"context"

	"github.com/ternarybob/responsum/internal/models"
)

// RetrievalSource finds the stored chunks most similar to a query
type RetrievalSource interface {
	// Search returns up to limit chunks ranked by similarity, best first.
	// An empty slice means the index holds no relevant content for the query.
	Search(ctx context.Context, query string, limit int) ([]models.RetrievedChunk, error)
}

// RetrievalProvider hands out the retrieval source, constructing it on first
// use. An error means the vector store is unavailable and callers should
// degrade to contextless generation.
type RetrievalProvider interface {
	Source(ctx context.Context) (RetrievalSource, error)
}
