package retrieval

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/responsum/internal/common"
	"github.com/ternarybob/responsum/internal/interfaces"
	"github.com/ternarybob/responsum/internal/models"
)

// Source ranks stored chunks by cosine similarity to the query embedding.
// The scan streams every embedded chunk; fine for corpora in the tens of
// thousands of chunks, which is what a single-node index holds.
type Source struct {
	chunks    interfaces.ChunkStorage
	embedding interfaces.EmbeddingService
	config    *common.RetrievalConfig
	logger    arbor.ILogger
}

// NewSource creates a retrieval source over the chunk index
func NewSource(chunks interfaces.ChunkStorage, embedding interfaces.EmbeddingService, config *common.RetrievalConfig, logger arbor.ILogger) *Source {
	return &Source{
		chunks:    chunks,
		embedding: embedding,
		config:    config,
		logger:    logger,
	}
}

// Search implements interfaces.RetrievalSource
func (s *Source) Search(ctx context.Context, query string, limit int) ([]models.RetrievedChunk, error) {
	if limit <= 0 {
		limit = 1
	}
	if s.config.MaxResultCount > 0 && limit > s.config.MaxResultCount {
		limit = s.config.MaxResultCount
	}

	queryEmbedding, err := s.embedding.GenerateQueryEmbedding(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	start := time.Now()
	var matches []models.RetrievedChunk
	err = s.chunks.ForEachChunk(func(chunk *models.Chunk) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if len(chunk.Embedding) == 0 {
			return nil
		}
		score := cosineSimilarity(queryEmbedding, chunk.Embedding)
		if s.config.MinScore > 0 && score < s.config.MinScore {
			return nil
		}
		matches = append(matches, models.RetrievedChunk{Chunk: chunk, Score: score})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan chunk index: %w", err)
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Score > matches[j].Score
	})
	if len(matches) > limit {
		matches = matches[:limit]
	}

	s.logger.Debug().
		Int("matches", len(matches)).
		Int("limit", limit).
		Dur("duration", time.Since(start)).
		Msg("Vector search complete")

	return matches, nil
}

// cosineSimilarity computes the cosine similarity between two float32 vectors.
// Returns 0 for zero-length, mismatched, or zero-norm vectors.
func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		ai, bi := float64(a[i]), float64(b[i])
		dot += ai * bi
		normA += ai * ai
		normB += bi * bi
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
