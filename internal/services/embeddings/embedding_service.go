package embeddings

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/responsum/internal/interfaces"
	"github.com/ternarybob/responsum/internal/services/llm/local"
)

// Service implements EmbeddingService on top of the local embedding server
type Service struct {
	embed     *local.EmbedServer
	modelName string
	dimension int
	logger    arbor.ILogger
}

// NewService creates a new embedding service
func NewService(embed *local.EmbedServer, modelName string, dimension int, logger arbor.ILogger) interfaces.EmbeddingService {
	return &Service{
		embed:     embed,
		modelName: modelName,
		dimension: dimension,
		logger:    logger,
	}
}

// GenerateEmbedding creates a vector embedding for text
func (s *Service) GenerateEmbedding(ctx context.Context, text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("text cannot be empty")
	}

	start := time.Now()
	embedding, err := s.embed.Embed(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("failed to generate embedding: %w", err)
	}

	if len(embedding) == 0 {
		return nil, fmt.Errorf("embedding server returned empty embedding")
	}

	s.logger.Debug().
		Int("embedding_dim", len(embedding)).
		Int("text_length", len(text)).
		Dur("duration", time.Since(start)).
		Msg("Generated embedding")

	return embedding, nil
}

// GenerateQueryEmbedding generates embedding for a search query
func (s *Service) GenerateQueryEmbedding(ctx context.Context, query string) ([]float32, error) {
	// Queries embed the same way as document text
	return s.GenerateEmbedding(ctx, query)
}

// ModelName returns the embedding model name
func (s *Service) ModelName() string {
	return s.modelName
}

// Dimension returns the embedding dimension
func (s *Service) Dimension() int {
	return s.dimension
}

// IsAvailable checks if the embedding server is ready
func (s *Service) IsAvailable(ctx context.Context) bool {
	if s.embed == nil {
		return false
	}
	return s.embed.Ready()
}

// Close stops the embedding server
func (s *Service) Close() error {
	if s.embed == nil {
		return nil
	}
	return s.embed.Stop()
}
