package retrieval

import (
	"context"
	"fmt"
	"sync"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/responsum/internal/common"
	"github.com/ternarybob/responsum/internal/interfaces"
)

// Provider hands out the retrieval source once the embedding server is up.
// While the server is down or missing, Source returns an error and the
// resolver answers without document context.
type Provider struct {
	chunks    interfaces.ChunkStorage
	embedding interfaces.EmbeddingService
	config    *common.RetrievalConfig
	logger    arbor.ILogger

	mu     sync.Mutex
	source interfaces.RetrievalSource
}

// NewProvider creates a retrieval provider
func NewProvider(chunks interfaces.ChunkStorage, embedding interfaces.EmbeddingService, config *common.RetrievalConfig, logger arbor.ILogger) *Provider {
	return &Provider{
		chunks:    chunks,
		embedding: embedding,
		config:    config,
		logger:    logger,
	}
}

// Source implements interfaces.RetrievalProvider
func (p *Provider) Source(ctx context.Context) (interfaces.RetrievalSource, error) {
	if p.embedding == nil {
		return nil, fmt.Errorf("embedding service not configured")
	}
	if !p.embedding.IsAvailable(ctx) {
		return nil, fmt.Errorf("embedding server not available")
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.source == nil {
		p.source = NewSource(p.chunks, p.embedding, p.config, p.logger)
		p.logger.Debug().Msg("Retrieval source initialized")
	}
	return p.source, nil
}
