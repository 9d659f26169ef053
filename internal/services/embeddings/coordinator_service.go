package embeddings

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/responsum/internal/interfaces"
	"github.com/ternarybob/responsum/internal/models"
	"github.com/ternarybob/responsum/internal/services/workers"
)

// backfillBatchSize bounds how many chunks one backfill pass embeds.
// Leftovers are picked up by the next trigger.
const backfillBatchSize = 200

// backfillWorkers is the embedding concurrency per pass. llama-server
// queues requests internally, so a small pool just keeps HTTP latency
// overlapped.
const backfillWorkers = 2

// errScanDone aborts the chunk scan once a batch is full
var errScanDone = errors.New("scan complete")

// Coordinator backfills vectors for chunks that were stored while the
// embedding server was down. Ingest accepts documents without vectors
// rather than failing; each backfill pass picks up the shortfall so
// retrieval coverage converges once embeddings are available again.
type Coordinator struct {
	embedding interfaces.EmbeddingService
	chunks    interfaces.ChunkStorage
	events    interfaces.EventService
	logger    arbor.ILogger

	mu           sync.Mutex
	isProcessing bool
}

// NewCoordinator creates the embedding backfill coordinator
func NewCoordinator(
	embedding interfaces.EmbeddingService,
	chunks interfaces.ChunkStorage,
	events interfaces.EventService,
	logger arbor.ILogger,
) *Coordinator {
	return &Coordinator{
		embedding: embedding,
		chunks:    chunks,
		events:    events,
		logger:    logger,
	}
}

// Start subscribes the coordinator to embedding trigger events
func (c *Coordinator) Start() error {
	if c.events == nil {
		return fmt.Errorf("event service is required")
	}
	return c.events.Subscribe(interfaces.EventEmbeddingTriggered, func(ctx context.Context, event interfaces.Event) error {
		return c.Backfill(ctx)
	})
}

// Backfill embeds stored chunks that have no vector yet, one batch per
// call. Triggers arriving while a pass is in flight are no-ops.
func (c *Coordinator) Backfill(ctx context.Context) error {
	c.mu.Lock()
	if c.isProcessing {
		c.mu.Unlock()
		c.logger.Debug().Msg("Embedding backfill already in progress, skipping trigger")
		return nil
	}
	c.isProcessing = true
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		c.isProcessing = false
		c.mu.Unlock()
	}()

	if c.embedding == nil || !c.embedding.IsAvailable(ctx) {
		c.logger.Debug().Msg("Embedding server unavailable, backfill deferred")
		return nil
	}

	pending, err := c.collectPending(backfillBatchSize)
	if err != nil {
		return fmt.Errorf("failed to scan for unembedded chunks: %w", err)
	}
	if len(pending) == 0 {
		c.logger.Debug().Msg("No chunks waiting for embeddings")
		return nil
	}

	started := time.Now()
	c.logger.Info().
		Int("chunks", len(pending)).
		Msg("Backfilling chunk embeddings")

	pool := workers.NewPool(backfillWorkers, c.logger)
	pool.Start()

	for _, chunk := range pending {
		chunk := chunk
		if err := pool.Submit(func(jobCtx context.Context) error {
			return c.embedChunk(jobCtx, chunk)
		}); err != nil {
			c.logger.Warn().
				Err(err).
				Str("chunk", chunk.ID).
				Msg("Failed to queue chunk for embedding")
		}
	}

	pool.Wait()

	failures := pool.Errors()
	c.logger.Info().
		Int("chunks", len(pending)).
		Int("failures", len(failures)).
		Dur("duration", time.Since(started)).
		Msg("Embedding backfill completed")

	if len(failures) > 0 {
		return fmt.Errorf("embedding backfill finished with %d failures", len(failures))
	}
	return nil
}

// collectPending scans stored chunks for missing vectors, stopping at
// the batch limit
func (c *Coordinator) collectPending(limit int) ([]*models.Chunk, error) {
	pending := make([]*models.Chunk, 0, limit)
	err := c.chunks.ForEachChunk(func(chunk *models.Chunk) error {
		if len(chunk.Embedding) > 0 {
			return nil
		}
		pending = append(pending, chunk)
		if len(pending) >= limit {
			return errScanDone
		}
		return nil
	})
	if err != nil && !errors.Is(err, errScanDone) {
		return nil, err
	}
	return pending, nil
}

func (c *Coordinator) embedChunk(ctx context.Context, chunk *models.Chunk) error {
	vector, err := c.embedding.GenerateEmbedding(ctx, chunk.Text)
	if err != nil {
		return fmt.Errorf("chunk %s: %w", chunk.ID, err)
	}

	chunk.Embedding = vector
	if err := c.chunks.SaveChunk(chunk); err != nil {
		return fmt.Errorf("chunk %s: %w", chunk.ID, err)
	}

	c.logger.Debug().
		Str("chunk", chunk.ID).
		Str("document", chunk.DocumentID).
		Msg("Chunk embedding backfilled")
	return nil
}
