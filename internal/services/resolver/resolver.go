package resolver

import (
	"context"
	"errors"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/responsum/internal/common"
	"github.com/ternarybob/responsum/internal/interfaces"
	"github.com/ternarybob/responsum/internal/models"
)

// Service resolves questions against the document index. Retrieval trouble
// degrades to contextless generation and generation trouble degrades to an
// error answer, so every resolvable request yields a well-formed Answer.
// The only error Resolve returns is an unknown backend reference, which is
// a caller mistake rather than a pipeline failure.
type Service struct {
	retrieval interfaces.RetrievalProvider
	registry  interfaces.BackendRegistry
	events    interfaces.EventService
	config    *common.QueryConfig
	logger    arbor.ILogger
}

// NewService creates a query resolver
func NewService(
	retrieval interfaces.RetrievalProvider,
	registry interfaces.BackendRegistry,
	events interfaces.EventService,
	config *common.QueryConfig,
	logger arbor.ILogger,
) *Service {
	return &Service{
		retrieval: retrieval,
		registry:  registry,
		events:    events,
		config:    config,
		logger:    logger,
	}
}

// Resolve implements interfaces.QueryResolver
func (s *Service) Resolve(ctx context.Context, question string, resultCount int, ref models.BackendRef) (*models.Answer, error) {
	started := time.Now()

	backend, err := s.registry.Backend(ctx, ref)
	if err != nil {
		if errors.Is(err, interfaces.ErrUnknownBackend) {
			return nil, err
		}
		s.logger.Warn().Err(err).Str("backend", ref.String()).Msg("Backend failed to load")
		return s.finish(ctx, question, ref, started, errorAnswer(err.Error())), nil
	}

	if resultCount <= 0 {
		resultCount = s.config.DefaultResultCount
	}

	s.logger.Debug().
		Str("question", question).
		Str("backend", ref.String()).
		Int("result_count", resultCount).
		Msg("Resolving query")

	var promptText string
	var labels []string

	source, err := s.retrieval.Source(ctx)
	if err != nil {
		s.logger.Warn().Err(err).Msg("Vector store unavailable, answering without context")
		promptText = directPrompt(ref.Kind, question)
		labels = []string{models.SourceNoVectorStore}
	} else {
		chunks, searchErr := source.Search(ctx, question, resultCount)
		if searchErr != nil {
			s.logger.Error().Err(searchErr).Msg("Retrieval search failed")
			return s.finish(ctx, question, ref, started, errorAnswer(searchErr.Error())), nil
		}

		texts, chunkLabels := chunkContext(chunks)
		if len(texts) == 0 {
			s.logger.Debug().Msg("No relevant documents, answering without context")
			promptText = directPrompt(ref.Kind, question)
			labels = []string{models.SourceNoDocuments}
		} else {
			promptText = contextPrompt(ref.Kind, question, texts)
			labels = chunkLabels
		}
	}

	result := backend.Generate(ctx, promptText)
	if !result.Succeeded() {
		s.logger.Warn().
			Str("backend", backend.Name()).
			Str("reason", result.Message()).
			Msg("Generation failed")
		return s.finish(ctx, question, ref, started, errorAnswer(result.Message())), nil
	}

	s.logger.Info().
		Str("backend", backend.Name()).
		Int("sources", len(labels)).
		Int64("duration_ms", time.Since(started).Milliseconds()).
		Msg("Query resolved")

	return s.finish(ctx, question, ref, started, &models.Answer{
		Text:    result.Text(),
		Sources: labels,
	}), nil
}

// chunkContext extracts prompt texts and citation labels from retrieved
// chunks, preserving retrieval order
func chunkContext(chunks []models.RetrievedChunk) ([]string, []string) {
	texts := make([]string, 0, len(chunks))
	labels := make([]string, 0, len(chunks))

	for _, retrieved := range chunks {
		if retrieved.Chunk == nil {
			continue
		}
		texts = append(texts, retrieved.Chunk.Text)
		labels = append(labels, retrieved.Label())
	}

	return texts, labels
}

// errorAnswer wraps a failure description in the error answer shape
func errorAnswer(message string) *models.Answer {
	return &models.Answer{
		Text:    "Error: " + message,
		Sources: []string{models.SourceError},
	}
}

// finish publishes the query_resolved event and hands back the answer
func (s *Service) finish(ctx context.Context, question string, ref models.BackendRef, started time.Time, answer *models.Answer) *models.Answer {
	if s.events != nil {
		event := interfaces.Event{
			Type: interfaces.EventQueryResolved,
			Payload: map[string]interface{}{
				"question":    question,
				"backend":     ref.String(),
				"sources":     answer.Sources,
				"duration_ms": time.Since(started).Milliseconds(),
				"timestamp":   time.Now(),
			},
		}
		s.events.Publish(ctx, event)
	}
	return answer
}
