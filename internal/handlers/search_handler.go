package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/responsum/internal/interfaces"
)

// SearchResult represents a single retrieved chunk with its similarity score
type SearchResult struct {
	ChunkID     string  `json:"chunk_id"`
	DocumentID  string  `json:"document_id"`
	Index       int     `json:"index"`
	Text        string  `json:"text"`
	SourceLabel string  `json:"source_label"`
	Score       float64 `json:"score"`
}

// SearchHandler handles raw retrieval HTTP requests
type SearchHandler struct {
	retrieval interfaces.RetrievalProvider
	logger    arbor.ILogger
}

// NewSearchHandler creates a new search handler with dependencies
func NewSearchHandler(retrieval interfaces.RetrievalProvider, logger arbor.ILogger) *SearchHandler {
	return &SearchHandler{
		retrieval: retrieval,
		logger:    logger,
	}
}

// SearchHandler handles GET /api/search?q=query requests. Returns ranked
// chunks with scores and no generation, which makes retrieval quality
// inspectable on its own.
func (h *SearchHandler) SearchHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	query := r.URL.Query().Get("q")
	limitStr := r.URL.Query().Get("limit")

	if query == "" {
		WriteError(w, http.StatusBadRequest, "Query parameter 'q' is required")
		return
	}

	// Parse limit with default; the retrieval source enforces the
	// configured maximum
	limit := 10
	if limitStr != "" {
		if parsed, err := strconv.Atoi(limitStr); err == nil {
			limit = parsed
		}
	}
	if limit <= 0 {
		limit = 10
	}

	if h.logger != nil {
		h.logger.Info().
			Str("query", query).
			Int("limit", limit).
			Msg("Search request received")
	}

	ctx := r.Context()
	source, err := h.retrieval.Source(ctx)
	if err != nil {
		if h.logger != nil {
			h.logger.Warn().
				Err(err).
				Str("query", query).
				Msg("Search unavailable: vector store is not ready")
		}
		WriteError(w, http.StatusServiceUnavailable, "Search functionality is unavailable: vector store is not ready")
		return
	}

	chunks, err := source.Search(ctx, query, limit)
	if err != nil {
		if h.logger != nil {
			h.logger.Error().
				Err(err).
				Str("query", query).
				Msg("Failed to execute search")
		}
		WriteError(w, http.StatusInternalServerError, "Failed to execute search")
		return
	}

	results := make([]SearchResult, 0, len(chunks))
	for _, retrieved := range chunks {
		if retrieved.Chunk == nil {
			continue
		}
		results = append(results, SearchResult{
			ChunkID:     retrieved.Chunk.ID,
			DocumentID:  retrieved.Chunk.DocumentID,
			Index:       retrieved.Chunk.Index,
			Text:        retrieved.Chunk.Text,
			SourceLabel: retrieved.Label(),
			Score:       retrieved.Score,
		})
	}

	if h.logger != nil {
		h.logger.Debug().
			Str("query", query).
			Int("results", len(results)).
			Msg("Search completed")
	}

	response := map[string]interface{}{
		"results": results,
		"count":   len(results),
		"query":   query,
		"limit":   limit,
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}
