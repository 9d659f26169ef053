package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/responsum/internal/interfaces"
	"github.com/ternarybob/responsum/internal/models"
)

// QueryRequest is the wire format for POST /api/query.
// Required fields are validated using go-playground/validator tags.
type QueryRequest struct {
	Question          string `json:"question" validate:"required"`
	ResultCount       int    `json:"resultCount"`
	BackendIdentifier string `json:"backendIdentifier"`
}

// Validate validates the request using go-playground/validator.
func (q *QueryRequest) Validate() error {
	validate := validator.New()
	return validate.Struct(q)
}

// QueryResponse is the wire format for a resolved query
type QueryResponse struct {
	Answer  string   `json:"answer"`
	Sources []string `json:"sources"`
}

// QueryHandler handles query resolution HTTP requests
type QueryHandler struct {
	resolver interfaces.QueryResolver
	logger   arbor.ILogger
}

// NewQueryHandler creates a new query handler
func NewQueryHandler(resolver interfaces.QueryResolver, logger arbor.ILogger) *QueryHandler {
	return &QueryHandler{
		resolver: resolver,
		logger:   logger,
	}
}

// QueryHandler handles POST /api/query requests. Pipeline failures are
// reported inside the answer body with HTTP 200; only malformed requests
// and unknown backend identifiers produce error statuses.
func (h *QueryHandler) QueryHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}

	var req QueryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Error().Err(err).Msg("Failed to decode query request")
		WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if err := req.Validate(); err != nil {
		h.logger.Warn().Err(err).Msg("Invalid query request")
		WriteError(w, http.StatusBadRequest, "Question field is required")
		return
	}

	ref := models.ParseBackendRef(req.BackendIdentifier)

	h.logger.Info().
		Int("question_length", len(req.Question)).
		Str("backend", ref.String()).
		Int("result_count", req.ResultCount).
		Msg("Processing query request")

	answer, err := h.resolver.Resolve(r.Context(), req.Question, req.ResultCount, ref)
	if err != nil {
		if errors.Is(err, interfaces.ErrUnknownBackend) {
			h.logger.Warn().Str("backend", req.BackendIdentifier).Msg("Unknown backend requested")
			WriteError(w, http.StatusBadRequest, "Unknown backend: "+req.BackendIdentifier)
			return
		}
		h.logger.Error().Err(err).Msg("Failed to resolve query")
		WriteError(w, http.StatusInternalServerError, "Failed to resolve query")
		return
	}

	WriteJSON(w, http.StatusOK, QueryResponse{
		Answer:  answer.Text,
		Sources: answer.Sources,
	})
}
