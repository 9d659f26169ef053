package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/responsum/internal/common"
	"github.com/ternarybob/responsum/internal/interfaces"
	"github.com/ternarybob/responsum/internal/models"
)

// IngestRequest is the wire format for POST /api/ingest
type IngestRequest struct {
	Source string `json:"source" validate:"required"` // directory, url, mailbox, github
	URL    string `json:"url"`                        // required when source is "url"
}

// Validate validates the request using go-playground/validator.
func (i *IngestRequest) Validate() error {
	validate := validator.New()
	return validate.Struct(i)
}

// IngestHandler handles ingest trigger and status HTTP requests
type IngestHandler struct {
	ingestService interfaces.IngestService
	logger        arbor.ILogger
}

// NewIngestHandler creates a new ingest handler
func NewIngestHandler(ingestService interfaces.IngestService, logger arbor.ILogger) *IngestHandler {
	return &IngestHandler{
		ingestService: ingestService,
		logger:        logger,
	}
}

// TriggerHandler handles POST /api/ingest requests. Runs execute in the
// background; progress is visible over the WebSocket stream and the
// status endpoint. The request context ends with the response, so runs
// get a fresh background context.
func (h *IngestHandler) TriggerHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}

	var req IngestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Error().Err(err).Msg("Failed to decode ingest request")
		WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if err := req.Validate(); err != nil {
		h.logger.Warn().Err(err).Msg("Invalid ingest request")
		WriteError(w, http.StatusBadRequest, "Source field is required")
		return
	}

	source := strings.ToLower(req.Source)
	h.logger.Info().Str("source", source).Msg("Ingest run triggered via API")

	switch source {
	case models.IngestSourceDirectory:
		common.SafeGo(h.logger, "ingest:directory", func() {
			if _, err := h.ingestService.ScanInputDir(context.Background()); err != nil {
				h.logger.Error().Err(err).Msg("Directory ingest error")
			}
		})
		WriteStarted(w, "Directory scan started")

	case models.IngestSourceURL:
		if req.URL == "" {
			WriteError(w, http.StatusBadRequest, "URL is required for url ingest")
			return
		}
		url := req.URL
		common.SafeGo(h.logger, "ingest:url", func() {
			if _, err := h.ingestService.IngestURL(context.Background(), url); err != nil {
				h.logger.Error().Err(err).Str("url", url).Msg("URL ingest error")
			}
		})
		WriteStarted(w, "URL ingest started")

	case models.IngestSourceMailbox:
		common.SafeGo(h.logger, "ingest:mailbox", func() {
			if _, err := h.ingestService.PollMailbox(context.Background()); err != nil {
				h.logger.Error().Err(err).Msg("Mailbox ingest error")
			}
		})
		WriteStarted(w, "Mailbox poll started")

	case models.IngestSourceGitHub:
		common.SafeGo(h.logger, "ingest:github", func() {
			if _, err := h.ingestService.SyncGitHub(context.Background()); err != nil {
				h.logger.Error().Err(err).Msg("GitHub ingest error")
			}
		})
		WriteStarted(w, "GitHub sync started")

	default:
		WriteError(w, http.StatusBadRequest, "Unknown ingest source: "+req.Source)
	}
}

// StatusHandler handles GET /api/ingest/status requests. Reports the most
// recent run for each source that records runs.
func (h *IngestHandler) StatusHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	runs := make(map[string]*models.IngestRun)
	for _, source := range []string{
		models.IngestSourceDirectory,
		models.IngestSourceMailbox,
		models.IngestSourceGitHub,
	} {
		if run, ok := h.ingestService.LastRun(source); ok {
			runs[source] = run
		}
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"runs": runs,
	})
}
