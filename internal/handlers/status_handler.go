package handlers

import (
	"net/http"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/responsum/internal/interfaces"
	"github.com/ternarybob/responsum/internal/models"
)

// StatusHandler handles HTTP requests for application status
type StatusHandler struct {
	documents     interfaces.DocumentStorage
	ingestService interfaces.IngestService
	scheduler     interfaces.SchedulerService
	startTime     time.Time
	logger        arbor.ILogger
}

// NewStatusHandler creates a new StatusHandler
func NewStatusHandler(storage interfaces.StorageManager, ingestService interfaces.IngestService, scheduler interfaces.SchedulerService, logger arbor.ILogger) *StatusHandler {
	h := &StatusHandler{
		ingestService: ingestService,
		scheduler:     scheduler,
		startTime:     time.Now(),
		logger:        logger,
	}
	if storage != nil {
		h.documents = storage.DocumentStorage()
	}
	return h
}

// jobStatusResponse is the wire form of a scheduler job status
type jobStatusResponse struct {
	Enabled     bool       `json:"enabled"`
	Schedule    string     `json:"schedule"`
	Description string     `json:"description"`
	IsRunning   bool       `json:"is_running"`
	LastRun     *time.Time `json:"last_run,omitempty"`
	NextRun     *time.Time `json:"next_run,omitempty"`
	LastError   string     `json:"last_error,omitempty"`
}

// GetStatusHandler handles GET /api/status. Reports uptime, corpus counts,
// the most recent ingest run per source and scheduler job state.
func (h *StatusHandler) GetStatusHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	uptime := time.Since(h.startTime)

	response := map[string]interface{}{
		"status":         "running",
		"uptime":         uptime.Round(time.Second).String(),
		"uptime_seconds": int64(uptime.Seconds()),
	}

	if h.documents != nil {
		stats, err := h.documents.GetStats()
		if err != nil {
			h.logger.Error().Err(err).Msg("Failed to collect document stats")
		} else {
			response["documents"] = stats.TotalDocuments
			response["chunks"] = stats.TotalChunks
			response["embedded_chunks"] = stats.EmbeddedChunks
			response["by_source"] = stats.BySource
			if !stats.LastUpdated.IsZero() {
				response["last_updated"] = stats.LastUpdated
			}
		}
	}

	if h.ingestService != nil {
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
		response["ingest_runs"] = runs
	}

	if h.scheduler != nil {
		jobs := make(map[string]jobStatusResponse)
		for name, status := range h.scheduler.GetAllJobStatuses() {
			jobs[name] = jobStatusResponse{
				Enabled:     status.Enabled,
				Schedule:    status.Schedule,
				Description: status.Description,
				IsRunning:   status.IsRunning,
				LastRun:     status.LastRun,
				NextRun:     status.NextRun,
				LastError:   status.LastError,
			}
		}
		response["jobs"] = jobs
	}

	WriteJSON(w, http.StatusOK, response)
}
