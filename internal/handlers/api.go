package handlers

import (
	"net/http"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/responsum/internal/common"
	"github.com/ternarybob/responsum/internal/interfaces"
)

type APIHandler struct {
	storage  interfaces.StorageManager
	registry interfaces.BackendRegistry
	logger   arbor.ILogger
}

func NewAPIHandler(storage interfaces.StorageManager, registry interfaces.BackendRegistry) *APIHandler {
	return &APIHandler{
		storage:  storage,
		registry: registry,
		logger:   common.GetLogger(),
	}
}

// VersionHandler returns version information
func (h *APIHandler) VersionHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	WriteJSON(w, http.StatusOK, map[string]string{
		"version":    common.GetVersion(),
		"build":      common.GetBuild(),
		"git_commit": common.GetGitCommit(),
	})
}

// HealthHandler returns liveness plus per-component status. Always 200;
// a degraded component shows up in the body rather than the status code.
func (h *APIHandler) HealthHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	status := "ok"
	components := map[string]string{}

	if h.storage == nil {
		components["storage"] = "unavailable"
		status = "degraded"
	} else if _, err := h.storage.DocumentStorage().CountDocuments(); err != nil {
		h.logger.Warn().Err(err).Msg("Storage health check failed")
		components["storage"] = "error"
		status = "degraded"
	} else {
		components["storage"] = "ok"
	}

	if h.registry == nil || len(h.registry.List()) == 0 {
		components["backends"] = "unavailable"
		status = "degraded"
	} else {
		components["backends"] = "ok"
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"status":     status,
		"components": components,
	})
}

// NotFoundHandler handles 404 errors with JSON response
func (h *APIHandler) NotFoundHandler(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusNotFound, map[string]interface{}{
		"error":   "Not Found",
		"path":    r.URL.Path,
		"message": "The requested endpoint does not exist",
	})
}
