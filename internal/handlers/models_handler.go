package handlers

import (
	"net/http"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/responsum/internal/interfaces"
	"github.com/ternarybob/responsum/internal/models"
)

// ModelsHandler serves the generation backend catalog
type ModelsHandler struct {
	registry       interfaces.BackendRegistry
	defaultBackend string
	logger         arbor.ILogger
}

// NewModelsHandler creates a new models handler. defaultBackend is the
// configured backend identifier used when requests omit one.
func NewModelsHandler(registry interfaces.BackendRegistry, defaultBackend string, logger arbor.ILogger) *ModelsHandler {
	return &ModelsHandler{
		registry:       registry,
		defaultBackend: defaultBackend,
		logger:         logger,
	}
}

// ModelsHandler handles GET /api/models requests
func (h *ModelsHandler) ModelsHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	backends := h.registry.List()

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"models":  backends,
		"default": models.ParseBackendRef(h.defaultBackend).String(),
		"count":   len(backends),
	})
}
