package server

import (
	"net/http"
)

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() *http.ServeMux {
	mux := http.NewServeMux()

	// WebSocket route: status heartbeats, ingest progress, log stream
	mux.HandleFunc("/ws", s.app.WSHandler.HandleWebSocket)

	// API routes - Query resolution
	mux.HandleFunc("/api/query", s.app.QueryHandler.QueryHandler)
	mux.HandleFunc("/api/models", s.app.ModelsHandler.ModelsHandler)

	// API routes - Documents
	mux.HandleFunc("/api/documents", s.handleDocumentsRoute)  // GET (list), POST (ingest body)
	mux.HandleFunc("/api/documents/", s.handleDocumentRoutes) // GET/DELETE /{id}, GET /{id}/export

	// API routes - Retrieval inspection
	mux.HandleFunc("/api/search", s.app.SearchHandler.SearchHandler)

	// API routes - Ingestion
	mux.HandleFunc("/api/ingest", s.app.IngestHandler.TriggerHandler)
	mux.HandleFunc("/api/ingest/status", s.app.IngestHandler.StatusHandler)

	// API routes - System
	mux.HandleFunc("/api/status", s.app.StatusHandler.GetStatusHandler)
	mux.HandleFunc("/api/version", s.app.APIHandler.VersionHandler)
	mux.HandleFunc("/api/health", s.app.APIHandler.HealthHandler)
	mux.HandleFunc("/api/shutdown", s.ShutdownHandler) // Graceful shutdown endpoint (dev mode)

	// 404 handler for unmatched API routes
	mux.HandleFunc("/api/", s.app.APIHandler.NotFoundHandler)

	return mux
}

// handleDocumentsRoute routes /api/documents requests (list and create)
func (s *Server) handleDocumentsRoute(w http.ResponseWriter, r *http.Request) {
	RouteResourceCollection(w, r,
		s.app.DocumentHandler.ListHandler,
		s.app.DocumentHandler.CreateDocumentHandler,
	)
}

// handleDocumentRoutes routes /api/documents/{id} requests and subpaths
func (s *Server) handleDocumentRoutes(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodGet {
		matched := RouteByPathSuffix(w, r, "/api/documents/", []PathSuffixRouter{
			{Suffix: "/export", Handler: s.app.DocumentHandler.ExportDocumentHandler},
		})
		if matched {
			return
		}
	}

	RouteResourceItem(w, r,
		s.app.DocumentHandler.GetDocumentHandler,
		nil,
		s.app.DocumentHandler.DeleteDocumentHandler,
	)
}
