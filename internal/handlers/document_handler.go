package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/responsum/internal/interfaces"
)

// DocumentRequest is the wire format for POST /api/documents. Content is
// treated as markdown unless content_type says otherwise.
type DocumentRequest struct {
	Title       string `json:"title"`
	Content     string `json:"content" validate:"required"`
	ContentType string `json:"content_type"` // markdown (default), html, text
	SourceLabel string `json:"source_label"`
}

// Validate validates the request using go-playground/validator.
func (d *DocumentRequest) Validate() error {
	validate := validator.New()
	return validate.Struct(d)
}

// DocumentHandler handles document-related HTTP requests
type DocumentHandler struct {
	ingestService interfaces.IngestService
	transform     interfaces.TransformService
	pdfService    interfaces.PDFService
	documents     interfaces.DocumentStorage
	chunks        interfaces.ChunkStorage
	eventService  interfaces.EventService
	logger        arbor.ILogger
}

// NewDocumentHandler creates a new document handler
func NewDocumentHandler(
	ingestService interfaces.IngestService,
	transform interfaces.TransformService,
	pdfService interfaces.PDFService,
	storage interfaces.StorageManager,
	eventService interfaces.EventService,
	logger arbor.ILogger,
) *DocumentHandler {
	h := &DocumentHandler{
		ingestService: ingestService,
		transform:     transform,
		pdfService:    pdfService,
		eventService:  eventService,
		logger:        logger,
	}
	if storage != nil {
		h.documents = storage.DocumentStorage()
		h.chunks = storage.ChunkStorage()
	}
	return h
}

// CreateDocumentHandler handles POST /api/documents.
// Ingests a single document body directly: chunked, embedded and indexed
// like any other source.
func (h *DocumentHandler) CreateDocumentHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}

	var req DocumentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Error().Err(err).Msg("Failed to decode document request")
		WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if err := req.Validate(); err != nil {
		h.logger.Warn().Err(err).Msg("Invalid document request")
		WriteError(w, http.StatusBadRequest, "Content field is required")
		return
	}

	content := req.Content
	switch strings.ToLower(req.ContentType) {
	case "", "markdown", "md", "text":
		// Markdown and plain text go straight through the ingest pipeline
	case "html":
		if err := h.transform.ValidateHTML(content); err != nil {
			h.logger.Warn().Err(err).Msg("Rejected document body as HTML")
			WriteError(w, http.StatusBadRequest, "Content is not valid HTML")
			return
		}
		markdown, err := h.transform.HTMLToMarkdown(content, "")
		if err != nil {
			h.logger.Error().Err(err).Msg("Failed to convert HTML content")
			WriteError(w, http.StatusInternalServerError, "Failed to convert HTML content")
			return
		}
		content = markdown
	default:
		WriteError(w, http.StatusBadRequest, "Unsupported content type: "+req.ContentType)
		return
	}

	doc, err := h.ingestService.IngestText(r.Context(), req.Title, content, req.SourceLabel)
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to ingest document")
		WriteError(w, http.StatusInternalServerError, "Failed to ingest document: "+err.Error())
		return
	}

	h.logger.Info().
		Str("document_id", doc.ID).
		Str("title", doc.Title).
		Int("chunks", doc.ChunkCount).
		Msg("Document ingested via API")

	WriteJSON(w, http.StatusCreated, map[string]interface{}{
		"document_id":  doc.ID,
		"title":        doc.Title,
		"source_label": doc.SourceLabel,
		"chunk_count":  doc.ChunkCount,
		"message":      "Document ingested successfully",
	})
}

// ListHandler handles GET /api/documents with source filtering
func (h *DocumentHandler) ListHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	query := r.URL.Query()
	limit, _ := strconv.Atoi(query.Get("limit"))
	if limit <= 0 {
		limit = 20
	}
	offset, _ := strconv.Atoi(query.Get("offset"))
	if offset < 0 {
		offset = 0
	}

	opts := &interfaces.ListOptions{
		SourceType: query.Get("source_type"),
		Limit:      limit,
		Offset:     offset,
	}

	docs, err := h.documents.ListDocuments(opts)
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to list documents")
		http.Error(w, "Failed to list documents", http.StatusInternalServerError)
		return
	}

	totalCount, err := h.countDocuments(opts.SourceType)
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to count documents")
		// Don't fail the request, just return 0 count
		totalCount = 0
	}

	response := map[string]interface{}{
		"documents":   docs,
		"total_count": totalCount,
		"limit":       limit,
		"offset":      offset,
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}

func (h *DocumentHandler) countDocuments(sourceType string) (int, error) {
	if sourceType != "" {
		return h.documents.CountDocumentsBySource(sourceType)
	}
	return h.documents.CountDocuments()
}

// GetDocumentHandler handles GET /api/documents/{id}
func (h *DocumentHandler) GetDocumentHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	id := documentIDFromPath(r.URL.Path, "")
	if id == "" {
		http.Error(w, "Document ID is required", http.StatusBadRequest)
		return
	}

	doc, err := h.documents.GetDocument(id)
	if err != nil {
		if errors.Is(err, interfaces.ErrDocumentNotFound) {
			http.Error(w, "Document not found", http.StatusNotFound)
			return
		}
		h.logger.Error().Err(err).Str("document_id", id).Msg("Failed to get document")
		http.Error(w, "Failed to get document", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(doc)
}

// DeleteDocumentHandler handles DELETE /api/documents/{id}.
// Removes the document and every chunk derived from it.
func (h *DocumentHandler) DeleteDocumentHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodDelete) {
		return
	}

	id := documentIDFromPath(r.URL.Path, "")
	if id == "" {
		http.Error(w, "Document ID is required", http.StatusBadRequest)
		return
	}

	doc, err := h.documents.GetDocument(id)
	if err != nil {
		if errors.Is(err, interfaces.ErrDocumentNotFound) {
			http.Error(w, "Document not found", http.StatusNotFound)
			return
		}
		h.logger.Error().Err(err).Str("document_id", id).Msg("Failed to load document for deletion")
		http.Error(w, "Failed to delete document", http.StatusInternalServerError)
		return
	}

	if err := h.chunks.DeleteChunksByDocument(id); err != nil {
		h.logger.Error().Err(err).Str("document_id", id).Msg("Failed to delete document chunks")
		http.Error(w, "Failed to delete document chunks", http.StatusInternalServerError)
		return
	}

	if err := h.documents.DeleteDocument(id); err != nil {
		h.logger.Error().Err(err).Str("document_id", id).Msg("Failed to delete document")
		http.Error(w, "Failed to delete document", http.StatusInternalServerError)
		return
	}

	if h.eventService != nil {
		h.eventService.Publish(r.Context(), interfaces.Event{
			Type: interfaces.EventDocumentDeleted,
			Payload: map[string]interface{}{
				"document_id": id,
				"title":       doc.Title,
				"timestamp":   time.Now(),
			},
		})
	}

	h.logger.Info().Str("document_id", id).Str("title", doc.Title).Msg("Document deleted")

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"doc_id":  id,
		"message": "Document deleted successfully",
	})
}

// ExportDocumentHandler handles GET /api/documents/{id}/export.
// Renders the stored markdown as a downloadable PDF.
func (h *DocumentHandler) ExportDocumentHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	id := documentIDFromPath(r.URL.Path, "/export")
	if id == "" {
		http.Error(w, "Document ID is required", http.StatusBadRequest)
		return
	}

	doc, err := h.documents.GetDocument(id)
	if err != nil {
		if errors.Is(err, interfaces.ErrDocumentNotFound) {
			http.Error(w, "Document not found", http.StatusNotFound)
			return
		}
		h.logger.Error().Err(err).Str("document_id", id).Msg("Failed to get document for export")
		http.Error(w, "Failed to export document", http.StatusInternalServerError)
		return
	}

	pdfBytes, err := h.pdfService.ConvertMarkdownToPDF(doc.ContentMarkdown, doc.Title)
	if err != nil {
		h.logger.Error().Err(err).Str("document_id", id).Msg("Failed to render document PDF")
		http.Error(w, "Failed to export document", http.StatusInternalServerError)
		return
	}

	h.logger.Debug().
		Str("document_id", id).
		Int("pdf_bytes", len(pdfBytes)).
		Msg("Document exported as PDF")

	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", "attachment; filename=\""+exportFilename(doc.Title)+"\"")
	w.Write(pdfBytes)
}

// documentIDFromPath extracts the document id from /api/documents/{id}
// style paths, stripping the given trailing suffix first.
func documentIDFromPath(path, suffix string) string {
	if suffix != "" {
		if !strings.HasSuffix(path, suffix) {
			return ""
		}
		path = strings.TrimSuffix(path, suffix)
	}
	parts := strings.Split(strings.Trim(path, "/"), "/")
	if len(parts) < 3 {
		return ""
	}
	return parts[len(parts)-1]
}

// exportFilename builds a safe PDF filename from a document title
func exportFilename(title string) string {
	name := strings.TrimSpace(title)
	if name == "" {
		name = "document"
	}
	name = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '-' || r == '_' || r == '.':
			return r
		case r == ' ':
			return '_'
		default:
			return -1
		}
	}, name)
	if name == "" {
		name = "document"
	}
	return name + ".pdf"
}
