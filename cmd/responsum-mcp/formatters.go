package main

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/ternarybob/responsum/internal/models"
)

// formatAnswer formats a resolved answer as markdown
func formatAnswer(question string, ref models.BackendRef, answer *models.Answer) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("## Answer to \"%s\"\n\n", question))
	sb.WriteString(answer.Text)
	sb.WriteString("\n\n")
	sb.WriteString(fmt.Sprintf("**Backend:** %s\n", ref.String()))

	if len(answer.Sources) > 0 {
		sb.WriteString("\n### Sources\n\n")
		for i, source := range answer.Sources {
			sb.WriteString(fmt.Sprintf("%d. %s\n", i+1, source))
		}
	}

	return sb.String()
}

// formatChunkResults formats ranked chunk matches as markdown
func formatChunkResults(query string, chunks []models.RetrievedChunk) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("## Chunk Matches for \"%s\" (%d results)\n\n", query, len(chunks)))

	if len(chunks) == 0 {
		sb.WriteString("No matching chunks found.\n")
		return sb.String()
	}

	for i, retrieved := range chunks {
		if retrieved.Chunk == nil {
			continue
		}
		chunk := retrieved.Chunk
		sb.WriteString(fmt.Sprintf("### %d. %s (score: %.3f)\n", i+1, retrieved.Label(), retrieved.Score))
		sb.WriteString(fmt.Sprintf("**Chunk:** %s (document %s, index %d)\n\n", chunk.ID, chunk.DocumentID, chunk.Index))

		// Text preview (first 300 chars)
		text := chunk.Text
		if len(text) > 300 {
			text = text[:300] + "..."
		}
		sb.WriteString(text)
		sb.WriteString("\n\n---\n\n")
	}

	return sb.String()
}

// formatDocument formats a single document as markdown
func formatDocument(doc *models.Document) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("# %s\n\n", doc.Title))
	sb.WriteString(fmt.Sprintf("**ID:** %s\n", doc.ID))
	sb.WriteString(fmt.Sprintf("**Source:** %s (%s)\n", doc.SourceType, doc.SourceID))
	if doc.URL != "" {
		sb.WriteString(fmt.Sprintf("**URL:** %s\n", doc.URL))
	}
	sb.WriteString(fmt.Sprintf("**Chunks:** %d\n", doc.ChunkCount))
	sb.WriteString(fmt.Sprintf("**Created:** %s\n", doc.CreatedAt.Format(time.RFC3339)))
	sb.WriteString(fmt.Sprintf("**Updated:** %s\n\n", doc.UpdatedAt.Format(time.RFC3339)))

	sb.WriteString("## Content\n\n")
	sb.WriteString(doc.ContentMarkdown)
	sb.WriteString("\n\n")

	if len(doc.Metadata) > 0 {
		sb.WriteString("## Metadata\n\n```json\n")
		metadataJSON, _ := json.MarshalIndent(doc.Metadata, "", "  ")
		sb.WriteString(string(metadataJSON))
		sb.WriteString("\n```\n")
	}

	return sb.String()
}

// formatDocumentList formats a document listing as markdown
func formatDocumentList(docs []*models.Document, limit int) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("## Indexed Documents (%d of %d)\n\n", len(docs), limit))

	if len(docs) == 0 {
		sb.WriteString("No documents found.\n")
		return sb.String()
	}

	for i, doc := range docs {
		sb.WriteString(fmt.Sprintf("%d. **%s** (%s - %s)\n", i+1, doc.Title, doc.SourceType, doc.SourceID))
		sb.WriteString(fmt.Sprintf("   ID: %s | Chunks: %d\n", doc.ID, doc.ChunkCount))
		sb.WriteString(fmt.Sprintf("   Updated: %s\n", doc.UpdatedAt.Format(time.RFC3339)))
		if doc.URL != "" {
			sb.WriteString(fmt.Sprintf("   URL: %s\n", doc.URL))
		}
		sb.WriteString("\n")
	}

	return sb.String()
}

// formatIndexStatus formats index statistics and the backend catalog as markdown
func formatIndexStatus(stats *models.DocumentStats, backends []models.BackendInfo) string {
	var sb strings.Builder
	sb.WriteString("## Index Status\n\n")
	sb.WriteString(fmt.Sprintf("**Documents:** %d\n", stats.TotalDocuments))
	sb.WriteString(fmt.Sprintf("**Chunks:** %d (%d embedded)\n", stats.TotalChunks, stats.EmbeddedChunks))
	if !stats.LastUpdated.IsZero() {
		sb.WriteString(fmt.Sprintf("**Last updated:** %s\n", stats.LastUpdated.Format(time.RFC3339)))
	}
	sb.WriteString("\n")

	if len(stats.BySource) > 0 {
		sb.WriteString("### Documents by Source\n\n")
		sources := make([]string, 0, len(stats.BySource))
		for sourceType := range stats.BySource {
			sources = append(sources, sourceType)
		}
		sort.Strings(sources)
		for _, sourceType := range sources {
			sb.WriteString(fmt.Sprintf("- %s: %d\n", sourceType, stats.BySource[sourceType]))
		}
		sb.WriteString("\n")
	}

	sb.WriteString("### Generation Backends\n\n")
	if len(backends) == 0 {
		sb.WriteString("No backends configured.\n")
		return sb.String()
	}
	for _, backend := range backends {
		state := "cold"
		if backend.Ready {
			state = "ready"
		}
		sb.WriteString(fmt.Sprintf("- **%s** (%s): %s [%s]\n", backend.ID, backend.Kind, backend.Model, state))
	}

	return sb.String()
}
