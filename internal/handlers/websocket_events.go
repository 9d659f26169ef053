package handlers

import (
	"context"
	"fmt"
	"time"

	plog "github.com/phuslu/log"

	"github.com/ternarybob/responsum/internal/interfaces"
)

// SubscribeToEvents wires the handler to the ingest and query event stream.
// Every subscription checks the whitelist and the per-type throttler before
// broadcasting, so a large ingest run cannot flood connected clients.
func (h *WebSocketHandler) SubscribeToEvents() {
	if h.eventService == nil {
		return
	}

	h.eventService.Subscribe(interfaces.EventIngestStarted, func(ctx context.Context, event interfaces.Event) error {
		payload, ok := event.Payload.(map[string]interface{})
		if !ok {
			h.logger.Warn().Msg("Invalid ingest started event payload type")
			return nil
		}

		if !h.shouldBroadcast("ingest_started") {
			return nil
		}

		h.streamLine(plog.InfoLevel, fmt.Sprintf("Ingest started: %s", getString(payload, "source")))
		h.broadcastMessage("ingest_started", payload)
		return nil
	})

	h.eventService.Subscribe(interfaces.EventIngestProgress, func(ctx context.Context, event interfaces.Event) error {
		payload, ok := event.Payload.(map[string]interface{})
		if !ok {
			h.logger.Warn().Msg("Invalid ingest progress event payload type")
			return nil
		}

		// Progress fires once per file, so this is the event the default
		// config throttles
		if !h.shouldBroadcast("ingest_progress") {
			return nil
		}

		progress := IngestProgressUpdate{
			RunID:     getString(payload, "run_id"),
			Source:    getString(payload, "source"),
			File:      getString(payload, "file"),
			Documents: getInt(payload, "documents"),
			Chunks:    getInt(payload, "chunks"),
			Failures:  getInt(payload, "failures"),
			Timestamp: getTimestamp(payload),
		}

		h.BroadcastIngestProgress(progress)
		return nil
	})

	h.eventService.Subscribe(interfaces.EventIngestCompleted, func(ctx context.Context, event interfaces.Event) error {
		payload, ok := event.Payload.(map[string]interface{})
		if !ok {
			h.logger.Warn().Msg("Invalid ingest completed event payload type")
			return nil
		}

		if !h.shouldBroadcast("ingest_completed") {
			return nil
		}

		h.streamLine(plog.InfoLevel, fmt.Sprintf("Ingest completed: %s (%d documents, %d chunks, %d failures)",
			getString(payload, "source"),
			getInt(payload, "documents"),
			getInt(payload, "chunks"),
			getInt(payload, "failures")))
		h.broadcastMessage("ingest_completed", payload)
		return nil
	})

	h.eventService.Subscribe(interfaces.EventDocumentIndexed, func(ctx context.Context, event interfaces.Event) error {
		payload, ok := event.Payload.(map[string]interface{})
		if !ok {
			h.logger.Warn().Msg("Invalid document indexed event payload type")
			return nil
		}

		if !h.shouldBroadcast("document_indexed") {
			return nil
		}

		h.streamLine(plog.DebugLevel, fmt.Sprintf("Document indexed: %s (%d chunks)",
			getString(payload, "title"), getInt(payload, "chunks")))
		h.broadcastMessage("document_indexed", payload)
		return nil
	})

	h.eventService.Subscribe(interfaces.EventDocumentDeleted, func(ctx context.Context, event interfaces.Event) error {
		payload, ok := event.Payload.(map[string]interface{})
		if !ok {
			h.logger.Warn().Msg("Invalid document deleted event payload type")
			return nil
		}

		if !h.shouldBroadcast("document_deleted") {
			return nil
		}

		h.streamLine(plog.InfoLevel, fmt.Sprintf("Document deleted: %s", getString(payload, "title")))
		h.broadcastMessage("document_deleted", payload)
		return nil
	})

	h.eventService.Subscribe(interfaces.EventQueryResolved, func(ctx context.Context, event interfaces.Event) error {
		payload, ok := event.Payload.(map[string]interface{})
		if !ok {
			h.logger.Warn().Msg("Invalid query resolved event payload type")
			return nil
		}

		if !h.shouldBroadcast("query_resolved") {
			return nil
		}

		h.streamLine(plog.InfoLevel, fmt.Sprintf("Query resolved via %s in %dms",
			getString(payload, "backend"), getInt(payload, "duration_ms")))
		h.broadcastMessage("query_resolved", payload)
		return nil
	})
}

// Helper functions for safe type conversion from map[string]interface{}
func getString(m map[string]interface{}, key string) string {
	if val, ok := m[key]; ok {
		if str, ok := val.(string); ok {
			return str
		}
	}
	return ""
}

func getInt(m map[string]interface{}, key string) int {
	if val, ok := m[key]; ok {
		switch v := val.(type) {
		case int:
			return v
		case int64:
			return int(v)
		case float64:
			return int(v)
		}
	}
	return 0
}

// getTimestamp reads the payload timestamp, which arrives as a time.Time from
// in-process publishers and as RFC3339 text after a JSON round trip
func getTimestamp(m map[string]interface{}) time.Time {
	if ts, ok := m["timestamp"].(time.Time); ok {
		return ts
	}
	if tsStr := getString(m, "timestamp"); tsStr != "" {
		if ts, err := time.Parse(time.RFC3339, tsStr); err == nil {
			return ts
		}
	}
	return time.Now()
}
