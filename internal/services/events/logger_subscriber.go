package events

import (
	"context"
	"fmt"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/responsum/internal/interfaces"
)

// NewLoggerSubscriber creates an event handler that logs all events
func NewLoggerSubscriber(logger arbor.ILogger) interfaces.EventHandler {
	return func(ctx context.Context, event interfaces.Event) error {
		// Extract common fields from payload if available
		var runID, source, documentID, backend string
		if payload, ok := event.Payload.(map[string]interface{}); ok {
			if id, ok := payload["run_id"].(string); ok {
				runID = id
			}
			if s, ok := payload["source"].(string); ok {
				source = s
			}
			if id, ok := payload["document_id"].(string); ok {
				documentID = id
			}
			if b, ok := payload["backend"].(string); ok {
				backend = b
			}
		}

		// Log event with structured fields
		logEvent := logger.Debug().
			Str("event_type", string(event.Type))

		if runID != "" {
			logEvent = logEvent.Str("run_id", runID)
		}
		if source != "" {
			logEvent = logEvent.Str("source", source)
		}
		if documentID != "" {
			logEvent = logEvent.Str("document_id", documentID)
		}
		if backend != "" {
			logEvent = logEvent.Str("backend", backend)
		}

		logEvent.Msg("Event published")

		return nil
	}
}

// SubscribeLoggerToAllEvents subscribes the logger to all known event types
func SubscribeLoggerToAllEvents(eventService interfaces.EventService, logger arbor.ILogger) error {
	subscriber := NewLoggerSubscriber(logger)

	eventTypes := []interfaces.EventType{
		interfaces.EventIngestStarted,
		interfaces.EventIngestProgress,
		interfaces.EventIngestCompleted,
		interfaces.EventDocumentIndexed,
		interfaces.EventDocumentDeleted,
		interfaces.EventEmbeddingTriggered,
		interfaces.EventQueryResolved,
	}

	for _, eventType := range eventTypes {
		if err := eventService.Subscribe(eventType, subscriber); err != nil {
			return fmt.Errorf("failed to subscribe logger to event type %s: %w", eventType, err)
		}
	}

	logger.Info().
		Int("event_type_count", len(eventTypes)).
		Msg("Logger subscribed to all event types")

	return nil
}
