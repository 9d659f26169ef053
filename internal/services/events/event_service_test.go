package events

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/responsum/internal/interfaces"
)

func TestSubscribeAndPublishSync(t *testing.T) {
	service := NewService(arbor.NewLogger())

	received := make(chan interfaces.Event, 1)
	handler := func(ctx context.Context, event interfaces.Event) error {
		received <- event
		return nil
	}
	require.NoError(t, service.Subscribe(interfaces.EventDocumentIndexed, handler))

	err := service.PublishSync(context.Background(), interfaces.Event{
		Type:    interfaces.EventDocumentIndexed,
		Payload: map[string]interface{}{"document_id": "doc_1"},
	})
	require.NoError(t, err)

	event := <-received
	assert.Equal(t, interfaces.EventDocumentIndexed, event.Type)
	payload, ok := event.Payload.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "doc_1", payload["document_id"])
}

func TestPublishDeliversAsynchronously(t *testing.T) {
	service := NewService(arbor.NewLogger())

	received := make(chan interfaces.Event, 1)
	require.NoError(t, service.Subscribe(interfaces.EventIngestStarted, func(ctx context.Context, event interfaces.Event) error {
		received <- event
		return nil
	}))

	require.NoError(t, service.Publish(context.Background(), interfaces.Event{Type: interfaces.EventIngestStarted}))

	select {
	case event := <-received:
		assert.Equal(t, interfaces.EventIngestStarted, event.Type)
	case <-time.After(2 * time.Second):
		t.Fatal("event was not delivered")
	}
}

func TestPublishWithoutSubscribers(t *testing.T) {
	service := NewService(arbor.NewLogger())

	assert.NoError(t, service.Publish(context.Background(), interfaces.Event{Type: interfaces.EventQueryResolved}))
	assert.NoError(t, service.PublishSync(context.Background(), interfaces.Event{Type: interfaces.EventQueryResolved}))
}

func TestSubscribeNilHandler(t *testing.T) {
	service := NewService(arbor.NewLogger())

	require.Error(t, service.Subscribe(interfaces.EventIngestStarted, nil))
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	service := NewService(arbor.NewLogger())

	calls := 0
	handler := func(ctx context.Context, event interfaces.Event) error {
		calls++
		return nil
	}

	require.NoError(t, service.Subscribe(interfaces.EventIngestCompleted, handler))
	require.NoError(t, service.PublishSync(context.Background(), interfaces.Event{Type: interfaces.EventIngestCompleted}))
	require.NoError(t, service.Unsubscribe(interfaces.EventIngestCompleted, handler))
	require.NoError(t, service.PublishSync(context.Background(), interfaces.Event{Type: interfaces.EventIngestCompleted}))

	assert.Equal(t, 1, calls)
}

func TestUnsubscribeUnknownHandler(t *testing.T) {
	service := NewService(arbor.NewLogger())

	err := service.Unsubscribe(interfaces.EventIngestCompleted, func(ctx context.Context, event interfaces.Event) error {
		return nil
	})
	require.Error(t, err)
}

func TestPublishSyncReportsHandlerErrors(t *testing.T) {
	service := NewService(arbor.NewLogger())

	require.NoError(t, service.Subscribe(interfaces.EventQueryResolved, func(ctx context.Context, event interfaces.Event) error {
		return errors.New("handler failed")
	}))
	require.NoError(t, service.Subscribe(interfaces.EventQueryResolved, func(ctx context.Context, event interfaces.Event) error {
		return nil
	}))

	err := service.PublishSync(context.Background(), interfaces.Event{Type: interfaces.EventQueryResolved})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 errors")
}

func TestCloseDropsSubscriptions(t *testing.T) {
	service := NewService(arbor.NewLogger())

	calls := 0
	require.NoError(t, service.Subscribe(interfaces.EventIngestStarted, func(ctx context.Context, event interfaces.Event) error {
		calls++
		return nil
	}))
	require.NoError(t, service.Close())
	require.NoError(t, service.PublishSync(context.Background(), interfaces.Event{Type: interfaces.EventIngestStarted}))

	assert.Zero(t, calls)
}
