package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	plog "github.com/phuslu/log"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/arbor/models"

	"github.com/ternarybob/responsum/internal/common"
	"github.com/ternarybob/responsum/internal/interfaces"
	"github.com/ternarybob/responsum/internal/services/events"
)

func newTestWebSocketServer(t *testing.T, eventService interfaces.EventService, config *common.WebSocketConfig) (*WebSocketHandler, string) {
	t.Helper()

	handler := NewWebSocketHandler(eventService, nil, arbor.NewLogger(), config)
	server := httptest.NewServer(http.HandlerFunc(handler.HandleWebSocket))
	t.Cleanup(server.Close)

	return handler, "ws" + strings.TrimPrefix(server.URL, "http")
}

func dialWebSocket(t *testing.T, wsURL string) *websocket.Conn {
	t.Helper()

	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("Failed to connect: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	return conn
}

// waitForClients blocks until the handler has registered the expected number
// of connections. Dial returns before the server side finishes registration,
// so tests must not broadcast until this settles.
func waitForClients(t *testing.T, handler *WebSocketHandler, want int) {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		handler.mu.RLock()
		got := len(handler.clients)
		handler.mu.RUnlock()
		if got == want {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("Timed out waiting for %d connected clients", want)
}

// readMessageOfType reads frames until one of the wanted type arrives,
// skipping the initial status frame and any heartbeats
func readMessageOfType(t *testing.T, conn *websocket.Conn, msgType string) WSMessage {
	t.Helper()

	for {
		var msg WSMessage
		if err := conn.ReadJSON(&msg); err != nil {
			t.Fatalf("Failed reading %s message: %v", msgType, err)
		}
		if msg.Type == msgType {
			return msg
		}
		if msg.Type != "status" {
			t.Fatalf("Unexpected %s message while waiting for %s", msg.Type, msgType)
		}
	}
}

func decodePayload(t *testing.T, msg WSMessage, out interface{}) {
	t.Helper()

	data, err := json.Marshal(msg.Payload)
	if err != nil {
		t.Fatalf("Failed to remarshal payload: %v", err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		t.Fatalf("Failed to decode payload: %v", err)
	}
}

func TestWebSocketSendsStatusOnConnect(t *testing.T) {
	handler, wsURL := newTestWebSocketServer(t, nil, &common.WebSocketConfig{})
	conn := dialWebSocket(t, wsURL)

	var msg WSMessage
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("Failed to read initial message: %v", err)
	}
	if msg.Type != "status" {
		t.Fatalf("First message type = %q, want %q", msg.Type, "status")
	}

	var status StatusUpdate
	decodePayload(t, msg, &status)

	if status.ServerInstanceID != handler.serverInstanceID {
		t.Errorf("serverInstanceId = %q, want %q", status.ServerInstanceID, handler.serverInstanceID)
	}
	if status.Service != "ONLINE" {
		t.Errorf("service = %q, want ONLINE", status.Service)
	}
}

func TestBroadcastLogFanOut(t *testing.T) {
	handler, wsURL := newTestWebSocketServer(t, nil, &common.WebSocketConfig{})

	const numSubscribers = 3
	conns := make([]*websocket.Conn, numSubscribers)
	for i := range conns {
		conns[i] = dialWebSocket(t, wsURL)
	}
	waitForClients(t, handler, numSubscribers)

	// Sequential sends from one goroutine keep per-connection order
	handler.SendLog("INFO", "first line")
	handler.SendLog("WARN", "second line")

	for i, conn := range conns {
		first := readMessageOfType(t, conn, "log")
		var entry LogEntry
		decodePayload(t, first, &entry)
		if entry.Message != "first line" || entry.Level != "info" {
			t.Errorf("subscriber %d first entry = %+v", i, entry)
		}

		second := readMessageOfType(t, conn, "log")
		decodePayload(t, second, &entry)
		if entry.Message != "second line" || entry.Level != "warn" {
			t.Errorf("subscriber %d second entry = %+v", i, entry)
		}
	}
}

func TestWebSocketClientCleanup(t *testing.T) {
	handler, wsURL := newTestWebSocketServer(t, nil, &common.WebSocketConfig{})

	conn := dialWebSocket(t, wsURL)
	waitForClients(t, handler, 1)

	conn.Close()
	waitForClients(t, handler, 0)

	handler.mu.RLock()
	remainingMutexes := len(handler.clientMutex)
	handler.mu.RUnlock()
	if remainingMutexes != 0 {
		t.Errorf("Handler still has %d client mutexes after cleanup", remainingMutexes)
	}
}

func TestIngestProgressBroadcast(t *testing.T) {
	eventService := events.NewService(arbor.NewLogger())
	handler, wsURL := newTestWebSocketServer(t, eventService, &common.WebSocketConfig{})
	conn := dialWebSocket(t, wsURL)
	waitForClients(t, handler, 1)

	err := eventService.PublishSync(context.Background(), interfaces.Event{
		Type: interfaces.EventIngestProgress,
		Payload: map[string]interface{}{
			"run_id":    "run_1",
			"source":    "directory",
			"file":      "notes.md",
			"documents": 2,
			"chunks":    5,
			"failures":  0,
			"timestamp": time.Now(),
		},
	})
	if err != nil {
		t.Fatalf("PublishSync failed: %v", err)
	}

	msg := readMessageOfType(t, conn, "ingest_progress")

	var progress IngestProgressUpdate
	decodePayload(t, msg, &progress)
	if progress.RunID != "run_1" {
		t.Errorf("run_id = %q, want run_1", progress.RunID)
	}
	if progress.File != "notes.md" {
		t.Errorf("file = %q, want notes.md", progress.File)
	}
	if progress.Chunks != 5 {
		t.Errorf("chunks = %d, want 5", progress.Chunks)
	}
}

func TestIngestProgressThrottled(t *testing.T) {
	eventService := events.NewService(arbor.NewLogger())
	handler, wsURL := newTestWebSocketServer(t, eventService, &common.WebSocketConfig{
		ThrottleIntervals: map[string]string{"ingest_progress": "1h"},
	})
	conn := dialWebSocket(t, wsURL)
	waitForClients(t, handler, 1)

	publish := func(file string) {
		t.Helper()
		err := eventService.PublishSync(context.Background(), interfaces.Event{
			Type: interfaces.EventIngestProgress,
			Payload: map[string]interface{}{
				"run_id": "run_1",
				"source": "directory",
				"file":   file,
			},
		})
		if err != nil {
			t.Fatalf("PublishSync failed: %v", err)
		}
	}

	publish("one.md")
	publish("two.md")

	// The sentinel log frame arrives after both publishes. With the second
	// progress event throttled, the reader sees exactly one progress frame
	// before the sentinel.
	handler.SendLog("INFO", "sentinel")

	msg := readMessageOfType(t, conn, "ingest_progress")
	var progress IngestProgressUpdate
	decodePayload(t, msg, &progress)
	if progress.File != "one.md" {
		t.Errorf("file = %q, want one.md", progress.File)
	}

	next := readMessageOfType(t, conn, "log")
	var entry LogEntry
	decodePayload(t, next, &entry)
	if entry.Message != "sentinel" {
		t.Errorf("message after throttled progress = %q, want sentinel", entry.Message)
	}
}

func TestEventWhitelistFiltersBroadcasts(t *testing.T) {
	eventService := events.NewService(arbor.NewLogger())
	handler, wsURL := newTestWebSocketServer(t, eventService, &common.WebSocketConfig{
		AllowedEvents: []string{"ingest_completed"},
	})
	conn := dialWebSocket(t, wsURL)
	waitForClients(t, handler, 1)

	err := eventService.PublishSync(context.Background(), interfaces.Event{
		Type:    interfaces.EventIngestProgress,
		Payload: map[string]interface{}{"run_id": "run_1", "source": "directory"},
	})
	if err != nil {
		t.Fatalf("PublishSync failed: %v", err)
	}
	err = eventService.PublishSync(context.Background(), interfaces.Event{
		Type:    interfaces.EventIngestCompleted,
		Payload: map[string]interface{}{"run_id": "run_1", "source": "directory", "documents": 3},
	})
	if err != nil {
		t.Fatalf("PublishSync failed: %v", err)
	}

	// The progress event is not on the whitelist, so the completed event is
	// the first non-status frame
	msg := readMessageOfType(t, conn, "ingest_completed")
	payload, ok := msg.Payload.(map[string]interface{})
	if !ok {
		t.Fatalf("Payload is %T, want map", msg.Payload)
	}
	if getInt(payload, "documents") != 3 {
		t.Errorf("documents = %v, want 3", payload["documents"])
	}
}

func TestWriterLevelFilter(t *testing.T) {
	handler, wsURL := newTestWebSocketServer(t, nil, &common.WebSocketConfig{})
	conn := dialWebSocket(t, wsURL)
	waitForClients(t, handler, 1)

	w := &WebSocketWriter{
		handler:         handler,
		minLevel:        parseLogLevel("warn"),
		excludePatterns: defaultExcludePatterns,
	}

	if err := w.processEntry(models.LogEvent{Level: plog.InfoLevel, Timestamp: time.Now(), Message: "below threshold"}); err != nil {
		t.Fatalf("processEntry returned error: %v", err)
	}
	if err := w.processEntry(models.LogEvent{Level: plog.ErrorLevel, Timestamp: time.Now(), Message: "loud failure"}); err != nil {
		t.Fatalf("processEntry returned error: %v", err)
	}

	msg := readMessageOfType(t, conn, "log")
	var entry LogEntry
	decodePayload(t, msg, &entry)
	if entry.Message != "loud failure" {
		t.Errorf("first streamed line = %q, want the error entry", entry.Message)
	}
	if entry.Level != "error" {
		t.Errorf("level = %q, want error", entry.Level)
	}
}

func TestWriterExcludePatterns(t *testing.T) {
	handler, wsURL := newTestWebSocketServer(t, nil, &common.WebSocketConfig{})
	conn := dialWebSocket(t, wsURL)
	waitForClients(t, handler, 1)

	w := &WebSocketWriter{
		handler:         handler,
		minLevel:        parseLogLevel("debug"),
		excludePatterns: []string{"HTTP request"},
	}

	if err := w.processEntry(models.LogEvent{Level: plog.InfoLevel, Timestamp: time.Now(), Message: "HTTP request completed"}); err != nil {
		t.Fatalf("processEntry returned error: %v", err)
	}
	if err := w.processEntry(models.LogEvent{Level: plog.InfoLevel, Timestamp: time.Now(), Message: "Document indexed: guide.md"}); err != nil {
		t.Fatalf("processEntry returned error: %v", err)
	}

	msg := readMessageOfType(t, conn, "log")
	var entry LogEntry
	decodePayload(t, msg, &entry)
	if entry.Message != "Document indexed: guide.md" {
		t.Errorf("first streamed line = %q, want the unexcluded entry", entry.Message)
	}
}

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"error", "error"},
		{"WARN", "warn"},
		{"warning", "warn"},
		{"info", "info"},
		{"debug", "debug"},
		{"", "info"},
		{"bogus", "info"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got := mapLevel(parseLogLevel(tt.input))
			if got != tt.want {
				t.Errorf("parseLogLevel(%q) maps to %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestConcurrentBroadcastAndDisconnect(t *testing.T) {
	handler, wsURL := newTestWebSocketServer(t, nil, &common.WebSocketConfig{})

	conns := make([]*websocket.Conn, 4)
	for i := range conns {
		conns[i] = dialWebSocket(t, wsURL)
	}
	waitForClients(t, handler, len(conns))

	// Broadcasts racing disconnects must not panic or deadlock
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 50; i++ {
			handler.SendLog("INFO", "racing line")
		}
	}()
	go func() {
		defer wg.Done()
		for _, conn := range conns[:2] {
			conn.Close()
			time.Sleep(5 * time.Millisecond)
		}
	}()
	wg.Wait()

	waitForClients(t, handler, 2)
}
