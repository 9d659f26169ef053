package handlers

import (
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	plog "github.com/phuslu/log"
	"github.com/ternarybob/arbor"
	"golang.org/x/time/rate"

	"github.com/ternarybob/responsum/internal/common"
	"github.com/ternarybob/responsum/internal/interfaces"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for local development
	},
}

// WebSocketHandler pushes status heartbeats, ingest progress and a filtered
// log stream to connected dashboard clients.
type WebSocketHandler struct {
	logger        arbor.ILogger
	clients       map[*websocket.Conn]bool
	clientMutex   map[*websocket.Conn]*sync.Mutex
	mu            sync.RWMutex
	eventService  interfaces.EventService
	documents     interfaces.DocumentStorage
	chunks        interfaces.ChunkStorage
	logWriter     *WebSocketWriter
	throttlers    map[string]*rate.Limiter // Rate limiters for high-frequency events
	allowedEvents map[string]bool          // Whitelist of events to broadcast (empty = allow all)
	// Unique ID generated on startup - clients use it to detect server restart
	serverInstanceID string
}

func NewWebSocketHandler(eventService interfaces.EventService, storage interfaces.StorageManager, logger arbor.ILogger, config *common.WebSocketConfig) *WebSocketHandler {
	h := &WebSocketHandler{
		logger:           logger,
		clients:          make(map[*websocket.Conn]bool),
		clientMutex:      make(map[*websocket.Conn]*sync.Mutex),
		eventService:     eventService,
		serverInstanceID: uuid.New().String(),
	}

	if storage != nil {
		h.documents = storage.DocumentStorage()
		h.chunks = storage.ChunkStorage()
	}

	logger.Info().Str("server_instance_id", h.serverInstanceID).Msg("WebSocket handler initialized with server instance ID")

	// Initialize allowedEvents map (whitelist pattern)
	// Empty list means allow all events
	h.allowedEvents = make(map[string]bool)
	if config != nil && len(config.AllowedEvents) > 0 {
		for _, eventType := range config.AllowedEvents {
			h.allowedEvents[eventType] = true
		}
		logger.Debug().
			Int("allowed_events", len(h.allowedEvents)).
			Msg("Initialized event whitelist for WebSocketHandler")
	}

	// Initialize throttlers from config (only if explicitly configured)
	// An event type with no throttler broadcasts unthrottled
	h.throttlers = make(map[string]*rate.Limiter)
	if config != nil && len(config.ThrottleIntervals) > 0 {
		for eventType, intervalStr := range config.ThrottleIntervals {
			duration, err := time.ParseDuration(intervalStr)
			if err != nil {
				logger.Warn().
					Err(err).
					Str("event_type", eventType).
					Str("interval", intervalStr).
					Msg("Failed to parse throttle interval - skipping throttler")
				continue
			}
			h.throttlers[eventType] = rate.NewLimiter(rate.Every(duration), 1)
			logger.Debug().
				Str("event_type", eventType).
				Str("interval", intervalStr).
				Msg("Throttler initialized for event type")
		}
	}

	if eventService != nil {
		h.SubscribeToEvents()
	}

	return h
}

// SetLogWriter attaches the arbor bridge that ships log lines to clients
func (h *WebSocketHandler) SetLogWriter(w *WebSocketWriter) {
	h.logWriter = w
}

// Message types
type WSMessage struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

type StatusUpdate struct {
	Service          string `json:"service"`
	Status           string `json:"status"`
	Database         string `json:"database"`
	Documents        int    `json:"documents"`
	Chunks           int    `json:"chunks"`
	EmbeddedChunks   int    `json:"embeddedChunks"`
	ServerInstanceID string `json:"serverInstanceId"` // Unique ID per server startup - clients clear state on change
}

// LogEntry is one log line shipped to connected clients
type LogEntry struct {
	Timestamp string `json:"timestamp"`
	Level     string `json:"level"`
	Message   string `json:"message"`
}

// IngestProgressUpdate mirrors the ingest_progress event payload for clients
type IngestProgressUpdate struct {
	RunID     string    `json:"run_id"`
	Source    string    `json:"source"`
	File      string    `json:"file,omitempty"`
	Documents int       `json:"documents"`
	Chunks    int       `json:"chunks"`
	Failures  int       `json:"failures"`
	Timestamp time.Time `json:"timestamp"`
}

// HandleWebSocket handles WebSocket connections
func (h *WebSocketHandler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to upgrade WebSocket connection")
		return
	}

	h.mu.Lock()
	h.clients[conn] = true
	h.clientMutex[conn] = &sync.Mutex{}
	h.mu.Unlock()

	h.logger.Debug().Msgf("WebSocket client connected (total: %d)", len(h.clients))

	// Send initial status
	h.sendStatus(conn)

	// Handle client disconnection
	defer func() {
		h.mu.Lock()
		delete(h.clients, conn)
		delete(h.clientMutex, conn)
		clientCount := len(h.clients)
		h.mu.Unlock()

		conn.Close()
		h.logger.Debug().Msgf("WebSocket client disconnected (remaining: %d)", clientCount)
	}()

	// Read messages from client (keep connection alive)
	for {
		_, _, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.logger.Warn().Err(err).Msg("WebSocket error")
			}
			break
		}
	}
}

// buildStatus assembles the current heartbeat payload. Count failures leave
// the field at zero rather than blocking the heartbeat.
func (h *WebSocketHandler) buildStatus() StatusUpdate {
	status := StatusUpdate{
		Service:          "ONLINE",
		Status:           "ONLINE",
		Database:         "CONNECTED",
		ServerInstanceID: h.serverInstanceID,
	}

	if h.documents != nil {
		if count, err := h.documents.CountDocuments(); err == nil {
			status.Documents = count
		}
	}
	if h.chunks != nil {
		if count, err := h.chunks.CountChunks(); err == nil {
			status.Chunks = count
		}
		if count, err := h.chunks.CountEmbedded(); err == nil {
			status.EmbeddedChunks = count
		}
	}

	return status
}

// sendStatus sends current status to a specific client
func (h *WebSocketHandler) sendStatus(conn *websocket.Conn) {
	msg := WSMessage{
		Type:    "status",
		Payload: h.buildStatus(),
	}

	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to marshal initial status")
		return
	}

	h.mu.RLock()
	mutex := h.clientMutex[conn]
	h.mu.RUnlock()

	if mutex != nil {
		mutex.Lock()
		err := conn.WriteMessage(websocket.TextMessage, data)
		mutex.Unlock()

		if err != nil {
			h.logger.Warn().Err(err).Msg("Failed to send initial status")
		}
	}
}

// StartStatusBroadcaster starts periodic status updates
func (h *WebSocketHandler) StartStatusBroadcaster() {
	ticker := time.NewTicker(5 * time.Second)

	go func() {
		for range ticker.C {
			h.mu.RLock()
			clientCount := len(h.clients)
			h.mu.RUnlock()

			if clientCount > 0 {
				h.BroadcastStatus(h.buildStatus())
			}
		}
	}()
}

// BroadcastStatus sends status updates to all connected clients
func (h *WebSocketHandler) BroadcastStatus(status StatusUpdate) {
	h.broadcastMessage("status", status)
}

// BroadcastLog sends a log line to all connected clients
func (h *WebSocketHandler) BroadcastLog(entry LogEntry) {
	h.broadcastMessage("log", entry)
}

// SendLog broadcasts a single log line stamped with the current time
func (h *WebSocketHandler) SendLog(level, message string) {
	h.BroadcastLog(LogEntry{
		Timestamp: time.Now().Format("15:04:05"),
		Level:     strings.ToLower(level),
		Message:   message,
	})
}

// BroadcastIngestProgress sends ingest progress updates to all connected clients
func (h *WebSocketHandler) BroadcastIngestProgress(progress IngestProgressUpdate) {
	h.broadcastMessage("ingest_progress", progress)
}

// broadcastMessage marshals a message once and writes it to every client
func (h *WebSocketHandler) broadcastMessage(msgType string, payload interface{}) {
	msg := WSMessage{
		Type:    msgType,
		Payload: payload,
	}

	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error().Err(err).Msgf("Failed to marshal %s message", msgType)
		return
	}

	h.mu.RLock()
	clients := make([]*websocket.Conn, 0, len(h.clients))
	mutexes := make([]*sync.Mutex, 0, len(h.clients))
	for conn := range h.clients {
		clients = append(clients, conn)
		mutexes = append(mutexes, h.clientMutex[conn])
	}
	h.mu.RUnlock()

	for i, conn := range clients {
		mutex := mutexes[i]
		mutex.Lock()
		err := conn.WriteMessage(websocket.TextMessage, data)
		mutex.Unlock()

		if err != nil {
			h.logger.Warn().Err(err).Msgf("Failed to send %s to client", msgType)
		}
	}
}

// shouldBroadcast applies the event whitelist and per-type rate limits
func (h *WebSocketHandler) shouldBroadcast(eventType string) bool {
	if len(h.allowedEvents) > 0 && !h.allowedEvents[eventType] {
		return false
	}
	if limiter, ok := h.throttlers[eventType]; ok && !limiter.Allow() {
		return false
	}
	return true
}

// streamLine pushes a rendered activity line into the log stream
func (h *WebSocketHandler) streamLine(level plog.Level, message string) {
	if h.logWriter != nil {
		h.logWriter.WriteEvent(level, message)
	}
}
