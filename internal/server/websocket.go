package server

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/ternarybob/arbor"

	"github.com/formflow/automation/internal/interfaces"
	"github.com/formflow/automation/internal/models"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// WebSocketHandler relays scheduler progress events to connected UI clients
// and replays recent log lines to newly-connected ones.
type WebSocketHandler struct {
	logger      arbor.ILogger
	events      interfaces.EventService
	clients     map[*websocket.Conn]bool
	clientMutex map[*websocket.Conn]*sync.Mutex
	mu          sync.RWMutex
}

func NewWebSocketHandler(events interfaces.EventService, logger arbor.ILogger) *WebSocketHandler {
	h := &WebSocketHandler{
		logger:      logger,
		events:      events,
		clients:     make(map[*websocket.Conn]bool),
		clientMutex: make(map[*websocket.Conn]*sync.Mutex),
	}
	if events != nil {
		h.subscribeToJobProgress()
	}
	return h
}

// HandleWebSocket upgrades the connection, replays recent logs, and keeps
// the connection open until the client disconnects.
func (h *WebSocketHandler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to upgrade websocket connection")
		return
	}

	h.mu.Lock()
	h.clients[conn] = true
	h.clientMutex[conn] = &sync.Mutex{}
	h.mu.Unlock()

	h.logger.Info().Msgf("websocket client connected (total: %d)", len(h.clients))

	h.replayRecentLogs(conn)

	defer func() {
		h.mu.Lock()
		delete(h.clients, conn)
		delete(h.clientMutex, conn)
		remaining := len(h.clients)
		h.mu.Unlock()

		conn.Close()
		h.logger.Info().Msgf("websocket client disconnected (remaining: %d)", remaining)
	}()

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.logger.Warn().Err(err).Msg("websocket read error")
			}
			break
		}
	}
}

// broadcastProgress fans a progress event out to every connected client.
func (h *WebSocketHandler) broadcastProgress(ev models.ProgressEvent) {
	data, err := json.Marshal(ev)
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to marshal progress event")
		return
	}

	h.mu.RLock()
	conns := make([]*websocket.Conn, 0, len(h.clients))
	mutexes := make([]*sync.Mutex, 0, len(h.clients))
	for conn := range h.clients {
		conns = append(conns, conn)
		mutexes = append(mutexes, h.clientMutex[conn])
	}
	h.mu.RUnlock()

	for i, conn := range conns {
		mutex := mutexes[i]
		mutex.Lock()
		err := conn.WriteMessage(websocket.TextMessage, data)
		mutex.Unlock()
		if err != nil {
			h.logger.Warn().Err(err).Msg("failed to send progress event to client")
		}
	}
}

func (h *WebSocketHandler) subscribeToJobProgress() {
	h.events.Subscribe(interfaces.EventJobProgress, func(ctx context.Context, event interfaces.Event) error {
		ev, ok := event.Payload.(models.ProgressEvent)
		if !ok {
			h.logger.Warn().Msg("job progress event payload has unexpected type")
			return nil
		}
		h.broadcastProgress(ev)
		return nil
	})
}

// logEntry mirrors the JSON shape the UI expects for replayed log lines.
type logEntry struct {
	Timestamp string `json:"timestamp"`
	Level     string `json:"level"`
	Message   string `json:"message"`
}

// replayRecentLogs sends the arbor memory writer's buffered lines to a
// client immediately after it connects, so the UI has history without
// waiting for the next log line to be written.
func (h *WebSocketHandler) replayRecentLogs(conn *websocket.Conn) {
	entries := recentLogEntries(100)
	if len(entries) == 0 {
		return
	}

	data, err := json.Marshal(map[string]interface{}{"type": "log_history", "logs": entries})
	if err != nil {
		return
	}

	h.mu.RLock()
	mutex := h.clientMutex[conn]
	h.mu.RUnlock()
	if mutex == nil {
		return
	}
	mutex.Lock()
	conn.WriteMessage(websocket.TextMessage, data)
	mutex.Unlock()
}

// GetRecentLogsHandler serves the same buffered log lines over plain HTTP,
// for clients that poll instead of holding a websocket open.
func (h *WebSocketHandler) GetRecentLogsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	logs := recentLogEntries(100)
	writeJSON(w, http.StatusOK, map[string]interface{}{"logs": logs, "count": len(logs)})
}

// recentLogEntries pulls and parses buffered lines out of arbor's memory
// writer. Format: "LEVEL|Mon  2 15:04:05|message key=value key2=value2".
func recentLogEntries(limit int) []logEntry {
	memWriter := arbor.GetRegisteredMemoryWriter(arbor.WRITER_MEMORY)
	if memWriter == nil {
		return nil
	}
	raw, err := memWriter.GetEntriesWithLimit(limit)
	if err != nil || len(raw) == 0 {
		return nil
	}

	entries := make([]logEntry, 0, len(raw))
	for _, line := range raw {
		if strings.Contains(line, "websocket client connected") ||
			strings.Contains(line, "websocket client disconnected") {
			continue
		}
		parts := strings.SplitN(line, "|", 3)
		if len(parts) != 3 {
			continue
		}
		level := "info"
		switch strings.TrimSpace(parts[0]) {
		case "ERR", "ERROR", "FATAL", "PANIC":
			level = "error"
		case "WRN", "WARN":
			level = "warn"
		}

		timestamp := time.Now().Format("15:04:05")
		if fields := strings.Fields(strings.TrimSpace(parts[1])); len(fields) >= 3 {
			timestamp = fields[len(fields)-1]
		}

		entries = append(entries, logEntry{
			Timestamp: timestamp,
			Level:     level,
			Message:   strings.TrimSpace(parts[2]),
		})
	}
	return entries
}
