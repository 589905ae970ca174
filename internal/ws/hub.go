package ws

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"messaging-service/internal/models"
	"messaging-service/internal/observability"
)

// connEntry pairs a connection's metadata with its write lock. The websocket
// library allows only one concurrent writer per connection, and Push can run
// from both the HTTP send path and the fan-out consumer goroutine.
type connEntry struct {
	info    ConnInfo
	writeMu sync.Mutex
}

// Hub maps authenticated user ids to their live websocket connections.
// A user may hold several connections (multiple tabs or devices); a user
// with none is simply absent from the registry.
type Hub struct {
	conns map[int64]map[*websocket.Conn]*connEntry
	mu    sync.RWMutex
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{
		conns: make(map[int64]map[*websocket.Conn]*connEntry),
	}
}

// Register adds a connection for the user.
func (h *Hub) Register(userID int64, conn *websocket.Conn, info ConnInfo) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.conns[userID]; !ok {
		h.conns[userID] = make(map[*websocket.Conn]*connEntry)
	}
	h.conns[userID][conn] = &connEntry{info: info}
}

// Unregister removes a single connection for the user.
func (h *Hub) Unregister(userID int64, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if conns, ok := h.conns[userID]; ok {
		delete(conns, conn)
		if len(conns) == 0 {
			delete(h.conns, userID)
		}
	}
}

// ConnectionCount returns the number of live connections for the user.
func (h *Hub) ConnectionCount(userID int64) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns[userID])
}

// Push delivers a persisted message to the recipient's connections only.
// Delivery is best effort: with no registered connection the push is dropped
// and the recipient catches up from the store on the next fetch.
func (h *Hub) Push(msg models.MessageView) {
	h.mu.RLock()
	conns := make(map[*websocket.Conn]*connEntry, len(h.conns[msg.To.ID]))
	for conn, entry := range h.conns[msg.To.ID] {
		conns[conn] = entry
	}
	h.mu.RUnlock()

	if len(conns) == 0 {
		observability.IncWSEvent("presence", "push_dropped")
		return
	}

	event := models.MessageEvent{Type: "message", Message: &msg}
	payload, _ := json.Marshal(event)
	for conn, entry := range conns {
		entry.writeMu.Lock()
		err := conn.WriteMessage(websocket.TextMessage, payload)
		entry.writeMu.Unlock()
		if err != nil {
			log.Printf("websocket write error: %v", err)
			conn.Close()
			h.Unregister(msg.To.ID, conn)
			h.publishWSError(entry.info, err)
			continue
		}
		observability.IncWSEvent("presence", "push_delivered")
	}
}

func (h *Hub) publishWSError(info ConnInfo, err error) {
	payload := map[string]interface{}{
		"ws": map[string]interface{}{
			"kind":        "presence",
			"event":       "ws_error",
			"conn_id":     info.ConnID,
			"duration_ms": time.Since(info.ConnectedAt).Milliseconds(),
			"reason":      err.Error(),
		},
		"identity": map[string]interface{}{
			"user_id":   info.UserID,
			"device_id": info.DeviceID,
			"ip":        info.IP,
		},
	}

	headers := observability.BuildHeaders(info.RequestID, info.TraceID)
	_ = observability.PublishEvent(context.Background(), "ws_events.presence", observability.EventEnvelope{
		EventType: "ws_events",
		EventName: "ws_error",
		Payload:   payload,
	}, headers)
	observability.IncWSEvent("presence", "ws_error")
}
