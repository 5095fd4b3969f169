package ws

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"reveal-service/internal/observability"
)

const (
	KindGroups   = "groups"
	KindMessages = "messages"
)

type room struct {
	kind       string
	resourceID string
}

// Hub tracks open websocket connections per stream kind and resource.
type Hub struct {
	mu    sync.RWMutex
	rooms map[room]map[*websocket.Conn]ConnInfo
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{rooms: make(map[room]map[*websocket.Conn]ConnInfo)}
}

// Add registers a connection.
func (h *Hub) Add(kind, resourceID string, conn *websocket.Conn, info ConnInfo) {
	h.mu.Lock()
	defer h.mu.Unlock()
	key := room{kind, resourceID}
	if _, ok := h.rooms[key]; !ok {
		h.rooms[key] = make(map[*websocket.Conn]ConnInfo)
	}
	h.rooms[key][conn] = info
}

// Remove unregisters a connection.
func (h *Hub) Remove(kind, resourceID string, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	key := room{kind, resourceID}
	if conns, ok := h.rooms[key]; ok {
		delete(conns, conn)
		if len(conns) == 0 {
			delete(h.rooms, key)
		}
	}
}

// Count returns the number of open connections for kind and resourceID.
func (h *Hub) Count(kind, resourceID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[room{kind, resourceID}])
}

// CloseAll sends a going-away close frame to every connection. Their read
// loops then unwind and unsubscribe.
func (h *Hub) CloseAll() {
	h.mu.RLock()
	conns := make([]*websocket.Conn, 0)
	for _, members := range h.rooms {
		for conn := range members {
			conns = append(conns, conn)
		}
	}
	h.mu.RUnlock()

	deadline := time.Now().Add(time.Second)
	msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down")
	for _, conn := range conns {
		if conn == nil {
			continue
		}
		_ = conn.WriteControl(websocket.CloseMessage, msg, deadline)
		_ = conn.Close()
	}
}

func publishWSEvent(ctx context.Context, kind, resourceID, event string, info ConnInfo, reason string) {
	duration := int64(0)
	if event != "ws_connect" {
		duration = time.Since(info.ConnectedAt).Milliseconds()
	}
	payload := map[string]interface{}{
		"ws": map[string]interface{}{
			"kind":        kind,
			"resource_id": resourceID,
			"event":       event,
			"conn_id":     info.ConnID,
			"duration_ms": duration,
			"reason":      reason,
		},
		"identity": map[string]interface{}{
			"user_id": info.UserID,
			"ip":      info.IP,
		},
	}

	observability.IncWSEvent(kind, event)
	_ = observability.PublishEvent(ctx, "ws_events."+kind, observability.EventEnvelope{
		EventType: "ws_events",
		EventName: event,
		Payload:   payload,
	}, observability.BuildHeaders(info.RequestID, info.TraceID))
}
