package ws

import "time"

// ConnInfo describes one open websocket for lifecycle events.
type ConnInfo struct {
	ConnID      string
	UserID      string
	IP          string
	RequestID   string
	TraceID     string
	ConnectedAt time.Time
}
