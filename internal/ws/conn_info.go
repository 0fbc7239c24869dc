package ws

import (
	"time"

	"github.com/google/uuid"
)

// ConnInfo is the immutable per-connection context captured at handshake
// time and attached to every event about the connection.
type ConnInfo struct {
	ConnID      string
	UserID      uuid.UUID
	DeviceID    string
	IP          string
	RequestID   string
	TraceID     string
	ConnectedAt time.Time
}
