// Package realtime is the client side of the realtime transport: one channel
// per topic multiplexing row-insert notifications, ephemeral broadcasts and
// presence snapshots over a websocket connection.
package realtime

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"chat-client/internal/models"
)

// Frame kinds exchanged between client and relay.
const (
	KindSubscribed    = "subscribed"
	KindInsert        = "insert"
	KindBroadcast     = "broadcast"
	KindPresenceState = "presence_state"
	KindTrack         = "track"
	KindUntrack       = "untrack"
)

// Frame is the single wire schema for every channel event. Unknown fields
// are rejected so shape drift between client and relay fails loudly.
type Frame struct {
	Topic   string          `json:"topic"`
	Kind    string          `json:"kind"`
	Table   string          `json:"table,omitempty"`
	Event   string          `json:"event,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

var ErrBadFrame = errors.New("malformed frame")

// ParseFrame decodes a wire frame strictly.
func ParseFrame(data []byte) (Frame, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()

	var f Frame
	if err := dec.Decode(&f); err != nil {
		return Frame{}, fmt.Errorf("%w: %v", ErrBadFrame, err)
	}
	if f.Kind == "" {
		return Frame{}, fmt.Errorf("%w: missing kind", ErrBadFrame)
	}
	return f, nil
}

// TopicConversation names the channel scoped to one conversation.
func TopicConversation(id uuid.UUID) string {
	return "conversation:" + id.String()
}

// TopicUser names a user's personal channel, used for membership-change
// notifications.
func TopicUser(id uuid.UUID) string {
	return "user:" + id.String()
}

// Channel is one subscription to a topic. Handlers must be registered before
// Subscribe; the subscription snapshots them so later registrations cannot
// race the read loop.
type Channel interface {
	// OnInsert registers a handler for row-insert notifications on table.
	OnInsert(table string, fn func(row json.RawMessage))

	// OnBroadcast registers a handler for ephemeral broadcasts of event.
	OnBroadcast(event string, fn func(payload json.RawMessage))

	// OnPresenceSync registers a handler for full presence snapshots.
	OnPresenceSync(fn func(entries []models.PresenceEntry))

	// Subscribe opens the connection and starts delivering events.
	Subscribe(ctx context.Context) error

	// Track registers this client's presence entry on the channel.
	Track(ctx context.Context, entry models.PresenceEntry) error

	// Untrack removes this client's presence entry.
	Untrack(ctx context.Context) error

	// Broadcast sends an ephemeral event to the channel's other subscribers.
	Broadcast(ctx context.Context, event string, payload any) error

	// Close releases the connection. Safe to call more than once.
	Close() error
}

// Dialer creates channels against the realtime backend.
type Dialer interface {
	Channel(topic string) Channel
}
