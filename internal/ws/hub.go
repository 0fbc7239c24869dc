// Package ws is the relay's fanout layer: rooms keyed by channel topic,
// per-room presence state and delivery of insert/broadcast/presence frames.
package ws

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"chat-client/internal/models"
	"chat-client/internal/observability"
	"chat-client/internal/realtime"
)

// Client is one subscribed connection.
type Client struct {
	conn    *websocket.Conn
	info    ConnInfo
	limiter *rate.Limiter

	writeMu sync.Mutex
}

// NewClient wraps an upgraded connection.
func NewClient(conn *websocket.Conn, info ConnInfo, limiter *rate.Limiter) *Client {
	return &Client{conn: conn, info: info, limiter: limiter}
}

func (c *Client) send(frame realtime.Frame) error {
	if c.conn == nil {
		return nil
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteJSON(frame)
}

// Hub maintains the active rooms and their presence state.
type Hub struct {
	log zerolog.Logger

	mu       sync.RWMutex
	rooms    map[string]map[*Client]struct{}
	presence map[string]map[*Client]models.PresenceEntry
}

// NewHub creates an empty hub.
func NewHub(log zerolog.Logger) *Hub {
	return &Hub{
		log:      log,
		rooms:    make(map[string]map[*Client]struct{}),
		presence: make(map[string]map[*Client]models.PresenceEntry),
	}
}

// Join registers a connection in a topic's room.
func (h *Hub) Join(topic string, c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.rooms[topic]; !ok {
		h.rooms[topic] = make(map[*Client]struct{})
	}
	h.rooms[topic][c] = struct{}{}
}

// Leave removes a connection from a topic's room. A tracked presence entry
// is dropped and the remaining subscribers receive a fresh snapshot.
func (h *Hub) Leave(topic string, c *Client) {
	h.mu.Lock()
	if conns, ok := h.rooms[topic]; ok {
		delete(conns, c)
		if len(conns) == 0 {
			delete(h.rooms, topic)
		}
	}
	hadPresence := false
	if entries, ok := h.presence[topic]; ok {
		if _, tracked := entries[c]; tracked {
			delete(entries, c)
			hadPresence = true
		}
		if len(entries) == 0 {
			delete(h.presence, topic)
		}
	}
	h.mu.Unlock()

	if hadPresence {
		h.broadcastPresence(topic)
	}
}

// Track stores a presence entry for the connection and pushes a snapshot to
// the whole room.
func (h *Hub) Track(topic string, c *Client, entry models.PresenceEntry) {
	h.mu.Lock()
	if _, ok := h.presence[topic]; !ok {
		h.presence[topic] = make(map[*Client]models.PresenceEntry)
	}
	h.presence[topic][c] = entry
	h.mu.Unlock()

	h.broadcastPresence(topic)
}

// Untrack removes the connection's presence entry.
func (h *Hub) Untrack(topic string, c *Client) {
	h.mu.Lock()
	removed := false
	if entries, ok := h.presence[topic]; ok {
		if _, tracked := entries[c]; tracked {
			delete(entries, c)
			removed = true
		}
		if len(entries) == 0 {
			delete(h.presence, topic)
		}
	}
	h.mu.Unlock()

	if removed {
		h.broadcastPresence(topic)
	}
}

// PresenceSnapshot returns the topic's presence entries in a stable order,
// oldest session first.
func (h *Hub) PresenceSnapshot(topic string) []models.PresenceEntry {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.presenceSnapshotLocked(topic)
}

func (h *Hub) presenceSnapshotLocked(topic string) []models.PresenceEntry {
	entries := make([]models.PresenceEntry, 0, len(h.presence[topic]))
	for _, entry := range h.presence[topic] {
		entries = append(entries, entry)
	}
	sort.Slice(entries, func(i, j int) bool {
		if !entries[i].OnlineSince.Equal(entries[j].OnlineSince) {
			return entries[i].OnlineSince.Before(entries[j].OnlineSince)
		}
		return entries[i].UserID.String() < entries[j].UserID.String()
	})
	return entries
}

func (h *Hub) broadcastPresence(topic string) {
	h.mu.RLock()
	entries := h.presenceSnapshotLocked(topic)
	conns := h.members(topic)
	h.mu.RUnlock()

	payload, _ := json.Marshal(entries)
	frame := realtime.Frame{Topic: topic, Kind: realtime.KindPresenceState, Payload: payload}
	for _, c := range conns {
		h.deliver(topic, c, frame)
	}
}

// SendPresence pushes the current presence snapshot to a single connection,
// used right after subscribe so late joiners see the room state.
func (h *Hub) SendPresence(topic string, c *Client) {
	entries := h.PresenceSnapshot(topic)
	payload, _ := json.Marshal(entries)
	h.deliver(topic, c, realtime.Frame{Topic: topic, Kind: realtime.KindPresenceState, Payload: payload})
}

// BroadcastInsert fans a row-insert notification out to every subscriber of
// the topic.
func (h *Hub) BroadcastInsert(topic, table string, row json.RawMessage) {
	h.mu.RLock()
	conns := h.members(topic)
	h.mu.RUnlock()

	frame := realtime.Frame{Topic: topic, Kind: realtime.KindInsert, Table: table, Payload: row}
	for _, c := range conns {
		h.deliver(topic, c, frame)
	}
}

// Relay forwards an ephemeral broadcast to every subscriber except the
// sender.
func (h *Hub) Relay(topic string, from *Client, event string, payload json.RawMessage) {
	h.mu.RLock()
	conns := h.members(topic)
	h.mu.RUnlock()

	frame := realtime.Frame{Topic: topic, Kind: realtime.KindBroadcast, Event: event, Payload: payload}
	for _, c := range conns {
		if c == from {
			continue
		}
		h.deliver(topic, c, frame)
	}
}

func (h *Hub) members(topic string) []*Client {
	conns := make([]*Client, 0, len(h.rooms[topic]))
	for c := range h.rooms[topic] {
		conns = append(conns, c)
	}
	return conns
}

// deliver writes one frame, evicting the connection on failure.
func (h *Hub) deliver(topic string, c *Client, frame realtime.Frame) {
	if err := c.send(frame); err != nil {
		h.log.Warn().Err(err).Str("topic", topic).Msg("websocket write failed")
		if c.conn != nil {
			c.conn.Close()
		}
		h.Leave(topic, c)
		h.publishConnError(topic, c, err)
	}
}

func (h *Hub) publishConnError(topic string, c *Client, err error) {
	kind, _, perr := parseTopic(topic)
	if perr != nil {
		kind = "conversation"
	}
	observability.IncWSEvent(kind, "ws_error")
	_ = observability.PublishEvent(context.Background(), routingKey(kind), observability.EventEnvelope{
		EventType: "ws_events",
		EventName: "ws_error",
		Payload: map[string]any{
			"ws": map[string]any{
				"kind":        kind,
				"topic":       topic,
				"event":       "ws_error",
				"conn_id":     c.info.ConnID,
				"duration_ms": time.Since(c.info.ConnectedAt).Milliseconds(),
				"reason":      err.Error(),
			},
			"identity": map[string]any{
				"user_id":   c.info.UserID.String(),
				"device_id": c.info.DeviceID,
				"ip":        c.info.IP,
			},
		},
	}, observability.BuildHeaders(c.info.RequestID, c.info.TraceID))
}
