package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"golang.org/x/time/rate"

	"chat-client/internal/middleware"
	"chat-client/internal/models"
	"chat-client/internal/observability"
	"chat-client/internal/realtime"
	"chat-client/internal/store"
)

// Handler upgrades realtime subscriptions and pumps frames between the
// connection and the hub. Routes serving it must sit behind
// middleware.AuthMiddleware, which establishes the caller's identity.
type Handler struct {
	hub   *Hub
	store store.Store
	log   zerolog.Logger

	broadcastRPS   float64
	broadcastBurst int
}

// NewHandler constructs a Handler.
func NewHandler(hub *Hub, st store.Store, rps float64, burst int, log zerolog.Logger) *Handler {
	return &Handler{
		hub:            hub,
		store:          st,
		log:            log,
		broadcastRPS:   rps,
		broadcastBurst: burst,
	}
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Handle checks topic access for the authenticated subscriber and hands the
// connection to the hub.
func (h *Handler) Handle(c *gin.Context) {
	topic := c.Param("topic")
	kind, scopeID, err := parseTopic(topic)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid topic"})
		return
	}

	ctx, span := otel.Tracer("chat-client/relay").Start(c.Request.Context(), "ws.handshake")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	userID, err := uuid.Parse(middleware.UserID(c))
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "no authenticated identity"})
		return
	}

	switch kind {
	case "conversation":
		member, err := h.store.IsParticipant(ctx, scopeID, userID)
		if err != nil || !member {
			c.JSON(http.StatusForbidden, gin.H{"error": "not authorized for conversation"})
			return
		}
	case "user":
		if scopeID != userID {
			c.JSON(http.StatusForbidden, gin.H{"error": "not your channel"})
			return
		}
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}

	info := ConnInfo{
		ConnID:      newConnID(),
		UserID:      userID,
		DeviceID:    observability.DeviceIDFromRequest(c.Request),
		IP:          observability.IPFromRequest(c.Request),
		RequestID:   observability.RequestIDFromRequest(c.Request),
		TraceID:     span.SpanContext().TraceID().String(),
		ConnectedAt: time.Now(),
	}
	client := NewClient(conn, info, rate.NewLimiter(rate.Limit(h.broadcastRPS), h.broadcastBurst))

	h.hub.Join(topic, client)
	if err := client.send(realtime.Frame{Topic: topic, Kind: realtime.KindSubscribed}); err != nil {
		h.hub.Leave(topic, client)
		conn.Close()
		return
	}
	h.hub.SendPresence(topic, client)

	observability.IncWSActive(kind)
	observability.IncWSEvent(kind, "ws_connect")
	h.publishLifecycle(ctx, kind, topic, info, "ws_connect", "")

	go h.readPump(ctx, kind, topic, client)
}

func (h *Handler) readPump(ctx context.Context, kind, topic string, client *Client) {
	var closeReason string
	defer func() {
		h.hub.Untrack(topic, client)
		h.hub.Leave(topic, client)
		client.conn.Close()
		observability.DecWSActive(kind)
		observability.IncWSEvent(kind, "ws_disconnect")
		h.publishLifecycle(ctx, kind, topic, client.info, "ws_disconnect", closeReason)
	}()

	for {
		_, data, err := client.conn.ReadMessage()
		if err != nil {
			closeReason = err.Error()
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				observability.IncWSEvent(kind, "ws_error")
			}
			return
		}

		frame, err := realtime.ParseFrame(data)
		if err != nil {
			observability.IncFrameRejected()
			h.log.Warn().Err(err).Str("topic", topic).Msg("rejected client frame")
			continue
		}

		switch frame.Kind {
		case realtime.KindTrack:
			var entry models.PresenceEntry
			if err := json.Unmarshal(frame.Payload, &entry); err != nil || entry.UserID != client.info.UserID {
				observability.IncFrameRejected()
				continue
			}
			h.hub.Track(topic, client, entry)
		case realtime.KindUntrack:
			h.hub.Untrack(topic, client)
		case realtime.KindBroadcast:
			if !client.limiter.Allow() {
				observability.IncBroadcastDropped()
				continue
			}
			h.hub.Relay(topic, client, frame.Event, frame.Payload)
		default:
			observability.IncFrameRejected()
		}
	}
}

func (h *Handler) publishLifecycle(ctx context.Context, kind, topic string, info ConnInfo, event, reason string) {
	_ = observability.PublishEvent(ctx, routingKey(kind), observability.EventEnvelope{
		EventType: "ws_events",
		EventName: event,
		Payload: map[string]any{
			"ws": map[string]any{
				"kind":        kind,
				"topic":       topic,
				"event":       event,
				"conn_id":     info.ConnID,
				"duration_ms": time.Since(info.ConnectedAt).Milliseconds(),
				"reason":      reason,
			},
			"identity": map[string]any{
				"user_id":   info.UserID.String(),
				"device_id": info.DeviceID,
				"ip":        info.IP,
			},
		},
	}, observability.BuildHeaders(info.RequestID, info.TraceID))
}
