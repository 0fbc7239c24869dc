package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"chat-client/internal/models"
	"chat-client/internal/observability"
)

const subscribeTimeout = 10 * time.Second

var (
	ErrNotSubscribed     = errors.New("channel not subscribed")
	ErrAlreadySubscribed = errors.New("channel already subscribed")
)

// WSDialer opens websocket channels against the realtime relay. Token is
// called at dial time so a refreshed session is picked up automatically.
type WSDialer struct {
	BaseURL string
	Token   func() string
	Log     zerolog.Logger
}

// NewWSDialer constructs a WSDialer.
func NewWSDialer(baseURL string, token func() string, log zerolog.Logger) *WSDialer {
	return &WSDialer{BaseURL: baseURL, Token: token, Log: log}
}

// Channel returns an unsubscribed channel for topic.
func (d *WSDialer) Channel(topic string) Channel {
	return &wsChannel{
		dialer:     d,
		topic:      topic,
		log:        d.Log.With().Str("topic", topic).Logger(),
		inserts:    map[string][]func(json.RawMessage){},
		broadcasts: map[string][]func(json.RawMessage){},
	}
}

// subscription is the immutable handler set captured at subscribe time, so
// the read loop never observes handlers registered later.
type subscription struct {
	inserts    map[string][]func(json.RawMessage)
	broadcasts map[string][]func(json.RawMessage)
	presence   []func([]models.PresenceEntry)
}

type wsChannel struct {
	dialer *WSDialer
	topic  string
	log    zerolog.Logger

	mu         sync.Mutex
	inserts    map[string][]func(json.RawMessage)
	broadcasts map[string][]func(json.RawMessage)
	presence   []func([]models.PresenceEntry)
	sub        *subscription
	conn       *websocket.Conn
	closed     bool

	writeMu sync.Mutex
}

func (c *wsChannel) OnInsert(table string, fn func(json.RawMessage)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.inserts[table] = append(c.inserts[table], fn)
}

func (c *wsChannel) OnBroadcast(event string, fn func(json.RawMessage)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.broadcasts[event] = append(c.broadcasts[event], fn)
}

func (c *wsChannel) OnPresenceSync(fn func([]models.PresenceEntry)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.presence = append(c.presence, fn)
}

// Subscribe dials the relay, waits for the subscribed acknowledgement and
// starts the read loop.
func (c *wsChannel) Subscribe(ctx context.Context) error {
	c.mu.Lock()
	if c.sub != nil {
		c.mu.Unlock()
		return ErrAlreadySubscribed
	}
	sub := &subscription{
		inserts:    map[string][]func(json.RawMessage){},
		broadcasts: map[string][]func(json.RawMessage){},
		presence:   append([]func([]models.PresenceEntry){}, c.presence...),
	}
	for table, fns := range c.inserts {
		sub.inserts[table] = append([]func(json.RawMessage){}, fns...)
	}
	for event, fns := range c.broadcasts {
		sub.broadcasts[event] = append([]func(json.RawMessage){}, fns...)
	}
	c.mu.Unlock()

	endpoint := c.dialer.BaseURL + "/" + url.PathEscape(c.topic)
	header := http.Header{}
	if token := c.dialer.Token(); token != "" {
		header.Set("Authorization", "Bearer "+token)
	}

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, endpoint, header)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		observability.IncChannelSubscribe("error")
		return fmt.Errorf("dial %s: %w", c.topic, err)
	}

	deadline := time.Now().Add(subscribeTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	_ = conn.SetReadDeadline(deadline)
	_, data, err := conn.ReadMessage()
	if err != nil {
		conn.Close()
		observability.IncChannelSubscribe("error")
		return fmt.Errorf("await subscribe ack: %w", err)
	}
	ack, err := ParseFrame(data)
	if err != nil || ack.Kind != KindSubscribed {
		conn.Close()
		observability.IncChannelSubscribe("error")
		return fmt.Errorf("unexpected subscribe reply for %s", c.topic)
	}
	_ = conn.SetReadDeadline(time.Time{})

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		conn.Close()
		return ErrNotSubscribed
	}
	c.conn = conn
	c.sub = sub
	c.mu.Unlock()

	observability.IncChannelSubscribe("ok")
	go c.readLoop(conn, sub)
	return nil
}

func (c *wsChannel) readLoop(conn *websocket.Conn, sub *subscription) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.mu.Lock()
				closed := c.closed
				c.mu.Unlock()
				if !closed {
					c.log.Warn().Err(err).Msg("channel read failed")
				}
			}
			return
		}

		frame, err := ParseFrame(data)
		if err != nil {
			observability.IncFrameRejected()
			c.log.Error().Err(err).Msg("rejected frame")
			continue
		}
		c.dispatch(sub, frame)
	}
}

// dispatch runs the handlers for one frame. Handler panics are contained so
// a misbehaving callback cannot destabilize the channel.
func (c *wsChannel) dispatch(sub *subscription, frame Frame) {
	defer func() {
		if r := recover(); r != nil {
			c.log.Error().Interface("panic", r).Str("kind", frame.Kind).Msg("channel handler panicked")
		}
	}()

	switch frame.Kind {
	case KindInsert:
		for _, fn := range sub.inserts[frame.Table] {
			fn(frame.Payload)
		}
	case KindBroadcast:
		for _, fn := range sub.broadcasts[frame.Event] {
			fn(frame.Payload)
		}
	case KindPresenceState:
		var entries []models.PresenceEntry
		if err := json.Unmarshal(frame.Payload, &entries); err != nil {
			observability.IncFrameRejected()
			c.log.Error().Err(err).Msg("rejected presence snapshot")
			return
		}
		for _, fn := range sub.presence {
			fn(entries)
		}
	default:
		observability.IncFrameRejected()
		c.log.Error().Str("kind", frame.Kind).Msg("unknown frame kind")
	}
}

// Track registers this client's presence entry on the channel.
func (c *wsChannel) Track(ctx context.Context, entry models.PresenceEntry) error {
	payload, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	return c.write(Frame{Topic: c.topic, Kind: KindTrack, Payload: payload})
}

// Untrack removes this client's presence entry.
func (c *wsChannel) Untrack(ctx context.Context) error {
	return c.write(Frame{Topic: c.topic, Kind: KindUntrack})
}

// Broadcast sends an ephemeral event to the channel's other subscribers.
func (c *wsChannel) Broadcast(ctx context.Context, event string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return c.write(Frame{Topic: c.topic, Kind: KindBroadcast, Event: event, Payload: body})
}

func (c *wsChannel) write(frame Frame) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return ErrNotSubscribed
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return conn.WriteJSON(frame)
}

// Close releases the connection.
func (c *wsChannel) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()

	if conn == nil {
		return nil
	}
	c.writeMu.Lock()
	_ = conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	c.writeMu.Unlock()
	return conn.Close()
}
