// Package stream owns the realtime session for the active conversation: it
// merges database-backed history with the live event stream, deduplicates
// and orders messages, relays typing signals and tracks presence.
package stream

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"chat-client/internal/models"
	"chat-client/internal/observability"
	"chat-client/internal/realtime"
	"chat-client/internal/store"
)

// State is the controller's lifecycle position for the active conversation.
type State int

const (
	StateIdle State = iota
	StateLoading
	StateLive
	StateClosing
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateLoading:
		return "loading"
	case StateLive:
		return "live"
	case StateClosing:
		return "closing"
	}
	return "unknown"
}

// Snapshot is an immutable view of the active conversation handed to the
// update callback.
type Snapshot struct {
	ConversationID uuid.UUID
	State          State
	Messages       []models.Message
	Typing         []uuid.UUID
	Presence       []models.PresenceEntry
}

// Option configures a Controller.
type Option func(*Controller)

// WithQuietPeriod overrides the trailing-edge typing=false delay.
func WithQuietPeriod(d time.Duration) Option {
	return func(c *Controller) { c.quiet = d }
}

// WithHistoryLimit caps the number of messages loaded on open.
func WithHistoryLimit(n int) Option {
	return func(c *Controller) { c.historyLimit = n }
}

// WithOnUpdate registers a callback fired after every state change.
func WithOnUpdate(fn func(Snapshot)) Option {
	return func(c *Controller) { c.onUpdate = fn }
}

// Controller runs the Idle → Loading → Live → Closing state machine for one
// active conversation at a time. Open switches conversations; Close releases
// the channel. Exactly one channel is held per active conversation.
type Controller struct {
	store  store.Store
	dialer realtime.Dialer
	selfID uuid.UUID
	log    zerolog.Logger

	quiet        time.Duration
	historyLimit int
	onUpdate     func(Snapshot)

	mu             sync.Mutex
	state          State
	gen            uint64 // bumped on every open/close; stale events are discarded
	conversationID uuid.UUID
	channel        realtime.Channel
	messages       []models.Message
	seen           map[uuid.UUID]struct{}
	typing         map[uuid.UUID]struct{}
	presence       map[uuid.UUID]models.PresenceEntry
	typingTimer    *time.Timer // single slot; rescheduled on every keystroke
}

// New constructs a Controller for the given identity.
func New(st store.Store, dialer realtime.Dialer, selfID uuid.UUID, log zerolog.Logger, opts ...Option) *Controller {
	c := &Controller{
		store:        st,
		dialer:       dialer,
		selfID:       selfID,
		log:          log,
		quiet:        2 * time.Second,
		historyLimit: 200,
		state:        StateIdle,
		seen:         map[uuid.UUID]struct{}{},
		typing:       map[uuid.UUID]struct{}{},
		presence:     map[uuid.UUID]models.PresenceEntry{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Open makes conversationID the active conversation: the previous channel is
// torn down, prior state cleared, history loaded and a fresh channel
// subscribed. A history fetch that completes after another Open superseded
// it is discarded.
func (c *Controller) Open(ctx context.Context, conversationID uuid.UUID) error {
	c.Close(ctx)

	c.mu.Lock()
	c.state = StateLoading
	c.gen++
	gen := c.gen
	c.conversationID = conversationID
	c.messages = nil
	c.seen = map[uuid.UUID]struct{}{}
	c.typing = map[uuid.UUID]struct{}{}
	c.presence = map[uuid.UUID]models.PresenceEntry{}
	c.mu.Unlock()
	c.notify()

	history, err := c.store.MessagesByConversation(ctx, conversationID, c.historyLimit)

	c.mu.Lock()
	if c.gen != gen {
		c.mu.Unlock()
		return nil // superseded while fetching
	}
	if err != nil {
		// A failed history load leaves the list empty; the view stays usable.
		c.log.Error().Err(err).Str("conversation", conversationID.String()).Msg("history load failed")
	} else {
		for _, msg := range history {
			c.appendLocked(msg)
		}
		c.sortLocked()
	}
	c.mu.Unlock()
	c.notify()

	ch := c.dialer.Channel(realtime.TopicConversation(conversationID))
	ch.OnInsert("messages", func(row json.RawMessage) { c.handleInsert(gen, row) })
	ch.OnBroadcast("typing", func(payload json.RawMessage) { c.handleTyping(gen, payload) })
	ch.OnPresenceSync(func(entries []models.PresenceEntry) { c.handlePresence(gen, entries) })

	if err := ch.Subscribe(ctx); err != nil {
		// Degrade to a read-only history view; live updates are lost but the
		// conversation remains readable.
		c.log.Warn().Err(err).Str("conversation", conversationID.String()).Msg("channel subscribe failed")
		ch.Close()
		c.mu.Lock()
		if c.gen == gen {
			// Invalidate the handlers registered above so nothing fired on
			// the dead channel can still mutate this view.
			c.gen++
			c.state = StateLive
		}
		c.mu.Unlock()
		c.notify()
		return nil
	}

	c.mu.Lock()
	if c.gen != gen {
		c.mu.Unlock()
		ch.Close()
		return nil
	}
	c.channel = ch
	c.state = StateLive
	c.mu.Unlock()

	if err := ch.Track(ctx, models.PresenceEntry{UserID: c.selfID, OnlineSince: time.Now().UTC()}); err != nil {
		c.log.Warn().Err(err).Msg("presence track failed")
	}
	c.notify()
	return nil
}

// Close tears down the active session: presence is untracked best-effort,
// the channel released and any pending typing timer cancelled.
func (c *Controller) Close(ctx context.Context) {
	c.mu.Lock()
	if c.state == StateIdle {
		c.mu.Unlock()
		return
	}
	c.state = StateClosing
	c.gen++
	ch := c.channel
	c.channel = nil
	if c.typingTimer != nil {
		c.typingTimer.Stop()
		c.typingTimer = nil
	}
	c.mu.Unlock()

	if ch != nil {
		// The channel is being discarded; untrack failures are irrelevant.
		_ = ch.Untrack(ctx)
		_ = ch.Close()
	}

	c.mu.Lock()
	c.state = StateIdle
	c.conversationID = uuid.Nil
	c.messages = nil
	c.seen = map[uuid.UUID]struct{}{}
	c.typing = map[uuid.UUID]struct{}{}
	c.presence = map[uuid.UUID]models.PresenceEntry{}
	c.mu.Unlock()
	c.notify()
}

// NotifyTyping is invoked on every keystroke in the composer. Each call
// broadcasts typing=true and reschedules the single trailing-edge timer that
// broadcasts typing=false after the quiet period.
func (c *Controller) NotifyTyping(ctx context.Context) {
	c.mu.Lock()
	ch := c.channel
	gen := c.gen
	if ch == nil {
		c.mu.Unlock()
		return
	}
	if c.typingTimer != nil {
		c.typingTimer.Stop()
	}
	c.typingTimer = time.AfterFunc(c.quiet, func() { c.emitTypingStopped(ch, gen) })
	c.mu.Unlock()

	signal := models.TypingSignal{SenderID: c.selfID, Typing: true}
	if err := ch.Broadcast(ctx, "typing", signal); err != nil {
		c.log.Warn().Err(err).Msg("typing broadcast failed")
		return
	}
	observability.IncTypingBroadcast(true)
}

func (c *Controller) emitTypingStopped(ch realtime.Channel, gen uint64) {
	c.mu.Lock()
	if c.gen != gen {
		c.mu.Unlock()
		return
	}
	c.typingTimer = nil
	c.mu.Unlock()

	signal := models.TypingSignal{SenderID: c.selfID, Typing: false}
	if err := ch.Broadcast(context.Background(), "typing", signal); err != nil {
		c.log.Warn().Err(err).Msg("typing broadcast failed")
		return
	}
	observability.IncTypingBroadcast(false)
}

// handleInsert merges one row-insert notification into the view, dropping
// duplicates by id and restoring total order.
func (c *Controller) handleInsert(gen uint64, row json.RawMessage) {
	var msg models.Message
	if err := json.Unmarshal(row, &msg); err != nil {
		observability.IncFrameRejected()
		c.log.Error().Err(err).Msg("rejected message notification")
		return
	}

	c.mu.Lock()
	if c.gen != gen || msg.ConversationID != c.conversationID {
		c.mu.Unlock()
		return
	}
	if !c.appendLocked(msg) {
		c.mu.Unlock()
		observability.IncMessageDeduped()
		return
	}
	c.sortLocked()
	c.mu.Unlock()

	observability.IncMessageApplied()
	c.notify()
}

func (c *Controller) handleTyping(gen uint64, payload json.RawMessage) {
	var signal models.TypingSignal
	if err := json.Unmarshal(payload, &signal); err != nil {
		observability.IncFrameRejected()
		c.log.Error().Err(err).Msg("rejected typing signal")
		return
	}
	if signal.SenderID == c.selfID {
		return // never show our own indicator
	}

	c.mu.Lock()
	if c.gen != gen {
		c.mu.Unlock()
		return
	}
	if signal.Typing {
		c.typing[signal.SenderID] = struct{}{}
	} else {
		delete(c.typing, signal.SenderID)
	}
	c.mu.Unlock()
	c.notify()
}

// handlePresence rebuilds the presence map from a full snapshot. The first
// entry per identity wins when a user has several tracked sessions.
func (c *Controller) handlePresence(gen uint64, entries []models.PresenceEntry) {
	c.mu.Lock()
	if c.gen != gen {
		c.mu.Unlock()
		return
	}
	c.presence = map[uuid.UUID]models.PresenceEntry{}
	for _, entry := range entries {
		if _, ok := c.presence[entry.UserID]; !ok {
			c.presence[entry.UserID] = entry
		}
	}
	c.mu.Unlock()
	c.notify()
}

// appendLocked adds msg unless its id was already applied.
func (c *Controller) appendLocked(msg models.Message) bool {
	if _, ok := c.seen[msg.ID]; ok {
		return false
	}
	c.seen[msg.ID] = struct{}{}
	c.messages = append(c.messages, msg)
	return true
}

func (c *Controller) sortLocked() {
	sort.SliceStable(c.messages, func(i, j int) bool {
		return c.messages[i].Before(c.messages[j])
	})
}

// State returns the controller's current lifecycle state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// ConversationID returns the active conversation, or uuid.Nil when idle.
func (c *Controller) ConversationID() uuid.UUID {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conversationID
}

// Messages returns the ordered message list.
func (c *Controller) Messages() []models.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]models.Message{}, c.messages...)
}

// TypingUsers returns the identities currently typing.
func (c *Controller) TypingUsers() []uuid.UUID {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]uuid.UUID, 0, len(c.typing))
	for id := range c.typing {
		out = append(out, id)
	}
	return out
}

// Presence returns the channel's presence entries.
func (c *Controller) Presence() []models.PresenceEntry {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]models.PresenceEntry, 0, len(c.presence))
	for _, entry := range c.presence {
		out = append(out, entry)
	}
	return out
}

// Snapshot returns a consistent view of the whole controller state.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

func (c *Controller) snapshotLocked() Snapshot {
	snap := Snapshot{
		ConversationID: c.conversationID,
		State:          c.state,
		Messages:       append([]models.Message{}, c.messages...),
	}
	for id := range c.typing {
		snap.Typing = append(snap.Typing, id)
	}
	for _, entry := range c.presence {
		snap.Presence = append(snap.Presence, entry)
	}
	return snap
}

func (c *Controller) notify() {
	if c.onUpdate == nil {
		return
	}
	c.mu.Lock()
	snap := c.snapshotLocked()
	c.mu.Unlock()
	c.onUpdate(snap)
}
