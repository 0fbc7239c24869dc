package mocks

import (
	"context"
	"encoding/json"
	"sync"

	"chat-client/internal/models"
	"chat-client/internal/realtime"
)

// BroadcastCall records one Broadcast invocation on a fake channel.
type BroadcastCall struct {
	Event   string
	Payload any
}

// FakeChannel is an in-memory realtime.Channel for driving handlers from
// tests without a relay.
type FakeChannel struct {
	Topic        string
	SubscribeErr error

	mu              sync.Mutex
	subscribed      bool
	closed          bool
	tracked         []models.PresenceEntry
	untracks        int
	broadcasts      []BroadcastCall
	insertHandlers  map[string]func(json.RawMessage)
	eventHandlers   map[string]func(json.RawMessage)
	presenceHandler func([]models.PresenceEntry)
}

// NewFakeChannel builds an unsubscribed fake channel for topic.
func NewFakeChannel(topic string) *FakeChannel {
	return &FakeChannel{
		Topic:          topic,
		insertHandlers: make(map[string]func(json.RawMessage)),
		eventHandlers:  make(map[string]func(json.RawMessage)),
	}
}

func (f *FakeChannel) OnInsert(table string, fn func(row json.RawMessage)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.insertHandlers[table] = fn
}

func (f *FakeChannel) OnBroadcast(event string, fn func(payload json.RawMessage)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.eventHandlers[event] = fn
}

func (f *FakeChannel) OnPresenceSync(fn func(entries []models.PresenceEntry)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.presenceHandler = fn
}

func (f *FakeChannel) Subscribe(ctx context.Context) error {
	if f.SubscribeErr != nil {
		return f.SubscribeErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subscribed = true
	return nil
}

func (f *FakeChannel) Track(ctx context.Context, entry models.PresenceEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tracked = append(f.tracked, entry)
	return nil
}

func (f *FakeChannel) Untrack(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.untracks++
	return nil
}

func (f *FakeChannel) Broadcast(ctx context.Context, event string, payload any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.broadcasts = append(f.broadcasts, BroadcastCall{Event: event, Payload: payload})
	return nil
}

func (f *FakeChannel) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

// FireInsert delivers a row-insert to the registered table handler.
func (f *FakeChannel) FireInsert(table string, row any) {
	data, _ := json.Marshal(row)
	f.mu.Lock()
	fn := f.insertHandlers[table]
	f.mu.Unlock()
	if fn != nil {
		fn(data)
	}
}

// FireBroadcast delivers an ephemeral event to the registered handler.
func (f *FakeChannel) FireBroadcast(event string, payload any) {
	data, _ := json.Marshal(payload)
	f.mu.Lock()
	fn := f.eventHandlers[event]
	f.mu.Unlock()
	if fn != nil {
		fn(data)
	}
}

// FirePresence delivers a presence snapshot to the registered handler.
func (f *FakeChannel) FirePresence(entries []models.PresenceEntry) {
	f.mu.Lock()
	fn := f.presenceHandler
	f.mu.Unlock()
	if fn != nil {
		fn(entries)
	}
}

// Subscribed reports whether Subscribe succeeded.
func (f *FakeChannel) Subscribed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.subscribed
}

// Closed reports whether Close was called.
func (f *FakeChannel) Closed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

// Tracked returns the recorded Track entries.
func (f *FakeChannel) Tracked() []models.PresenceEntry {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.PresenceEntry(nil), f.tracked...)
}

// Untracks returns how many times Untrack was called.
func (f *FakeChannel) Untracks() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.untracks
}

// Broadcasts returns the recorded Broadcast calls.
func (f *FakeChannel) Broadcasts() []BroadcastCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]BroadcastCall(nil), f.broadcasts...)
}

// FakeDialer hands out FakeChannels keyed by topic, reusing the channel for
// repeated dials of the same topic.
type FakeDialer struct {
	mu       sync.Mutex
	channels map[string]*FakeChannel

	// NextSubscribeErr is applied to the next channel created.
	NextSubscribeErr error
}

// NewFakeDialer builds an empty dialer.
func NewFakeDialer() *FakeDialer {
	return &FakeDialer{channels: make(map[string]*FakeChannel)}
}

// Channel implements realtime.Dialer.
func (d *FakeDialer) Channel(topic string) realtime.Channel {
	d.mu.Lock()
	defer d.mu.Unlock()
	if ch, ok := d.channels[topic]; ok {
		return ch
	}
	ch := NewFakeChannel(topic)
	ch.SubscribeErr = d.NextSubscribeErr
	d.NextSubscribeErr = nil
	d.channels[topic] = ch
	return ch
}

// ChannelFor returns the channel created for topic, or nil.
func (d *FakeDialer) ChannelFor(topic string) *FakeChannel {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.channels[topic]
}
