// Package directory resolves the set of conversations the signed-in user
// participates in and enriches each with a display identity.
package directory

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"chat-client/internal/models"
	"chat-client/internal/realtime"
	"chat-client/internal/store"
)

// GroupFallbackName labels group conversations stored without a name.
const GroupFallbackName = "Unnamed group"

// Directory lists and enriches the user's conversations. The last successful
// listing is retained so a failed refresh leaves something to display.
type Directory struct {
	store store.Store
	log   zerolog.Logger

	mu     sync.RWMutex
	cached []models.EnrichedConversation
}

// New constructs a Directory.
func New(st store.Store, log zerolog.Logger) *Directory {
	return &Directory{store: st, log: log}
}

// List returns the user's conversations, newest-created first. An empty
// membership is an empty listing, not an error. Any fetch error aborts the
// refresh and leaves the previous listing cached.
func (d *Directory) List(ctx context.Context, selfID uuid.UUID) ([]models.EnrichedConversation, error) {
	links, err := d.store.ParticipantLinks(ctx, selfID)
	if err != nil {
		return nil, fmt.Errorf("list memberships: %w", err)
	}
	if len(links) == 0 {
		d.cache(nil)
		return []models.EnrichedConversation{}, nil
	}

	ids := make([]uuid.UUID, 0, len(links))
	for _, link := range links {
		ids = append(ids, link.ConversationID)
	}

	convs, err := d.store.ConversationsByID(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}

	members, err := d.store.ParticipantProfiles(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("list participants: %w", err)
	}
	byConversation := map[uuid.UUID][]models.ParticipantProfile{}
	for _, m := range members {
		byConversation[m.ConversationID] = append(byConversation[m.ConversationID], m)
	}

	enriched := make([]models.EnrichedConversation, 0, len(convs))
	for _, conv := range convs {
		enriched = append(enriched, enrich(conv, byConversation[conv.ID], selfID))
	}

	d.cache(enriched)
	return enriched, nil
}

// Cached returns the last successful listing.
func (d *Directory) Cached() []models.EnrichedConversation {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return append([]models.EnrichedConversation{}, d.cached...)
}

func (d *Directory) cache(listing []models.EnrichedConversation) {
	d.mu.Lock()
	d.cached = append([]models.EnrichedConversation{}, listing...)
	d.mu.Unlock()
}

// enrich resolves the display identity for one conversation. Groups use the
// stored name or a fallback label; direct conversations show the other
// participant, falling back to self for a self-chat.
func enrich(conv models.Conversation, members []models.ParticipantProfile, selfID uuid.UUID) models.EnrichedConversation {
	out := models.EnrichedConversation{Conversation: conv}

	if conv.IsGroup {
		out.DisplayName = GroupFallbackName
		if conv.Name != nil && *conv.Name != "" {
			out.DisplayName = *conv.Name
		}
		return out
	}

	var other, self *models.ParticipantProfile
	for i := range members {
		if members[i].UserID == selfID {
			self = &members[i]
		} else if other == nil {
			other = &members[i]
		}
	}
	counterpart := other
	if counterpart == nil {
		counterpart = self
	}
	if counterpart != nil {
		profile := counterpart.Profile()
		out.Counterpart = &profile
		out.DisplayName = profile.FullName
		if out.DisplayName == "" {
			out.DisplayName = profile.Email
		}
	}
	return out
}

// Watch subscribes to the user's personal channel and re-lists whenever a
// new participant link naming the user is observed. The caller owns the
// returned channel and must close it on shutdown.
func (d *Directory) Watch(ctx context.Context, dialer realtime.Dialer, selfID uuid.UUID, onRefresh func([]models.EnrichedConversation)) (realtime.Channel, error) {
	ch := dialer.Channel(realtime.TopicUser(selfID))
	ch.OnInsert("conversation_participants", func(row json.RawMessage) {
		var link models.Participant
		if err := json.Unmarshal(row, &link); err != nil {
			d.log.Error().Err(err).Msg("rejected participant notification")
			return
		}
		if link.UserID != selfID {
			return
		}
		listing, err := d.List(ctx, selfID)
		if err != nil {
			d.log.Warn().Err(err).Msg("directory refresh failed, keeping previous listing")
			return
		}
		if onRefresh != nil {
			onRefresh(listing)
		}
	})

	if err := ch.Subscribe(ctx); err != nil {
		ch.Close()
		return nil, err
	}
	return ch, nil
}
