// Package conversations finds or creates the single direct conversation
// between two users, recovering from concurrent creation without locking.
package conversations

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"chat-client/internal/models"
	"chat-client/internal/store"
)

var ErrSelfConversation = errors.New("cannot start a conversation with yourself")

// Starter resolves a target email to an existing or newly created direct
// conversation.
type Starter struct {
	store store.Store
	log   zerolog.Logger
}

// New constructs a Starter.
func New(st store.Store, log zerolog.Logger) *Starter {
	return &Starter{store: st, log: log}
}

// EnsureDirect returns the id of the direct conversation between selfID and
// the profile behind targetEmail, creating it when absent.
//
// The protocol is search, then create, then reconcile: when the participant
// insert fails because a concurrent client created the same pair's
// conversation, the search is re-run and the freshly created row abandoned
// in favor of the found one. Duplicate conversation rows are tolerated
// briefly; every read path converges on the same winner.
func (s *Starter) EnsureDirect(ctx context.Context, selfID uuid.UUID, targetEmail string) (uuid.UUID, error) {
	email := strings.ToLower(strings.TrimSpace(targetEmail))
	target, err := s.store.ProfileByEmail(ctx, email)
	if err != nil {
		return uuid.Nil, fmt.Errorf("resolve %q: %w", email, err)
	}
	if target.ID == selfID {
		return uuid.Nil, ErrSelfConversation
	}

	if id, found, err := s.findExisting(ctx, selfID, target.ID); err != nil {
		return uuid.Nil, err
	} else if found {
		return id, nil
	}

	conv, err := s.store.InsertConversation(ctx, models.Conversation{ID: uuid.New(), IsGroup: false})
	if err != nil {
		return uuid.Nil, fmt.Errorf("create conversation: %w", err)
	}

	links := []models.Participant{
		{ConversationID: conv.ID, UserID: selfID},
		{ConversationID: conv.ID, UserID: target.ID},
	}
	if insertErr := s.store.InsertParticipants(ctx, links); insertErr != nil {
		// Reconciliation search: a concurrent client may have created this
		// pair's conversation between our search and our insert.
		if id, found, err := s.findExisting(ctx, selfID, target.ID); err == nil && found {
			s.log.Debug().
				Str("abandoned", conv.ID.String()).
				Str("reused", id.String()).
				Msg("direct conversation created concurrently, reusing existing")
			return id, nil
		}
		return uuid.Nil, fmt.Errorf("link participants: %w", insertErr)
	}

	return conv.ID, nil
}

// findExisting searches for a direct conversation holding both users. A
// conversation with a link for each of the two users is a candidate; group
// conversations are excluded, and among several candidates the
// oldest-created wins so concurrent callers converge.
func (s *Starter) findExisting(ctx context.Context, selfID, targetID uuid.UUID) (uuid.UUID, bool, error) {
	links, err := s.store.LinksForUsers(ctx, []uuid.UUID{selfID, targetID})
	if err != nil {
		return uuid.Nil, false, fmt.Errorf("search conversations: %w", err)
	}

	users := map[uuid.UUID]map[uuid.UUID]struct{}{}
	for _, link := range links {
		if users[link.ConversationID] == nil {
			users[link.ConversationID] = map[uuid.UUID]struct{}{}
		}
		users[link.ConversationID][link.UserID] = struct{}{}
	}

	candidates := make([]uuid.UUID, 0, 1)
	for convID, members := range users {
		if len(members) == 2 {
			candidates = append(candidates, convID)
		}
	}
	if len(candidates) == 0 {
		return uuid.Nil, false, nil
	}

	convs, err := s.store.ConversationsByID(ctx, candidates)
	if err != nil {
		return uuid.Nil, false, fmt.Errorf("load candidates: %w", err)
	}
	direct := convs[:0]
	for _, conv := range convs {
		if !conv.IsGroup {
			direct = append(direct, conv)
		}
	}
	if len(direct) == 0 {
		return uuid.Nil, false, nil
	}
	sort.Slice(direct, func(i, j int) bool {
		if !direct[i].CreatedAt.Equal(direct[j].CreatedAt) {
			return direct[i].CreatedAt.Before(direct[j].CreatedAt)
		}
		return direct[i].ID.String() < direct[j].ID.String()
	})
	return direct[0].ID, true, nil
}
