package conversations

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"chat-client/internal/mocks"
	"chat-client/internal/models"
	"chat-client/internal/store"
)

func pairLinks(convID, selfID, targetID uuid.UUID) []models.Participant {
	return []models.Participant{
		{ConversationID: convID, UserID: selfID},
		{ConversationID: convID, UserID: targetID},
	}
}

func TestEnsureDirectReusesExisting(t *testing.T) {
	selfID := uuid.New()
	target := models.Profile{ID: uuid.New(), Email: "bob@example.com"}
	convID := uuid.New()

	st := new(mocks.StoreMock)
	st.On("ProfileByEmail", mock.Anything, "bob@example.com").Return(target, nil)
	st.On("LinksForUsers", mock.Anything, []uuid.UUID{selfID, target.ID}).
		Return(pairLinks(convID, selfID, target.ID), nil)
	st.On("ConversationsByID", mock.Anything, []uuid.UUID{convID}).
		Return([]models.Conversation{{ID: convID, IsGroup: false, CreatedAt: time.Now()}}, nil)

	s := New(st, zerolog.Nop())
	got, err := s.EnsureDirect(context.Background(), selfID, "  Bob@Example.com ")

	require.NoError(t, err)
	assert.Equal(t, convID, got)
	st.AssertNotCalled(t, "InsertConversation", mock.Anything, mock.Anything)
}

func TestEnsureDirectCreatesWhenAbsent(t *testing.T) {
	selfID := uuid.New()
	target := models.Profile{ID: uuid.New(), Email: "bob@example.com"}

	st := new(mocks.StoreMock)
	st.On("ProfileByEmail", mock.Anything, "bob@example.com").Return(target, nil)
	st.On("LinksForUsers", mock.Anything, mock.Anything).Return([]models.Participant{}, nil)
	createdID := uuid.New()
	st.On("InsertConversation", mock.Anything, mock.MatchedBy(func(c models.Conversation) bool {
		return !c.IsGroup && c.ID != uuid.Nil
	})).Return(models.Conversation{ID: createdID, IsGroup: false}, nil)
	st.On("InsertParticipants", mock.Anything, mock.MatchedBy(func(links []models.Participant) bool {
		return len(links) == 2 && links[0].UserID == selfID && links[1].UserID == target.ID
	})).Return(nil)

	s := New(st, zerolog.Nop())
	got, err := s.EnsureDirect(context.Background(), selfID, "bob@example.com")

	require.NoError(t, err)
	assert.Equal(t, createdID, got)
	st.AssertExpectations(t)
}

func TestEnsureDirectReconcilesConcurrentCreation(t *testing.T) {
	selfID := uuid.New()
	target := models.Profile{ID: uuid.New(), Email: "bob@example.com"}
	winnerID := uuid.New()

	st := new(mocks.StoreMock)
	st.On("ProfileByEmail", mock.Anything, "bob@example.com").Return(target, nil)
	// First search finds nothing; the search after the failed insert finds
	// the conversation the concurrent client created.
	st.On("LinksForUsers", mock.Anything, mock.Anything).Return([]models.Participant{}, nil).Once()
	st.On("LinksForUsers", mock.Anything, mock.Anything).
		Return(pairLinks(winnerID, selfID, target.ID), nil).Once()
	st.On("ConversationsByID", mock.Anything, []uuid.UUID{winnerID}).
		Return([]models.Conversation{{ID: winnerID, IsGroup: false, CreatedAt: time.Now()}}, nil)
	st.On("InsertConversation", mock.Anything, mock.Anything).
		Return(models.Conversation{ID: uuid.New(), IsGroup: false}, nil)
	st.On("InsertParticipants", mock.Anything, mock.Anything).Return(store.ErrConflict)

	s := New(st, zerolog.Nop())
	got, err := s.EnsureDirect(context.Background(), selfID, "bob@example.com")

	require.NoError(t, err)
	assert.Equal(t, winnerID, got)
}

func TestEnsureDirectSurfacesInsertErrorWhenNothingFound(t *testing.T) {
	selfID := uuid.New()
	target := models.Profile{ID: uuid.New(), Email: "bob@example.com"}

	st := new(mocks.StoreMock)
	st.On("ProfileByEmail", mock.Anything, "bob@example.com").Return(target, nil)
	st.On("LinksForUsers", mock.Anything, mock.Anything).Return([]models.Participant{}, nil)
	st.On("InsertConversation", mock.Anything, mock.Anything).
		Return(models.Conversation{ID: uuid.New(), IsGroup: false}, nil)
	st.On("InsertParticipants", mock.Anything, mock.Anything).Return(store.ErrPolicyDenied)

	s := New(st, zerolog.Nop())
	_, err := s.EnsureDirect(context.Background(), selfID, "bob@example.com")

	assert.ErrorIs(t, err, store.ErrPolicyDenied)
}

func TestEnsureDirectOldestCandidateWins(t *testing.T) {
	selfID := uuid.New()
	target := models.Profile{ID: uuid.New(), Email: "bob@example.com"}
	olderID := uuid.New()
	newerID := uuid.New()
	base := time.Now()

	links := append(pairLinks(olderID, selfID, target.ID), pairLinks(newerID, selfID, target.ID)...)

	st := new(mocks.StoreMock)
	st.On("ProfileByEmail", mock.Anything, "bob@example.com").Return(target, nil)
	st.On("LinksForUsers", mock.Anything, mock.Anything).Return(links, nil)
	st.On("ConversationsByID", mock.Anything, mock.Anything).Return([]models.Conversation{
		{ID: newerID, IsGroup: false, CreatedAt: base},
		{ID: olderID, IsGroup: false, CreatedAt: base.Add(-time.Hour)},
	}, nil)

	s := New(st, zerolog.Nop())
	got, err := s.EnsureDirect(context.Background(), selfID, "bob@example.com")

	require.NoError(t, err)
	assert.Equal(t, olderID, got)
}

func TestEnsureDirectExcludesGroups(t *testing.T) {
	selfID := uuid.New()
	target := models.Profile{ID: uuid.New(), Email: "bob@example.com"}
	groupID := uuid.New()

	st := new(mocks.StoreMock)
	st.On("ProfileByEmail", mock.Anything, "bob@example.com").Return(target, nil)
	st.On("LinksForUsers", mock.Anything, mock.Anything).
		Return(pairLinks(groupID, selfID, target.ID), nil)
	st.On("ConversationsByID", mock.Anything, []uuid.UUID{groupID}).
		Return([]models.Conversation{{ID: groupID, IsGroup: true, CreatedAt: time.Now()}}, nil)
	createdID := uuid.New()
	st.On("InsertConversation", mock.Anything, mock.Anything).
		Return(models.Conversation{ID: createdID, IsGroup: false}, nil)
	st.On("InsertParticipants", mock.Anything, mock.Anything).Return(nil)

	s := New(st, zerolog.Nop())
	got, err := s.EnsureDirect(context.Background(), selfID, "bob@example.com")

	require.NoError(t, err)
	assert.Equal(t, createdID, got)
}

func TestEnsureDirectRejectsSelf(t *testing.T) {
	selfID := uuid.New()

	st := new(mocks.StoreMock)
	st.On("ProfileByEmail", mock.Anything, "me@example.com").
		Return(models.Profile{ID: selfID, Email: "me@example.com"}, nil)

	s := New(st, zerolog.Nop())
	_, err := s.EnsureDirect(context.Background(), selfID, "me@example.com")

	assert.ErrorIs(t, err, ErrSelfConversation)
}

func TestEnsureDirectUnknownEmail(t *testing.T) {
	st := new(mocks.StoreMock)
	st.On("ProfileByEmail", mock.Anything, "ghost@example.com").
		Return(models.Profile{}, store.ErrProfileNotFound)

	s := New(st, zerolog.Nop())
	_, err := s.EnsureDirect(context.Background(), uuid.New(), "ghost@example.com")

	assert.ErrorIs(t, err, store.ErrProfileNotFound)
}

func TestEnsureDirectSearchErrorAborts(t *testing.T) {
	selfID := uuid.New()
	target := models.Profile{ID: uuid.New(), Email: "bob@example.com"}
	boom := errors.New("backend down")

	st := new(mocks.StoreMock)
	st.On("ProfileByEmail", mock.Anything, "bob@example.com").Return(target, nil)
	st.On("LinksForUsers", mock.Anything, mock.Anything).Return(nil, boom)

	s := New(st, zerolog.Nop())
	_, err := s.EnsureDirect(context.Background(), selfID, "bob@example.com")

	assert.ErrorIs(t, err, boom)
	st.AssertNotCalled(t, "InsertConversation", mock.Anything, mock.Anything)
}
