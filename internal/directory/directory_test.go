package directory

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
	"chat-client/internal/realtime"
)

func TestListEmptyMembershipIsNotAnError(t *testing.T) {
	selfID := uuid.New()

	st := new(mocks.StoreMock)
	st.On("ParticipantLinks", mock.Anything, selfID).Return([]models.Participant{}, nil)

	d := New(st, zerolog.Nop())
	listing, err := d.List(context.Background(), selfID)

	require.NoError(t, err)
	assert.Empty(t, listing)
	st.AssertNotCalled(t, "ConversationsByID", mock.Anything, mock.Anything)
}

func TestListEnrichesDirectAndGroup(t *testing.T) {
	selfID := uuid.New()
	otherID := uuid.New()
	directID := uuid.New()
	groupID := uuid.New()
	namedID := uuid.New()
	groupName := "Weekend plans"

	st := new(mocks.StoreMock)
	st.On("ParticipantLinks", mock.Anything, selfID).Return([]models.Participant{
		{ConversationID: directID, UserID: selfID},
		{ConversationID: groupID, UserID: selfID},
		{ConversationID: namedID, UserID: selfID},
	}, nil)
	st.On("ConversationsByID", mock.Anything, mock.Anything).Return([]models.Conversation{
		{ID: directID, IsGroup: false},
		{ID: groupID, IsGroup: true},
		{ID: namedID, Name: &groupName, IsGroup: true},
	}, nil)
	st.On("ParticipantProfiles", mock.Anything, mock.Anything).Return([]models.ParticipantProfile{
		{ConversationID: directID, UserID: selfID, Email: "me@example.com", FullName: "Me"},
		{ConversationID: directID, UserID: otherID, Email: "bob@example.com", FullName: "Bob Demo"},
	}, nil)

	d := New(st, zerolog.Nop())
	listing, err := d.List(context.Background(), selfID)

	require.NoError(t, err)
	require.Len(t, listing, 3)

	assert.Equal(t, "Bob Demo", listing[0].DisplayName)
	require.NotNil(t, listing[0].Counterpart)
	assert.Equal(t, otherID, listing[0].Counterpart.ID)

	assert.Equal(t, GroupFallbackName, listing[1].DisplayName)
	assert.Nil(t, listing[1].Counterpart)

	assert.Equal(t, groupName, listing[2].DisplayName)
}

func TestListFallsBackToEmailWithoutFullName(t *testing.T) {
	selfID := uuid.New()
	otherID := uuid.New()
	convID := uuid.New()

	st := new(mocks.StoreMock)
	st.On("ParticipantLinks", mock.Anything, selfID).Return([]models.Participant{
		{ConversationID: convID, UserID: selfID},
	}, nil)
	st.On("ConversationsByID", mock.Anything, mock.Anything).
		Return([]models.Conversation{{ID: convID, IsGroup: false}}, nil)
	st.On("ParticipantProfiles", mock.Anything, mock.Anything).Return([]models.ParticipantProfile{
		{ConversationID: convID, UserID: otherID, Email: "bob@example.com"},
	}, nil)

	d := New(st, zerolog.Nop())
	listing, err := d.List(context.Background(), selfID)

	require.NoError(t, err)
	require.Len(t, listing, 1)
	assert.Equal(t, "bob@example.com", listing[0].DisplayName)
}

func TestListSelfChatShowsSelf(t *testing.T) {
	selfID := uuid.New()
	convID := uuid.New()

	st := new(mocks.StoreMock)
	st.On("ParticipantLinks", mock.Anything, selfID).Return([]models.Participant{
		{ConversationID: convID, UserID: selfID},
	}, nil)
	st.On("ConversationsByID", mock.Anything, mock.Anything).
		Return([]models.Conversation{{ID: convID, IsGroup: false}}, nil)
	st.On("ParticipantProfiles", mock.Anything, mock.Anything).Return([]models.ParticipantProfile{
		{ConversationID: convID, UserID: selfID, Email: "me@example.com", FullName: "Me"},
	}, nil)

	d := New(st, zerolog.Nop())
	listing, err := d.List(context.Background(), selfID)

	require.NoError(t, err)
	require.Len(t, listing, 1)
	assert.Equal(t, "Me", listing[0].DisplayName)
	require.NotNil(t, listing[0].Counterpart)
	assert.Equal(t, selfID, listing[0].Counterpart.ID)
}

func TestListErrorPreservesCachedListing(t *testing.T) {
	selfID := uuid.New()
	convID := uuid.New()

	st := new(mocks.StoreMock)
	st.On("ParticipantLinks", mock.Anything, selfID).Return([]models.Participant{
		{ConversationID: convID, UserID: selfID},
	}, nil).Once()
	st.On("ConversationsByID", mock.Anything, mock.Anything).
		Return([]models.Conversation{{ID: convID, IsGroup: true}}, nil).Once()
	st.On("ParticipantProfiles", mock.Anything, mock.Anything).
		Return([]models.ParticipantProfile{}, nil).Once()
	st.On("ParticipantLinks", mock.Anything, selfID).
		Return(nil, errors.New("backend down")).Once()

	d := New(st, zerolog.Nop())

	first, err := d.List(context.Background(), selfID)
	require.NoError(t, err)
	require.Len(t, first, 1)

	_, err = d.List(context.Background(), selfID)
	require.Error(t, err)

	cached := d.Cached()
	require.Len(t, cached, 1)
	assert.Equal(t, convID, cached[0].ID)
}

func TestWatchRefreshesOnNewMembership(t *testing.T) {
	selfID := uuid.New()
	convID := uuid.New()

	st := new(mocks.StoreMock)
	st.On("ParticipantLinks", mock.Anything, selfID).Return([]models.Participant{
		{ConversationID: convID, UserID: selfID},
	}, nil)
	st.On("ConversationsByID", mock.Anything, mock.Anything).
		Return([]models.Conversation{{ID: convID, IsGroup: true}}, nil)
	st.On("ParticipantProfiles", mock.Anything, mock.Anything).
		Return([]models.ParticipantProfile{}, nil)

	d := New(st, zerolog.Nop())
	dialer := mocks.NewFakeDialer()

	var refreshed [][]models.EnrichedConversation
	ch, err := d.Watch(context.Background(), dialer, selfID, func(listing []models.EnrichedConversation) {
		refreshed = append(refreshed, listing)
	})
	require.NoError(t, err)
	defer ch.Close()

	fake := dialer.ChannelFor(realtime.TopicUser(selfID))
	require.NotNil(t, fake)
	assert.True(t, fake.Subscribed())

	fake.FireInsert("conversation_participants", models.Participant{
		ConversationID: convID,
		UserID:         selfID,
		JoinedAt:       time.Now(),
	})

	require.Len(t, refreshed, 1)
	require.Len(t, refreshed[0], 1)
	assert.Equal(t, convID, refreshed[0][0].ID)

	// Links naming other users do not concern this directory.
	fake.FireInsert("conversation_participants", models.Participant{
		ConversationID: convID,
		UserID:         uuid.New(),
	})
	assert.Len(t, refreshed, 1)
}

func TestWatchSubscribeFailure(t *testing.T) {
	selfID := uuid.New()

	st := new(mocks.StoreMock)
	d := New(st, zerolog.Nop())

	dialer := mocks.NewFakeDialer()
	dialer.NextSubscribeErr = errors.New("relay unreachable")

	_, err := d.Watch(context.Background(), dialer, selfID, nil)
	require.Error(t, err)
	assert.True(t, dialer.ChannelFor(realtime.TopicUser(selfID)).Closed())
}
