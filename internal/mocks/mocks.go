// Package mocks holds hand-written testify mocks for the client's
// collaborator interfaces.
package mocks

import (
	"context"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"chat-client/internal/models"
)

// StoreMock mocks store.Store.
type StoreMock struct {
	mock.Mock
}

func (m *StoreMock) ProfileByEmail(ctx context.Context, email string) (models.Profile, error) {
	args := m.Called(ctx, email)
	return args.Get(0).(models.Profile), args.Error(1)
}

func (m *StoreMock) ParticipantLinks(ctx context.Context, userID uuid.UUID) ([]models.Participant, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Participant), args.Error(1)
}

func (m *StoreMock) LinksForUsers(ctx context.Context, userIDs []uuid.UUID) ([]models.Participant, error) {
	args := m.Called(ctx, userIDs)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Participant), args.Error(1)
}

func (m *StoreMock) ConversationsByID(ctx context.Context, ids []uuid.UUID) ([]models.Conversation, error) {
	args := m.Called(ctx, ids)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Conversation), args.Error(1)
}

func (m *StoreMock) ParticipantProfiles(ctx context.Context, conversationIDs []uuid.UUID) ([]models.ParticipantProfile, error) {
	args := m.Called(ctx, conversationIDs)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.ParticipantProfile), args.Error(1)
}

func (m *StoreMock) IsParticipant(ctx context.Context, conversationID, userID uuid.UUID) (bool, error) {
	args := m.Called(ctx, conversationID, userID)
	return args.Bool(0), args.Error(1)
}

func (m *StoreMock) MessagesByConversation(ctx context.Context, conversationID uuid.UUID, limit int) ([]models.Message, error) {
	args := m.Called(ctx, conversationID, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Message), args.Error(1)
}

func (m *StoreMock) InsertProfile(ctx context.Context, profile models.Profile) error {
	args := m.Called(ctx, profile)
	return args.Error(0)
}

func (m *StoreMock) InsertConversation(ctx context.Context, conv models.Conversation) (models.Conversation, error) {
	args := m.Called(ctx, conv)
	return args.Get(0).(models.Conversation), args.Error(1)
}

func (m *StoreMock) InsertParticipants(ctx context.Context, links []models.Participant) error {
	args := m.Called(ctx, links)
	return args.Error(0)
}

func (m *StoreMock) InsertMessage(ctx context.Context, msg models.Message) (models.Message, error) {
	args := m.Called(ctx, msg)
	return args.Get(0).(models.Message), args.Error(1)
}

// ObjectStoreMock mocks storage.ObjectStore.
type ObjectStoreMock struct {
	mock.Mock
}

func (m *ObjectStoreMock) Upload(ctx context.Context, bucket, path string, data []byte, contentType string) error {
	args := m.Called(ctx, bucket, path, data, contentType)
	return args.Error(0)
}

func (m *ObjectStoreMock) PublicURL(bucket, path string) string {
	args := m.Called(bucket, path)
	return args.String(0)
}
