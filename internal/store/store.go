// Package store is the client's gateway to the backend's relational storage.
// Row-level access control is enforced server-side and surfaces here as
// ErrPolicyDenied, never as a silent empty result.
package store

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"chat-client/internal/models"
)

var (
	ErrProfileNotFound = errors.New("profile not found")
	ErrConflict        = errors.New("conflict")
	ErrPolicyDenied    = errors.New("policy denied")
)

// Store abstracts the relational store collaborator.
type Store interface {
	// ProfileByEmail resolves a case-normalized email to a profile.
	ProfileByEmail(ctx context.Context, email string) (models.Profile, error)

	// ParticipantLinks returns every participant link naming userID.
	ParticipantLinks(ctx context.Context, userID uuid.UUID) ([]models.Participant, error)

	// LinksForUsers returns all participant links whose user id is in userIDs.
	LinksForUsers(ctx context.Context, userIDs []uuid.UUID) ([]models.Participant, error)

	// ConversationsByID fetches conversation rows, newest-created first.
	ConversationsByID(ctx context.Context, ids []uuid.UUID) ([]models.Conversation, error)

	// ParticipantProfiles returns the participant links of the given
	// conversations joined with member profiles.
	ParticipantProfiles(ctx context.Context, conversationIDs []uuid.UUID) ([]models.ParticipantProfile, error)

	// IsParticipant checks whether a user belongs to the conversation.
	IsParticipant(ctx context.Context, conversationID, userID uuid.UUID) (bool, error)

	// MessagesByConversation returns up to limit messages ordered by
	// creation time ascending. When more exist the newest limit rows are
	// kept.
	MessagesByConversation(ctx context.Context, conversationID uuid.UUID, limit int) ([]models.Message, error)

	// InsertProfile stores a profile row. In production profiles are owned
	// by the auth backend; this exists for local seeding.
	InsertProfile(ctx context.Context, profile models.Profile) error

	// InsertConversation stores a conversation row and returns it as stored.
	InsertConversation(ctx context.Context, conv models.Conversation) (models.Conversation, error)

	// InsertParticipants stores participant links in one statement.
	InsertParticipants(ctx context.Context, links []models.Participant) error

	// InsertMessage stores a message row and returns it as stored.
	InsertMessage(ctx context.Context, msg models.Message) (models.Message, error)
}
