package models

import (
	"time"

	"github.com/google/uuid"
)

// Conversation is a chat between two or more users. A direct conversation
// has is_group=false and exactly two participants.
type Conversation struct {
	ID        uuid.UUID `db:"id" json:"id"`
	Name      *string   `db:"name" json:"name,omitempty"`
	IsGroup   bool      `db:"is_group" json:"is_group"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// Participant links a user to a conversation. The (conversation_id, user_id)
// pair is unique.
type Participant struct {
	ConversationID uuid.UUID `db:"conversation_id" json:"conversation_id"`
	UserID         uuid.UUID `db:"user_id" json:"user_id"`
	JoinedAt       time.Time `db:"joined_at" json:"joined_at"`
}

// ParticipantProfile is a participant link joined with the member's profile,
// so a conversation listing can be enriched without an N+1 fetch.
type ParticipantProfile struct {
	ConversationID uuid.UUID `db:"conversation_id" json:"conversation_id"`
	UserID         uuid.UUID `db:"user_id" json:"user_id"`
	Email          string    `db:"email" json:"email"`
	FullName       string    `db:"full_name" json:"full_name"`
	AvatarURL      string    `db:"avatar_url" json:"avatar_url"`
}

// Profile converts the joined row back into a plain profile.
func (p ParticipantProfile) Profile() Profile {
	return Profile{ID: p.UserID, Email: p.Email, FullName: p.FullName, AvatarURL: p.AvatarURL}
}

// EnrichedConversation is the directory's view of a conversation: the row
// itself plus a resolved display identity. Counterpart is nil for groups.
type EnrichedConversation struct {
	Conversation
	DisplayName string   `json:"display_name"`
	Counterpart *Profile `json:"counterpart,omitempty"`
}
