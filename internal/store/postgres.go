package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"chat-client/internal/models"
)

// Postgres is the sqlx implementation of Store.
type Postgres struct {
	db *sqlx.DB
}

// NewPostgres constructs a Postgres store.
func NewPostgres(db *sqlx.DB) *Postgres {
	return &Postgres{db: db}
}

// ProfileByEmail resolves a case-normalized email to a profile.
func (s *Postgres) ProfileByEmail(ctx context.Context, email string) (models.Profile, error) {
	email = strings.ToLower(strings.TrimSpace(email))

	var profile models.Profile
	err := s.db.GetContext(ctx, &profile,
		`SELECT id, email, full_name, avatar_url, updated_at FROM profiles WHERE lower(email)=$1`, email)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Profile{}, ErrProfileNotFound
	}
	return profile, mapError(err)
}

// ParticipantLinks returns every participant link naming userID.
func (s *Postgres) ParticipantLinks(ctx context.Context, userID uuid.UUID) ([]models.Participant, error) {
	var links []models.Participant
	err := s.db.SelectContext(ctx, &links,
		`SELECT conversation_id, user_id, joined_at FROM conversation_participants WHERE user_id=$1`, userID)
	return links, mapError(err)
}

// LinksForUsers returns all participant links whose user id is in userIDs.
func (s *Postgres) LinksForUsers(ctx context.Context, userIDs []uuid.UUID) ([]models.Participant, error) {
	if len(userIDs) == 0 {
		return nil, nil
	}
	query, args, err := sqlx.In(
		`SELECT conversation_id, user_id, joined_at FROM conversation_participants WHERE user_id IN (?)`, userIDs)
	if err != nil {
		return nil, err
	}
	var links []models.Participant
	err = s.db.SelectContext(ctx, &links, s.db.Rebind(query), args...)
	return links, mapError(err)
}

// ConversationsByID fetches conversation rows, newest-created first.
func (s *Postgres) ConversationsByID(ctx context.Context, ids []uuid.UUID) ([]models.Conversation, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	query, args, err := sqlx.In(
		`SELECT id, name, is_group, created_at FROM conversations WHERE id IN (?) ORDER BY created_at DESC`, ids)
	if err != nil {
		return nil, err
	}
	var convs []models.Conversation
	err = s.db.SelectContext(ctx, &convs, s.db.Rebind(query), args...)
	return convs, mapError(err)
}

// ParticipantProfiles joins participant links with member profiles for a set
// of conversations.
func (s *Postgres) ParticipantProfiles(ctx context.Context, conversationIDs []uuid.UUID) ([]models.ParticipantProfile, error) {
	if len(conversationIDs) == 0 {
		return nil, nil
	}
	query, args, err := sqlx.In(
		`SELECT cp.conversation_id, cp.user_id, p.email, p.full_name, p.avatar_url
         FROM conversation_participants cp
         JOIN profiles p ON p.id = cp.user_id
         WHERE cp.conversation_id IN (?)`, conversationIDs)
	if err != nil {
		return nil, err
	}
	var rows []models.ParticipantProfile
	err = s.db.SelectContext(ctx, &rows, s.db.Rebind(query), args...)
	return rows, mapError(err)
}

// IsParticipant checks whether a user belongs to the conversation.
func (s *Postgres) IsParticipant(ctx context.Context, conversationID, userID uuid.UUID) (bool, error) {
	var exists bool
	err := s.db.GetContext(ctx, &exists,
		`SELECT EXISTS(SELECT 1 FROM conversation_participants WHERE conversation_id=$1 AND user_id=$2)`,
		conversationID, userID)
	return exists, mapError(err)
}

// MessagesByConversation returns up to limit messages in creation order.
// When the conversation holds more than limit rows the newest ones win, so
// the query walks backwards and the slice is flipped before returning.
func (s *Postgres) MessagesByConversation(ctx context.Context, conversationID uuid.UUID, limit int) ([]models.Message, error) {
	var msgs []models.Message
	err := s.db.SelectContext(ctx, &msgs,
		`SELECT id, conversation_id, sender_id, content, attachments, created_at
         FROM messages WHERE conversation_id=$1 ORDER BY created_at DESC, id DESC LIMIT $2`,
		conversationID, limit)
	if err != nil {
		return nil, mapError(err)
	}
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, nil
}

// InsertProfile stores a profile row.
func (s *Postgres) InsertProfile(ctx context.Context, profile models.Profile) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO profiles (id, email, full_name, avatar_url) VALUES ($1, $2, $3, $4)`,
		profile.ID, strings.ToLower(profile.Email), profile.FullName, profile.AvatarURL)
	return mapError(err)
}

// InsertConversation stores a conversation row and returns it as stored.
func (s *Postgres) InsertConversation(ctx context.Context, conv models.Conversation) (models.Conversation, error) {
	var stored models.Conversation
	err := s.db.QueryRowxContext(ctx,
		`INSERT INTO conversations (id, name, is_group) VALUES ($1, $2, $3)
         RETURNING id, name, is_group, created_at`,
		conv.ID, conv.Name, conv.IsGroup).StructScan(&stored)
	return stored, mapError(err)
}

// InsertParticipants stores participant links in one statement.
func (s *Postgres) InsertParticipants(ctx context.Context, links []models.Participant) error {
	if len(links) == 0 {
		return nil
	}
	values := make([]string, 0, len(links))
	args := make([]any, 0, len(links)*2)
	for i, link := range links {
		values = append(values, fmt.Sprintf("($%d, $%d)", i*2+1, i*2+2))
		args = append(args, link.ConversationID, link.UserID)
	}
	query := `INSERT INTO conversation_participants (conversation_id, user_id) VALUES ` + strings.Join(values, ", ")
	_, err := s.db.ExecContext(ctx, query, args...)
	return mapError(err)
}

// InsertMessage stores a message row and returns it as stored.
func (s *Postgres) InsertMessage(ctx context.Context, msg models.Message) (models.Message, error) {
	var stored models.Message
	err := s.db.QueryRowxContext(ctx,
		`INSERT INTO messages (id, conversation_id, sender_id, content, attachments)
         VALUES ($1, $2, $3, $4, $5)
         RETURNING id, conversation_id, sender_id, content, attachments, created_at`,
		msg.ID, msg.ConversationID, msg.SenderID, msg.Content, msg.Attachments).StructScan(&stored)
	return stored, mapError(err)
}

// mapError translates driver errors into the package sentinels. Unique
// violations become ErrConflict, RLS rejections ErrPolicyDenied.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case "23505":
			return fmt.Errorf("%w: %s", ErrConflict, pqErr.Constraint)
		case "42501":
			return ErrPolicyDenied
		}
	}
	return err
}
