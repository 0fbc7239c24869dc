package models

import (
	"bytes"
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Attachment describes one uploaded file embedded in a message.
type Attachment struct {
	Name        string `json:"name"`
	URL         string `json:"url"`
	ContentType string `json:"content_type"`
	Size        int64  `json:"size"`
}

// Attachments is stored as a jsonb column.
type Attachments []Attachment

// Value implements driver.Valuer.
func (a Attachments) Value() (driver.Value, error) {
	if len(a) == 0 {
		return []byte("[]"), nil
	}
	return json.Marshal(a)
}

// Scan implements sql.Scanner.
func (a *Attachments) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*a = nil
		return nil
	case []byte:
		return json.Unmarshal(v, a)
	case string:
		return json.Unmarshal([]byte(v), a)
	default:
		return fmt.Errorf("attachments: unsupported source type %T", src)
	}
}

// Message is one immutable chat message. The id is the deduplication key;
// display order is (created_at, id).
type Message struct {
	ID             uuid.UUID   `db:"id" json:"id"`
	ConversationID uuid.UUID   `db:"conversation_id" json:"conversation_id"`
	SenderID       uuid.UUID   `db:"sender_id" json:"sender_id"`
	Content        string      `db:"content" json:"content"`
	Attachments    Attachments `db:"attachments" json:"attachments,omitempty"`
	CreatedAt      time.Time   `db:"created_at" json:"created_at"`
}

// Before reports whether m sorts ahead of other in display order. Ties on
// the creation timestamp are broken by id so the order is total even under
// clock skew.
func (m Message) Before(other Message) bool {
	if !m.CreatedAt.Equal(other.CreatedAt) {
		return m.CreatedAt.Before(other.CreatedAt)
	}
	return bytes.Compare(m.ID[:], other.ID[:]) < 0
}
