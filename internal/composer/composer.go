// Package composer turns outgoing text and attachment intents into message
// rows. The controller observes the resulting row-insert notification; there
// is no separate optimistic-append path.
package composer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"chat-client/internal/models"
	"chat-client/internal/storage"
	"chat-client/internal/store"
)

var (
	ErrEmptyMessage = errors.New("message has no content and no attachments")
	ErrSendInFlight = errors.New("a send is already in flight")
)

// Upload is a pending attachment: raw bytes plus display metadata.
type Upload struct {
	Name        string
	ContentType string
	Data        []byte
}

// Composer posts new message rows for one identity. A second Send while one
// is outstanding is a no-op, not queued.
type Composer struct {
	store   store.Store
	objects storage.ObjectStore
	bucket  string
	selfID  uuid.UUID
	log     zerolog.Logger

	inFlight atomic.Bool
}

// New constructs a Composer.
func New(st store.Store, objects storage.ObjectStore, bucket string, selfID uuid.UUID, log zerolog.Logger) *Composer {
	return &Composer{store: st, objects: objects, bucket: bucket, selfID: selfID, log: log}
}

// Send uploads any attachments and inserts the message row. An empty send is
// rejected locally without a network round trip, and a failed upload aborts
// the send before any message row exists.
func (c *Composer) Send(ctx context.Context, conversationID uuid.UUID, text string, uploads []Upload) (models.Message, error) {
	text = strings.TrimSpace(text)
	if text == "" && len(uploads) == 0 {
		return models.Message{}, ErrEmptyMessage
	}

	if !c.inFlight.CompareAndSwap(false, true) {
		return models.Message{}, ErrSendInFlight
	}
	defer c.inFlight.Store(false)

	attachments := make(models.Attachments, 0, len(uploads))
	for _, up := range uploads {
		// Randomized per-conversation path so names never collide.
		path := fmt.Sprintf("%s/%s/%s", conversationID, uuid.NewString(), sanitizeName(up.Name))
		if err := c.objects.Upload(ctx, c.bucket, path, up.Data, up.ContentType); err != nil {
			return models.Message{}, fmt.Errorf("upload %q: %w", up.Name, err)
		}
		attachments = append(attachments, models.Attachment{
			Name:        up.Name,
			URL:         c.objects.PublicURL(c.bucket, path),
			ContentType: up.ContentType,
			Size:        int64(len(up.Data)),
		})
	}

	msg := models.Message{
		ID:             uuid.New(),
		ConversationID: conversationID,
		SenderID:       c.selfID,
		Content:        text,
		Attachments:    attachments,
	}
	stored, err := c.store.InsertMessage(ctx, msg)
	if err != nil {
		return models.Message{}, fmt.Errorf("send message: %w", err)
	}
	return stored, nil
}

func sanitizeName(name string) string {
	name = strings.TrimSpace(name)
	name = strings.ReplaceAll(name, "/", "_")
	if name == "" {
		return "attachment"
	}
	return name
}
