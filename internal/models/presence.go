package models

import (
	"time"

	"github.com/google/uuid"
)

// PresenceEntry is the transient record tracked while a client holds a
// conversation channel open. It is never persisted.
type PresenceEntry struct {
	UserID      uuid.UUID `json:"user_id"`
	OnlineSince time.Time `json:"online_since"`
}

// TypingSignal is the ephemeral broadcast emitted on keystrokes (true) and
// after the quiet period elapses (false).
type TypingSignal struct {
	SenderID uuid.UUID `json:"sender_id"`
	Typing   bool      `json:"typing"`
}
