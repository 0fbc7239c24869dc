package models

import (
	"time"

	"github.com/google/uuid"
)

// Profile is the public identity record maintained by the auth backend.
// Rows are created on signup and never mutated by this client.
type Profile struct {
	ID        uuid.UUID `db:"id" json:"id"`
	Email     string    `db:"email" json:"email"`
	FullName  string    `db:"full_name" json:"full_name"`
	AvatarURL string    `db:"avatar_url" json:"avatar_url"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}
