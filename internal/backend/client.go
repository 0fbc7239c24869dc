// Package backend assembles the collaborator handles into one explicitly
// constructed client. One instance is created at startup and passed into
// every component that needs it; Close disposes held resources.
package backend

import (
	"fmt"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/rs/zerolog"

	"chat-client/internal/auth"
	"chat-client/internal/config"
	"chat-client/internal/realtime"
	"chat-client/internal/storage"
	"chat-client/internal/store"
)

// Client bundles the external collaborators behind their interfaces.
type Client struct {
	Auth     *auth.Store
	Store    store.Store
	Objects  storage.ObjectStore
	Realtime realtime.Dialer

	db  *sqlx.DB
	log zerolog.Logger
}

// New connects every collaborator from configuration.
func New(cfg config.Config, log zerolog.Logger) (*Client, error) {
	db, err := sqlx.Connect("postgres", cfg.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("connect backend db: %w", err)
	}

	objects, err := storage.NewMinio(storage.MinioConfig{
		Endpoint:  cfg.StorageEndpoint,
		AccessKey: cfg.StorageAccessKey,
		SecretKey: cfg.StorageSecretKey,
		UseSSL:    cfg.StorageUseSSL,
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	sessions := auth.NewStore([]byte(cfg.JWTSecret))
	dialer := realtime.NewWSDialer(cfg.RealtimeURL, sessions.Token, log)

	return &Client{
		Auth:     sessions,
		Store:    store.NewPostgres(db),
		Objects:  objects,
		Realtime: dialer,
		db:       db,
		log:      log,
	}, nil
}

// Close releases the database handle. Realtime channels are owned and closed
// by the components that opened them.
func (c *Client) Close() error {
	if c.db != nil {
		return c.db.Close()
	}
	return nil
}
