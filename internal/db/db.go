// Package db owns the Postgres connection and schema for local development.
// In production the schema lives in the hosted backend; the relay only needs
// the insert triggers to feed its fanout.
package db

import (
	"fmt"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/rs/zerolog"
)

// Connect opens the database and applies migrations.
func Connect(dsn string, log zerolog.Logger) (*sqlx.DB, error) {
	db, err := sqlx.Connect("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("connect db: %w", err)
	}

	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	log.Info().Msg("database migrations applied")
	return db, nil
}

func runMigrations(db *sqlx.DB) error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS profiles (
            id UUID PRIMARY KEY,
            email TEXT NOT NULL UNIQUE,
            full_name TEXT NOT NULL DEFAULT '',
            avatar_url TEXT NOT NULL DEFAULT '',
            updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
        );`,
		`CREATE TABLE IF NOT EXISTS conversations (
            id UUID PRIMARY KEY,
            name TEXT,
            is_group BOOLEAN NOT NULL DEFAULT FALSE,
            created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
        );`,
		`CREATE TABLE IF NOT EXISTS conversation_participants (
            conversation_id UUID NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
            user_id UUID NOT NULL REFERENCES profiles(id),
            joined_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
            PRIMARY KEY (conversation_id, user_id)
        );`,
		`CREATE TABLE IF NOT EXISTS messages (
            id UUID PRIMARY KEY,
            conversation_id UUID NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
            sender_id UUID NOT NULL REFERENCES profiles(id),
            content TEXT NOT NULL DEFAULT '',
            attachments JSONB NOT NULL DEFAULT '[]',
            created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
        );`,
		`CREATE INDEX IF NOT EXISTS idx_messages_conversation_created
            ON messages (conversation_id, created_at);`,
		// Inserted rows are pushed to the relay over a single NOTIFY channel.
		// Payloads carry the full row; attachment metadata stays well under
		// the notification size limit.
		`CREATE OR REPLACE FUNCTION notify_row_inserted() RETURNS trigger AS $$
        BEGIN
            PERFORM pg_notify('row_inserted',
                json_build_object('table', TG_TABLE_NAME, 'row', row_to_json(NEW))::text);
            RETURN NEW;
        END;
        $$ LANGUAGE plpgsql;`,
		`DROP TRIGGER IF EXISTS messages_notify_insert ON messages;`,
		`CREATE TRIGGER messages_notify_insert
            AFTER INSERT ON messages
            FOR EACH ROW EXECUTE FUNCTION notify_row_inserted();`,
		`DROP TRIGGER IF EXISTS participants_notify_insert ON conversation_participants;`,
		`CREATE TRIGGER participants_notify_insert
            AFTER INSERT ON conversation_participants
            FOR EACH ROW EXECUTE FUNCTION notify_row_inserted();`,
	}

	for _, m := range migrations {
		if _, err := db.Exec(m); err != nil {
			return err
		}
	}
	return nil
}
