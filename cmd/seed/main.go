// Command seed provisions a local development dataset: a handful of
// profiles, a direct conversation, a group and some chat history. It prints
// a signed dev token per profile for use as ACCESS_TOKEN.
package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"chat-client/internal/config"
	"chat-client/internal/db"
	"chat-client/internal/models"
	"chat-client/internal/storage"
	"chat-client/internal/store"
)

func main() {
	cfg := config.MustLoad()
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()
	ctx := context.Background()

	database, err := db.Connect(cfg.DatabaseDSN, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer database.Close()
	st := store.NewPostgres(database)

	objects, err := storage.NewMinio(storage.MinioConfig{
		Endpoint:  cfg.StorageEndpoint,
		AccessKey: cfg.StorageAccessKey,
		SecretKey: cfg.StorageSecretKey,
		UseSSL:    cfg.StorageUseSSL,
	})
	if err != nil {
		logger.Warn().Err(err).Msg("object storage unavailable, skipping bucket setup")
	} else if err := objects.EnsureBucket(ctx, cfg.AttachmentBucket); err != nil {
		logger.Warn().Err(err).Str("bucket", cfg.AttachmentBucket).Msg("bucket setup failed")
	}

	gofakeit.Seed(0)

	profiles := []models.Profile{
		newProfile("alice@example.com", "Alice Demo"),
		newProfile("bob@example.com", "Bob Demo"),
	}
	for i := 0; i < 3; i++ {
		name := gofakeit.Name()
		email := strings.ToLower(gofakeit.Username()) + "@example.com"
		profiles = append(profiles, newProfile(email, name))
	}

	for _, p := range profiles {
		if err := st.InsertProfile(ctx, p); err != nil {
			logger.Fatal().Err(err).Str("email", p.Email).Msg("failed to insert profile")
		}
	}

	direct := seedConversation(ctx, logger, st, models.Conversation{
		ID:        uuid.New(),
		IsGroup:   false,
		CreatedAt: time.Now(),
	}, profiles[:2])
	group := seedConversation(ctx, logger, st, models.Conversation{
		ID:        uuid.New(),
		Name:      ptr("Plan of the week"),
		IsGroup:   true,
		CreatedAt: time.Now(),
	}, profiles[:4])

	seedMessages(ctx, logger, st, direct, profiles[:2], 8)
	seedMessages(ctx, logger, st, group, profiles[:4], 12)

	fmt.Println("seeded profiles (use a token as ACCESS_TOKEN):")
	for _, p := range profiles {
		token, err := mintToken(cfg.JWTSecret, p)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to sign token")
		}
		fmt.Printf("  %-30s %s\n", p.Email, token)
	}
}

func newProfile(email, name string) models.Profile {
	return models.Profile{
		ID:        uuid.New(),
		Email:     email,
		FullName:  name,
		AvatarURL: gofakeit.ImageURL(128, 128),
		UpdatedAt: time.Now(),
	}
}

func seedConversation(ctx context.Context, logger zerolog.Logger, st store.Store, conv models.Conversation, members []models.Profile) models.Conversation {
	stored, err := st.InsertConversation(ctx, conv)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to insert conversation")
	}
	links := make([]models.Participant, 0, len(members))
	for _, m := range members {
		links = append(links, models.Participant{
			ConversationID: stored.ID,
			UserID:         m.ID,
			JoinedAt:       time.Now(),
		})
	}
	if err := st.InsertParticipants(ctx, links); err != nil {
		logger.Fatal().Err(err).Msg("failed to insert participants")
	}
	return stored
}

func seedMessages(ctx context.Context, logger zerolog.Logger, st store.Store, conv models.Conversation, members []models.Profile, count int) {
	base := time.Now().Add(-time.Duration(count) * time.Minute)
	for i := 0; i < count; i++ {
		sender := members[i%len(members)]
		_, err := st.InsertMessage(ctx, models.Message{
			ID:             uuid.New(),
			ConversationID: conv.ID,
			SenderID:       sender.ID,
			Content:        gofakeit.Sentence(gofakeit.Number(3, 12)),
			Attachments:    models.Attachments{},
			CreatedAt:      base.Add(time.Duration(i) * time.Minute),
		})
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to insert message")
		}
	}
}

// mintToken signs a dev session token shaped like the auth backend's.
func mintToken(secret string, p models.Profile) (string, error) {
	claims := jwt.MapClaims{
		"sub":   p.ID.String(),
		"email": p.Email,
		"exp":   time.Now().Add(30 * 24 * time.Hour).Unix(),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

func ptr(s string) *string { return &s }
