package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"chat-client/internal/backend"
	"chat-client/internal/composer"
	"chat-client/internal/config"
	"chat-client/internal/conversations"
	"chat-client/internal/directory"
	"chat-client/internal/models"
	"chat-client/internal/stream"
)

func main() {
	cfg := config.MustLoad()
	logger := newLogger(cfg)

	if cfg.AccessToken == "" {
		logger.Fatal().Msg("ACCESS_TOKEN is required; run cmd/seed to mint dev tokens")
	}

	client, err := backend.New(cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect backend")
	}
	defer client.Close()

	session, err := client.Auth.SignIn(cfg.AccessToken)
	if err != nil {
		logger.Fatal().Err(err).Msg("sign-in failed")
	}
	fmt.Printf("signed in as %s\n", session.Email)

	ctx := context.Background()

	dir := directory.New(client.Store, logger)
	printListing := func(listing []models.EnrichedConversation) {
		for i, conv := range listing {
			fmt.Printf("%2d. %s  (%s)\n", i+1, conv.DisplayName, conv.ID)
		}
	}
	listing, err := dir.List(ctx, session.UserID)
	if err != nil {
		logger.Error().Err(err).Msg("could not load conversations")
	}
	printListing(listing)

	watch, err := dir.Watch(ctx, client.Realtime, session.UserID, func(listing []models.EnrichedConversation) {
		fmt.Println("-- conversations updated --")
		printListing(listing)
	})
	if err != nil {
		logger.Warn().Err(err).Msg("membership updates unavailable")
	} else {
		defer watch.Close()
	}

	controller := stream.New(client.Store, client.Realtime, session.UserID, logger,
		stream.WithQuietPeriod(cfg.TypingQuietPeriod),
		stream.WithHistoryLimit(cfg.HistoryLimit),
		stream.WithOnUpdate(render),
	)
	defer controller.Close(ctx)

	compose := composer.New(client.Store, client.Objects, cfg.AttachmentBucket, session.UserID, logger)
	starter := conversations.New(client.Store, logger)

	fmt.Println("commands: /chats, /open <email>, /attach <path> [caption], /quit")

	var pending []composer.Upload
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		switch {
		case line == "/quit":
			return
		case line == "/chats":
			listing, err := dir.List(ctx, session.UserID)
			if err != nil {
				fmt.Println("error:", err)
				listing = dir.Cached()
			}
			printListing(listing)
		case strings.HasPrefix(line, "/open "):
			email := strings.TrimSpace(strings.TrimPrefix(line, "/open "))
			convID, err := starter.EnsureDirect(ctx, session.UserID, email)
			if err != nil {
				fmt.Println("error:", err)
				continue
			}
			if err := controller.Open(ctx, convID); err != nil {
				fmt.Println("error:", err)
			}
		case strings.HasPrefix(line, "/attach "):
			rest := strings.TrimSpace(strings.TrimPrefix(line, "/attach "))
			path, caption, _ := strings.Cut(rest, " ")
			data, err := os.ReadFile(path)
			if err != nil {
				fmt.Println("error:", err)
				continue
			}
			pending = append(pending, composer.Upload{
				Name:        filepath.Base(path),
				ContentType: contentTypeFor(path),
				Data:        data,
			})
			if caption = strings.TrimSpace(caption); caption != "" {
				send(ctx, controller, compose, caption, &pending)
			} else {
				fmt.Printf("attachment staged (%d pending); type a caption or press enter to send\n", len(pending))
			}
		default:
			send(ctx, controller, compose, line, &pending)
		}
	}
}

func send(ctx context.Context, controller *stream.Controller, compose *composer.Composer, text string, pending *[]composer.Upload) {
	convID := controller.ConversationID()
	if convID == uuid.Nil {
		fmt.Println("no open conversation; use /open <email>")
		return
	}
	controller.NotifyTyping(ctx)
	if _, err := compose.Send(ctx, convID, text, *pending); err != nil {
		fmt.Println("error:", err)
		return // a failed send keeps the staged attachments
	}
	*pending = nil
}

func render(snap stream.Snapshot) {
	if snap.State != stream.StateLive && snap.State != stream.StateLoading {
		return
	}
	if n := len(snap.Messages); n > 0 {
		last := snap.Messages[n-1]
		line := last.Content
		for _, att := range last.Attachments {
			line += fmt.Sprintf(" [%s]", att.Name)
		}
		fmt.Printf("[%s] %s: %s\n", last.CreatedAt.Format("15:04:05"), shortID(last.SenderID.String()), line)
	}
	if len(snap.Typing) > 0 {
		names := make([]string, 0, len(snap.Typing))
		for _, id := range snap.Typing {
			names = append(names, shortID(id.String()))
		}
		fmt.Printf("… %s typing\n", strings.Join(names, ", "))
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func contentTypeFor(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".png":
		return "image/png"
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".gif":
		return "image/gif"
	case ".pdf":
		return "application/pdf"
	case ".txt":
		return "text/plain"
	}
	return "application/octet-stream"
}

func newLogger(cfg config.Config) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	var logger zerolog.Logger
	if cfg.LogPretty {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr})
	} else {
		logger = zerolog.New(os.Stderr)
	}
	return logger.Level(level).With().Timestamp().Logger()
}
