// Command relayd is the development realtime relay: it bridges Postgres
// insert notifications and client broadcasts onto websocket channels, the
// same surface the hosted backend exposes in production.
package main

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"chat-client/internal/config"
	"chat-client/internal/db"
	"chat-client/internal/middleware"
	"chat-client/internal/observability"
	"chat-client/internal/realtime"
	"chat-client/internal/store"
	"chat-client/internal/ws"
)

func main() {
	cfg := config.MustLoad()
	logger := newLogger(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := observability.SetupOTel(ctx, cfg.OTEL)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to set up tracing")
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(shutdownCtx); err != nil {
			logger.Warn().Err(err).Msg("tracer shutdown failed")
		}
	}()

	if cfg.AMQPURL != "" {
		publisher, err := observability.NewAMQPPublisher(cfg.AMQPURL, cfg.AMQPExchange)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect to AMQP")
		}
		defer publisher.Close()
		observability.SetPublisher(publisher)
		logger.Info().Str("exchange", cfg.AMQPExchange).Msg("event publishing enabled")
	}

	database, err := db.Connect(cfg.DatabaseDSN, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer database.Close()

	st := store.NewPostgres(database)
	hub := ws.NewHub(logger)
	handler := ws.NewHandler(hub, st, cfg.BroadcastRateRPS, cfg.BroadcastRateBurst, logger)

	go func() {
		err := db.ListenInserts(ctx, cfg.DatabaseDSN, logger, func(table string, row json.RawMessage) {
			routeInsert(hub, logger, table, row)
		})
		if err != nil && ctx.Err() == nil {
			logger.Error().Err(err).Msg("insert listener stopped")
			stop()
		}
	}()

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware(cfg.OTEL.ServiceName))
	router.Use(observability.HTTPMetricsMiddleware())

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.GET("/realtime/:topic", middleware.AuthMiddleware([]byte(cfg.JWTSecret)), handler.Handle)

	server := &http.Server{Addr: ":" + cfg.Port, Handler: router}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	logger.Info().Str("port", cfg.Port).Msg("relay listening")
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatal().Err(err).Msg("server error")
	}
}

// routeInsert maps a row-insert notification to the channel topic its
// subscribers watch.
func routeInsert(hub *ws.Hub, logger zerolog.Logger, table string, row json.RawMessage) {
	switch table {
	case "messages":
		var ref struct {
			ConversationID uuid.UUID `json:"conversation_id"`
		}
		if err := json.Unmarshal(row, &ref); err != nil || ref.ConversationID == uuid.Nil {
			logger.Warn().Err(err).Str("table", table).Msg("unroutable insert")
			return
		}
		hub.BroadcastInsert(realtime.TopicConversation(ref.ConversationID), table, row)
	case "conversation_participants":
		var ref struct {
			UserID uuid.UUID `json:"user_id"`
		}
		if err := json.Unmarshal(row, &ref); err != nil || ref.UserID == uuid.Nil {
			logger.Warn().Err(err).Str("table", table).Msg("unroutable insert")
			return
		}
		hub.BroadcastInsert(realtime.TopicUser(ref.UserID), table, row)
	default:
		logger.Debug().Str("table", table).Msg("ignoring insert")
	}
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
	return logger.Level(level).With().Timestamp().Str("service", "relayd").Logger()
}
