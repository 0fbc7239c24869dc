package db

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/rs/zerolog"
)

const notifyChannel = "row_inserted"

type insertNotification struct {
	Table string          `json:"table"`
	Row   json.RawMessage `json:"row"`
}

// ListenInserts blocks forwarding row-insert notifications to handle until
// ctx is cancelled. pq reconnects transparently; notifications raised while
// disconnected are lost, which is acceptable for a live-events feed.
func ListenInserts(ctx context.Context, dsn string, log zerolog.Logger, handle func(table string, row json.RawMessage)) error {
	listener := pq.NewListener(dsn, 2*time.Second, time.Minute, func(ev pq.ListenerEventType, err error) {
		if err != nil {
			log.Warn().Err(err).Int("event", int(ev)).Msg("notify listener event")
		}
	})
	defer listener.Close()

	if err := listener.Listen(notifyChannel); err != nil {
		return fmt.Errorf("listen %s: %w", notifyChannel, err)
	}
	log.Info().Str("channel", notifyChannel).Msg("listening for row inserts")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case notification := <-listener.Notify:
			if notification == nil {
				continue // reconnect marker
			}
			var payload insertNotification
			if err := json.Unmarshal([]byte(notification.Extra), &payload); err != nil {
				log.Error().Err(err).Msg("rejected insert notification")
				continue
			}
			handle(payload.Table, payload.Row)
		case <-time.After(90 * time.Second):
			// Keep the connection honest during quiet periods.
			if err := listener.Ping(); err != nil {
				return fmt.Errorf("listener ping: %w", err)
			}
		}
	}
}
