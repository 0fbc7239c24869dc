package ws

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// parseTopic splits a channel topic into its kind ("conversation" or
// "user") and the scoping id.
func parseTopic(topic string) (kind string, id uuid.UUID, err error) {
	parts := strings.SplitN(topic, ":", 2)
	if len(parts) != 2 {
		return "", uuid.Nil, fmt.Errorf("malformed topic %q", topic)
	}
	kind = parts[0]
	if kind != "conversation" && kind != "user" {
		return "", uuid.Nil, fmt.Errorf("unknown topic kind %q", kind)
	}
	id, err = uuid.Parse(parts[1])
	if err != nil {
		return "", uuid.Nil, fmt.Errorf("malformed topic id %q", parts[1])
	}
	return kind, id, nil
}

func newConnID() string {
	return uuid.NewString()
}

func routingKey(kind string) string {
	if kind == "user" {
		return "ws_events.users"
	}
	return "ws_events.conversations"
}
