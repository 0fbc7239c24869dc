package realtime

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFrame(t *testing.T) {
	frame, err := ParseFrame([]byte(`{"topic":"conversation:x","kind":"insert","table":"messages","payload":{"id":"1"}}`))
	require.NoError(t, err)
	assert.Equal(t, KindInsert, frame.Kind)
	assert.Equal(t, "messages", frame.Table)
	assert.JSONEq(t, `{"id":"1"}`, string(frame.Payload))
}

func TestParseFrameRejections(t *testing.T) {
	cases := []struct {
		name string
		data string
	}{
		{"not json", `insert please`},
		{"missing kind", `{"topic":"conversation:x"}`},
		{"unknown field", `{"kind":"insert","extra":"field"}`},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ParseFrame([]byte(tc.data))
			assert.ErrorIs(t, err, ErrBadFrame)
		})
	}
}

func TestTopicHelpers(t *testing.T) {
	id := uuid.New()
	assert.Equal(t, "conversation:"+id.String(), TopicConversation(id))
	assert.Equal(t, "user:"+id.String(), TopicUser(id))
}
