package chat

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_decodeServerFrame(t *testing.T) {
	t.Run("message frame", func(t *testing.T) {
		frame, err := decodeServerFrame([]byte(`{"message":{"id":"m1","room_id":"7","sender_id":"u1","content":"hi","sent_at":"2026-03-01T12:00:00Z"}}`))
		require.NoError(t, err, "expected a valid message frame to decode")
		require.NotNil(t, frame.Message, "expected the message variant")
		assert.Equal(t, "m1", frame.Message.ID)
		assert.Equal(t, "7", frame.Message.RoomID)
	})

	t.Run("room event frame", func(t *testing.T) {
		frame, err := decodeServerFrame([]byte(`{"room_event":{"kind":"hidden","room_id":"7"}}`))
		require.NoError(t, err)
		require.NotNil(t, frame.RoomEvent, "expected the room-event variant")
	})

	t.Run("unread frame", func(t *testing.T) {
		frame, err := decodeServerFrame([]byte(`{"unread":{"total":3}}`))
		require.NoError(t, err)
		require.NotNil(t, frame.Unread, "expected the unread variant")
		assert.Equal(t, 3, frame.Unread.Total)
	})

	t.Run("empty envelope", func(t *testing.T) {
		_, err := decodeServerFrame([]byte(`{}`))
		assert.Error(t, err, "expected an empty envelope to be rejected")
	})

	t.Run("multiple variants", func(t *testing.T) {
		_, err := decodeServerFrame([]byte(`{"unread":{"total":3},"room_event":{"kind":"hidden","room_id":"7"}}`))
		assert.Error(t, err, "expected a multi-variant envelope to be rejected")
	})

	t.Run("not json", func(t *testing.T) {
		_, err := decodeServerFrame([]byte(`garbage`))
		assert.Error(t, err, "expected garbage to be rejected")
	})
}

func Test_roomChannel(t *testing.T) {
	assert.Equal(t, "room/7", roomChannel("7"), "expected the room-scoped address")
}
