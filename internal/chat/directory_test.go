package chat

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/pawhaven/chatkit/internal/rest"
	"github.com/pawhaven/chatkit/internal/testutil"
	"github.com/pawhaven/chatkit/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestRoomDirectory_refresh(t *testing.T) {
	api := &rest.MockChatAPI{}
	d := NewRoomDirectory(api, testutil.TestLogger(t))

	rooms := []types.Room{
		{ID: "7", SubjectRef: "42", LastMessageAt: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)},
		{ID: "9", SubjectRef: "43", LastMessageAt: time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)},
	}
	api.On("ListRooms", mock.Anything).Return(rooms, nil)

	require.NoError(t, d.Refresh(context.Background()), "expected refresh to succeed")

	got := d.Rooms()
	require.Len(t, got, 2, "expected both rooms")
	assert.Equal(t, "9", got[0].ID, "expected most recently active room first")
	assert.Equal(t, types.VisibilityActive, got[0].Visibility, "expected missing visibility to default to ACTIVE")
}

func TestRoomDirectory_refreshError(t *testing.T) {
	api := &rest.MockChatAPI{}
	d := NewRoomDirectory(api, testutil.TestLogger(t))
	api.On("ListRooms", mock.Anything).Return(nil, errors.New("backend down"))

	assert.Error(t, d.Refresh(context.Background()), "expected the error to surface")
}

func TestRoomDirectory_applyRoomEvent(t *testing.T) {
	d := NewRoomDirectory(&rest.MockChatAPI{}, testutil.TestLogger(t))
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	t.Run("message event upserts an unknown room", func(t *testing.T) {
		d.ApplyRoomEvent(types.RoomEvent{Kind: types.RoomEventMessage, RoomID: "7", LastMessageAt: at, UnreadCount: 1})

		room, ok := d.Get("7")
		require.True(t, ok, "expected the room to be created")
		assert.Equal(t, at, room.LastMessageAt, "expected the last-message time")
		assert.Equal(t, 1, room.UnreadCount, "expected the unread count")
	})

	t.Run("older message event does not rewind the clock", func(t *testing.T) {
		d.ApplyRoomEvent(types.RoomEvent{Kind: types.RoomEventMessage, RoomID: "7", LastMessageAt: at.Add(-time.Hour), UnreadCount: 2})

		room, _ := d.Get("7")
		assert.Equal(t, at, room.LastMessageAt, "expected the newer timestamp to stand")
		assert.Equal(t, 2, room.UnreadCount, "expected the count to still apply")
	})

	t.Run("hide and restore flip visibility", func(t *testing.T) {
		d.ApplyRoomEvent(types.RoomEvent{Kind: types.RoomEventHidden, RoomID: "7"})
		assert.Empty(t, d.Rooms(), "expected the hidden room filtered from the list")

		room, ok := d.Get("7")
		require.True(t, ok, "expected the hidden room to still exist")
		assert.Equal(t, types.VisibilityHidden, room.Visibility, "expected HIDDEN, not removal")

		d.ApplyRoomEvent(types.RoomEvent{Kind: types.RoomEventRestored, RoomID: "7"})
		assert.Len(t, d.Rooms(), 1, "expected the restored room back in the list")
	})

	t.Run("unknown kinds are dropped", func(t *testing.T) {
		d.ApplyRoomEvent(types.RoomEvent{Kind: "exploded", RoomID: "8"})
		_, ok := d.Get("8")
		assert.False(t, ok, "expected no upsert for an unknown kind")
	})
}

func TestRoomDirectory_openForSubject(t *testing.T) {
	api := &rest.MockChatAPI{}
	d := NewRoomDirectory(api, testutil.TestLogger(t))
	api.On("OpenForSubject", mock.Anything, "42").Return(types.Room{ID: "7", SubjectRef: "42"}, nil)

	room, err := d.OpenForSubject(context.Background(), "42")
	require.NoError(t, err, "expected get-or-create to succeed")
	assert.Equal(t, "7", room.ID, "expected the room for the subject")

	_, ok := d.Get("7")
	assert.True(t, ok, "expected the room recorded locally")
}

func TestRoomDirectory_open(t *testing.T) {
	api := &rest.MockChatAPI{}
	d := NewRoomDirectory(api, testutil.TestLogger(t))
	api.On("OpenRoom", mock.Anything, "7").Return(types.Room{ID: "7", UnreadCount: 3}, nil)

	room, err := d.Open(context.Background(), "7")
	require.NoError(t, err, "expected open to succeed")
	assert.Equal(t, 0, room.UnreadCount, "expected the unread count reset on open")
}

func TestRoomDirectory_hide(t *testing.T) {
	api := &rest.MockChatAPI{}
	d := NewRoomDirectory(api, testutil.TestLogger(t))
	d.ApplyRoomEvent(types.RoomEvent{Kind: types.RoomEventMessage, RoomID: "7", LastMessageAt: time.Now()})

	t.Run("hide is soft and local after the server accepts", func(t *testing.T) {
		api.On("HideRoom", mock.Anything, "7").Return(nil).Once()

		require.NoError(t, d.Hide(context.Background(), "7"), "expected hide to succeed")
		assert.Empty(t, d.Rooms(), "expected the room filtered out")

		room, ok := d.Get("7")
		require.True(t, ok, "expected the room kept")
		assert.Equal(t, types.VisibilityHidden, room.Visibility, "expected HIDDEN visibility")
	})

	t.Run("server failure leaves visibility untouched", func(t *testing.T) {
		d.ApplyRoomEvent(types.RoomEvent{Kind: types.RoomEventRestored, RoomID: "7"})
		api.On("HideRoom", mock.Anything, "7").Return(errors.New("backend down")).Once()

		assert.Error(t, d.Hide(context.Background(), "7"), "expected the error to surface")
		room, _ := d.Get("7")
		assert.Equal(t, types.VisibilityActive, room.Visibility, "expected visibility unchanged on failure")
	})
}

func TestRoomDirectory_noteMessage(t *testing.T) {
	d := NewRoomDirectory(&rest.MockChatAPI{}, testutil.TestLogger(t))
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	d.ApplyRoomEvent(types.RoomEvent{Kind: types.RoomEventMessage, RoomID: "7", LastMessageAt: at, UnreadCount: 2})
	d.NoteMessage("7", at.Add(time.Minute))

	room, _ := d.Get("7")
	assert.Equal(t, at.Add(time.Minute), room.LastMessageAt, "expected the last-message time bumped")
	assert.Equal(t, 2, room.UnreadCount, "expected the unread count untouched")
}
