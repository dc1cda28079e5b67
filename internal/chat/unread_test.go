package chat

import (
	"testing"
	"time"

	"github.com/pawhaven/chatkit/internal/testutil"
	"github.com/stretchr/testify/assert"
)

func newTestCounter(t *testing.T, now time.Time) *UnreadCounter {
	u := NewUnreadCounter(testutil.TestLogger(t))
	u.now = func() time.Time { return now }
	return u
}

func TestUnreadCounter_focusDelta(t *testing.T) {
	focusTime := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	u := newTestCounter(t, focusTime)

	// operator with three visible rooms and a global total of 5
	u.OnRoomListPush("1", 2, focusTime.Add(-time.Minute))
	u.OnRoomListPush("2", 2, focusTime.Add(-time.Minute))
	u.OnRoomListPush("3", 1, focusTime.Add(-time.Minute))
	u.OnServerUnreadPush(5)

	u.OnRoomFocus("1")

	assert.Equal(t, 0, u.RoomCount("1"), "expected the focused room to zero immediately")
	assert.Equal(t, 3, u.DisplayedTotal(), "expected the displayed total to drop by the zeroed count")

	t.Run("stale total does not flash the old count", func(t *testing.T) {
		// a push from before the server processed the read
		u.OnServerUnreadPush(5)
		assert.Equal(t, 3, u.DisplayedTotal(), "expected the focus delta to keep shielding the total")
	})

	t.Run("stale per-room count is ignored while focused", func(t *testing.T) {
		u.OnRoomListPush("1", 2, focusTime.Add(-time.Second))
		assert.Equal(t, 0, u.RoomCount("1"), "expected the focused room to stay at zero")
	})

	t.Run("a strictly newer message raises the focused count", func(t *testing.T) {
		u.OnRoomListPush("1", 1, focusTime.Add(time.Second))
		assert.Equal(t, 1, u.RoomCount("1"), "expected a newer message to count again")
	})

	t.Run("server zero makes the count authoritative again", func(t *testing.T) {
		u.OnRoomListPush("1", 0, focusTime.Add(2*time.Second))
		u.OnServerUnreadPush(3)
		assert.Equal(t, 3, u.DisplayedTotal(), "expected the raw server total once the delta cleared")
	})
}

func TestUnreadCounter_blurClearsDelta(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	u := newTestCounter(t, now)

	u.OnRoomListPush("1", 4, now.Add(-time.Minute))
	u.OnServerUnreadPush(4)
	u.OnRoomFocus("1")
	assert.Equal(t, 0, u.DisplayedTotal(), "expected the delta applied while focused")

	u.OnRoomBlur()
	assert.Equal(t, 4, u.DisplayedTotal(), "expected the authoritative total after blur")
}

func TestUnreadCounter_neverNegative(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	u := newTestCounter(t, now)

	u.OnRoomListPush("1", 5, now.Add(-time.Minute))
	u.OnServerUnreadPush(2)
	u.OnRoomFocus("1")

	assert.Equal(t, 0, u.DisplayedTotal(), "expected the displayed total clamped at zero")

	u.OnServerUnreadPush(-3)
	assert.Equal(t, 0, u.DisplayedTotal(), "expected a negative push to be ignored")

	u.OnRoomListPush("2", -1, now)
	assert.Equal(t, 0, u.RoomCount("2"), "expected per-room counts clamped at zero")
}

func TestUnreadCounter_unfocusedRoomsFollowPushes(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	u := newTestCounter(t, now)

	u.OnRoomFocus("1")
	u.OnRoomListPush("2", 7, now.Add(-time.Minute))
	assert.Equal(t, 7, u.RoomCount("2"), "expected unfocused rooms to track pushes directly")
}
