package chat

import (
	"log"
	"sync"
	"time"
)

// UnreadCounter tracks per-room and global unread counts, reconciling
// the optimistic zeroing done on room focus against authoritative
// server pushes that may race it.
type UnreadCounter struct {
	log *log.Logger
	now func() time.Time

	mu          sync.RWMutex
	perRoom     map[string]int
	serverTotal int
	focusedRoom string
	focusedAt   time.Time
	// focusDelta is the count zeroed on focus. It shields the displayed
	// total from stale pushes until the server catches up.
	focusDelta int
}

func NewUnreadCounter(logger *log.Logger) *UnreadCounter {
	return &UnreadCounter{
		log:     logger,
		now:     func() time.Time { return time.Now().UTC() },
		perRoom: make(map[string]int),
	}
}

// OnRoomFocus optimistically zeroes the focused room's count and
// records the zeroed amount as the focus delta.
func (u *UnreadCounter) OnRoomFocus(roomID string) {
	u.mu.Lock()
	defer u.mu.Unlock()

	u.focusedRoom = roomID
	u.focusedAt = u.now()
	u.focusDelta = u.perRoom[roomID]
	u.perRoom[roomID] = 0
}

// OnRoomBlur makes the counts fully authoritative again.
func (u *UnreadCounter) OnRoomBlur() {
	u.mu.Lock()
	defer u.mu.Unlock()

	u.focusedRoom = ""
	u.focusDelta = 0
}

// OnServerUnreadPush records the authoritative global total.
func (u *UnreadCounter) OnServerUnreadPush(total int) {
	u.mu.Lock()
	defer u.mu.Unlock()

	if total < 0 {
		u.log.Printf("ignoring negative unread total %d", total)
		return
	}
	u.serverTotal = total
}

// OnRoomListPush applies a per-room count from a room-list event. For
// the focused room a stale positive count is ignored; the count only
// rises again for a message strictly newer than the focus time, and a
// server-reported zero clears the focus delta.
func (u *UnreadCounter) OnRoomListPush(roomID string, count int, lastMessageAt time.Time) {
	u.mu.Lock()
	defer u.mu.Unlock()

	if count < 0 {
		count = 0
	}

	if roomID != u.focusedRoom {
		u.perRoom[roomID] = count
		return
	}

	switch {
	case count == 0:
		u.perRoom[roomID] = 0
		u.focusDelta = 0
	case lastMessageAt.After(u.focusedAt):
		u.perRoom[roomID] = count
	default:
		// stale count from before the focus, keep showing zero
	}
}

// DisplayedTotal is the global unread count as the UI should show it.
// Never negative.
func (u *UnreadCounter) DisplayedTotal() int {
	u.mu.RLock()
	defer u.mu.RUnlock()

	total := u.serverTotal
	if u.focusedRoom != "" {
		total -= u.focusDelta
	}
	if total < 0 {
		total = 0
	}
	return total
}

// RoomCount returns the per-room unread count. Never negative.
func (u *UnreadCounter) RoomCount(roomID string) int {
	u.mu.RLock()
	defer u.mu.RUnlock()

	return u.perRoom[roomID]
}
