package chat

import (
	"context"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/pawhaven/chatkit/internal/types"
)

// RoomAPI is the REST collaborator the directory consumes.
type RoomAPI interface {
	ListRooms(ctx context.Context) ([]types.Room, error)
	OpenForSubject(ctx context.Context, subjectRef string) (types.Room, error)
	OpenRoom(ctx context.Context, roomID string) (types.Room, error)
	HideRoom(ctx context.Context, roomID string) error
}

// RoomDirectory holds the authoritative room metadata list. It is
// updated incrementally from push events and fully from Refresh.
type RoomDirectory struct {
	log *log.Logger
	api RoomAPI

	mu    sync.RWMutex
	rooms map[string]types.Room
}

func NewRoomDirectory(api RoomAPI, logger *log.Logger) *RoomDirectory {
	return &RoomDirectory{
		log:   logger,
		api:   api,
		rooms: make(map[string]types.Room),
	}
}

// Refresh replaces the directory with the server's room list.
func (d *RoomDirectory) Refresh(ctx context.Context) error {
	rooms, err := d.api.ListRooms(ctx)
	if err != nil {
		return fmt.Errorf("refresh rooms: %w", err)
	}

	next := make(map[string]types.Room, len(rooms))
	for _, room := range rooms {
		if room.Visibility == "" {
			room.Visibility = types.VisibilityActive
		}
		next[room.ID] = room
	}

	d.mu.Lock()
	d.rooms = next
	d.mu.Unlock()
	return nil
}

// ApplyRoomEvent upserts one room from a push notification.
func (d *RoomDirectory) ApplyRoomEvent(ev types.RoomEvent) {
	d.mu.Lock()
	defer d.mu.Unlock()

	room, ok := d.rooms[ev.RoomID]
	if !ok {
		room = types.Room{ID: ev.RoomID, Visibility: types.VisibilityActive}
	}

	switch ev.Kind {
	case types.RoomEventMessage:
		if ev.LastMessageAt.After(room.LastMessageAt) {
			room.LastMessageAt = ev.LastMessageAt
		}
		room.UnreadCount = ev.UnreadCount
	case types.RoomEventHidden:
		room.Visibility = types.VisibilityHidden
	case types.RoomEventRestored:
		room.Visibility = types.VisibilityActive
	default:
		d.log.Printf("ignoring room event with unknown kind %q for room %q", ev.Kind, ev.RoomID)
		return
	}

	d.rooms[ev.RoomID] = room
}

// NoteMessage bumps a room's last-message time from a delivered room
// frame. Unread counts are left to the room-list channel.
func (d *RoomDirectory) NoteMessage(roomID string, at time.Time) {
	d.mu.Lock()
	defer d.mu.Unlock()

	room, ok := d.rooms[roomID]
	if !ok {
		room = types.Room{ID: roomID, Visibility: types.VisibilityActive}
	}
	if at.After(room.LastMessageAt) {
		room.LastMessageAt = at
	}
	d.rooms[roomID] = room
}

// OpenForSubject gets or creates the room for an animal listing and
// records it locally.
func (d *RoomDirectory) OpenForSubject(ctx context.Context, subjectRef string) (types.Room, error) {
	room, err := d.api.OpenForSubject(ctx, subjectRef)
	if err != nil {
		return types.Room{}, err
	}
	if room.Visibility == "" {
		room.Visibility = types.VisibilityActive
	}

	d.mu.Lock()
	d.rooms[room.ID] = room
	d.mu.Unlock()
	return room, nil
}

// Open opens a room by id. The server resets the room's unread count as
// a side effect, and the local copy follows.
func (d *RoomDirectory) Open(ctx context.Context, roomID string) (types.Room, error) {
	room, err := d.api.OpenRoom(ctx, roomID)
	if err != nil {
		return types.Room{}, err
	}
	room.UnreadCount = 0
	if room.Visibility == "" {
		room.Visibility = types.VisibilityActive
	}

	d.mu.Lock()
	d.rooms[room.ID] = room
	d.mu.Unlock()
	return room, nil
}

// Hide soft-deletes a room for this user. The server keeps the room;
// only its visibility flips.
func (d *RoomDirectory) Hide(ctx context.Context, roomID string) error {
	if err := d.api.HideRoom(ctx, roomID); err != nil {
		return err
	}

	d.mu.Lock()
	if room, ok := d.rooms[roomID]; ok {
		room.Visibility = types.VisibilityHidden
		d.rooms[roomID] = room
	}
	d.mu.Unlock()
	return nil
}

// Get looks up one room, hidden or not.
func (d *RoomDirectory) Get(roomID string) (types.Room, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	room, ok := d.rooms[roomID]
	return room, ok
}

// Rooms returns the visible rooms, most recently active first.
func (d *RoomDirectory) Rooms() []types.Room {
	d.mu.RLock()
	defer d.mu.RUnlock()

	out := make([]types.Room, 0, len(d.rooms))
	for _, room := range d.rooms {
		if room.Visibility == types.VisibilityHidden {
			continue
		}
		out = append(out, room)
	}

	sort.Slice(out, func(i, j int) bool {
		if !out[i].LastMessageAt.Equal(out[j].LastMessageAt) {
			return out[i].LastMessageAt.After(out[j].LastMessageAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}
