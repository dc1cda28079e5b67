package chat

import (
	"fmt"
	"log"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pawhaven/chatkit/internal/rest"
	"github.com/pawhaven/chatkit/internal/stats"
	"github.com/pawhaven/chatkit/internal/types"
	"github.com/teris-io/shortid"
)

const (
	// matchWindow bounds the fallback echo match on send time.
	defaultMatchWindow = 5 * time.Second
	// failAfter is how long a pending message waits for its echo.
	defaultFailAfter = 10 * time.Second

	defaultPageSize = 40
)

type roomLog struct {
	messages   []*types.Message
	byServerID map[string]struct{}
	timers     map[string]*time.Timer
	nextPage   int
	hasMore    bool
}

func newRoomLog() *roomLog {
	return &roomLog{
		byServerID: make(map[string]struct{}),
		timers:     make(map[string]*time.Timer),
		hasMore:    true,
	}
}

// MessageStore keeps the ordered per-room message logs and reconciles
// optimistic sends against server echoes. Mutations arrive through the
// dispatcher; reads are consistent snapshots.
type MessageStore struct {
	log   *log.Logger
	stats stats.StatsProvider
	// post re-delivers timer fires onto the dispatcher queue.
	post func(func())

	matchWindow time.Duration
	failAfter   time.Duration
	pageSize    int
	now         func() time.Time

	mu    sync.RWMutex
	rooms map[string]*roomLog
}

func NewMessageStore(logger *log.Logger, sp stats.StatsProvider, post func(func())) *MessageStore {
	return &MessageStore{
		log:         logger,
		stats:       sp,
		post:        post,
		matchWindow: defaultMatchWindow,
		failAfter:   defaultFailAfter,
		pageSize:    defaultPageSize,
		now:         func() time.Time { return time.Now().UTC().Round(time.Millisecond) },
		rooms:       make(map[string]*roomLog),
	}
}

func (s *MessageStore) room(roomID string) *roomLog {
	rl, ok := s.rooms[roomID]
	if !ok {
		rl = newRoomLog()
		s.rooms[roomID] = rl
	}
	return rl
}

// AppendIncoming inserts a server-confirmed message, reconciling it
// against a pending optimistic send when one matches. Re-delivery of a
// known server id is a no-op.
func (s *MessageStore) AppendIncoming(msg types.Message) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	rl := s.room(msg.RoomID)
	if _, ok := rl.byServerID[msg.ID]; ok {
		return false
	}

	if pending := s.matchPending(rl, &msg); pending != nil {
		s.confirm(rl, pending, &msg)
		return true
	}

	msg.DeliveryState = types.DeliveryConfirmed
	s.insertSorted(rl, &msg)
	rl.byServerID[msg.ID] = struct{}{}
	return true
}

// matchPending finds the pending message the incoming echo confirms.
// A correlation id match is exact. The fallback key (sender, content,
// send time within the match window) can be ambiguous when identical
// content is in flight twice; the earliest pending entry wins and the
// ambiguity is counted.
func (s *MessageStore) matchPending(rl *roomLog, msg *types.Message) *types.Message {
	if msg.CorrelationID != "" {
		for _, m := range rl.messages {
			if m.DeliveryState == types.DeliveryPending && m.CorrelationID == msg.CorrelationID {
				return m
			}
		}
	}

	var candidates []*types.Message
	for _, m := range rl.messages {
		if m.DeliveryState != types.DeliveryPending {
			continue
		}
		if m.SenderID != msg.SenderID || m.Content != msg.Content {
			continue
		}
		delta := msg.SentAt.Sub(m.SentAt)
		if delta < 0 {
			delta = -delta
		}
		if delta <= s.matchWindow {
			candidates = append(candidates, m)
		}
	}

	if len(candidates) == 0 {
		return nil
	}
	if len(candidates) > 1 {
		s.log.Printf("ambiguous echo in room %q: %d pending candidates for sender %q, taking earliest",
			msg.RoomID, len(candidates), msg.SenderID)
		s.stats.Incr(stats.ReconcileAmbiguities)
	}
	return candidates[0]
}

// confirm replaces the pending entry in place with the server fields.
// Keeping the position preserves the room's observed ordering.
func (s *MessageStore) confirm(rl *roomLog, pending *types.Message, msg *types.Message) {
	s.cancelTimer(rl, pending.LocalID)

	pending.ID = msg.ID
	pending.SentAt = msg.SentAt
	pending.DeliveryState = types.DeliveryConfirmed
	rl.byServerID[msg.ID] = struct{}{}
	s.stats.Incr(stats.MessagesConfirmed)
}

// AppendOptimistic inserts a locally-originated message as PENDING and
// arms the failure timeout. The returned copy carries the local id the
// caller uses for resend.
func (s *MessageStore) AppendOptimistic(roomID, senderID, content string) types.Message {
	s.mu.Lock()
	defer s.mu.Unlock()

	localID, err := shortid.Generate()
	if err != nil {
		// shortid only fails on a broken entropy source
		localID = uuid.NewString()
	}

	msg := &types.Message{
		LocalID:       localID,
		CorrelationID: uuid.NewString(),
		RoomID:        roomID,
		SenderID:      senderID,
		Content:       content,
		SentAt:        s.now(),
		DeliveryState: types.DeliveryPending,
	}

	rl := s.room(roomID)
	s.insertSorted(rl, msg)
	s.armFailTimer(rl, roomID, localID)

	return *msg
}

func (s *MessageStore) armFailTimer(rl *roomLog, roomID, localID string) {
	rl.timers[localID] = time.AfterFunc(s.failAfter, func() {
		s.post(func() {
			s.failPending(roomID, localID)
		})
	})
}

// failPending transitions a still-pending message to FAILED. The timer
// is canceled on confirmation, so this runs at most once per send.
func (s *MessageStore) failPending(roomID, localID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rl, ok := s.rooms[roomID]
	if !ok {
		return
	}
	delete(rl.timers, localID)

	for _, m := range rl.messages {
		if m.LocalID == localID && m.DeliveryState == types.DeliveryPending {
			m.DeliveryState = types.DeliveryFailed
			s.stats.Incr(stats.MessagesFailed)
			s.log.Println(&types.SendTimeoutError{LocalID: localID, RoomID: roomID})
			return
		}
	}
}

func (s *MessageStore) cancelTimer(rl *roomLog, localID string) {
	if timer, ok := rl.timers[localID]; ok {
		timer.Stop()
		delete(rl.timers, localID)
	}
}

// Resend re-appends a FAILED message as a fresh optimistic send. The
// failed entry is removed; resend is never automatic.
func (s *MessageStore) Resend(roomID, localID string) (types.Message, error) {
	s.mu.Lock()

	rl, ok := s.rooms[roomID]
	if !ok {
		s.mu.Unlock()
		return types.Message{}, fmt.Errorf("unknown room %q", roomID)
	}

	idx := -1
	for i, m := range rl.messages {
		if m.LocalID == localID {
			idx = i
			break
		}
	}
	if idx == -1 {
		s.mu.Unlock()
		return types.Message{}, fmt.Errorf("no message %q in room %q", localID, roomID)
	}
	failed := rl.messages[idx]
	if failed.DeliveryState != types.DeliveryFailed {
		s.mu.Unlock()
		return types.Message{}, fmt.Errorf("message %q is %s, only FAILED messages can be resent", localID, failed.DeliveryState)
	}

	rl.messages = slices.Delete(rl.messages, idx, idx+1)
	s.mu.Unlock()

	return s.AppendOptimistic(roomID, failed.SenderID, failed.Content), nil
}

// NextPage returns the history cursor for a room: the next server-side
// page to fetch and the page size.
func (s *MessageStore) NextPage(roomID string) (int, int) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if rl, ok := s.rooms[roomID]; ok {
		return rl.nextPage, s.pageSize
	}
	return 0, s.pageSize
}

// MergePage folds one history page into the room log without creating
// duplicate ids, advancing the page cursor. Realtime appends that
// happened during the fetch are unaffected.
func (s *MessageStore) MergePage(roomID string, page rest.HistoryPage) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rl := s.room(roomID)
	for _, msg := range page.Content {
		if _, ok := rl.byServerID[msg.ID]; ok {
			continue
		}
		m := msg
		m.DeliveryState = types.DeliveryConfirmed
		s.insertSorted(rl, &m)
		rl.byServerID[m.ID] = struct{}{}
	}

	rl.nextPage = page.Page + 1
	rl.hasMore = !page.Last
}

// HasMore reports whether older history pages remain for the room.
func (s *MessageStore) HasMore(roomID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if rl, ok := s.rooms[roomID]; ok {
		return rl.hasMore
	}
	return true
}

// Messages returns a consistent snapshot of a room's log in
// (SentAt, serverId) order.
func (s *MessageStore) Messages(roomID string) []types.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rl, ok := s.rooms[roomID]
	if !ok {
		return nil
	}

	out := make([]types.Message, len(rl.messages))
	for i, m := range rl.messages {
		out[i] = *m
	}
	return out
}

// Size returns the number of entries in a room's log.
func (s *MessageStore) Size(roomID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if rl, ok := s.rooms[roomID]; ok {
		return len(rl.messages)
	}
	return 0
}

func (s *MessageStore) insertSorted(rl *roomLog, msg *types.Message) {
	idx, _ := slices.BinarySearchFunc(rl.messages, msg, func(a, b *types.Message) int {
		if c := a.SentAt.Compare(b.SentAt); c != 0 {
			return c
		}
		return cmpString(a.ID, b.ID)
	})
	// insert after equal keys so arrival order breaks exact ties
	for idx < len(rl.messages) && rl.messages[idx].SentAt.Equal(msg.SentAt) && rl.messages[idx].ID == msg.ID {
		idx++
	}
	rl.messages = slices.Insert(rl.messages, idx, msg)
}

func cmpString(a, b string) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}
